package sheets

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/zombor/card-scanner/internal/contact"
)

// ErrMissingURL is returned when Append is called without a webhook URL.
var ErrMissingURL = errors.New("google sheets url is missing")

// ErrMalformedAck is returned when a 2xx response body is not JSON.
var ErrMalformedAck = errors.New("webhook acknowledgement is not JSON")

// RequestIDHeader carries an id that stays the same across retries of one append.
const RequestIDHeader = "X-Request-ID"

// StatusError is returned when the webhook answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("webhook returned status %d: %s", e.StatusCode, e.Body)
}

// Message turns an Append error into the text shown to the user.
func Message(err error) string {
	var statusErr *StatusError
	switch {
	case errors.Is(err, ErrMissingURL):
		return "Google Sheets URL is missing. Please enter it in the app."
	case errors.As(err, &statusErr):
		return "Failed to save to Google Sheet: " + statusErr.Body
	case err != nil:
		return "Failed to save to Google Sheet: " + err.Error()
	}
	return ""
}

// Ack is the webhook's decoded JSON acknowledgement.
type Ack struct {
	StatusCode int
	Body       any
}

// Result returns the "result" member of an object body, if any.
func (a *Ack) Result() string {
	m, ok := a.Body.(map[string]any)
	if !ok {
		return ""
	}
	s, _ := m["result"].(string)
	return s
}

// Appender appends contact records to a spreadsheet.
type Appender interface {
	Append(ctx context.Context, url string, record *contact.Record) (*Ack, error)
}

// Client posts contact records to a spreadsheet webhook
type Client struct {
	httpClient *http.Client
	attempts   int
	backoff    time.Duration
	newID      func() string
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the HTTP client used for requests
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

// WithAttempts sets how many times a retryable failure is attempted in total.
// Values below 1 are treated as 1.
func WithAttempts(n int) Option {
	return func(cl *Client) {
		if n < 1 {
			n = 1
		}
		cl.attempts = n
	}
}

// WithBackoff sets the base delay of the exponential backoff between attempts
func WithBackoff(d time.Duration) Option {
	return func(cl *Client) { cl.backoff = d }
}

// NewClient creates a webhook client. By default it makes a single attempt,
// since the reference webhook appends a row per request.
func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		attempts:   1,
		backoff:    500 * time.Millisecond,
		newID: func() string {
			return uuid.Must(uuid.NewV7()).String()
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Append posts the record to url and returns the decoded acknowledgement
func (c *Client) Append(ctx context.Context, url string, record *contact.Record) (*Ack, error) {
	if strings.TrimSpace(url) == "" {
		return nil, ErrMissingURL
	}

	payload, err := contact.Encode(record)
	if err != nil {
		return nil, err
	}

	requestID := c.newID()
	backoff := retry.WithMaxRetries(uint64(c.attempts-1), retry.NewExponential(c.backoff))

	var ack *Ack
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		a, temporary, err := c.post(ctx, url, requestID, payload)
		if err != nil {
			if temporary && ctx.Err() == nil {
				slog.Warn("Sheets webhook attempt failed", "request_id", requestID, "error", err)
				return retry.RetryableError(err)
			}
			return err
		}
		ack = a
		return nil
	})
	if err != nil {
		slog.Error("Error saving to sheet", "request_id", requestID, "error", err)
		return nil, err
	}
	return ack, nil
}

// post makes one attempt. temporary reports whether the failure may clear up on its own.
func (c *Client) post(ctx context.Context, url, requestID string, payload []byte) (ack *Ack, temporary bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, false, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(RequestIDHeader, requestID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("calling webhook: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("reading response: %w", err)
	}
	text := string(body)

	slog.Info("Sheets webhook response", "request_id", requestID, "status", resp.StatusCode, "body", text)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, retryableStatus(resp.StatusCode), &StatusError{StatusCode: resp.StatusCode, Body: text}
	}

	var decoded any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrMalformedAck, err)
	}

	return &Ack{StatusCode: resp.StatusCode, Body: decoded}, false, nil
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}
