package extraction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/zombor/card-scanner/internal/contact"
)

// ErrNoResponse is returned when a model answers without any text
var ErrNoResponse = errors.New("no response from model")

// Extractor turns a captured business card image into a contact record
type Extractor interface {
	// Extract reads the image at location and returns the fields found on the card
	Extract(ctx context.Context, location string) (*contact.Record, error)
}

// Model sends an image and an instruction to a multimodal model and returns its reply text
type Model interface {
	Generate(ctx context.Context, image []byte, mimeType, prompt string) (string, error)
	// Close releases the model client
	Close() error
}

// Client implements Extractor on top of a Model
type Client struct {
	model    Model
	attempts int
	backoff  time.Duration
}

// Option configures a Client
type Option func(*Client)

// WithAttempts sets how many times a failed model call is attempted in total
func WithAttempts(n int) Option {
	return func(c *Client) {
		if n < 1 {
			n = 1
		}
		c.attempts = n
	}
}

// WithBackoff sets the base delay between attempts
func WithBackoff(d time.Duration) Option {
	return func(c *Client) { c.backoff = d }
}

// New creates an extraction client for model
func New(model Model, opts ...Option) *Client {
	c := &Client{
		model:    model,
		attempts: 3,
		backoff:  time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Extract reads the image at location, sends it to the model and parses the reply
func (c *Client) Extract(ctx context.Context, location string) (*contact.Record, error) {
	data, err := readImage(location)
	if err != nil {
		return nil, err
	}

	imageData, mimeType, err := prepareImage(data)
	if err != nil {
		return nil, err
	}

	backoff := retry.WithMaxRetries(uint64(c.attempts-1), retry.NewExponential(c.backoff))

	var text string
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		t, err := c.model.Generate(ctx, imageData, mimeType, cardPrompt)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, ErrNoResponse) || !retryable(err) {
				return err
			}
			slog.Warn("Model call failed, retrying", "error", err)
			return retry.RetryableError(err)
		}
		text = t
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("generating content: %w", err)
	}

	record, err := parseRecord(text)
	if err != nil {
		slog.Error("Model reply is not a contact record", "reply", text, "error", err)
		return nil, fmt.Errorf("parsing contact data: %w", err)
	}
	return record, nil
}

// Close closes the underlying model
func (c *Client) Close() error {
	return c.model.Close()
}

// retryable reports whether err may clear up on retry. Errors that say
// otherwise through a Retryable method are final; everything else is retried.
func retryable(err error) bool {
	var r interface{ Retryable() bool }
	if errors.As(err, &r) {
		return r.Retryable()
	}
	return true
}

// modelError records whether a backend failure may clear up on retry
type modelError struct {
	err       error
	retryable bool
}

func (e *modelError) Error() string   { return e.err.Error() }
func (e *modelError) Unwrap() error   { return e.err }
func (e *modelError) Retryable() bool { return e.retryable }

// retryableStatus reports whether a model API status may clear up on retry.
// Client errors other than 408 and 429 (bad key, bad request, permission) are final.
func retryableStatus(code int) bool {
	if code < 400 || code >= 500 {
		return true
	}
	return code == http.StatusRequestTimeout || code == http.StatusTooManyRequests
}
