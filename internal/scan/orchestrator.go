package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/zombor/card-scanner/internal/contact"
	"github.com/zombor/card-scanner/internal/extraction"
	"github.com/zombor/card-scanner/internal/prefs"
	"github.com/zombor/card-scanner/internal/sheets"
)

var (
	// ErrMissingWebhookURL is returned when a scan is started without a webhook URL
	ErrMissingWebhookURL = errors.New("webhook url is not set")

	// ErrInvalidTransition is returned when an action is not offered on the current screen
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrSaveInProgress is returned when a save is requested while one is pending
	ErrSaveInProgress = errors.New("save already in progress")

	// ErrAbandoned is returned when the user left the screen before an operation finished.
	// The result of the operation is dropped.
	ErrAbandoned = errors.New("operation abandoned")
)

// User-facing alert texts
const (
	missingURLTitle   = "Missing URL"
	missingURLMessage = "Please enter your Google Apps Script Web App URL first."
	errorTitle        = "Error"
	extractMessage    = "Failed to extract information. Please try again."
	successTitle      = "Success"
	savedMessage      = "Data saved to Google Sheet!"
)

// Orchestrator owns the scan screen state machine:
//
//	Home -> Camera -> Processing -> Result -> Home
//
// Extraction and save run outside the lock. Every transition that abandons an
// in-flight operation bumps the epoch, so late completions are discarded.
type Orchestrator struct {
	mu sync.Mutex

	// prefsMu orders webhook URL writes without holding mu during I/O
	prefsMu sync.Mutex

	prefs     prefs.Store
	extractor extraction.Extractor
	sheet     sheets.Appender
	captures  CaptureStore

	extractTimeout time.Duration
	saveTimeout    time.Duration

	screen Screen
	record *contact.Record
	saving bool
	url    string
	alert  *Alert
	epoch  uint64
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithExtractTimeout bounds each extraction
func WithExtractTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.extractTimeout = d }
}

// WithSaveTimeout bounds each save
func WithSaveTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.saveTimeout = d }
}

// WithCaptures makes the orchestrator delete captured photos once extraction is done
func WithCaptures(c CaptureStore) Option {
	return func(o *Orchestrator) { o.captures = c }
}

// New creates an Orchestrator on the Home screen and loads the saved webhook URL.
// A failed read is logged and leaves the URL empty.
func New(store prefs.Store, extractor extraction.Extractor, sheet sheets.Appender, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		prefs:          store,
		extractor:      extractor,
		sheet:          sheet,
		extractTimeout: 60 * time.Second,
		saveTimeout:    30 * time.Second,
		screen:         Home,
	}
	for _, opt := range opts {
		opt(o)
	}

	url, err := store.Get()
	if err != nil {
		slog.Error("Failed to load sheet URL", "error", err)
	}
	o.url = url

	return o
}

// Snapshot returns the current state
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

func (o *Orchestrator) snapshotLocked() Snapshot {
	s := Snapshot{
		Screen:     o.screen,
		Saving:     o.saving,
		WebhookURL: o.url,
	}
	if o.record != nil {
		s.Record = o.record.Clone()
		s.Fields = o.record.Rows()
	}
	if o.alert != nil {
		a := *o.alert
		s.Alert = &a
	}
	return s
}

// SetWebhookURL updates the webhook URL and persists it. The new value is
// visible to Snapshot before the write finishes. A failed write is logged;
// the new value is still used for this session.
func (o *Orchestrator) SetWebhookURL(url string) {
	o.prefsMu.Lock()
	defer o.prefsMu.Unlock()

	o.mu.Lock()
	o.url = url
	o.mu.Unlock()

	if err := o.prefs.Set(url); err != nil {
		slog.Error("Failed to save sheet URL", "error", err)
	}
}

// DismissAlert clears the current alert
func (o *Orchestrator) DismissAlert() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.alert = nil
	return o.snapshotLocked()
}

// StartScan moves from Home to Camera. Without a webhook URL it stays on Home
// and raises the missing URL alert.
func (o *Orchestrator) StartScan() (Snapshot, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.expectLocked(Home, Camera); err != nil {
		return o.snapshotLocked(), err
	}
	if strings.TrimSpace(o.url) == "" {
		o.alert = &Alert{Kind: AlertError, Title: missingURLTitle, Message: missingURLMessage}
		return o.snapshotLocked(), ErrMissingWebhookURL
	}

	o.alert = nil
	o.screen = Camera
	return o.snapshotLocked(), nil
}

// CancelCapture returns from Camera to Home without an alert
func (o *Orchestrator) CancelCapture() (Snapshot, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.expectLocked(Camera, Home); err != nil {
		return o.snapshotLocked(), err
	}
	o.screen = Home
	return o.snapshotLocked(), nil
}

// Capture hands the photo at location to the extractor. The state is
// Processing until extraction resolves, then Result with the extracted record,
// or Home with an error alert.
func (o *Orchestrator) Capture(ctx context.Context, location string) (Snapshot, error) {
	o.mu.Lock()
	if err := o.expectLocked(Camera, Processing); err != nil {
		defer o.mu.Unlock()
		return o.snapshotLocked(), err
	}
	o.screen = Processing
	o.record = nil
	o.epoch++
	epoch := o.epoch
	o.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, o.extractTimeout)
	defer cancel()

	record, err := o.extractor.Extract(ctx, location)
	if err == nil && record == nil {
		err = fmt.Errorf("extractor returned no record")
	}
	o.discardCapture(location)

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.epoch != epoch {
		slog.Warn("Dropping extraction result for abandoned scan", "location", location, "error", err)
		return o.snapshotLocked(), ErrAbandoned
	}

	if err != nil {
		slog.Error("Failed to extract information", "location", location, "error", err)
		o.screen = Home
		o.record = nil
		o.alert = &Alert{Kind: AlertError, Title: errorTitle, Message: extractMessage}
		return o.snapshotLocked(), fmt.Errorf("extracting contact: %w", err)
	}

	o.screen = Result
	o.record = record
	return o.snapshotLocked(), nil
}

// Save appends the record on the Result screen to the sheet. On success the
// state returns to Home; on failure it stays on Result with the record intact.
func (o *Orchestrator) Save(ctx context.Context) (Snapshot, error) {
	o.mu.Lock()
	if err := o.expectLocked(Result, Home); err != nil {
		defer o.mu.Unlock()
		return o.snapshotLocked(), err
	}
	if o.saving {
		defer o.mu.Unlock()
		return o.snapshotLocked(), ErrSaveInProgress
	}
	o.saving = true
	url := o.url
	record := o.record.Clone()
	epoch := o.epoch
	o.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, o.saveTimeout)
	defer cancel()

	ack, err := o.sheet.Append(ctx, url, record)

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.epoch != epoch {
		slog.Warn("Dropping save result for abandoned scan", "error", err)
		return o.snapshotLocked(), ErrAbandoned
	}
	o.saving = false

	if err != nil {
		o.alert = &Alert{Kind: AlertError, Title: errorTitle, Message: sheets.Message(err)}
		return o.snapshotLocked(), fmt.Errorf("saving contact: %w", err)
	}

	slog.Info("Saved contact to sheet", "result", ack.Result())
	o.screen = Home
	o.record = nil
	o.alert = &Alert{Kind: AlertSuccess, Title: successTitle, Message: savedMessage}
	return o.snapshotLocked(), nil
}

// Retake discards the record on the Result screen and goes back to Camera.
// A pending save is abandoned.
func (o *Orchestrator) Retake() (Snapshot, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.expectLocked(Result, Camera); err != nil {
		return o.snapshotLocked(), err
	}
	o.epoch++
	o.screen = Camera
	o.record = nil
	o.saving = false
	return o.snapshotLocked(), nil
}

// Reset returns to Home from any screen, abandoning pending work
func (o *Orchestrator) Reset() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.epoch++
	o.screen = Home
	o.record = nil
	o.saving = false
	return o.snapshotLocked()
}

func (o *Orchestrator) expectLocked(from, to Screen) error {
	if o.screen != from {
		return fmt.Errorf("%w: %s -> %s from %s", ErrInvalidTransition, from, to, o.screen)
	}
	return nil
}

func (o *Orchestrator) discardCapture(location string) {
	if o.captures == nil {
		return
	}
	if err := o.captures.Delete(location); err != nil {
		slog.Warn("Failed to delete capture", "location", location, "error", err)
	}
}
