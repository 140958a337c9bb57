package scan

import (
	"fmt"

	"github.com/zombor/card-scanner/internal/contact"
)

// Screen is the step of the scan flow the user is on
type Screen int

const (
	Home Screen = iota
	Camera
	Processing
	Result
)

var screenNames = map[Screen]string{
	Home:       "home",
	Camera:     "camera",
	Processing: "processing",
	Result:     "result",
}

func (s Screen) String() string {
	if name, ok := screenNames[s]; ok {
		return name
	}
	return fmt.Sprintf("screen(%d)", int(s))
}

// MarshalText encodes the screen by name
func (s Screen) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a screen name
func (s *Screen) UnmarshalText(text []byte) error {
	for screen, name := range screenNames {
		if name == string(text) {
			*s = screen
			return nil
		}
	}
	return fmt.Errorf("unknown screen %q", text)
}

// AlertKind classifies an alert for presentation
type AlertKind string

const (
	AlertSuccess AlertKind = "success"
	AlertError   AlertKind = "error"
)

// Alert is a notification raised by a transition, shown until dismissed
type Alert struct {
	Kind    AlertKind `json:"kind"`
	Title   string    `json:"title"`
	Message string    `json:"message"`
}

// Snapshot is a read-only copy of the orchestrator state
type Snapshot struct {
	Screen     Screen          `json:"screen"`
	Record     *contact.Record `json:"record"`
	Fields     []contact.Row   `json:"fields,omitempty"`
	Saving     bool            `json:"saving"`
	WebhookURL string          `json:"webhook_url"`
	Alert      *Alert          `json:"alert"`
}
