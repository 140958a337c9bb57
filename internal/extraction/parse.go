package extraction

import (
	"errors"
	"fmt"
	"strings"

	"github.com/zombor/card-scanner/internal/contact"
)

// ErrMalformedResponse is returned when the model reply cannot be read as a contact record
var ErrMalformedResponse = errors.New("malformed model response")

// stripCodeFence removes markdown code fences wrapped around a reply
func stripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```JSON")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}

// parseRecord reads a model reply as a contact record. Only code fences are
// tolerated around the JSON object; any other prose fails the parse.
func parseRecord(text string) (*contact.Record, error) {
	text = stripCodeFence(text)
	if text == "" {
		return nil, fmt.Errorf("%w: empty reply", ErrMalformedResponse)
	}

	record, err := contact.Decode([]byte(text))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	return record, nil
}
