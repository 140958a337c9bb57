package scan

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// CaptureStore keeps captured photos until extraction is done with them
type CaptureStore interface {
	// Save stores a photo and returns its location
	Save(filename string, data []byte) (string, error)

	// Delete removes a stored photo
	Delete(location string) error
}

// DiskCaptures implements CaptureStore on the local filesystem
type DiskCaptures struct {
	basePath string
	newID    func() string
}

// NewDiskCaptures creates the capture directory if needed
func NewDiskCaptures(basePath string) (*DiskCaptures, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("creating capture directory: %w", err)
	}
	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("resolving capture directory: %w", err)
	}

	return &DiskCaptures{
		basePath: abs,
		newID:    uuid.NewString,
	}, nil
}

// Save writes the photo under a unique name and returns its full path
func (d *DiskCaptures) Save(filename string, data []byte) (string, error) {
	path := filepath.Join(d.basePath, d.newID()+"_"+sanitizeFilename(filename))
	if err := os.WriteFile(path, data, 0600); err != nil {
		return "", fmt.Errorf("writing capture: %w", err)
	}
	return path, nil
}

// Delete removes a photo previously returned by Save
func (d *DiskCaptures) Delete(location string) error {
	rel, err := filepath.Rel(d.basePath, location)
	if err != nil || strings.HasPrefix(rel, "..") || filepath.IsAbs(rel) {
		return fmt.Errorf("capture %s is outside %s", location, d.basePath)
	}
	if err := os.Remove(location); err != nil {
		return fmt.Errorf("deleting capture: %w", err)
	}
	return nil
}

var (
	unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	spaceRuns   = regexp.MustCompile(`\s+`)
)

// sanitizeFilename strips special characters and shortens phone-generated names
func sanitizeFilename(filename string) string {
	name := filepath.Base(filename)
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	ext = strings.ToLower(ext)
	if len(ext) < 2 || unsafeChars.MatchString(ext[1:]) {
		ext = ""
	}

	base = unsafeChars.ReplaceAllString(base, "")
	base = spaceRuns.ReplaceAllString(base, "_")
	base = strings.Trim(base, "_ ")

	if len(base) > 50 {
		base = base[:50]
	}
	if base == "" {
		base = "card"
	}
	return base + ext
}
