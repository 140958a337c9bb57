package extraction

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	"image/png"
	"net/url"
	"os"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"
)

// readImage loads the captured image at location, a file path or file:// URI
func readImage(location string) ([]byte, error) {
	path := location
	if strings.HasPrefix(location, "file://") {
		u, err := url.Parse(location)
		if err != nil {
			return nil, fmt.Errorf("parsing image location: %w", err)
		}
		path = u.Path
	}
	if path == "" {
		return nil, fmt.Errorf("image location is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading image: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("image %s is empty", path)
	}
	return data, nil
}

// prepareImage detects the image format and converts anything the models
// do not take directly to PNG. It returns the bytes to send and their MIME type.
func prepareImage(data []byte) ([]byte, string, error) {
	mtype := mimetype.Detect(data)

	switch {
	case mtype.Is("image/jpeg"), mtype.Is("image/png"), mtype.Is("image/webp"):
		return data, mtype.String(), nil
	case mtype.Is("application/pdf"):
		out, err := pdfToPNG(data)
		if err != nil {
			return nil, "", fmt.Errorf("converting PDF to image: %w", err)
		}
		return out, "image/png", nil
	case isHEIC(data) || mtype.Is("image/heic") || mtype.Is("image/heif") || mtype.Is("image/heic-sequence"):
		img, err := heic.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, "", fmt.Errorf("decoding HEIC/HEIF image: %w", err)
		}
		out, err := encodePNG(img)
		return out, "image/png", err
	case mtype.Is("image/gif"):
		img, _, err := image.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, "", fmt.Errorf("decoding image: %w", err)
		}
		out, err := encodePNG(img)
		return out, "image/png", err
	}

	return nil, "", fmt.Errorf("unsupported image format %s. Supported formats: JPEG, PNG, WebP, GIF, HEIC, HEIF, PDF", mtype.String())
}

// pdfToPNG renders the first page of a scanned card
func pdfToPNG(data []byte) ([]byte, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	img, err := doc.Image(0)
	if err != nil {
		return nil, fmt.Errorf("rendering PDF page: %w", err)
	}
	return encodePNG(img)
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// isHEIC checks the ftyp box brand, since iPhone photos are not always labelled
func isHEIC(data []byte) bool {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	switch string(data[8:12]) {
	case "heic", "heix", "heif", "mif1", "msf1":
		return true
	}
	return false
}
