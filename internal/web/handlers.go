package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/zombor/card-scanner/internal/contact"
	"github.com/zombor/card-scanner/internal/scan"
	"github.com/zombor/card-scanner/internal/sheets"
)

const maxUploadSize = 50 << 20

// writeJSON encodes v with the given status
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// jsonError sends {"error": msg}
func jsonError(w http.ResponseWriter, msg string, status int) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeSnapshot sends the snapshot with a status derived from err
func writeSnapshot(w http.ResponseWriter, snap scan.Snapshot, err error) {
	writeJSON(w, statusFor(err), snap)
}

func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, scan.ErrMissingWebhookURL):
		return http.StatusBadRequest
	case errors.Is(err, scan.ErrInvalidTransition),
		errors.Is(err, scan.ErrSaveInProgress),
		errors.Is(err, scan.ErrAbandoned):
		return http.StatusConflict
	case errors.Is(err, sheets.ErrMissingURL):
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}

// handleIndex serves the single page app
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := w.Write(indexHTML); err != nil {
		slog.Error("Failed to write index", "error", err)
	}
}

// handleState returns the current snapshot
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeSnapshot(w, s.orch.Snapshot(), nil)
}

type setupResponse struct {
	Steps     []string `json:"steps"`
	Script    string   `json:"script"`
	Header    []string `json:"header"`
	Markdown  string   `json:"markdown"`
	FieldKeys []string `json:"field_keys"`
}

// handleSetup returns the sheet setup instructions
func (s *Server) handleSetup(w http.ResponseWriter, r *http.Request) {
	keys := make([]string, 0, len(contact.Fields))
	for _, f := range contact.Fields {
		keys = append(keys, f.Key)
	}

	writeJSON(w, http.StatusOK, setupResponse{
		Steps:     sheets.SetupSteps,
		Script:    sheets.AppsScript,
		Header:    sheets.HeaderRow(),
		Markdown:  sheets.SetupMarkdown(),
		FieldKeys: keys,
	})
}

type webhookRequest struct {
	URL string `json:"url"`
}

// handleSetWebhook stores the webhook URL
func (s *Server) handleSetWebhook(w http.ResponseWriter, r *http.Request) {
	var req webhookRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		slog.Error("Failed to decode webhook request", "error", err)
		jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	s.orch.SetWebhookURL(req.URL)
	writeSnapshot(w, s.orch.Snapshot(), nil)
}

// handleStartScan moves to the camera screen
func (s *Server) handleStartScan(w http.ResponseWriter, r *http.Request) {
	snap, err := s.orch.StartScan()
	writeSnapshot(w, snap, err)
}

// handleCancelCapture leaves the camera screen
func (s *Server) handleCancelCapture(w http.ResponseWriter, r *http.Request) {
	snap, err := s.orch.CancelCapture()
	writeSnapshot(w, snap, err)
}

// handleCapture stores the uploaded photo and runs extraction on it.
// The response is sent once extraction resolves.
func (s *Server) handleCapture(w http.ResponseWriter, r *http.Request) {
	if snap := s.orch.Snapshot(); snap.Screen != scan.Camera {
		writeSnapshot(w, snap, scan.ErrInvalidTransition)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		slog.Error("Failed to parse multipart form", "error", err)
		s.abandonCapture()
		if strings.Contains(err.Error(), "too large") {
			jsonError(w, "Photo is too large. Maximum size is 50MB.", http.StatusBadRequest)
			return
		}
		jsonError(w, "Failed to parse form data", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		slog.Error("Failed to get image from form", "error", err)
		s.abandonCapture()
		jsonError(w, "No photo provided", http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		slog.Error("Failed to read uploaded photo", "error", err)
		s.abandonCapture()
		jsonError(w, "Failed to read photo", http.StatusBadRequest)
		return
	}

	location, err := s.captures.Save(header.Filename, data)
	if err != nil {
		slog.Error("Failed to store capture", "error", err)
		s.abandonCapture()
		jsonError(w, "Failed to store photo", http.StatusInternalServerError)
		return
	}

	// A dropped connection must not cancel the scan; the orchestrator's timeout still applies
	snap, err := s.orch.Capture(context.WithoutCancel(r.Context()), location)
	if errors.Is(err, scan.ErrInvalidTransition) {
		if derr := s.captures.Delete(location); derr != nil {
			slog.Warn("Failed to delete capture", "location", location, "error", derr)
		}
	}
	writeSnapshot(w, snap, err)
}

// abandonCapture treats a failed upload like a cancelled camera
func (s *Server) abandonCapture() {
	if _, err := s.orch.CancelCapture(); err != nil {
		slog.Warn("Failed to leave camera after upload error", "error", err)
	}
}

// handleSave appends the extracted record to the sheet
func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	snap, err := s.orch.Save(context.WithoutCancel(r.Context()))
	writeSnapshot(w, snap, err)
}

// handleRetake discards the record and goes back to the camera
func (s *Server) handleRetake(w http.ResponseWriter, r *http.Request) {
	snap, err := s.orch.Retake()
	writeSnapshot(w, snap, err)
}

// handleReset returns to the home screen
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	writeSnapshot(w, s.orch.Reset(), nil)
}

// handleDismissAlert clears the alert
func (s *Server) handleDismissAlert(w http.ResponseWriter, r *http.Request) {
	writeSnapshot(w, s.orch.DismissAlert(), nil)
}
