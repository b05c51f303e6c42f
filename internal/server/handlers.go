// Package server exposes the parser over HTTP.
package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"

	"github.com/matsen/citeparse/internal/export"
	"github.com/matsen/citeparse/internal/modelstore"
	"github.com/matsen/citeparse/internal/pipeline"
)

// Request limits.
const (
	DefaultMaxBodyBytes = 4 << 20
	DefaultMaxLines     = 5000
)

// Handler holds HTTP handlers for the parse API.
type Handler struct {
	parser  *pipeline.Parser
	store   *modelstore.Store
	logger  *slog.Logger
	version string

	MaxBodyBytes int64
	MaxLines     int
}

// NewHandler creates a new Handler backed by parser and its model store.
func NewHandler(parser *pipeline.Parser, version string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		parser:       parser,
		store:        parser.Store(),
		logger:       logger,
		version:      version,
		MaxBodyBytes: DefaultMaxBodyBytes,
		MaxLines:     DefaultMaxLines,
	}
}

// RegisterRoutes registers all API routes on the given mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /parse", h.handleParse)
	mux.HandleFunc("POST /reload", h.handleReload)
	mux.HandleFunc("GET /model", h.handleModel)
	mux.HandleFunc("GET /healthz", h.handleHealth)
}

// ParseRequest is the JSON body of POST /parse. Text is split into one
// reference per line; Lines are taken as given.
type ParseRequest struct {
	Text  string   `json:"text,omitempty"`
	Lines []string `json:"lines,omitempty"`
}

// ParseResponse is the JSON reply of POST /parse.
type ParseResponse struct {
	Results []pipeline.Result `json:"results"`
	Summary pipeline.Summary  `json:"summary"`
}

func (h *Handler) handleParse(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "reading request body: "+err.Error())
		return
	}

	lines, err := requestLines(r.Header.Get("Content-Type"), body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(lines) == 0 {
		writeError(w, http.StatusBadRequest, "no references in request")
		return
	}
	if len(lines) > h.MaxLines {
		writeError(w, http.StatusRequestEntityTooLarge, "too many references in one request")
		return
	}

	format := export.FormatJSON
	if q := r.URL.Query().Get("format"); q != "" {
		if format, err = export.ParseFormat(q); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	results, err := h.parser.ParseAll(r.Context(), lines)
	if err != nil {
		// Client went away.
		h.logger.Debug("parse request cancelled", "error", err)
		return
	}
	summary := pipeline.Summarize(results)
	h.logger.Debug("parsed request", "lines", summary.Total, "failed", summary.Failed())

	if format == export.FormatJSON {
		writeJSON(w, http.StatusOK, ParseResponse{Results: results, Summary: summary})
		return
	}
	var buf bytes.Buffer
	if err := export.WriteResults(&buf, format, results); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", contentType(format))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// requestLines reads references from a JSON ParseRequest or, for any other
// content type, from a plain-text list.
func requestLines(contentType string, body []byte) ([]string, error) {
	mt, _, _ := mime.ParseMediaType(contentType)
	if mt != "application/json" {
		return pipeline.ReadReferences(bytes.NewReader(body))
	}

	var req ParseRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, errors.New("invalid request body: " + err.Error())
	}
	if len(req.Lines) > 0 {
		return req.Lines, nil
	}
	return pipeline.SplitReferences(req.Text), nil
}

func contentType(f export.Format) string {
	switch f {
	case export.FormatCSV:
		return "text/csv; charset=utf-8"
	case export.FormatJSONL:
		return "application/x-ndjson"
	case export.FormatYAML:
		return "application/yaml"
	case export.FormatBibTeX:
		return "application/x-bibtex; charset=utf-8"
	}
	return "application/json"
}

// ReloadRequest is the optional JSON body of POST /reload. An empty slot
// means the default slot; an empty path reloads the slot's current file.
type ReloadRequest struct {
	Slot string `json:"slot,omitempty"`
	Path string `json:"path,omitempty"`
}

func (h *Handler) handleReload(w http.ResponseWriter, r *http.Request) {
	var req ReloadRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
	}
	if req.Slot == "" {
		req.Slot = modelstore.SlotDefault
	}
	if req.Path == "" {
		req.Path = h.store.Path(req.Slot)
	}
	if req.Path == "" {
		writeError(w, http.StatusBadRequest, "slot "+req.Slot+" has no model file; give a path")
		return
	}

	if err := h.store.ReloadSlot(r.Context(), req.Slot, req.Path); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, modelstore.ErrUnknownSlot) {
			status = http.StatusBadRequest
		}
		writeError(w, status, err.Error())
		return
	}
	h.writeModelInfo(w)
}

func (h *Handler) handleModel(w http.ResponseWriter, r *http.Request) {
	h.writeModelInfo(w)
}

func (h *Handler) writeModelInfo(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"generation": h.store.Generation(),
		"slots":      h.store.Info(),
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": h.version,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"message": message,
		},
	})
}
