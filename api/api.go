// Package api exposes the reader service over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"badgedesk/directory"
	"badgedesk/reader"
	"badgedesk/registry"
	"badgedesk/scan"
)

// Service is the reader API.
type Service interface {
	Ports() ([]string, error)
	Status() registry.State
	Connect(port string, baud int) (string, error)
	Disconnect() string
	Scan(ctx context.Context) (scan.Outcome, error)
}

// History lists recent scan outcomes, newest first.
type History interface {
	Recent(limit int) ([]scan.Outcome, error)
}

// Handler serves the HTTP API.
type Handler struct {
	svc      Service
	history  History
	students directory.Lister
	gatherer prometheus.Gatherer
}

// New creates a Handler. history, students and gatherer may be nil; their
// routes are then not registered.
func New(svc Service, history History, students directory.Lister, gatherer prometheus.Gatherer) *Handler {
	return &Handler{svc: svc, history: history, students: students, gatherer: gatherer}
}

// Router returns a chi router with all routes and middleware.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	h.Register(r)
	return r
}

// Register registers the API routes on r.
func (h *Handler) Register(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/ports", h.handlePorts)
		r.Get("/reader", h.handleStatus)
		r.Post("/reader/connect", h.handleConnect)
		r.Post("/reader/disconnect", h.handleDisconnect)
		r.Post("/scan", h.handleScan)
		if h.history != nil {
			r.Get("/scans", h.handleRecent)
		}
		if h.students != nil {
			r.Get("/students", h.handleStudents)
		}
	})
	if h.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	}
}

type connectRequest struct {
	Port     string `json:"port"`
	BaudRate int    `json:"baud_rate"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) handlePorts(w http.ResponseWriter, r *http.Request) {
	ports, err := h.svc.Ports()
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"ports": ports})
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Status())
}

func (h *Handler) handleConnect(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if req.Port == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "port is required"})
		return
	}
	if req.BaudRate < 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "baud_rate must be positive"})
		return
	}

	msg, err := h.svc.Connect(req.Port, req.BaudRate)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: msg})
}

func (h *Handler) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, messageResponse{Message: h.svc.Disconnect()})
}

func (h *Handler) handleScan(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.Scan(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleRecent(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = n
	}

	scans, err := h.history.Recent(limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]scan.Outcome{"scans": scans})
}

func (h *Handler) handleStudents(w http.ResponseWriter, r *http.Request) {
	students, err := h.students.ListStudents(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]directory.Student{"students": students})
}

// StatusFor maps service errors to HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, registry.ErrNotConnected), errors.Is(err, registry.ErrAlreadyConnected):
		return http.StatusConflict
	case errors.Is(err, reader.ErrConnection):
		return http.StatusBadGateway
	case errors.Is(err, directory.ErrUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	entry := log.WithFields(log.Fields{
		"path":       r.URL.Path,
		"request_id": middleware.GetReqID(r.Context()),
	})
	if status >= http.StatusInternalServerError {
		entry.Errorf("Request failed: %v", err)
	} else {
		entry.Infof("Request rejected: %v", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debugf("Write response: %v", err)
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		log.WithFields(log.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"duration":   time.Since(start).String(),
			"request_id": middleware.GetReqID(r.Context()),
		}).Debug("HTTP request")
	})
}
