// Package api serves the ingestion and query endpoints of the occupancy
// service: action acceptance, current-state and history queries, and the
// SSE live update channel.
package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/railyard-data/yardwatch/internal/db"
	"github.com/railyard-data/yardwatch/internal/httputil"
)

// ANSI escape codes for the request log
const (
	colorCyan      = "\033[36m"
	colorReset     = "\033[0m"
	colorYellow    = "\033[33m"
	colorBoldGreen = "\033[1;32m"
	colorBoldRed   = "\033[1;31m"
)

// Server handles the occupancy HTTP API.
type Server struct {
	db       *db.DB
	hub      *Hub
	validate *validator.Validate
}

// NewServer creates a Server over the given database and broadcast hub.
func NewServer(d *db.DB, hub *Hub) *Server {
	return &Server{
		db:       d,
		hub:      hub,
		validate: validator.New(),
	}
}

// ServeMux returns the API routing table.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/event", s.handleEvent)
	mux.HandleFunc("/api/lanes", s.handleLanes)
	mux.HandleFunc("/api/history", s.handleHistory)
	mux.HandleFunc("/api/live", s.handleLive)
	return mux
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, status, and duration.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

// handleEvent accepts one domain action. The payload is validated before
// anything is written: a request missing a required field is rejected with
// no state mutated and no history row appended.
func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	var action db.Action
	if err := json.NewDecoder(r.Body).Decode(&action); err != nil {
		httputil.BadRequest(w, fmt.Sprintf("invalid action payload: %v", err))
		return
	}
	if err := s.validate.Struct(&action); err != nil {
		httputil.BadRequest(w, fmt.Sprintf("missing required fields: %v", err))
		return
	}

	if err := s.db.RecordAction(action); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to record action: %v", err))
		return
	}

	// Fire-and-forget: the write has committed, subscriber delivery is
	// best-effort.
	s.hub.Publish(Update{LaneID: action.LaneID, Action: action.Action})

	httputil.WriteJSON(w, http.StatusOK, map[string]string{"message": "event recorded"})
}

func (s *Server) handleLanes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	lanes, err := s.db.ListOccupancy()
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to list occupancy: %v", err))
		return
	}
	if lanes == nil {
		lanes = []db.CurrentOccupancy{}
	}
	httputil.WriteJSON(w, http.StatusOK, lanes)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	history, err := s.db.ListHistory()
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to list history: %v", err))
		return
	}
	if history == nil {
		history = []db.Movement{}
	}
	httputil.WriteJSON(w, http.StatusOK, history)
}

// handleLive streams accepted-action updates as Server-Sent Events.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.InternalServerError(w, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable buffering for nginx

	id, ch := s.hub.Subscribe()
	defer s.hub.Unsubscribe(id)

	// Initial ping to establish the stream
	w.Write([]byte(": ping\n\n"))
	flusher.Flush()

	for {
		select {
		case u, open := <-ch:
			if !open {
				return
			}
			payload, err := json.Marshal(u)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}
