// Package api serves the operator-facing HTTP interface: device
// management, event queries, and the live event stream.
package api

import (
	"bufio"
	"log"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/cabinet.report/internal/db"
)

// ANSI escape codes for request log coloring
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// FrameControl is the slice of the frame server the API needs: live
// session introspection and per-device control signals.
type FrameControl interface {
	OnlineDevices() []string
	IsOnline(deviceID string) bool
	SetDetection(deviceID string, enabled bool) bool
	RefreshBoundary(deviceID string) bool
}

type Server struct {
	db     *db.DB
	frames FrameControl
	hub    *EventHub
}

func NewServer(database *db.DB, frames FrameControl, hub *EventHub) *Server {
	return &Server{
		db:     database,
		frames: frames,
		hub:    hub,
	}
}

// ServeMux returns the route table for the API server.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/devices", s.listDevices)
	mux.HandleFunc("/api/devices/", s.deviceSubroutes)
	mux.HandleFunc("/api/events", s.listEvents)
	mux.HandleFunc("/api/events/", s.eventSnapshot)
	mux.HandleFunc("/api/charts/events", s.eventChart)
	mux.HandleFunc("/ws/events", s.hub.HandleSubscriber)
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

// Hijack passes through so the websocket upgrade works behind the
// logging wrapper.
func (lrw *loggingResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hj, ok := lrw.ResponseWriter.(http.Hijacker); ok {
		return hj.Hijack()
	}
	return nil, nil, http.ErrNotSupported
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
