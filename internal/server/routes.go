// Package server wires HTTP handlers into a ServeMux for the broadcast
// server via routing helpers.
package server

import "net/http"

// Routes configures and returns an HTTP ServeMux with all application routes.
// It sets up the WebSocket endpoint at the root, a health check and the test page.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/test", s.handleTestPage)
	return mux
}
