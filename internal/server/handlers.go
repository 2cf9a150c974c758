// Package server exposes HTTP handlers, including WebSocket upgrades, health
// checks, and the built-in test page.
package server

import (
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
)

// handleRoot serves WebSocket upgrades at "/" and a health line for plain
// requests to it. Any other unmatched path is not found.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if !websocket.IsWebSocketUpgrade(r) {
		s.handleHealth(w, r)
		return
	}
	s.handleWebSocket(w, r)
}

// handleWebSocket validates that the request uses the GET method, upgrades the
// HTTP connection and runs the connection handler until the peer leaves.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	// Counted before the upgrade so that Shutdown, which waits for in-flight
	// requests first, never misses a handler.
	s.handlers.Add(1)
	defer s.handlers.Done()

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Str("addr", r.RemoteAddr).Msg("WebSocket upgrade failed")
		return
	}

	s.serveConn(ws, r.RemoteAddr)
}

// handleHealth reports that the server is up and how many peers it holds.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "Broadcast server is running! Peers: %d", s.registry.Size())
}

// handleTestPage serves a browser page that joins the broadcast as a peer.
func (s *Server) handleTestPage(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	if _, err := fmt.Fprint(w, testPage); err != nil {
		s.log.Debug().Err(err).Msg("error writing test page")
	}
}

// testPage behaves like the terminal client: it connects on load, prints
// relayed lines, and leaves on "exit" or "quit".
const testPage = `<!DOCTYPE html>
<html>
<head>
<title>Broadcast Server Test</title>
<style>
pre { border: 1px solid #999; height: 20em; overflow-y: auto; padding: 4px; }
.system { color: gray; }
</style>
</head>
<body>
<h1>Broadcast Server Test</h1>
<pre id="log"></pre>
<form id="form"><input id="line" size="60" autocomplete="off" autofocus> <span id="state">connecting</span></form>
<script>
const log = document.getElementById('log');
const line = document.getElementById('line');
const state = document.getElementById('state');

function print(text) {
  const row = document.createElement('div');
  if (text.startsWith('[System]')) row.className = 'system';
  row.textContent = text;
  log.appendChild(row);
  log.scrollTop = log.scrollHeight;
}

const ws = new WebSocket('ws://' + location.host + '/');
ws.onopen = () => { state.textContent = 'connected'; };
ws.onmessage = (e) => print(e.data);
ws.onclose = () => { state.textContent = 'closed'; line.disabled = true; };

document.getElementById('form').onsubmit = (e) => {
  e.preventDefault();
  const text = line.value.trim();
  line.value = '';
  if (text === '' || ws.readyState !== WebSocket.OPEN) return;
  if (/^(exit|quit)$/i.test(text)) { ws.close(1000); return; }
  ws.send(text);
  print('You: ' + text);
};
</script>
</body>
</html>
`
