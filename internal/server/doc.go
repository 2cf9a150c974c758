// Package server implements the broadcast server: every message a connected
// peer sends over its WebSocket is relayed to all other connected peers.
//
// Files are split by concern: configuration, the connection registry, fan-out,
// per-connection handling, routing and HTTP handlers.
package server
