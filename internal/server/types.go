// Package server defines the plain-text payloads the server puts on the
// wire. There is no envelope: system messages carry a literal prefix and
// peer chat carries the sender's address identifier.
package server

// SystemPrefix marks messages originated by the server rather than a peer.
const SystemPrefix = "[System]"

// WelcomeMessage is sent privately to a peer right after it is registered.
func WelcomeMessage(addr string) string {
	return "Welcome! You are " + addr
}

// JoinMessage announces a new peer to everyone else.
func JoinMessage(addr string) string {
	return SystemPrefix + " " + addr + " joined"
}

// LeaveMessage announces a departed peer to everyone still connected.
func LeaveMessage(addr string) string {
	return SystemPrefix + " " + addr + " left"
}

// ChatMessage prefixes a peer's text with its address identifier.
func ChatMessage(addr string, text []byte) string {
	return "[" + addr + "] " + string(text)
}
