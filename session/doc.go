// Package session tracks per-thread conversation sessions: their key/value
// state, their event history, the message ids already consumed, and their
// expiry.
//
// Storage is pluggable through Store; MemoryStore keeps everything in
// process. The Manager is constructed explicitly and shared by reference
// between the components that need it.
//
// Sessions holding pending client tool calls (state key
// "pending_tool_calls") are never expired: the client may answer at any
// time.
package session
