// Package live maintains the duplex audio session with the conversational
// endpoint: capture frames stream up, speech segments and transcripts
// stream down, and declared function calls are dispatched into the ledger.
//
// The package splits transport (conn.go), wire message shapes
// (messages.go), and the session state machine (session.go). A Controller
// runs at most one session; all server messages are consumed by a single
// ordered receive loop, while capture frame sends are fire-and-forget.
package live
