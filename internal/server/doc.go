// Package server exposes the HTTP API for the expense ledger and the
// websocket bridge that carries a voice session's capture and playback
// audio. It provides ledger CRUD, summaries, bulk text import, insights,
// backup, and monitoring endpoints.
package server
