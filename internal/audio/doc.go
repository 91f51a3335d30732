// Package audio handles PCM codec work and playback sequencing.
// It converts between raw little-endian PCM-16 bytes and the base64 transport
// encoding, reconstructs playable float buffers from inbound speech segments,
// and schedules segments on a monotonic playback cursor for gapless output.
package audio
