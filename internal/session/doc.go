// Package session implements the server side of one viewer connection: a
// playback state machine driven by text commands, and the loop that pushes
// length-prefixed encoded frames back to the viewer.
//
// Each Session runs exactly two goroutines for its whole lifetime. The command
// reader parses inbound text; Seek and Rewind are applied on the spot, while
// Play, Pause and Stop are queued for the playback driver. The driver owns the
// state transitions and the frame loop.
//
// The Video Source and the playback position are guarded by the session
// mutex. Only source access happens under it: frames are encoded and written
// to the network after the lock is released, so a slow viewer never delays a
// Seek.
package session
