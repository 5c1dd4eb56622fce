// Package command parses the text control messages a viewer sends to its
// playback session and carries them, in order, from the connection reader to
// the playback driver.
//
// Commands arrive as bare UTF-8 text with no length prefix and no terminator:
// one client write is expected to surface as one server read. A byte stream
// does not guarantee that, so Splitter additionally treats newlines as command
// boundaries and carries a partial line over to the next read. A read with no
// newline and no partial line pending is still one command.
package command
