// Package framing delimits discrete messages on a byte stream with a 4-byte
// big-endian length prefix. The server uses it to push encoded frames and the
// client uses it to read them back.
package framing
