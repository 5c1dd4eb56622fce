// Package source provides the Video Source implementations the server can
// play: a synthetic test pattern rendered on demand and a directory of still
// images played back as a sequence.
package source
