//go:build !windows

package protocol

// NewLine is the line terminator of the platform the server runs on
var NewLine = []byte("\n")
