// Package protocol implements the fixed-width text protocol spoken between
// numlog clients and the server.
//
// Every record is exactly ValueSize + len(NewLine) bytes: nine ascii digits
// (leading zeros are significant) followed by the line terminator of the
// platform the server runs on. The literal word "terminate" (case-insensitive)
// in place of the digits asks the server to shut down.
//
//	003456789\n   -> 3456789
//	terminate\n   -> terminate command
//
// Key Components:
//
//   - Decoder: Reads records from any io.Reader, tolerating partial
//     deliveries, and stops at the end of the stream, at the first malformed
//     record or at the terminate command. Values are decoded from the raw
//     bytes without allocating strings.
//
//   - RecordWriter: Buffered encoder used by the load generating client.
package protocol
