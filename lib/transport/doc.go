// Package transport defines the interfaces between the numlog server and
// client and the socket layer.
//
// The transport layer is organized into several subpackages:
//
//   - base: Protocol-agnostic listener/dispatcher and client dialer
//   - tcp: TCP socket connectors
//   - unix: Unix domain socket connectors
//
// A server transport accepts connections, bounds the number of concurrently
// served connections and hands every admitted connection to a ConnHandleFunc
// running on its own goroutine.
package transport
