// Package unix implements Unix domain socket transport for numlog. The
// record protocol and the listener semantics are the same as for tcp; the
// endpoint is a socket file which is replaced when the server starts.
package unix
