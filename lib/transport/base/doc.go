// Package base provides the protocol-agnostic part of the numlog transports.
// Protocol-specific packages (tcp, unix) only supply connectors.
//
// Key Components:
//
//   - IClientConnector/IServerConnector: Interfaces for protocol-specific
//     operations (listen, dial, socket options, forced close).
//
//   - serverTransport: The connection listener/dispatcher. An accept loop
//     runs on its own goroutine; every accepted connection is checked against
//     the registry size under the registry lock. Connections beyond
//     MaxConnections are closed immediately, admitted connections get their
//     own goroutine running the registered handler. When the handler returns
//     (or panics) the connection is removed from the registry and closed
//     exactly once.
//
//   - clientTransport: Dials a single connection with retries and
//     exponential backoff.
//
// Shutdown:
//
//	Stop closes the listening socket, which ends the accept loop, and
//	force-closes every registered connection. Blocked reads in the handlers
//	return with an error and the handlers exit on their own; Stop does not
//	wait for them.
//
// Thread Safety:
//
//	All public methods are thread-safe. The registry is an xsync.MapOf so it
//	can be enumerated during Stop without holding the admission lock.
package base
