// Package tcp implements TCP socket-based transport for numlog. It provides
// concrete implementations of the base package's connector interfaces.
//
// Key Components:
//
//   - clientConnector: TCP-specific implementation of base.IClientConnector
//
//   - serverConnector: TCP-specific implementation of base.IServerConnector.
//     Connections are closed with SO_LINGER set to 0 so the peer sees a reset
//     instead of a graceful shutdown.
package tcp
