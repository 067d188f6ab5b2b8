// Package common provides configuration structures and the logging setup
// shared by all numlog packages.
//
// Key Components:
//
//   - ServerConfig: Configuration of the numlog server (listener, write queue,
//     statistics and logging). Validate rejects values the server cannot run
//     with and String renders the banner logged at startup.
//
//   - ClientConfig: Configuration of the load generating client.
//
//   - Logger: Custom logging implementation that plugs into Dragonboat's
//     logger facade. Every package obtains its logger with
//     logger.GetLogger(name) and InitLoggers installs the formatting once.
package common
