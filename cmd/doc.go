// Package cmd implements the command-line interface of numlog.
//
// The package is organized into several subpackages:
//
//   - serve: Command for starting and configuring the numlog server
//   - client: Load generator streaming random numbers to a server
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// See numlog -help for a list of all commands.
package cmd
