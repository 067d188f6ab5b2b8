// Package client implements a load generator for numlog servers. It streams
// random zero-padded records over one or more connections and can end the run
// with the terminate command.
package client
