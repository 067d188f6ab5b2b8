/*
Package server implements the numlog server.

A Server accepts connections through a transport.IServerTransport, decodes the
records of every connection with the protocol package and hands each value to
a writer.WriteQueue. The queue decides whether a value is new, the server
counts the decision in a stats.Aggregator and in its prometheus metrics.

A "terminate" record on any connection requests the shutdown of the whole
server. Serve handles SIGINT and SIGTERM the same way. On shutdown the
listener is stopped first, then the remaining queue is written to the log
and a final status report is emitted.
*/
package server
