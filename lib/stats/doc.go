// Package stats implements the statistics aggregator of the numlog server.
//
// Workers call RecordUnique or RecordDuplicate for every value. A reporter
// goroutine started with Start emits
//
//	Received {incU} unique numbers, {incD} duplicates. Unique total: {totU}
//
// every interval and resets the incremental counters in the same critical
// section that read them. Report is the synchronous primitive behind it and
// writes the line to any io.Writer.
package stats
