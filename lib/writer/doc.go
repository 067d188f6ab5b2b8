// Package writer implements the deduplicating write-behind queue of numlog.
//
// Network workers call WriteQueue.SubmitIfUnique for every decoded value.
// The uniqueness decision and the enqueue happen in one critical section, so
// a value is queued for writing if and only if it was just inserted into the
// unique-value set. A single background goroutine drains the queue in FIFO
// order into a LineSink; producers never block on I/O.
//
// The unique-value set is a paged bitset: each possible value maps to one
// bit, pages are allocated on demand.
//
// FileSink is the LineSink used by the server, a buffered file truncated at
// startup.
package writer
