// Package datastore implements the process-wide keyed latch shared
// between source workers (producers) and destination workers
// (consumers): a mapping from source key to the most recently produced
// report, safe for concurrent use by one producer and many consumers
// per key.
package datastore
