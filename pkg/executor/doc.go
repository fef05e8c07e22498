// Package executor wires configured sources and destinations into
// running source.Worker and destination.Worker instances sharing one
// datastore.Store and one terminate engine.Signal, and drives their
// orderly startup, shutdown, and config-triggered reload.
package executor
