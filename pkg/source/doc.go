// Package source wraps a backend.Backend in an engine.IntervalWorker:
// each cycle asks the backend for its current guest data, builds the
// matching report, and publishes it into the shared datastore under
// the source's configuration name.
package source
