// Package report defines the value objects a source backend produces and
// a destination worker consumes: guests, hypervisors, and the three
// report variants (domain list, host/guest association, error), along
// with their content-hashing rules.
package report
