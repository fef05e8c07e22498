// Package destination implements the destination-side workers that pull
// the freshest reports for a set of configured sources out of the
// datastore, batch host/guest associations across them, and submit the
// batch (or, for Satellite 5, each association individually) to a
// destination.Manager, tracking the remote job to a terminal state.
package destination
