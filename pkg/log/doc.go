/*
Package log provides structured logging for the virt-who agent using
zerolog.

The log package wraps zerolog to provide JSON- or console-formatted
logging with source/destination-specific child loggers, configurable
log levels, and helper functions for common logging patterns.
cmd/virtwho calls Init once at startup, choosing the level from the
--debug flag and JSON output from the --background flag; child
loggers per worker are then derived with
WithSource/WithDestination/WithComponent so every log line can be
filtered by which source or destination produced it.
*/
package log
