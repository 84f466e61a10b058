// Package beat owns the data model shared by the estimation pipeline.
//
// Responsibilities: raw detector observations, queued entries, the
// per-event output record and the tagged Action variant handed to sinks.
// Key types: RawObservation, QueueEntry, Record, Action.
//
// Dependency rule: beat depends on nothing else in this module so every
// other package can import it.
package beat
