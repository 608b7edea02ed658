// Package archive stores station readings and events in Postgres for
// long-term history.
//
// The receiver queues rows with AddReading and AddEvent; Run batches them
// and inserts each batch in one transaction, flushing when BatchSize rows
// are pending or FlushInterval elapses. Inserts are idempotent: broker
// redeliveries of a reading (same station, label and time) or an event
// (same id) are ignored.
//
// Open connects through lib/pq; Init creates the tables when missing.
package archive
