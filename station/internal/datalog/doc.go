// Package datalog is the station's append-only measurement and event log.
//
// Rows live in a SQLite database (modernc.org/sqlite, WAL mode) whose schema
// is applied from the embedded migrations directory on Open. Times are
// stored as UTC unix milliseconds.
//
// Readings are queried by label and time range; Differential derives an
// increment (rainfall, totaliser counts) from the oldest reading inside a
// look-back window. ExportCSV writes the two-line-preamble CSV format that
// the offline rating tools read.
package datalog
