// Package store keeps the latest status of every reporting station in
// memory. Stations silent for longer than the TTL drop out of List and are
// evicted by Run.
package store
