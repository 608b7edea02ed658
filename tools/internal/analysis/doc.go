// Package analysis post-processes rating tables and datalog exports:
// resampling a surveyed table onto an even stage grid, recomputing flow
// from logged stage, integrating flow into volume, and fitting power-law
// velocity curves.
package analysis
