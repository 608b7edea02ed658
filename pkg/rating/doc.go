// Package rating converts water level into discharge.
//
// table.go provides Table, a sorted list of stage/flow points queried with
// linear interpolation. Stages outside the table clamp to the first or last
// flow, so a sensor spike never produces an extrapolated discharge.
//
// hydraulics.go provides closed-form alternatives for sites without a
// surveyed table: PipeFlow for a partially full circular pipe with a
// velocity sensor, and CompoundWeir for a V-notch set inside a rectangular
// weir.
package rating
