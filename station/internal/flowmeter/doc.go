// Package flowmeter talks to Modbus area-velocity and open-channel flow
// meters.
//
// AV9000 is configured once at power-up: its clock and logging interval
// are written so it measures on its own schedule. Signature reads the
// current flow value from an ISCO Signature meter on demand.
package flowmeter
