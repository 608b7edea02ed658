// Package control is the station's local HTTP API: program state, sampler
// commands, GP variables and datalog export. It also converts station
// state to the pkg/types wire form shared with the uplink.
package control
