// Package sampler triggers automated water samplers.
//
// Pulse fires a sampler wired to a contact-closure input by pulsing a
// digital output. SD900 commands a Modbus-capable sampler over RS232: it
// writes the grab register with the aliquot volume and then polls the
// result register until the sampler reports a finished state.
//
// Both satisfy pacing.Sampler.
package sampler
