// Package pacing runs the composite-sampler program: it decides when an
// automated water sampler takes its next aliquot.
//
// Engine holds the program State (running total, bottle, aliquot counts)
// and is driven by measurement ticks:
//
//   - FlowTick adds rate × interval to the running volume; once the total
//     reaches the pacing volume the sampler fires once and the pacing volume
//     is subtracted, carrying the excess into the next aliquot.
//   - TimeTick counts the running total down by the tick interval in
//     minutes; at zero the sampler fires and the countdown restarts at the
//     pacing interval.
//
// Operator-facing parameters (sampling_on, sample_pacing, bottle_num,
// aliquot_vol_mL, bottle_size_L, carousel_or_comp) live in the GP variable
// bank and are re-read on every tick, so an operator can change pacing or
// swap a bottle mid-storm. A pacing change with the same bottle scales the
// bottle volume by old/new pacing ("dump and double").
//
// The sampler, the event recorder and the variable bank are interfaces so
// tests drive the engine without hardware.
package pacing
