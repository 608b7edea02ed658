// Package measure runs the station's scheduled measurements.
//
// A measurement reads a Source (a Modbus register, a network sensor's
// Prometheus endpoint, a GP variable, another measurement or a constant),
// passes the value through a chain of Transforms (rating table, pipe flow,
// weir, differential, scale and offset) and produces a datalog.Reading.
// A failed read is logged with bad quality and the BadValue sentinel.
//
// The Scheduler ticks every measurement at its interval, in configuration
// order so that ref sources see values produced earlier in the same tick.
// While sampling is on, measurements with a sampling interval switch to it.
// Measurements marked with a pacing hook feed the sampler pacing engine.
package measure
