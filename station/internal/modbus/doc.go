// Package modbus implements the Modbus RTU subset the station's devices
// speak: read holding registers (0x03) and write multiple registers (0x10).
//
// Framing and CRC checks come from github.com/goburrow/modbus. transport.go
// carries its frames over a serialport.Port: each send flushes the input
// buffer, writes the request and reads the reply length the function code
// implies.
//
// client.go wraps that in a bounded retry loop. Transport and framing
// failures are retried after a fixed delay; an *ExceptionError is returned
// at once because resending an illegal request cannot succeed.
package modbus
