// Package camera drives a Camera485 still camera over RS485.
//
// The camera speaks a framed binary protocol: every frame starts with
// 0x90 0xEB, carries the camera address, a command byte, a big-endian
// payload length and the payload, and ends with a CRC-16/XMODEM over
// address..payload. A picture is taken by waiting for the camera to answer
// a ready probe, requesting a snapshot at a resolution and compression,
// then downloading the JPEG in fixed-size chunks.
//
// Camera.TakePicture wraps that exchange with the station concerns: it
// refuses to run without storage, switches the camera's power line, retries
// lower resolutions when the camera runs out of frame memory, names the file
// from a template and copies it to the transmit folder.
package camera
