// Package hardware provides [vehicle.Actuator] backends.
//
//   - [Recorder]: in-memory outputs with write counters (simulation, tests)
//   - [Maestro]: Pololu Maestro servo controller over a serial port
//   - [RPi]: Raspberry Pi hardware PWM and GPIO via /dev/gpiomem
//   - [Logging]: dry run, logs every write
//
// Use [Open] to build a backend from a [Config].
package hardware
