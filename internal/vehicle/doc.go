// Package vehicle defines the shared data types and collaborator interfaces
// of the crawler control core.
//
// The core is split into three cooperating components:
//
//   - [safety.Filter]: low-pass, deadband and slew limiting of raw samples
//   - [actuation.Mapper]: percent to duty conversion and idempotent writes
//   - [control.Machine]: the lifecycle state machine driving both
//
// Everything outside the core talks to it through the interfaces declared
// here:
//
//   - [Link]: connectivity and the latest raw [Input] from the transport
//   - [Actuator]: hardware duty and auxiliary output writes
//   - [TrimSource]: the in-memory calibration trims read every tick
//   - [Observer]: receives a [Status] snapshot after every executed tick
//
// # Thread Safety
//
// The state machine is single-threaded. Implementations of [Link] and
// [TrimSource] must publish whole values atomically, because they are
// written from the transport goroutine and read from the control tick.
package vehicle
