// Package control sequences the vehicle lifecycle and decides, once per
// control tick, what the actuators are commanded to.
//
// States:
//
//	Boot -> InitEsc -> IdleNoClient <-> ClientConnected -> ActiveControl
//	ActiveControl <-> Braking -> WaitForNeutralDwell -> ActiveControl
//	any driving state -> Failsafe -> ActiveControl | ClientConnected
//
// Reverse is only honoured while armed. Arming happens on entering
// [ActiveControl] from [ClientConnected] or after the neutral dwell; any
// forward command disarms it, so forward to reverse always passes through
// [Braking] and [WaitForNeutralDwell].
//
// # Usage
//
//	m := control.New(cfg, link, filter, mapper, calib, logger)
//	for now := range ticker.C {
//		m.Tick(now) // no-op inside the configured interval
//	}
//
// The machine never returns errors. Stale input degrades to [Failsafe],
// a missing client to [IdleNoClient].
package control
