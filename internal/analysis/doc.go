// Package analysis inspects recorded control traces.
//
//   - [Spectrum] and [DominantFrequency]: oscillation in a command signal
//   - [Timeline]: the state machine's visits as contiguous segments
//   - [ResponseLatency]: time from operator intent to the ESC leaving neutral
//
// A steering trace that hunts shows up as a sharp peak:
//
//	f, mag := analysis.DominantFrequency(analysis.Series(samples, analysis.ServoDuty), 100)
package analysis
