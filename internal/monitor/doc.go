// Package monitor runs the ambient health probe against the monitored
// server and derives the badge and queue-depth advisory signals.
//
// One probe per period, with a per-probe timeout shorter than the
// period so probes never overlap. Probe failures degrade the badge but
// never stop the schedule. The queue-depth advisory is edge-triggered:
// it fires on the crossing into the condition, not on every tick while
// the condition holds.
package monitor
