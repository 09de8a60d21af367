// Package scheduler runs the irrigation loop: it evaluates zone
// schedules once per minute, feeds watering decisions through the
// engine, and actuates valves one zone at a time.
//
// Two goroutines do the work. The evaluation loop ticks at minute
// resolution, matches each zone's schedule exactly to the minute and
// guards against firing a zone twice in one day; missed minutes are
// never replayed after downtime. All zones due in a tick decide
// against one shared weather snapshot. The executor drains the run
// queue serially, holding an exclusive actuation lease while a valve
// is open.
//
// The lease is belt and braces: the single executor already serialises
// actuation, but a violation means the one-valve invariant can no
// longer be trusted, so the scheduler latches into a faulted state and
// refuses new runs until restart.
//
// Every decision, skips included, produces exactly one sealed history
// record. Shutdown closes the open valve, seals the in-flight run as
// aborted, and drains queued runs the same way.
package scheduler
