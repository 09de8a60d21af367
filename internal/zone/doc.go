// Package zone defines irrigation zone configuration and scheduling types.
//
// A zone is one independently schedulable valve/area. Each zone carries a
// weekly schedule (time-of-day plus a weekday set), a watering duration,
// and optional sensor references used by the decision engine.
//
// # Key Types
//
//   - Config: validated zone definition loaded from configuration
//   - Schedule: value type for weekly time matching (pure, testable)
//   - Type: zone category driving the default duration heuristic
//
// Schedule matching is minute-exact: a scheduled minute that passes
// while the controller is down is not fired retroactively.
package zone
