// Package command exposes the scheduler over MQTT.
//
// Operators publish JSON commands (run, stop, enable, test mode,
// history and water-usage queries) to a single command topic; the
// adapter dispatches them to the scheduler or the run history and
// answers on a response topic. Scheduler and per-zone state are
// mirrored to retained topics so dashboards see current status on
// subscribe, and every sealed run record is announced on the event
// topic.
package command
