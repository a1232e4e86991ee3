// Package metrics provides the Prometheus collector shared by the dialog
// manager, prompts and skill dialogs.
//
// A nil *Collector is valid and records nothing, so components can call it
// unconditionally.
package metrics
