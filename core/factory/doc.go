// Package factory is a generic registry of named constructors. The metrics
// layer uses it to build sinks from their configured type, and the fleet
// commands use Decode to turn loose JSON parameters into typed structs:
//
//	var p struct {
//		Mode string `json:"mode"`
//	}
//	if err := factory.Decode(map[string]any{"mode": "GUIDED"}, &p); err != nil {
//		return err
//	}
package factory
