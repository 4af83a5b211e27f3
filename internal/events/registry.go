package events

import "fmt"

var allowedEvents = map[string]struct{}{
	// run
	"run.started":   {},
	"run.completed": {},
	"run.failed":    {},
	"run.cancelled": {},

	// node
	"node.started":   {},
	"node.completed": {},
	"node.failed":    {},

	// graph
	"graph.loaded":        {},
	"graph.saved":         {},
	"graph.changed":       {},
	"graph.imported":      {},
	"graph.edges_dropped": {},

	// system
	"system.startup":  {},
	"system.shutdown": {},
	"system.error":    {},
}

func Validate(event string) error {
	if _, ok := allowedEvents[event]; !ok {
		return fmt.Errorf("unknown event: %s", event)
	}
	return nil
}
