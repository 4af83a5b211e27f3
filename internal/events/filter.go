package events

import "strings"

// Filter selects the events a subscriber or query is interested in.
type Filter func(Event) bool

// SessionOf returns the run session an event belongs to, or "".
func SessionOf(e Event) string {
	id, _ := e.Fields["session_id"].(string)
	return id
}

// BySession matches events of one run. An empty id matches everything.
func BySession(id string) Filter {
	return func(e Event) bool {
		return id == "" || SessionOf(e) == id
	}
}

// ByPrefix matches events whose name starts with one of prefixes.
func ByPrefix(prefixes ...string) Filter {
	return func(e Event) bool {
		for _, p := range prefixes {
			if strings.HasPrefix(e.Name, p) {
				return true
			}
		}
		return false
	}
}

func allOf(filters []Filter) Filter {
	switch len(filters) {
	case 0:
		return nil
	case 1:
		return filters[0]
	}
	return func(e Event) bool {
		for _, f := range filters {
			if !f(e) {
				return false
			}
		}
		return true
	}
}

// Select returns the events matching every filter, preserving order.
func Select(evts []Event, filters ...Filter) []Event {
	match := allOf(filters)
	out := make([]Event, 0, len(evts))
	for _, e := range evts {
		if match == nil || match(e) {
			out = append(out, e)
		}
	}
	return out
}
