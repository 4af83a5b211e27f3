package condition

import (
	"errors"
	"fmt"

	"github.com/questforge/questgraph/internal/quest"
)

// ErrNoDerivation is returned when no canonical expression exists for a kind.
var ErrNoDerivation = errors.New("condition: no derived expression for node kind")

// Derive returns the canonical expression for a condition that reads the
// output of an upstream node of the given kind. threshold is the Task
// completion percentage; zero or less means 100.
func Derive(kind quest.Kind, threshold int) (string, error) {
	switch kind {
	case quest.KindTask:
		if threshold <= 0 {
			threshold = 100
		}
		return fmt.Sprintf(`input.status == "completed" || (input.status == "in-progress" && input.progress >= %d)`, threshold), nil
	case quest.KindDialogue:
		return "input.selectedChoice != null", nil
	case quest.KindReward:
		return "input.claimed == true", nil
	case quest.KindStart:
		return "input.gameVersion != null", nil
	default:
		return "", fmt.Errorf("%w: %s", ErrNoDerivation, kind)
	}
}
