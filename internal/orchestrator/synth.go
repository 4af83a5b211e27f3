package orchestrator

import (
	"fmt"

	"github.com/questforge/questgraph/internal/quest"
)

// runTask synthesizes a task's output and applies its experience grant.
// timeSpent is random and display only.
func (r *Runtime) runTask(n quest.Node, d *quest.TaskData) (map[string]any, string) {
	status := d.SimulatedStatus
	if status == "" {
		status = quest.TaskCompleted
	}
	progress := d.SimulatedProgress
	if status == quest.TaskCompleted {
		progress = 100
	}
	progress = min(max(progress, 0), 100)

	out := map[string]any{
		"objective":     d.Objective,
		"requiredCount": d.RequiredCount,
		"currentCount":  d.RequiredCount * progress / 100,
		"progress":      progress,
		"status":        status,
		"timeSpent":     30 + r.rng.IntN(271),
	}

	if status != quest.TaskCompleted {
		return out, fmt.Sprintf("task %s at %d%%", status, progress)
	}
	levels := r.player.AddExperience(r.opts.TaskExperience, r.opts.LevelThreshold)
	r.player.SetFlag("task:" + n.ID)
	msg := fmt.Sprintf("task completed, +%d xp", r.opts.TaskExperience)
	if levels > 0 {
		msg += fmt.Sprintf(", level %d", r.player.Level)
	}
	return out, msg
}

// runReward synthesizes a reward's output and applies it to the player.
// Unknown reward types leave the player untouched.
func (r *Runtime) runReward(n quest.Node, d *quest.RewardData) (map[string]any, string) {
	out := map[string]any{
		"rewardType":  string(d.RewardType),
		"rewardValue": d.RewardValue,
		"claimed":     true,
	}

	switch d.RewardType {
	case quest.RewardExperience:
		r.player.AddExperience(d.RewardValue, r.opts.LevelThreshold)
		return out, fmt.Sprintf("granted %d experience", d.RewardValue)
	case quest.RewardCurrency:
		r.player.Currency += d.RewardValue
		return out, fmt.Sprintf("granted %d currency", d.RewardValue)
	case quest.RewardItem:
		it := Item{ID: d.ItemID, Name: d.ItemName, Quantity: max(d.RewardValue, 1)}
		if it.ID == "" {
			it.ID = n.ID
		}
		r.player.AddItem(it)
		out["itemId"] = it.ID
		return out, fmt.Sprintf("granted %d x %s", it.Quantity, it.ID)
	case quest.RewardFlag:
		flag := d.Flag
		if flag == "" {
			flag = "reward:" + n.ID
		}
		r.player.SetFlag(flag)
		out["flag"] = flag
		return out, fmt.Sprintf("set flag %s", flag)
	default:
		return out, fmt.Sprintf("warning: unknown reward type %q, player unchanged", d.RewardType)
	}
}

// runDialogue synthesizes a dialogue's output. The configured choice wins,
// then the first available one.
func runDialogue(d *quest.DialogueData) (map[string]any, string) {
	var selected any
	switch {
	case d.SelectedChoice != "":
		selected = d.SelectedChoice
	case len(d.Choices) > 0:
		selected = d.Choices[0]
	}

	choices := make([]any, len(d.Choices))
	for i, c := range d.Choices {
		choices[i] = c
	}
	out := map[string]any{
		"character":      d.Character,
		"text":           d.Text,
		"choices":        choices,
		"selectedChoice": selected,
	}
	if selected == nil {
		return out, fmt.Sprintf("%s spoke", d.Character)
	}
	return out, fmt.Sprintf("%s: chose %q", d.Character, selected)
}
