package orchestrator

import "maps"

// Item is an inventory record.
type Item struct {
	ID       string `json:"id"`
	Name     string `json:"name,omitempty"`
	Quantity int    `json:"quantity"`
}

// PlayerState is the simulated player for one run.
type PlayerState struct {
	Level      int             `json:"level"`
	Currency   int             `json:"currency"`
	Experience int             `json:"experience"`
	Inventory  []Item          `json:"inventory"`
	QuestFlags map[string]bool `json:"questFlags"`
}

// NewPlayerState returns a level 1 player with nothing.
func NewPlayerState() PlayerState {
	return PlayerState{
		Level:      1,
		Inventory:  []Item{},
		QuestFlags: map[string]bool{},
	}
}

// Clone returns a deep copy.
func (p PlayerState) Clone() PlayerState {
	p.Inventory = append([]Item{}, p.Inventory...)
	p.QuestFlags = maps.Clone(p.QuestFlags)
	if p.QuestFlags == nil {
		p.QuestFlags = map[string]bool{}
	}
	return p
}

// AddExperience grants xp and levels up once per threshold crossed, carrying
// the remainder. A non-positive threshold disables levelling.
func (p *PlayerState) AddExperience(xp, threshold int) (levelsGained int) {
	p.Experience += xp
	if threshold <= 0 {
		return 0
	}
	for p.Experience >= threshold {
		p.Experience -= threshold
		p.Level++
		levelsGained++
	}
	return levelsGained
}

// AddItem appends an item to the inventory.
func (p *PlayerState) AddItem(it Item) {
	p.Inventory = append(p.Inventory, it)
}

// SetFlag marks a quest flag as set.
func (p *PlayerState) SetFlag(name string) {
	if p.QuestFlags == nil {
		p.QuestFlags = map[string]bool{}
	}
	p.QuestFlags[name] = true
}
