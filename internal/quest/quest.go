package quest

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// validatorInstance is a package-level validator instance.
// It's safe for concurrent use.
var validatorInstance = validator.New()

// objectiveNamespace seeds the deterministic ids given to objectives that
// were declared without one.
var objectiveNamespace = uuid.MustParse("6f1c2a5e-8d3b-4f7a-9c0e-2b4d6a8f1e3c")

// Quest is a unit of game content produced by a loader.
// Two quests are the same quest when their Key is equal.
type Quest struct {
	Name          string      `json:"name" yaml:"name" validate:"required"`
	Title         string      `json:"title,omitempty" yaml:"title,omitempty"`
	Description   string      `json:"description,omitempty" yaml:"description,omitempty"`
	Prerequisites []string    `json:"prerequisites,omitempty" yaml:"prerequisites,omitempty" validate:"dive,required"`
	Objectives    []Objective `json:"objectives,omitempty" yaml:"objectives,omitempty" validate:"dive"`
	Rewards       []Reward    `json:"rewards,omitempty" yaml:"rewards,omitempty" validate:"dive"`

	// Load metadata, not part of the quest's identity.
	Format string `json:"format,omitempty" yaml:"-"`
	Source string `json:"source,omitempty" yaml:"-"`
}

// Objective is a single step the player has to complete.
type Objective struct {
	ID          string `json:"id" yaml:"id,omitempty"`
	Kind        string `json:"kind" yaml:"kind" validate:"required"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Target      string `json:"target,omitempty" yaml:"target,omitempty"`
	Amount      int    `json:"amount,omitempty" yaml:"amount,omitempty" validate:"gte=0"`
}

// Reward is granted once every objective of a quest is complete.
type Reward struct {
	Kind   string `json:"kind" yaml:"kind" validate:"required"`
	Item   string `json:"item,omitempty" yaml:"item,omitempty"`
	Amount int    `json:"amount,omitempty" yaml:"amount,omitempty" validate:"gte=0"`
}

// New creates a quest with the given name.
func New(name string) *Quest {
	return &Quest{Name: name}
}

// Key returns the identity of the quest.
func (q *Quest) Key() string {
	return KeyOf(q.Name)
}

// KeyOf normalizes a quest name into its identity key.
func KeyOf(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// AddObjective appends an objective to the quest.
func (q *Quest) AddObjective(o Objective) {
	q.Objectives = append(q.Objectives, o)
}

// AddReward appends a reward to the quest.
func (q *Quest) AddReward(r Reward) {
	q.Rewards = append(q.Rewards, r)
}

// Require adds a prerequisite quest name, ignoring duplicates.
func (q *Quest) Require(name string) {
	for _, p := range q.Prerequisites {
		if KeyOf(p) == KeyOf(name) {
			return
		}
	}
	q.Prerequisites = append(q.Prerequisites, name)
}

// Normalize trims names and assigns ids to objectives that have none.
// Generated ids are derived from the quest name and the objective position,
// so loading the same content twice yields equal quests.
func (q *Quest) Normalize() {
	q.Name = strings.TrimSpace(q.Name)
	for i := range q.Objectives {
		if q.Objectives[i].ID != "" {
			continue
		}
		seed := fmt.Sprintf("%s/%d", q.Key(), i)
		q.Objectives[i].ID = uuid.NewSHA1(objectiveNamespace, []byte(seed)).String()
	}
}

// Validate checks the structure of the quest. It does not judge whether the
// quest makes sense as game content.
func (q *Quest) Validate() error {
	if err := validatorInstance.Struct(q); err != nil {
		return fmt.Errorf("invalid quest %q: %w", q.Name, err)
	}
	seen := make(map[string]struct{}, len(q.Objectives))
	for _, o := range q.Objectives {
		if o.ID == "" {
			continue
		}
		if _, dup := seen[o.ID]; dup {
			return fmt.Errorf("invalid quest %q: duplicate objective id %q", q.Name, o.ID)
		}
		seen[o.ID] = struct{}{}
	}
	return nil
}

// Clone returns a deep copy of the quest.
func (q *Quest) Clone() *Quest {
	if q == nil {
		return nil
	}
	c := *q
	c.Prerequisites = append([]string(nil), q.Prerequisites...)
	c.Objectives = append([]Objective(nil), q.Objectives...)
	c.Rewards = append([]Reward(nil), q.Rewards...)
	return &c
}
