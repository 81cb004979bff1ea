package quest

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// FromMap builds a quest from a loosely typed attribute map, as produced by
// script bindings. Objective and reward entries may be maps or already typed
// values. Unknown keys are rejected so typos surface as load failures.
func FromMap(m map[string]any) (*Quest, error) {
	q := &Quest{}
	if err := checkKeys("quest", m, "name", "title", "description", "prerequisites", "objectives", "rewards"); err != nil {
		return nil, err
	}

	var err error
	if q.Name, err = stringField(m, "name"); err != nil {
		return nil, err
	}
	if q.Title, err = stringField(m, "title"); err != nil {
		return nil, err
	}
	if q.Description, err = stringField(m, "description"); err != nil {
		return nil, err
	}

	prereqs, err := listField(m, "prerequisites")
	if err != nil {
		return nil, err
	}
	for i, p := range prereqs {
		s, ok := p.(string)
		if !ok {
			return nil, fmt.Errorf("prerequisites[%d]: expected string, got %T", i, p)
		}
		q.Prerequisites = append(q.Prerequisites, s)
	}

	objectives, err := listField(m, "objectives")
	if err != nil {
		return nil, err
	}
	for i, v := range objectives {
		o, err := ToObjective(v)
		if err != nil {
			return nil, fmt.Errorf("objectives[%d]: %w", i, err)
		}
		q.Objectives = append(q.Objectives, o)
	}

	rewards, err := listField(m, "rewards")
	if err != nil {
		return nil, err
	}
	for i, v := range rewards {
		r, err := ToReward(v)
		if err != nil {
			return nil, fmt.Errorf("rewards[%d]: %w", i, err)
		}
		q.Rewards = append(q.Rewards, r)
	}

	return q, nil
}

// ToObjective converts a map or typed value into an Objective.
func ToObjective(v any) (Objective, error) {
	switch o := v.(type) {
	case Objective:
		return o, nil
	case *Objective:
		if o == nil {
			return Objective{}, fmt.Errorf("nil objective")
		}
		return *o, nil
	case map[string]any:
		return ObjectiveFromMap(o)
	default:
		return Objective{}, fmt.Errorf("expected objective, got %T", v)
	}
}

// ObjectiveFromMap builds an Objective from an attribute map.
func ObjectiveFromMap(m map[string]any) (Objective, error) {
	var o Objective
	if err := checkKeys("objective", m, "id", "kind", "description", "target", "amount"); err != nil {
		return o, err
	}
	var err error
	if o.ID, err = stringField(m, "id"); err != nil {
		return o, err
	}
	if o.Kind, err = stringField(m, "kind"); err != nil {
		return o, err
	}
	if o.Description, err = stringField(m, "description"); err != nil {
		return o, err
	}
	if o.Target, err = stringField(m, "target"); err != nil {
		return o, err
	}
	if o.Amount, err = intField(m, "amount"); err != nil {
		return o, err
	}
	return o, nil
}

// ToReward converts a map or typed value into a Reward.
func ToReward(v any) (Reward, error) {
	switch r := v.(type) {
	case Reward:
		return r, nil
	case *Reward:
		if r == nil {
			return Reward{}, fmt.Errorf("nil reward")
		}
		return *r, nil
	case map[string]any:
		return RewardFromMap(r)
	default:
		return Reward{}, fmt.Errorf("expected reward, got %T", v)
	}
}

// RewardFromMap builds a Reward from an attribute map.
func RewardFromMap(m map[string]any) (Reward, error) {
	var r Reward
	if err := checkKeys("reward", m, "kind", "item", "amount"); err != nil {
		return r, err
	}
	var err error
	if r.Kind, err = stringField(m, "kind"); err != nil {
		return r, err
	}
	if r.Item, err = stringField(m, "item"); err != nil {
		return r, err
	}
	if r.Amount, err = intField(m, "amount"); err != nil {
		return r, err
	}
	return r, nil
}

func checkKeys(what string, m map[string]any, allowed ...string) error {
	var unknown []string
	for k := range m {
		found := false
		for _, a := range allowed {
			if k == a {
				found = true
				break
			}
		}
		if !found {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) == 0 {
		return nil
	}
	sort.Strings(unknown)
	return fmt.Errorf("%s: unknown field(s) %s", what, strings.Join(unknown, ", "))
}

func stringField(m map[string]any, key string) (string, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%s: expected string, got %T", key, v)
	}
	return s, nil
}

func intField(m map[string]any, key string) (int, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return 0, nil
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case int32:
		return int(n), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("%s: expected integer, got %v", key, n)
		}
		return int(n), nil
	default:
		return 0, fmt.Errorf("%s: expected integer, got %T", key, v)
	}
}

func listField(m map[string]any, key string) ([]any, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return nil, nil
	}
	switch l := v.(type) {
	case []any:
		return l, nil
	case []string:
		out := make([]any, len(l))
		for i, s := range l {
			out[i] = s
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%s: expected list, got %T", key, v)
	}
}
