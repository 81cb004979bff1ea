package tengoloader

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/d5/tengo/v2"
	"github.com/nfrund/questy/internal/quest"
)

// questObject exposes a quest under construction to scripts.
type questObject struct {
	tengo.ObjectImpl
	value *quest.Quest
}

func (o *questObject) TypeName() string {
	return "quest"
}

func (o *questObject) String() string {
	return fmt.Sprintf("<quest %q>", o.value.Name)
}

func (o *questObject) Copy() tengo.Object {
	return &questObject{value: o.value.Clone()}
}

func (o *questObject) Equals(x tengo.Object) bool {
	other, ok := x.(*questObject)
	return ok && other.value.Key() == o.value.Key()
}

func (o *questObject) IndexGet(index tengo.Object) (tengo.Object, error) {
	key, ok := index.(*tengo.String)
	if !ok {
		return nil, tengo.ErrInvalidIndexType
	}

	switch key.Value {
	case "name":
		return &tengo.String{Value: o.value.Name}, nil
	case "title":
		return &tengo.String{Value: o.value.Title}, nil
	case "description":
		return &tengo.String{Value: o.value.Description}, nil
	case "prerequisites":
		arr := &tengo.ImmutableArray{}
		for _, p := range o.value.Prerequisites {
			arr.Value = append(arr.Value, &tengo.String{Value: p})
		}
		return arr, nil
	case "objectives":
		arr := &tengo.ImmutableArray{}
		for _, obj := range o.value.Objectives {
			arr.Value = append(arr.Value, &objectiveObject{value: obj})
		}
		return arr, nil
	case "rewards":
		arr := &tengo.ImmutableArray{}
		for _, r := range o.value.Rewards {
			arr.Value = append(arr.Value, &rewardObject{value: r})
		}
		return arr, nil
	case "add_objective":
		return &tengo.UserFunction{Name: "add_objective", Value: o.addObjective}, nil
	case "add_reward":
		return &tengo.UserFunction{Name: "add_reward", Value: o.addReward}, nil
	case "require":
		return &tengo.UserFunction{Name: "require", Value: o.require}, nil
	}
	return tengo.UndefinedValue, nil
}

func (o *questObject) addObjective(args ...tengo.Object) (tengo.Object, error) {
	if len(args) != 1 {
		return nil, tengo.ErrWrongNumArguments
	}
	obj, err := objectiveArg(args[0])
	if err != nil {
		return nil, err
	}
	o.value.AddObjective(obj)
	return o, nil
}

func (o *questObject) addReward(args ...tengo.Object) (tengo.Object, error) {
	if len(args) != 1 {
		return nil, tengo.ErrWrongNumArguments
	}
	r, err := rewardArg(args[0])
	if err != nil {
		return nil, err
	}
	o.value.AddReward(r)
	return o, nil
}

func (o *questObject) require(args ...tengo.Object) (tengo.Object, error) {
	if len(args) == 0 {
		return nil, tengo.ErrWrongNumArguments
	}
	for i, arg := range args {
		name, err := stringArg(arg, fmt.Sprintf("prerequisite %d", i+1))
		if err != nil {
			return nil, err
		}
		o.value.Require(name)
	}
	return o, nil
}

// objectiveObject wraps an objective value.
type objectiveObject struct {
	tengo.ObjectImpl
	value quest.Objective
}

func (o *objectiveObject) TypeName() string {
	return "objective"
}

func (o *objectiveObject) String() string {
	return fmt.Sprintf("<objective %s %s>", o.value.Kind, o.value.Target)
}

func (o *objectiveObject) Copy() tengo.Object {
	return &objectiveObject{value: o.value}
}

func (o *objectiveObject) Equals(x tengo.Object) bool {
	other, ok := x.(*objectiveObject)
	return ok && other.value == o.value
}

func (o *objectiveObject) IndexGet(index tengo.Object) (tengo.Object, error) {
	key, ok := index.(*tengo.String)
	if !ok {
		return nil, tengo.ErrInvalidIndexType
	}
	switch key.Value {
	case "id":
		return &tengo.String{Value: o.value.ID}, nil
	case "kind":
		return &tengo.String{Value: o.value.Kind}, nil
	case "description":
		return &tengo.String{Value: o.value.Description}, nil
	case "target":
		return &tengo.String{Value: o.value.Target}, nil
	case "amount":
		return &tengo.Int{Value: int64(o.value.Amount)}, nil
	}
	return tengo.UndefinedValue, nil
}

// rewardObject wraps a reward value.
type rewardObject struct {
	tengo.ObjectImpl
	value quest.Reward
}

func (o *rewardObject) TypeName() string {
	return "reward"
}

func (o *rewardObject) String() string {
	return fmt.Sprintf("<reward %s %d>", o.value.Kind, o.value.Amount)
}

func (o *rewardObject) Copy() tengo.Object {
	return &rewardObject{value: o.value}
}

func (o *rewardObject) Equals(x tengo.Object) bool {
	other, ok := x.(*rewardObject)
	return ok && other.value == o.value
}

func (o *rewardObject) IndexGet(index tengo.Object) (tengo.Object, error) {
	key, ok := index.(*tengo.String)
	if !ok {
		return nil, tengo.ErrInvalidIndexType
	}
	switch key.Value {
	case "kind":
		return &tengo.String{Value: o.value.Kind}, nil
	case "item":
		return &tengo.String{Value: o.value.Item}, nil
	case "amount":
		return &tengo.Int{Value: int64(o.value.Amount)}, nil
	}
	return tengo.UndefinedValue, nil
}

// newQuest implements Quest(name) and Quest({...}).
func newQuest(args ...tengo.Object) (tengo.Object, error) {
	if len(args) != 1 {
		return nil, tengo.ErrWrongNumArguments
	}
	if name, ok := args[0].(*tengo.String); ok {
		return &questObject{value: quest.New(name.Value)}, nil
	}
	attrs, ok, err := toGoMap(args[0])
	if !ok {
		return nil, tengo.ErrInvalidArgumentType{
			Name:     "first",
			Expected: "string or map",
			Found:    args[0].TypeName(),
		}
	}
	if err != nil {
		return nil, err
	}
	q, err := quest.FromMap(attrs)
	if err != nil {
		return nil, err
	}
	return &questObject{value: q}, nil
}

// newObjective implements Objective({...}).
func newObjective(args ...tengo.Object) (tengo.Object, error) {
	if len(args) != 1 {
		return nil, tengo.ErrWrongNumArguments
	}
	obj, err := objectiveArg(args[0])
	if err != nil {
		return nil, err
	}
	return &objectiveObject{value: obj}, nil
}

// newReward implements Reward({...}).
func newReward(args ...tengo.Object) (tengo.Object, error) {
	if len(args) != 1 {
		return nil, tengo.ErrWrongNumArguments
	}
	r, err := rewardArg(args[0])
	if err != nil {
		return nil, err
	}
	return &rewardObject{value: r}, nil
}

func objectiveArg(arg tengo.Object) (quest.Objective, error) {
	if o, ok := arg.(*objectiveObject); ok {
		return o.value, nil
	}
	attrs, ok, err := toGoMap(arg)
	if !ok {
		return quest.Objective{}, tengo.ErrInvalidArgumentType{
			Name:     "objective",
			Expected: "objective or map",
			Found:    arg.TypeName(),
		}
	}
	if err != nil {
		return quest.Objective{}, err
	}
	return quest.ObjectiveFromMap(attrs)
}

func rewardArg(arg tengo.Object) (quest.Reward, error) {
	if r, ok := arg.(*rewardObject); ok {
		return r.value, nil
	}
	attrs, ok, err := toGoMap(arg)
	if !ok {
		return quest.Reward{}, tengo.ErrInvalidArgumentType{
			Name:     "reward",
			Expected: "reward or map",
			Found:    arg.TypeName(),
		}
	}
	if err != nil {
		return quest.Reward{}, err
	}
	return quest.RewardFromMap(attrs)
}

func stringArg(arg tengo.Object, name string) (string, error) {
	s, ok := arg.(*tengo.String)
	if !ok {
		return "", tengo.ErrInvalidArgumentType{
			Name:     name,
			Expected: "string",
			Found:    arg.TypeName(),
		}
	}
	return s.Value, nil
}

// maxValueDepth bounds the nesting of script values handed to the host.
// Containers that refer to themselves always exceed it.
const maxValueDepth = 32

var errValueTooDeep = fmt.Errorf("value is nested deeper than %d levels or refers to itself", maxValueDepth)

// toGo converts a script value into plain Go values. Domain objects are
// unwrapped into their quest package types.
func toGo(o tengo.Object) (any, error) {
	return convert(o, 0)
}

func convert(o tengo.Object, depth int) (any, error) {
	if depth > maxValueDepth {
		return nil, errValueTooDeep
	}
	switch v := o.(type) {
	case *questObject:
		return v.value, nil
	case *objectiveObject:
		return v.value, nil
	case *rewardObject:
		return v.value, nil
	case *tengo.Map:
		return convertMap(v.Value, depth)
	case *tengo.ImmutableMap:
		return convertMap(v.Value, depth)
	case *tengo.Array:
		return convertSlice(v.Value, depth)
	case *tengo.ImmutableArray:
		return convertSlice(v.Value, depth)
	}
	return tengo.ToInterface(o), nil
}

// toGoMap converts a script map. ok is false when o is not a map.
func toGoMap(o tengo.Object) (attrs map[string]any, ok bool, err error) {
	var values map[string]tengo.Object
	switch v := o.(type) {
	case *tengo.Map:
		values = v.Value
	case *tengo.ImmutableMap:
		values = v.Value
	default:
		return nil, false, nil
	}
	attrs, err = convertMap(values, 0)
	return attrs, true, err
}

func convertMap(values map[string]tengo.Object, depth int) (map[string]any, error) {
	out := make(map[string]any, len(values))
	for k, val := range values {
		v, err := convert(val, depth+1)
		if err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, nil
}

func convertSlice(values []tengo.Object, depth int) ([]any, error) {
	out := make([]any, len(values))
	for i, val := range values {
		v, err := convert(val, depth+1)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// logMessage renders a log argument without walking into self-referencing
// containers.
func logMessage(arg tengo.Object) (string, error) {
	if s, ok := arg.(*tengo.String); ok {
		return s.Value, nil
	}
	v, err := toGo(arg)
	if err != nil {
		return "", err
	}
	return fmt.Sprint(v), nil
}

// newManagerBinding exposes the quest manager to one script. The returned map
// is immutable so scripts can call into the manager but not replace its
// functions.
func newManagerBinding(ctx context.Context, m *quest.Manager, source string) *tengo.ImmutableMap {
	return &tengo.ImmutableMap{Value: map[string]tengo.Object{
		"publish": &tengo.UserFunction{
			Name: "publish",
			Value: func(args ...tengo.Object) (tengo.Object, error) {
				if len(args) < 1 || len(args) > 2 {
					return nil, tengo.ErrWrongNumArguments
				}
				topic, err := stringArg(args[0], "topic")
				if err != nil {
					return nil, err
				}
				var payload any
				if len(args) == 2 {
					if payload, err = toGo(args[1]); err != nil {
						return nil, err
					}
				}
				if err := m.Publish(ctx, source, topic, payload); err != nil {
					return nil, err
				}
				return tengo.TrueValue, nil
			},
		},
		"register_objective_kind": &tengo.UserFunction{
			Name: "register_objective_kind",
			Value: func(args ...tengo.Object) (tengo.Object, error) {
				if len(args) != 1 {
					return nil, tengo.ErrWrongNumArguments
				}
				kind, err := stringArg(args[0], "kind")
				if err != nil {
					return nil, err
				}
				if err := m.RegisterObjectiveKind(kind); err != nil {
					return nil, err
				}
				return tengo.UndefinedValue, nil
			},
		},
		"objective_kinds": &tengo.UserFunction{
			Name: "objective_kinds",
			Value: func(args ...tengo.Object) (tengo.Object, error) {
				if len(args) != 0 {
					return nil, tengo.ErrWrongNumArguments
				}
				arr := &tengo.ImmutableArray{}
				for _, k := range m.ObjectiveKinds() {
					arr.Value = append(arr.Value, &tengo.String{Value: k})
				}
				return arr, nil
			},
		},
		"has_quest": &tengo.UserFunction{
			Name: "has_quest",
			Value: func(args ...tengo.Object) (tengo.Object, error) {
				if len(args) != 1 {
					return nil, tengo.ErrWrongNumArguments
				}
				name, err := stringArg(args[0], "name")
				if err != nil {
					return nil, err
				}
				if _, ok := m.Quest(name); ok {
					return tengo.TrueValue, nil
				}
				return tengo.FalseValue, nil
			},
		},
		"log": &tengo.UserFunction{
			Name: "log",
			Value: func(args ...tengo.Object) (tengo.Object, error) {
				if len(args) != 1 {
					return nil, tengo.ErrWrongNumArguments
				}
				message, err := logMessage(args[0])
				if err != nil {
					return nil, err
				}
				slog.Info("Quest script log", "message", message, "source", source, "format", FormatName)
				return tengo.UndefinedValue, nil
			},
		},
	}}
}
