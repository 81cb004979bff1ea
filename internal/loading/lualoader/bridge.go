package lualoader

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/Shopify/go-lua"
	"github.com/nfrund/questy/internal/quest"
)

const (
	questTypeName     = "questy.quest"
	objectiveTypeName = "questy.objective"
	rewardTypeName    = "questy.reward"
)

// safeLibraries are opened in every script state. io, os, package and debug
// stay closed.
var safeLibraries = []lua.RegistryFunction{
	{Name: "_G", Function: lua.BaseOpen},
	{Name: "table", Function: lua.TableOpen},
	{Name: "string", Function: lua.StringOpen},
	{Name: "bit32", Function: lua.Bit32Open},
	{Name: "math", Function: lua.MathOpen},
}

// unsafeGlobals are base library functions that reach the filesystem.
var unsafeGlobals = []string{"dofile", "loadfile"}

func openLibraries(l *lua.State) {
	for _, lib := range safeLibraries {
		lua.Require(l, lib.Name, lib.Function, true)
		l.Pop(1)
	}
	for _, name := range unsafeGlobals {
		l.PushNil()
		l.SetGlobal(name)
	}
}

func registerTypes(l *lua.State) {
	registerType(l, questTypeName, questIndex, questToString)
	registerType(l, objectiveTypeName, objectiveIndex, objectiveToString)
	registerType(l, rewardTypeName, rewardIndex, rewardToString)
}

func registerType(l *lua.State, name string, index, tostring lua.Function) {
	lua.NewMetaTable(l, name)
	l.PushGoFunction(index)
	l.SetField(-2, "__index")
	l.PushGoFunction(tostring)
	l.SetField(-2, "__tostring")
	l.Pop(1)
}

func registerDomain(l *lua.State) {
	l.NewTable()
	lua.SetFunctions(l, []lua.RegistryFunction{
		{Name: "Quest", Function: newQuest},
		{Name: "Objective", Function: newObjective},
		{Name: "Reward", Function: newReward},
	}, 0)
	l.SetGlobal(DomainModule)
}

func pushQuest(l *lua.State, q *quest.Quest) {
	l.PushUserData(q)
	lua.SetMetaTableNamed(l, questTypeName)
}

func pushObjective(l *lua.State, o quest.Objective) {
	l.PushUserData(&o)
	lua.SetMetaTableNamed(l, objectiveTypeName)
}

func pushReward(l *lua.State, r quest.Reward) {
	l.PushUserData(&r)
	lua.SetMetaTableNamed(l, rewardTypeName)
}

func pushStrings(l *lua.State, values []string) {
	l.CreateTable(len(values), 0)
	for i, v := range values {
		l.PushString(v)
		l.RawSetInt(-2, i+1)
	}
}

// newQuest implements Quest("name") and Quest{...}.
func newQuest(l *lua.State) int {
	if l.Top() != 1 {
		lua.Errorf(l, "Quest expects one argument, got %d", l.Top())
	}
	switch l.TypeOf(1) {
	case lua.TypeString:
		name, _ := l.ToString(1)
		pushQuest(l, quest.New(name))
	case lua.TypeTable:
		q, err := quest.FromMap(tableToMap(l, 1))
		if err != nil {
			lua.Errorf(l, "Quest: %s", err.Error())
		}
		pushQuest(l, q)
	default:
		lua.ArgumentError(l, 1, "string or table expected")
	}
	return 1
}

func newObjective(l *lua.State) int {
	if l.Top() != 1 {
		lua.Errorf(l, "Objective expects one argument, got %d", l.Top())
	}
	pushObjective(l, objectiveArg(l, 1))
	return 1
}

func newReward(l *lua.State) int {
	if l.Top() != 1 {
		lua.Errorf(l, "Reward expects one argument, got %d", l.Top())
	}
	pushReward(l, rewardArg(l, 1))
	return 1
}

func checkQuest(l *lua.State, index int) *quest.Quest {
	q, ok := lua.CheckUserData(l, index, questTypeName).(*quest.Quest)
	if !ok || q == nil {
		lua.ArgumentError(l, index, "quest expected")
	}
	return q
}

func objectiveArg(l *lua.State, index int) quest.Objective {
	switch l.TypeOf(index) {
	case lua.TypeUserData:
		if o, ok := l.ToUserData(index).(*quest.Objective); ok && o != nil {
			return *o
		}
	case lua.TypeTable:
		o, err := quest.ObjectiveFromMap(tableToMap(l, index))
		if err != nil {
			lua.Errorf(l, "Objective: %s", err.Error())
		}
		return o
	}
	lua.ArgumentError(l, index, "objective or table expected")
	return quest.Objective{}
}

func rewardArg(l *lua.State, index int) quest.Reward {
	switch l.TypeOf(index) {
	case lua.TypeUserData:
		if r, ok := l.ToUserData(index).(*quest.Reward); ok && r != nil {
			return *r
		}
	case lua.TypeTable:
		r, err := quest.RewardFromMap(tableToMap(l, index))
		if err != nil {
			lua.Errorf(l, "Reward: %s", err.Error())
		}
		return r
	}
	lua.ArgumentError(l, index, "reward or table expected")
	return quest.Reward{}
}

// strictString accepts only string values; numbers are not coerced.
func strictString(l *lua.State, index int) string {
	if l.TypeOf(index) != lua.TypeString {
		lua.ArgumentError(l, index, "string expected")
	}
	s, _ := l.ToString(index)
	return s
}

func questIndex(l *lua.State) int {
	q := checkQuest(l, 1)
	switch lua.CheckString(l, 2) {
	case "name":
		l.PushString(q.Name)
	case "title":
		l.PushString(q.Title)
	case "description":
		l.PushString(q.Description)
	case "prerequisites":
		pushStrings(l, q.Prerequisites)
	case "objectives":
		l.CreateTable(len(q.Objectives), 0)
		for i, o := range q.Objectives {
			pushObjective(l, o)
			l.RawSetInt(-2, i+1)
		}
	case "rewards":
		l.CreateTable(len(q.Rewards), 0)
		for i, r := range q.Rewards {
			pushReward(l, r)
			l.RawSetInt(-2, i+1)
		}
	case "add_objective":
		l.PushGoFunction(questAddObjective)
	case "add_reward":
		l.PushGoFunction(questAddReward)
	case "require":
		l.PushGoFunction(questRequire)
	default:
		l.PushNil()
	}
	return 1
}

func questAddObjective(l *lua.State) int {
	q := checkQuest(l, 1)
	q.AddObjective(objectiveArg(l, 2))
	l.PushValue(1)
	return 1
}

func questAddReward(l *lua.State) int {
	q := checkQuest(l, 1)
	q.AddReward(rewardArg(l, 2))
	l.PushValue(1)
	return 1
}

func questRequire(l *lua.State) int {
	q := checkQuest(l, 1)
	if l.Top() < 2 {
		lua.Errorf(l, "require expects at least one quest name")
	}
	for i := 2; i <= l.Top(); i++ {
		q.Require(strictString(l, i))
	}
	l.PushValue(1)
	return 1
}

func questToString(l *lua.State) int {
	q := checkQuest(l, 1)
	l.PushString(fmt.Sprintf("quest(%q)", q.Name))
	return 1
}

func objectiveIndex(l *lua.State) int {
	o, _ := lua.CheckUserData(l, 1, objectiveTypeName).(*quest.Objective)
	if o == nil {
		lua.ArgumentError(l, 1, "objective expected")
	}
	switch lua.CheckString(l, 2) {
	case "id":
		l.PushString(o.ID)
	case "kind":
		l.PushString(o.Kind)
	case "description":
		l.PushString(o.Description)
	case "target":
		l.PushString(o.Target)
	case "amount":
		l.PushInteger(o.Amount)
	default:
		l.PushNil()
	}
	return 1
}

func objectiveToString(l *lua.State) int {
	o, _ := lua.CheckUserData(l, 1, objectiveTypeName).(*quest.Objective)
	if o == nil {
		lua.ArgumentError(l, 1, "objective expected")
	}
	l.PushString(fmt.Sprintf("objective(%s %s)", o.Kind, o.Target))
	return 1
}

func rewardIndex(l *lua.State) int {
	r, _ := lua.CheckUserData(l, 1, rewardTypeName).(*quest.Reward)
	if r == nil {
		lua.ArgumentError(l, 1, "reward expected")
	}
	switch lua.CheckString(l, 2) {
	case "kind":
		l.PushString(r.Kind)
	case "item":
		l.PushString(r.Item)
	case "amount":
		l.PushInteger(r.Amount)
	default:
		l.PushNil()
	}
	return 1
}

func rewardToString(l *lua.State) int {
	r, _ := lua.CheckUserData(l, 1, rewardTypeName).(*quest.Reward)
	if r == nil {
		lua.ArgumentError(l, 1, "reward expected")
	}
	l.PushString(fmt.Sprintf("reward(%s %d)", r.Kind, r.Amount))
	return 1
}

// registerManager binds the quest manager as a read-only global table. Its
// functions are called with a dot, e.g. questManager.publish("topic", {}).
func registerManager(ctx context.Context, l *lua.State, m *quest.Manager, source string) {
	l.NewTable()
	l.NewTable()
	l.NewTable()
	lua.SetFunctions(l, managerFunctions(ctx, m, source), 0)
	l.SetField(-2, "__index")
	l.PushGoFunction(func(l *lua.State) int {
		lua.Errorf(l, "%s is read-only", ManagerBinding)
		return 0
	})
	l.SetField(-2, "__newindex")
	l.PushString("locked")
	l.SetField(-2, "__metatable")
	l.SetMetaTable(-2)
	l.SetGlobal(ManagerBinding)
}

func managerFunctions(ctx context.Context, m *quest.Manager, source string) []lua.RegistryFunction {
	return []lua.RegistryFunction{
		{Name: "publish", Function: func(l *lua.State) int {
			topic := strictString(l, 1)
			var payload any
			if l.Top() >= 2 {
				payload = luaToGo(l, 2)
			}
			if err := m.Publish(ctx, source, topic, payload); err != nil {
				lua.Errorf(l, "publish %s: %s", topic, err.Error())
			}
			l.PushBoolean(true)
			return 1
		}},
		{Name: "register_objective_kind", Function: func(l *lua.State) int {
			if err := m.RegisterObjectiveKind(strictString(l, 1)); err != nil {
				lua.Errorf(l, "%s", err.Error())
			}
			return 0
		}},
		{Name: "objective_kinds", Function: func(l *lua.State) int {
			pushStrings(l, m.ObjectiveKinds())
			return 1
		}},
		{Name: "has_quest", Function: func(l *lua.State) int {
			_, ok := m.Quest(strictString(l, 1))
			l.PushBoolean(ok)
			return 1
		}},
		{Name: "log", Function: func(l *lua.State) int {
			message := lua.CheckString(l, 1)
			slog.Info("Quest script log", "message", message, "source", source, "format", FormatName)
			return 0
		}},
	}
}

func tableToMap(l *lua.State, index int) map[string]any {
	output := map[string]any{}
	if l.TypeOf(index) != lua.TypeTable {
		return output
	}

	index = l.AbsIndex(index)
	l.PushNil()
	for l.Next(index) {
		if l.TypeOf(-2) == lua.TypeString {
			key, _ := l.ToString(-2)
			output[key] = luaToGo(l, -1)
		}
		l.Pop(1)
	}
	return output
}

func luaToGo(l *lua.State, index int) any {
	switch l.TypeOf(index) {
	case lua.TypeString:
		value, _ := l.ToString(index)
		return value
	case lua.TypeNumber:
		value, _ := l.ToNumber(index)
		return normalizeNumber(value)
	case lua.TypeBoolean:
		return l.ToBoolean(index)
	case lua.TypeTable:
		return tableToGo(l, index)
	case lua.TypeUserData:
		return l.ToUserData(index)
	default:
		return nil
	}
}

// tableToGo returns a slice for sequences (including the empty table) and
// a map otherwise.
func tableToGo(l *lua.State, index int) any {
	index = l.AbsIndex(index)
	isArray := true
	maxIndex := 0
	count := 0
	l.PushNil()
	for l.Next(index) {
		if isArray {
			if l.TypeOf(-2) != lua.TypeNumber {
				isArray = false
			} else if idx, ok := l.ToInteger(-2); ok && idx > 0 {
				count++
				if idx > maxIndex {
					maxIndex = idx
				}
			} else {
				isArray = false
			}
		}
		l.Pop(1)
	}

	if isArray && maxIndex == count {
		result := make([]any, 0, maxIndex)
		for i := 1; i <= maxIndex; i++ {
			l.RawGetInt(index, i)
			result = append(result, luaToGo(l, -1))
			l.Pop(1)
		}
		return result
	}

	return tableToMap(l, index)
}

func normalizeNumber(value float64) any {
	if math.Mod(value, 1) == 0 && math.Abs(value) < math.MaxInt32 {
		return int(value)
	}
	return value
}
