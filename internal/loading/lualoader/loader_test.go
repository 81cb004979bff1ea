package lualoader

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Shopify/go-lua"
	"github.com/nfrund/questy/internal/loading"
	"github.com/nfrund/questy/internal/pubsub"
	"github.com/nfrund/questy/internal/quest"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validQuestA = `
function quest()
  return Quest{
    name = "A",
    title = "The Wolf Problem",
    objectives = { Objective{kind = "kill", target = "wolf", amount = 5} },
    rewards = { Reward{kind = "xp", amount = 100} },
  }
end
`

func questScript(name string) string {
	return fmt.Sprintf(`function quest() return Quest(%q) end`, name)
}

func newTestLoader(t *testing.T, files map[string]string, opts ...Option) *Loader {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/quests", 0755))
	for name, content := range files {
		require.NoError(t, afero.WriteFile(fs, filepath.Join("/quests", name), []byte(content), 0644))
	}
	return New(quest.NewManager(nil), append([]Option{WithFs(fs)}, opts...)...)
}

func failureKinds(report *loading.Report) map[string]loading.ErrorKind {
	kinds := make(map[string]loading.ErrorKind, len(report.Failures))
	for _, f := range report.Failures {
		kinds[filepath.Base(f.Path)] = f.Kind
	}
	return kinds
}

func TestLoader_Format(t *testing.T) {
	l := New(nil)
	assert.Equal(t, "Lua", l.Format())
	assert.Equal(t, []string{".lua"}, l.Suffixes())
}

func TestLoader_ValidThrowingAndIgnoredFiles(t *testing.T) {
	l := newTestLoader(t, map[string]string{
		"a.lua": validQuestA,
		"b.lua": "error(\"boom\")\n" + questScript("B"),
		"c.txt": questScript("C"),
	})

	quests := l.LoadQuests(context.Background(), "/quests")

	require.Equal(t, 1, quests.Len())
	a, ok := quests.Get("a")
	require.True(t, ok)
	assert.Equal(t, "A", a.Name)
	assert.Equal(t, "The Wolf Problem", a.Title)
	assert.Equal(t, "Lua", a.Format)
	assert.Equal(t, "/quests/a.lua", a.Source)
	require.Len(t, a.Objectives, 1)
	assert.Equal(t, "kill", a.Objectives[0].Kind)
	assert.Equal(t, "wolf", a.Objectives[0].Target)
	assert.Equal(t, 5, a.Objectives[0].Amount)
	assert.NotEmpty(t, a.Objectives[0].ID)
	assert.Equal(t, []quest.Reward{{Kind: "xp", Amount: 100}}, a.Rewards)
}

func TestLoader_EmptyAndUnusableDirectories(t *testing.T) {
	l := newTestLoader(t, map[string]string{"a.lua": validQuestA})

	for _, dir := range []string{"", "/nope", "/quests/a.lua"} {
		quests := l.LoadQuests(context.Background(), dir)
		require.NotNil(t, quests, dir)
		assert.Equal(t, 0, quests.Len(), dir)
	}

	empty := newTestLoader(t, nil)
	assert.Equal(t, 0, empty.LoadQuests(context.Background(), "/quests").Len())
}

func TestLoader_FailureKinds(t *testing.T) {
	l := newTestLoader(t, map[string]string{
		"syntax.lua":     `function quest( return end`,
		"number.lua":     `function quest() return 42 end`,
		"nofunc.lua":     `x = 1`,
		"notfunc.lua":    `quest = 5`,
		"localfunc.lua":  `local function quest() return Quest("Hidden") end`,
		"nothing.lua":    `function quest() end`,
		"noname.lua":     `function quest() return Quest{description = "nameless"} end`,
		"badarg.lua":     `function quest() return Quest() end`,
		"badfield.lua":   `function quest() return Quest{name = "X", nmae = "typo"} end`,
		"badreward.lua":  `function quest() return Quest("R"):add_reward(Reward{kind = "xp", amount = -5}) end`,
		"objective.lua":  `function quest() return Objective{kind = "kill"} end`,
		"throws.lua":     `function quest() error("not today") end`,
		"noos.lua":       `function quest() return Quest(os.getenv("HOME")) end`,
		"nodofile.lua":   `dofile("/etc/passwd")`,
		"prereqbad.lua":  `function quest() return Quest("P2"):require(1) end`,
		"valid.LUA":      questScript("Valid"),
		"strings.lua":    `function quest() return Quest(string.upper("loud")) end`,
		"leadingws.lua":  "\n\n\n" + questScript("Spaced"),
		"prereq.lua":     `function quest() return Quest("P"):require("A", "B") end`,
		"chained.lua":    `function quest() return Quest("C"):add_objective({kind = "talk", target = "elder"}):add_reward({kind = "gold", amount = 3}) end`,
		"listreward.lua": `function quest() return Quest{name = "L", rewards = {{kind = "gold", amount = 10}}} end`,
	})

	report := l.LoadReport(context.Background(), "/quests")

	assert.ElementsMatch(t, []string{"Valid", "LOUD", "Spaced", "P", "C", "L"}, report.Quests.Names())
	assert.Equal(t, map[string]loading.ErrorKind{
		"syntax.lua":    loading.KindCompile,
		"number.lua":    loading.KindEntryPoint,
		"nofunc.lua":    loading.KindEntryPoint,
		"notfunc.lua":   loading.KindEntryPoint,
		"localfunc.lua": loading.KindEntryPoint,
		"nothing.lua":   loading.KindEntryPoint,
		"noname.lua":    loading.KindInvalidQuest,
		"badarg.lua":    loading.KindRuntime,
		"badfield.lua":  loading.KindRuntime,
		"badreward.lua": loading.KindInvalidQuest,
		"objective.lua": loading.KindEntryPoint,
		"throws.lua":    loading.KindRuntime,
		"noos.lua":      loading.KindRuntime,
		"nodofile.lua":  loading.KindRuntime,
		"prereqbad.lua": loading.KindRuntime,
	}, failureKinds(report))

	p, ok := report.Quests.Get("P")
	require.True(t, ok)
	assert.Equal(t, []string{"A", "B"}, p.Prerequisites)

	c, ok := report.Quests.Get("C")
	require.True(t, ok)
	require.Len(t, c.Objectives, 1)
	assert.Equal(t, "elder", c.Objectives[0].Target)
	assert.Equal(t, []quest.Reward{{Kind: "gold", Amount: 3}}, c.Rewards)

	lq, ok := report.Quests.Get("L")
	require.True(t, ok)
	assert.Equal(t, []quest.Reward{{Kind: "gold", Amount: 10}}, lq.Rewards)
}

func TestLoader_Idempotent(t *testing.T) {
	l := newTestLoader(t, map[string]string{
		"a.lua": validQuestA,
		"b.lua": questScript("B"),
		"c.lua": `function quest() return 1 end`,
	})

	first := l.LoadQuests(context.Background(), "/quests")
	second := l.LoadQuests(context.Background(), "/quests")

	assert.Equal(t, 2, first.Len())
	assert.Equal(t, first.Sorted(), second.Sorted())
}

func TestLoader_GlobalsDoNotLeakBetweenFiles(t *testing.T) {
	l := newTestLoader(t, map[string]string{
		"a_defines.lua": "leaked = \"secret\"\n" + questScript("A"),
		"b_uses.lua":    `function quest() return Quest(leaked) end`,
		"c_plain.lua":   questScript("C"),
	})

	report := l.LoadReport(context.Background(), "/quests")

	assert.ElementsMatch(t, []string{"A", "C"}, report.Quests.Names())
	assert.Equal(t, map[string]loading.ErrorKind{"b_uses.lua": loading.KindRuntime}, failureKinds(report))
}

func TestLoader_ManagerBinding(t *testing.T) {
	bus := pubsub.NewWatermillBridge()
	defer bus.Close()

	received := make(chan pubsub.Message, 1)
	require.NoError(t, bus.Subscribe(context.Background(), quest.ScriptTopicPrefix+"wolves.spawned", func(ctx context.Context, msg pubsub.Message) error {
		received <- msg
		return nil
	}))

	manager := quest.NewManager(bus)
	manager.Register(context.Background(), quest.New("Intro"))

	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/quests", 0755))
	require.NoError(t, afero.WriteFile(fs, "/quests/wolves.lua", []byte(`
questManager.register_objective_kind("hunt")
questManager.publish("wolves.spawned", {count = 3})
local kinds = questManager.objective_kinds()

function quest()
  local q = Quest("Wolves")
  if questManager.has_quest("Intro") then
    q:require("Intro")
  end
  return q:add_objective(Objective{kind = kinds[1], target = "wolf", amount = 2})
end
`), 0644))

	l := New(manager, WithFs(fs))
	quests := l.LoadQuests(context.Background(), "/quests")

	wolves, ok := quests.Get("Wolves")
	require.True(t, ok)
	assert.Equal(t, []string{"Intro"}, wolves.Prerequisites)
	assert.Equal(t, "hunt", wolves.Objectives[0].Kind)
	assert.True(t, manager.HasObjectiveKind("hunt"))

	select {
	case msg := <-received:
		assert.Equal(t, "/quests/wolves.lua", msg.Source)
		var payload map[string]any
		require.NoError(t, json.Unmarshal(msg.Payload, &payload))
		assert.Equal(t, float64(3), payload["count"])
	case <-time.After(2 * time.Second):
		t.Fatal("script event was not delivered")
	}
}

func TestLoader_ManagerBindingIsReadOnly(t *testing.T) {
	l := newTestLoader(t, map[string]string{
		"assign.lua": "questManager.publish = 1\n" + questScript("X"),
		"meta.lua":   "setmetatable(questManager, {})\n" + questScript("Y"),
	})

	report := l.LoadReport(context.Background(), "/quests")
	assert.Equal(t, 0, report.Quests.Len())
	assert.Equal(t, map[string]loading.ErrorKind{
		"assign.lua": loading.KindRuntime,
		"meta.lua":   loading.KindRuntime,
	}, failureKinds(report))
}

func TestLoader_Timeout(t *testing.T) {
	l := newTestLoader(t, map[string]string{
		"loop.lua": `function quest() while true do end end`,
		"ok.lua":   questScript("OK"),
	}, WithTimeout(100*time.Millisecond))

	report := l.LoadReport(context.Background(), "/quests")

	assert.Equal(t, []string{"OK"}, report.Quests.Names())
	assert.Equal(t, map[string]loading.ErrorKind{"loop.lua": loading.KindTimeout}, failureKinds(report))
}

func TestLoader_LoadQuest(t *testing.T) {
	l := New(nil)

	q, err := l.LoadQuest(context.Background(), "inline.lua", strings.NewReader(questScript("Inline")))
	require.NoError(t, err)
	assert.Equal(t, "Inline", q.Name)
	assert.Equal(t, "inline.lua", q.Source)

	_, err = l.LoadQuest(context.Background(), "broken.lua", strings.NewReader(`x = 1`))
	require.Error(t, err)
	assert.Equal(t, loading.KindEntryPoint, loading.KindOf(err))

	_, err = l.LoadQuest(context.Background(), "nil.lua", nil)
	assert.Equal(t, loading.KindRead, loading.KindOf(err))
}

func TestLoader_SyntaxErrorKeepsAuthorLineNumbers(t *testing.T) {
	l := New(nil)

	_, err := l.LoadQuest(context.Background(), "lines.lua", strings.NewReader(questScript("L")+"\n\nlocal = 1\n"))
	require.Error(t, err)
	assert.Equal(t, loading.KindCompile, loading.KindOf(err))
	assert.Contains(t, err.Error(), "lines.lua:3:")
	assert.ErrorIs(t, err, lua.SyntaxError)
}

func TestLoader_ConcurrentLoads(t *testing.T) {
	files := map[string]string{"bad.lua": `function quest() return nil end`}
	for i := 0; i < 10; i++ {
		files[fmt.Sprintf("q%d.lua", i)] = questScript(fmt.Sprintf("Q%d", i))
	}
	l := newTestLoader(t, files)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			report := l.LoadReport(context.Background(), "/quests")
			assert.Equal(t, 10, report.Quests.Len())
			assert.Len(t, report.Failures, 1)
		}()
	}
	wg.Wait()
}

// busyPublisher records how many publishes are in flight at once.
type busyPublisher struct {
	active atomic.Int32
	peak   atomic.Int32
	calls  atomic.Int32
}

func (p *busyPublisher) Publish(ctx context.Context, msg pubsub.Message) error {
	n := p.active.Add(1)
	defer p.active.Add(-1)
	for {
		peak := p.peak.Load()
		if n <= peak || p.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	p.calls.Add(1)
	time.Sleep(2 * time.Millisecond)
	return nil
}

func (p *busyPublisher) Close() error {
	return nil
}

func TestLoader_EvaluatesOneScriptAtATime(t *testing.T) {
	pub := &busyPublisher{}
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/quests", 0755))
	for i := 0; i < 4; i++ {
		script := fmt.Sprintf("questManager.publish(\"busy\", {n = %d})\n%s", i, questScript(fmt.Sprintf("Q%d", i)))
		require.NoError(t, afero.WriteFile(fs, fmt.Sprintf("/quests/q%d.lua", i), []byte(script), 0644))
	}
	l := New(quest.NewManager(pub), WithFs(fs))

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				assert.Equal(t, 4, l.LoadQuests(context.Background(), "/quests").Len())
				return
			}
			src := fmt.Sprintf("questManager.publish(\"busy\")\n%s", questScript("Inline"))
			_, err := l.LoadQuest(context.Background(), "inline.lua", strings.NewReader(src))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(3*4+3), pub.calls.Load())
	assert.Equal(t, int32(1), pub.peak.Load())
}

func TestWithFs_IgnoresNil(t *testing.T) {
	l := New(nil, WithFs(nil))
	report := l.LoadReport(context.Background(), filepath.Join(t.TempDir(), "missing"))
	assert.Equal(t, 0, report.Quests.Len())
}
