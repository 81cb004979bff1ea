// Package lualoader loads quests authored as Lua scripts.
//
// Each file runs in a fresh Lua state with a restricted standard library,
// the quest constructors and the questManager table. After the chunk has
// run, its global quest() function is called and must return a Quest.
package lualoader

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/Shopify/go-lua"
	"github.com/nfrund/questy/internal/loading"
	"github.com/nfrund/questy/internal/quest"
	"github.com/spf13/afero"
)

const (
	// FormatName identifies the format in logs and in the host catalog.
	FormatName = "Lua"

	// Extension selects the files this loader handles, compared case-insensitively.
	Extension = ".lua"

	// EntryPoint is the zero-argument global function every quest script defines.
	EntryPoint = "quest"

	// ManagerBinding is the global name of the injected quest manager table.
	ManagerBinding = "questManager"

	// DomainModule is the global table holding the quest constructors.
	DomainModule = "questy"

	// hookInterval is the number of instructions between cancellation checks.
	hookInterval = 1000
)

// prelude stays on the first line so error positions match the author's file.
const prelude = `local Quest, Objective, Reward = questy.Quest, questy.Objective, questy.Reward; `

// Loader implements loading.QuestLoader for Lua quest scripts.
type Loader struct {
	manager *quest.Manager
	fs      afero.Fs
	timeout time.Duration

	// mu serializes script evaluation; only one script runs per loader at a time.
	mu sync.Mutex
}

// Option configures a Loader.
type Option func(*Loader)

// WithFs makes the loader read quest files from fs instead of the OS
// filesystem. A nil fs is ignored.
func WithFs(fs afero.Fs) Option {
	return func(l *Loader) {
		if fs != nil {
			l.fs = fs
		}
	}
}

// WithTimeout bounds the run time of each script. Zero means no bound.
func WithTimeout(d time.Duration) Option {
	return func(l *Loader) {
		l.timeout = d
	}
}

// New creates a loader handing manager to every script it evaluates. A nil
// manager is replaced by one without a publisher.
func New(manager *quest.Manager, opts ...Option) *Loader {
	if manager == nil {
		manager = quest.NewManager(nil)
	}
	l := &Loader{
		manager: manager,
		fs:      afero.NewOsFs(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Format returns the name of the authoring format.
func (l *Loader) Format() string {
	return FormatName
}

// Suffixes returns the file name suffixes this loader picks up.
func (l *Loader) Suffixes() []string {
	return []string{Extension}
}

// LoadQuests loads every Lua quest directly inside dir.
func (l *Loader) LoadQuests(ctx context.Context, dir string) quest.Set {
	return l.LoadReport(ctx, dir).Quests
}

// LoadReport loads every Lua quest directly inside dir and reports the files
// that had to be skipped.
func (l *Loader) LoadReport(ctx context.Context, dir string) *loading.Report {
	return loading.Scan(ctx, l.fs, dir, FormatName, l.Suffixes(), l.evaluate)
}

// LoadQuest evaluates a single script read from r and returns its failure,
// if any, as a *loading.LoadError.
func (l *Loader) LoadQuest(ctx context.Context, name string, r io.Reader) (*quest.Quest, error) {
	if r == nil {
		return nil, loading.NewLoadError(loading.KindRead, FormatName, name, "no script reader given", nil)
	}
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, loading.NewLoadError(loading.KindRead, FormatName, name, "failed to read quest script", err)
	}
	q, err := l.evaluate(ctx, name, src)
	if err != nil {
		return nil, err
	}
	if q.Source == "" {
		q.Source = name
	}
	return q, nil
}

// evaluate runs one script in a fresh state and extracts its quest.
func (l *Loader) evaluate(ctx context.Context, path string, src []byte) (q *quest.Quest, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	runCtx := ctx
	if l.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			q = nil
			err = loading.NewLoadError(loading.KindRuntime, FormatName, path, "quest script panicked", fmt.Errorf("%v", r))
		}
	}()

	state := newState(runCtx, l.manager, path)

	if err := lua.LoadBuffer(state, prelude+string(src)+"\n", "@"+path, "t"); err != nil {
		return nil, loading.NewLoadError(loading.KindCompile, FormatName, path, "failed to compile quest script", stackError(state, err))
	}
	if err := state.ProtectedCall(0, 0, 0); err != nil {
		return nil, runFailure(runCtx, path, err)
	}

	state.Global(EntryPoint)
	if !state.IsFunction(-1) {
		found := lua.TypeNameOf(state, -1)
		state.Pop(1)
		return nil, loading.NewLoadError(loading.KindEntryPoint, FormatName, path,
			fmt.Sprintf("script does not define %s(), found %s", EntryPoint, found), nil)
	}
	if err := state.ProtectedCall(0, 1, 0); err != nil {
		return nil, runFailure(runCtx, path, err)
	}

	found := lua.TypeNameOf(state, -1)
	result, ok := state.ToUserData(-1).(*quest.Quest)
	state.Pop(1)
	if !ok || result == nil {
		if found == "userdata" {
			found = "a non-quest userdata"
		}
		return nil, loading.NewLoadError(loading.KindEntryPoint, FormatName, path,
			fmt.Sprintf("%s() returned %s, not a quest", EntryPoint, found), nil)
	}

	q = result.Clone()
	q.Normalize()
	if err := q.Validate(); err != nil {
		return nil, loading.NewLoadError(loading.KindInvalidQuest, FormatName, path, "quest failed validation", err)
	}
	q.Format = FormatName
	return q, nil
}

// newState builds the isolated environment one script runs in.
func newState(ctx context.Context, m *quest.Manager, source string) *lua.State {
	state := lua.NewState()
	openLibraries(state)
	registerTypes(state)
	registerDomain(state)
	registerManager(ctx, state, m, source)

	if ctx.Done() != nil {
		lua.SetDebugHook(state, func(l *lua.State, _ lua.Debug) {
			if err := ctx.Err(); err != nil {
				lua.Errorf(l, "quest script interrupted: %s", err.Error())
			}
		}, lua.MaskCount, hookInterval)
	}
	return state
}

// stackError attaches the message go-lua leaves on the stack to err, which
// for load failures is only a sentinel.
func stackError(l *lua.State, err error) error {
	msg, ok := l.ToString(-1)
	if !ok || msg == "" {
		return err
	}
	l.Pop(1)
	return fmt.Errorf("%w: %s", err, msg)
}

func runFailure(ctx context.Context, path string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return loading.NewLoadError(loading.KindTimeout, FormatName, path, "quest script did not finish",
			fmt.Errorf("%w: %s", ctxErr, strings.TrimSpace(err.Error())))
	}
	return loading.NewLoadError(loading.KindRuntime, FormatName, path, "quest script failed", err)
}
