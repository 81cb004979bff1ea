// Package tengoloader loads quests authored as Tengo scripts.
//
// Every file is evaluated in its own freshly built script environment that
// only sees the quest manager (bound as questManager), the domain
// constructors brought in by a fixed prelude, and a whitelist of stdlib
// modules. After the script body has run, a fixed epilogue calls the
// script's quest() function and the returned quest is collected.
package tengoloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/d5/tengo/v2"
	"github.com/nfrund/questy/internal/loading"
	"github.com/nfrund/questy/internal/quest"
	"github.com/spf13/afero"
)

const (
	// FormatName identifies the format in logs and in the host catalog.
	FormatName = "Tengo"

	// Extension selects the files this loader handles, compared case-insensitively.
	Extension = ".tengo"
)

// Loader implements loading.QuestLoader for Tengo quest scripts.
type Loader struct {
	manager   *quest.Manager
	fs        afero.Fs
	timeout   time.Duration
	maxAllocs int64

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

// WithMaxAllocs caps the number of objects a script may allocate. Zero or a
// negative value means no cap.
func WithMaxAllocs(n int64) Option {
	return func(l *Loader) {
		l.maxAllocs = n
	}
}

// New creates a loader handing manager to every script it evaluates. The
// manager is shared, never modified by the loader itself.
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

// LoadQuests loads every Tengo quest directly inside dir.
func (l *Loader) LoadQuests(ctx context.Context, dir string) quest.Set {
	return l.LoadReport(ctx, dir).Quests
}

// LoadReport loads every Tengo quest directly inside dir and reports the
// files that had to be skipped.
func (l *Loader) LoadReport(ctx context.Context, dir string) *loading.Report {
	return loading.Scan(ctx, l.fs, dir, FormatName, l.Suffixes(), l.evaluate)
}

// LoadQuest evaluates a single script read from r. Unlike LoadQuests it
// returns the failure to the caller as a *loading.LoadError.
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

// evaluate runs one script in a fresh environment and extracts its quest.
func (l *Loader) evaluate(ctx context.Context, path string, src []byte) (*quest.Quest, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	script := tengo.NewScript(wrap(src))
	script.SetImports(newModuleMap())
	if l.maxAllocs > 0 {
		script.SetMaxAllocs(l.maxAllocs)
	}
	if err := script.Add(ManagerBinding, newManagerBinding(ctx, l.manager, path)); err != nil {
		return nil, loading.NewLoadError(loading.KindRuntime, FormatName, path, "failed to bind quest manager", err)
	}

	compiled, err := script.Compile()
	if err != nil {
		if strings.Contains(err.Error(), fmt.Sprintf("unresolved reference '%s'", EntryPoint)) {
			return nil, loading.NewLoadError(loading.KindEntryPoint, FormatName, path,
				fmt.Sprintf("script does not define %s()", EntryPoint), err)
		}
		return nil, loading.NewLoadError(loading.KindCompile, FormatName, path, "failed to compile quest script", err)
	}

	runCtx := ctx
	if l.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	if err := compiled.RunContext(runCtx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, loading.NewLoadError(loading.KindTimeout, FormatName, path, "quest script did not finish", err)
		}
		return nil, loading.NewLoadError(loading.KindRuntime, FormatName, path, "quest script failed", err)
	}

	return extract(compiled, path)
}

// extract converts the entry point's return value into a validated quest.
func extract(compiled *tengo.Compiled, path string) (*quest.Quest, error) {
	var q *quest.Quest
	switch result := compiled.Get(resultVariable).Object().(type) {
	case *questObject:
		q = result.value.Clone()
	case *tengo.Error:
		return nil, loading.NewLoadError(loading.KindEntryPoint, FormatName, path,
			fmt.Sprintf("%s() returned an error", EntryPoint), errors.New(result.String()))
	default:
		return nil, loading.NewLoadError(loading.KindEntryPoint, FormatName, path,
			fmt.Sprintf("%s() returned %s, not a quest", EntryPoint, result.TypeName()), nil)
	}

	q.Normalize()
	if err := q.Validate(); err != nil {
		return nil, loading.NewLoadError(loading.KindInvalidQuest, FormatName, path, "quest failed validation", err)
	}
	q.Format = FormatName
	return q, nil
}
