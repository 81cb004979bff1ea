// Package catalog is the host side of quest loading. It holds one loader per
// authoring format, merges what they load from a directory and keeps the
// result available for readers until the next load.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nfrund/questy/internal/loading"
	"github.com/nfrund/questy/internal/quest"
	"golang.org/x/sync/singleflight"
)

// DefaultDebounce is how long Watch waits for the filesystem to settle.
const DefaultDebounce = 250 * time.Millisecond

var (
	ErrNoDirectory = errors.New("no quest directory given")
	ErrNotLoaded   = errors.New("catalog has not been loaded yet")
)

// Snapshot is the outcome of one catalog load. It is never modified after
// it has been published.
type Snapshot struct {
	Dir      string
	Quests   quest.Set
	Failures []*loading.LoadError
	LoadedAt time.Time
	Duration time.Duration
}

// Catalog merges the quests of several loaders.
type Catalog struct {
	manager *quest.Manager
	loaders []loading.QuestLoader

	// Debounce is used by Watch. Zero means DefaultDebounce.
	Debounce time.Duration

	loadMu sync.Mutex
	group  singleflight.Group

	mu       sync.RWMutex
	snapshot *Snapshot
}

// New creates a catalog over loaders. Loaders are consulted in the given
// order, and on an identity clash the quest of the earlier loader wins.
// Format names must be unique.
func New(manager *quest.Manager, loaders ...loading.QuestLoader) (*Catalog, error) {
	if manager == nil {
		manager = quest.NewManager(nil)
	}
	seen := make(map[string]struct{}, len(loaders))
	for i, l := range loaders {
		if l == nil {
			return nil, fmt.Errorf("loader %d is nil", i)
		}
		key := quest.KeyOf(l.Format())
		if key == "" {
			return nil, fmt.Errorf("loader %d has no format name", i)
		}
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("duplicate loader for format %q", l.Format())
		}
		seen[key] = struct{}{}
	}
	return &Catalog{
		manager: manager,
		loaders: append([]loading.QuestLoader(nil), loaders...),
	}, nil
}

// Manager returns the manager quests are registered with.
func (c *Catalog) Manager() *quest.Manager {
	return c.manager
}

// Formats returns the format names in registration order.
func (c *Catalog) Formats() []string {
	out := make([]string, len(c.loaders))
	for i, l := range c.loaders {
		out[i] = l.Format()
	}
	return out
}

// Suffixes returns the file suffixes of every loader that declares them.
func (c *Catalog) Suffixes() []string {
	var out []string
	for _, l := range c.loaders {
		if s, ok := l.(loading.Suffixed); ok {
			out = append(out, s.Suffixes()...)
		}
	}
	return out
}

// SuffixesByFormat maps each format name to the suffixes its loader declares.
// Loaders that declare none map to nil.
func (c *Catalog) SuffixesByFormat() map[string][]string {
	out := make(map[string][]string, len(c.loaders))
	for _, l := range c.loaders {
		var suffixes []string
		if s, ok := l.(loading.Suffixed); ok {
			suffixes = s.Suffixes()
		}
		out[l.Format()] = suffixes
	}
	return out
}

// Load runs every loader over dir, replaces the current snapshot and
// registers the merged quests with the manager. A cancelled load leaves the
// previous snapshot in place.
func (c *Catalog) Load(ctx context.Context, dir string) (*Snapshot, error) {
	if dir == "" {
		return nil, ErrNoDirectory
	}

	c.loadMu.Lock()
	defer c.loadMu.Unlock()

	start := time.Now()
	snap := &Snapshot{Dir: dir, Quests: quest.NewSet(), LoadedAt: start}

	for _, l := range c.loaders {
		var set quest.Set
		if r, ok := l.(loading.Reporter); ok {
			report := r.LoadReport(ctx, dir)
			set = report.Quests
			snap.Failures = append(snap.Failures, report.Failures...)
		} else {
			set = l.LoadQuests(ctx, dir)
		}

		for _, dup := range snap.Quests.Union(set) {
			kept, _ := snap.Quests.Get(dup.Name)
			slog.Warn("Quest defined more than once, keeping the first",
				"quest", dup.Name,
				"kept_format", kept.Format,
				"kept_source", kept.Source,
				"ignored_format", dup.Format,
				"ignored_source", dup.Source,
			)
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("load %s: %w", dir, err)
	}
	snap.Duration = time.Since(start)

	c.mu.Lock()
	c.snapshot = snap
	c.mu.Unlock()

	c.publish(ctx, snap)

	slog.Info("Quest catalog loaded",
		"dir", dir,
		"quests", snap.Quests.Len(),
		"failures", len(snap.Failures),
		"formats", c.Formats(),
		"duration", snap.Duration,
	)
	return snap, nil
}

func (c *Catalog) publish(ctx context.Context, snap *Snapshot) {
	c.manager.Reset()
	for _, q := range snap.Quests.Sorted() {
		c.manager.Register(ctx, q)
	}
	for _, f := range snap.Failures {
		c.manager.ReportFailure(ctx, quest.LoadFailed{
			Format:  f.Format,
			Path:    f.Path,
			Kind:    string(f.Kind),
			Message: f.Error(),
		})
	}
	c.manager.ReportReload(ctx, quest.CatalogReloaded{
		Dir:      snap.Dir,
		Quests:   snap.Quests.Len(),
		Failures: len(snap.Failures),
		Formats:  c.Formats(),
	})
}

// Reload loads the directory of the last successful load again. Callers
// arriving while a reload is running share its result.
func (c *Catalog) Reload(ctx context.Context) (*Snapshot, error) {
	dir := c.Dir()
	if dir == "" {
		return nil, ErrNotLoaded
	}
	return c.reload(ctx, dir)
}

func (c *Catalog) reload(ctx context.Context, dir string) (*Snapshot, error) {
	v, err, shared := c.group.Do(dir, func() (any, error) {
		return c.Load(ctx, dir)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		slog.Debug("Quest catalog reload shared", "dir", dir)
	}
	return v.(*Snapshot), nil
}

// Snapshot returns the current snapshot, or nil before the first load.
func (c *Catalog) Snapshot() *Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot
}

// Dir returns the directory of the current snapshot.
func (c *Catalog) Dir() string {
	if snap := c.Snapshot(); snap != nil {
		return snap.Dir
	}
	return ""
}

// Quests returns the loaded quests ordered by identity.
func (c *Catalog) Quests() []*quest.Quest {
	snap := c.Snapshot()
	if snap == nil {
		return nil
	}
	return snap.Quests.Sorted()
}

// Quest looks a loaded quest up by name.
func (c *Catalog) Quest(name string) (*quest.Quest, bool) {
	snap := c.Snapshot()
	if snap == nil {
		return nil, false
	}
	return snap.Quests.Get(name)
}

// Failures returns the files skipped by the last load.
func (c *Catalog) Failures() []*loading.LoadError {
	snap := c.Snapshot()
	if snap == nil {
		return nil
	}
	return append([]*loading.LoadError(nil), snap.Failures...)
}
