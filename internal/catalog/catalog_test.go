package catalog

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nfrund/questy/internal/loading"
	"github.com/nfrund/questy/internal/loading/yamlloader"
	"github.com/nfrund/questy/internal/pubsub"
	"github.com/nfrund/questy/internal/quest"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// staticLoader returns the same quests for every directory.
type staticLoader struct {
	format  string
	quests  []string
	calls   atomic.Int32
	gate    chan struct{}
	entered chan struct{}
}

func (s *staticLoader) Format() string {
	return s.format
}

func (s *staticLoader) LoadQuests(ctx context.Context, dir string) quest.Set {
	s.calls.Add(1)
	if s.entered != nil {
		s.entered <- struct{}{}
	}
	if s.gate != nil {
		<-s.gate
	}
	set := quest.NewSet()
	for _, name := range s.quests {
		q := quest.New(name)
		q.Format = s.format
		set.Add(q)
	}
	return set
}

func yamlLoader(t *testing.T, files map[string]string) *yamlloader.Loader {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/quests", 0755))
	for name, content := range files {
		require.NoError(t, afero.WriteFile(fs, filepath.Join("/quests", name), []byte(content), 0644))
	}
	return yamlloader.New(yamlloader.WithFs(fs))
}

func TestNew_RejectsDuplicateFormats(t *testing.T) {
	_, err := New(nil, &staticLoader{format: "Tengo"}, &staticLoader{format: " tengo "})
	assert.Error(t, err)

	_, err = New(nil, &staticLoader{format: ""})
	assert.Error(t, err)

	_, err = New(nil, nil)
	assert.Error(t, err)

	c, err := New(nil, &staticLoader{format: "Tengo"}, &staticLoader{format: "Lua"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Tengo", "Lua"}, c.Formats())
}

func TestLoad_UnionFirstLoaderWins(t *testing.T) {
	first := &staticLoader{format: "First", quests: []string{"Shared", "OnlyFirst"}}
	second := &staticLoader{format: "Second", quests: []string{"shared", "OnlySecond"}}

	manager := quest.NewManager(nil)
	c, err := New(manager, first, second)
	require.NoError(t, err)

	snap, err := c.Load(context.Background(), "/quests")
	require.NoError(t, err)

	assert.Equal(t, 3, snap.Quests.Len())
	shared, ok := c.Quest("SHARED")
	require.True(t, ok)
	assert.Equal(t, "First", shared.Format)
	assert.Equal(t, "Shared", shared.Name)

	assert.Len(t, manager.Quests(), 3)
	_, ok = manager.Quest("OnlySecond")
	assert.True(t, ok)
}

func TestLoad_CollectsFailuresFromReporters(t *testing.T) {
	yaml := yamlLoader(t, map[string]string{
		"good.yaml": "name: Good\n",
		"bad.yaml":  "name: Bad\nnope: 1\n",
	})
	c, err := New(nil, yaml, &staticLoader{format: "Static", quests: []string{"Other"}})
	require.NoError(t, err)

	_, err = c.Load(context.Background(), "/quests")
	require.NoError(t, err)

	names := []string{}
	for _, q := range c.Quests() {
		names = append(names, q.Name)
	}
	assert.Equal(t, []string{"Good", "Other"}, names)

	failures := c.Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, loading.KindDecode, failures[0].Kind)
	assert.Equal(t, "/quests/bad.yaml", failures[0].Path)
}

func TestLoad_ReplacesPreviousRegistrations(t *testing.T) {
	loader := &staticLoader{format: "Static", quests: []string{"Old"}}
	manager := quest.NewManager(nil)
	c, err := New(manager, loader)
	require.NoError(t, err)

	_, err = c.Load(context.Background(), "/quests")
	require.NoError(t, err)

	loader.quests = []string{"New"}
	_, err = c.Reload(context.Background())
	require.NoError(t, err)

	_, ok := manager.Quest("Old")
	assert.False(t, ok)
	_, ok = c.Quest("New")
	assert.True(t, ok)
}

func TestLoad_Errors(t *testing.T) {
	c, err := New(nil, &staticLoader{format: "Static", quests: []string{"A"}})
	require.NoError(t, err)

	_, err = c.Load(context.Background(), "")
	assert.ErrorIs(t, err, ErrNoDirectory)

	_, err = c.Reload(context.Background())
	assert.ErrorIs(t, err, ErrNotLoaded)
	assert.Nil(t, c.Snapshot())
	assert.Empty(t, c.Quests())

	_, err = c.Load(context.Background(), "/quests")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.Load(ctx, "/elsewhere")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, "/quests", c.Dir())
}

func TestLoad_PublishesEvents(t *testing.T) {
	bus := pubsub.NewWatermillBridge()
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan quest.CatalogReloaded, 1)
	require.NoError(t, bus.Subscribe(ctx, quest.EventCatalogReloaded.Name(), func(ctx context.Context, msg pubsub.Message) error {
		payload, err := quest.EventCatalogReloaded.Decode(msg)
		if err != nil {
			return err
		}
		reloaded <- payload
		return nil
	}))

	failed := make(chan quest.LoadFailed, 1)
	require.NoError(t, bus.Subscribe(ctx, quest.EventLoadFailed.Name(), func(ctx context.Context, msg pubsub.Message) error {
		payload, err := quest.EventLoadFailed.Decode(msg)
		if err != nil {
			return err
		}
		failed <- payload
		return nil
	}))

	c, err := New(quest.NewManager(bus), yamlLoader(t, map[string]string{
		"a.yaml": "name: A\n",
		"b.yaml": "title: nameless\n",
	}))
	require.NoError(t, err)

	_, err = c.Load(ctx, "/quests")
	require.NoError(t, err)

	select {
	case payload := <-reloaded:
		assert.Equal(t, quest.CatalogReloaded{Dir: "/quests", Quests: 1, Failures: 1, Formats: []string{"YAML"}}, payload)
	case <-time.After(2 * time.Second):
		t.Fatal("reload event not delivered")
	}

	select {
	case payload := <-failed:
		assert.Equal(t, "/quests/b.yaml", payload.Path)
		assert.Equal(t, string(loading.KindInvalidQuest), payload.Kind)
	case <-time.After(2 * time.Second):
		t.Fatal("failure event not delivered")
	}
}

func TestReload_ConcurrentCallersShareOneLoad(t *testing.T) {
	loader := &staticLoader{format: "Static", quests: []string{"A"}}
	c, err := New(nil, loader)
	require.NoError(t, err)

	_, err = c.Load(context.Background(), "/quests")
	require.NoError(t, err)

	loader.gate = make(chan struct{})
	loader.entered = make(chan struct{}, 1)

	var wg sync.WaitGroup
	results := make(chan *Snapshot, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			snap, err := c.Reload(context.Background())
			assert.NoError(t, err)
			results <- snap
		}()
	}

	<-loader.entered
	time.Sleep(100 * time.Millisecond)
	close(loader.gate)
	wg.Wait()
	close(results)

	assert.Equal(t, int32(2), loader.calls.Load())
	var first *Snapshot
	for snap := range results {
		if first == nil {
			first = snap
		}
		assert.Same(t, first, snap)
	}
}

func TestWatch_ReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), []byte("name: A\n"), 0644))

	c, err := New(nil, yamlloader.New())
	require.NoError(t, err)
	c.Debounce = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, c.Watch(ctx, dir))
	_, ok := c.Quest("A")
	require.True(t, ok)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.yml"), []byte("name: B\n"), 0644))
	assert.Eventually(t, func() bool {
		_, ok := c.Quest("B")
		return ok
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, os.Remove(filepath.Join(dir, "a.yaml")))
	assert.Eventually(t, func() bool {
		_, ok := c.Quest("A")
		return !ok
	}, 5*time.Second, 20*time.Millisecond)
}

func TestWatch_IgnoresUnrelatedFiles(t *testing.T) {
	c, err := New(nil, yamlloader.New())
	require.NoError(t, err)

	assert.ErrorIs(t, c.Watch(context.Background(), ""), ErrNoDirectory)
	assert.Error(t, c.Watch(context.Background(), filepath.Join(t.TempDir(), "missing")))

	assert.ElementsMatch(t, []string{".yaml", ".yml"}, c.Suffixes())
}

func TestSuffixesByFormat(t *testing.T) {
	c, err := New(nil, yamlloader.New(), &staticLoader{format: "Static"})
	require.NoError(t, err)

	bySuffix := c.SuffixesByFormat()
	assert.ElementsMatch(t, []string{".yaml", ".yml"}, bySuffix["YAML"])
	suffixes, ok := bySuffix["Static"]
	assert.True(t, ok)
	assert.Nil(t, suffixes)
}
