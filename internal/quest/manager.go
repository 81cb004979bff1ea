package quest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/nfrund/questy/internal/pubsub"
)

// Manager keeps track of registered quests and gives quest scripts a way to
// reach the rest of the host (events, objective kinds). It is shared by all
// loaders and is safe for concurrent use.
type Manager struct {
	mu             sync.RWMutex
	quests         map[string]*Quest
	objectiveKinds map[string]struct{}
	publisher      pubsub.Publisher
}

// NewManager creates a manager publishing events on pub. A nil publisher
// disables events.
func NewManager(pub pubsub.Publisher) *Manager {
	return &Manager{
		quests:         make(map[string]*Quest),
		objectiveKinds: make(map[string]struct{}),
		publisher:      pub,
	}
}

// Register records q as an active quest. An already registered quest with
// the same key is replaced. It reports whether the quest is new.
func (m *Manager) Register(ctx context.Context, q *Quest) bool {
	if q == nil {
		return false
	}
	m.mu.Lock()
	_, existed := m.quests[q.Key()]
	m.quests[q.Key()] = q
	m.mu.Unlock()

	if m.publisher != nil {
		payload := Registered{Name: q.Name, Format: q.Format, Source: q.Source}
		if err := pubsub.Publish(ctx, m.publisher, EventRegistered, q.Format, payload); err != nil {
			slog.Warn("Failed to publish quest registration", "quest", q.Name, "error", err)
		}
	}
	return !existed
}

// Reset drops every registered quest. Objective kinds are kept.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quests = make(map[string]*Quest)
}

// Quest returns the registered quest with the given name.
func (m *Manager) Quest(name string) (*Quest, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q, ok := m.quests[KeyOf(name)]
	return q, ok
}

// Quests returns all registered quests ordered by key.
func (m *Manager) Quests() []*Quest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Quest, 0, len(m.quests))
	for _, q := range m.quests {
		out = append(out, q)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// RegisterObjectiveKind makes an objective kind known to the host.
func (m *Manager) RegisterObjectiveKind(kind string) error {
	kind = strings.TrimSpace(kind)
	if kind == "" {
		return fmt.Errorf("objective kind must not be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objectiveKinds[strings.ToLower(kind)] = struct{}{}
	return nil
}

// HasObjectiveKind reports whether kind was registered.
func (m *Manager) HasObjectiveKind(kind string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.objectiveKinds[strings.ToLower(strings.TrimSpace(kind))]
	return ok
}

// ObjectiveKinds returns the registered objective kinds, sorted.
func (m *Manager) ObjectiveKinds() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.objectiveKinds))
	for k := range m.objectiveKinds {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Publish sends a script-originated event. The topic is namespaced under
// ScriptTopicPrefix and the payload is encoded as JSON.
func (m *Manager) Publish(ctx context.Context, source, topic string, payload any) error {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return fmt.Errorf("event topic must not be empty")
	}
	if m.publisher == nil {
		slog.Debug("Dropping script event, no publisher configured", "topic", topic, "source", source)
		return nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload for %s: %w", topic, err)
	}
	return m.publisher.Publish(ctx, pubsub.Message{
		Topic:   ScriptTopicPrefix + topic,
		Source:  source,
		Payload: data,
	})
}

// ReportFailure publishes a load failure event.
func (m *Manager) ReportFailure(ctx context.Context, failure LoadFailed) {
	if m.publisher == nil {
		return
	}
	if err := pubsub.Publish(ctx, m.publisher, EventLoadFailed, failure.Format, failure); err != nil {
		slog.Warn("Failed to publish load failure", "path", failure.Path, "error", err)
	}
}

// ReportReload publishes a catalog reload event.
func (m *Manager) ReportReload(ctx context.Context, reloaded CatalogReloaded) {
	if m.publisher == nil {
		return
	}
	if err := pubsub.Publish(ctx, m.publisher, EventCatalogReloaded, "catalog", reloaded); err != nil {
		slog.Warn("Failed to publish catalog reload", "dir", reloaded.Dir, "error", err)
	}
}
