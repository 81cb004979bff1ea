package quest

import "github.com/nfrund/questy/internal/pubsub"

// ScriptTopicPrefix is prepended to every topic a script publishes on.
const ScriptTopicPrefix = "quest.script."

// Registered is published when the manager accepts a quest.
type Registered struct {
	Name   string `json:"name"`
	Format string `json:"format,omitempty"`
	Source string `json:"source,omitempty"`
}

// LoadFailed is published for every file a loader had to skip.
type LoadFailed struct {
	Format  string `json:"format"`
	Path    string `json:"path"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// CatalogReloaded is published after the host catalog finished a load.
type CatalogReloaded struct {
	Dir      string   `json:"dir"`
	Quests   int      `json:"quests"`
	Failures int      `json:"failures"`
	Formats  []string `json:"formats"`
}

var (
	EventRegistered      = pubsub.NewEvent[Registered]("quest.registered", "A quest was registered with the manager")
	EventLoadFailed      = pubsub.NewEvent[LoadFailed]("quest.load_failed", "A quest file could not be loaded")
	EventCatalogReloaded = pubsub.NewEvent[CatalogReloaded]("quest.catalog.reloaded", "The quest catalog was (re)loaded")
)
