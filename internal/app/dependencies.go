package app

import (
	"fmt"

	"github.com/nfrund/questy/internal/catalog"
	"github.com/nfrund/questy/internal/config"
	"github.com/nfrund/questy/internal/pubsub"
	"github.com/nfrund/questy/internal/quest"
	"github.com/spf13/afero"
)

// Dependencies holds the core services shared by the questy commands.
type Dependencies struct {
	Config  *config.Config
	Bus     *pubsub.WatermillBridge
	Manager *quest.Manager
	Catalog *catalog.Catalog
}

// New wires the event bus, the quest manager, one loader per configured
// format and the catalog over them. Quest files are read from fs.
func New(cfg *config.Config, fs afero.Fs) (*Dependencies, error) {
	bus := pubsub.NewWatermillBridge()
	manager := quest.NewManager(bus)

	loaders, err := NewLoaders(cfg, manager, fs)
	if err != nil {
		bus.Close()
		return nil, err
	}

	cat, err := catalog.New(manager, loaders...)
	if err != nil {
		bus.Close()
		return nil, fmt.Errorf("create catalog: %w", err)
	}

	return &Dependencies{
		Config:  cfg,
		Bus:     bus,
		Manager: manager,
		Catalog: cat,
	}, nil
}

// Close releases the event bus.
func (d *Dependencies) Close() error {
	return d.Bus.Close()
}
