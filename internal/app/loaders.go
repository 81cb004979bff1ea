package app

import (
	"fmt"
	"sort"

	"github.com/nfrund/questy/internal/config"
	"github.com/nfrund/questy/internal/loading"
	"github.com/nfrund/questy/internal/loading/lualoader"
	"github.com/nfrund/questy/internal/loading/tengoloader"
	"github.com/nfrund/questy/internal/loading/yamlloader"
	"github.com/nfrund/questy/internal/quest"
	"github.com/spf13/afero"
)

type loaderFactory func(cfg *config.Config, manager *quest.Manager, fs afero.Fs) loading.QuestLoader

// factories maps the format names accepted in QUESTY_FORMATS to loaders.
var factories = map[string]loaderFactory{
	"tengo": func(cfg *config.Config, manager *quest.Manager, fs afero.Fs) loading.QuestLoader {
		return tengoloader.New(manager,
			tengoloader.WithFs(fs),
			tengoloader.WithTimeout(cfg.ScriptTimeout),
			tengoloader.WithMaxAllocs(cfg.ScriptMaxAllocs),
		)
	},
	"lua": func(cfg *config.Config, manager *quest.Manager, fs afero.Fs) loading.QuestLoader {
		return lualoader.New(manager,
			lualoader.WithFs(fs),
			lualoader.WithTimeout(cfg.ScriptTimeout),
		)
	},
	"yaml": func(_ *config.Config, _ *quest.Manager, fs afero.Fs) loading.QuestLoader {
		return yamlloader.New(yamlloader.WithFs(fs))
	},
}

// KnownFormats returns the format names NewLoaders accepts.
func KnownFormats() []string {
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewLoaders creates one loader per format in cfg.Formats, in that order.
func NewLoaders(cfg *config.Config, manager *quest.Manager, fs afero.Fs) ([]loading.QuestLoader, error) {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	loaders := make([]loading.QuestLoader, 0, len(cfg.Formats))
	for _, name := range cfg.Formats {
		factory, ok := factories[quest.KeyOf(name)]
		if !ok {
			return nil, fmt.Errorf("unknown quest format %q (known: %v)", name, KnownFormats())
		}
		loaders = append(loaders, factory(cfg, manager, fs))
	}
	return loaders, nil
}
