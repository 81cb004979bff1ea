// Package yamlloader loads declarative quests from YAML documents, one
// quest per file.
package yamlloader

import (
	"bytes"
	"context"
	"errors"
	"io"

	"github.com/nfrund/questy/internal/loading"
	"github.com/nfrund/questy/internal/quest"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

const FormatName = "YAML"

var extensions = []string{".yaml", ".yml"}

// Loader implements loading.QuestLoader for YAML quest files. It holds no
// evaluation state, so unlike the script loaders it needs no lock.
type Loader struct {
	fs afero.Fs
}

type Option func(*Loader)

// WithFs makes the loader read quest files from fs. A nil fs is ignored.
func WithFs(fs afero.Fs) Option {
	return func(l *Loader) {
		if fs != nil {
			l.fs = fs
		}
	}
}

func New(opts ...Option) *Loader {
	l := &Loader{fs: afero.NewOsFs()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Loader) Format() string {
	return FormatName
}

func (l *Loader) Suffixes() []string {
	return append([]string(nil), extensions...)
}

func (l *Loader) LoadQuests(ctx context.Context, dir string) quest.Set {
	return l.LoadReport(ctx, dir).Quests
}

func (l *Loader) LoadReport(ctx context.Context, dir string) *loading.Report {
	return loading.Scan(ctx, l.fs, dir, FormatName, extensions, decode)
}

// LoadQuest decodes a single document read from r.
func (l *Loader) LoadQuest(ctx context.Context, name string, r io.Reader) (*quest.Quest, error) {
	if r == nil {
		return nil, loading.NewLoadError(loading.KindRead, FormatName, name, "no quest reader given", nil)
	}
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, loading.NewLoadError(loading.KindRead, FormatName, name, "failed to read quest file", err)
	}
	q, err := decode(ctx, name, content)
	if err != nil {
		return nil, err
	}
	q.Source = name
	return q, nil
}

func decode(_ context.Context, path string, content []byte) (*quest.Quest, error) {
	dec := yaml.NewDecoder(bytes.NewReader(content))
	dec.KnownFields(true)

	var q quest.Quest
	if err := dec.Decode(&q); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, loading.NewLoadError(loading.KindDecode, FormatName, path, "file holds no quest document", nil)
		}
		return nil, loading.NewLoadError(loading.KindDecode, FormatName, path, "failed to decode quest", err)
	}

	var extra yaml.Node
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return nil, loading.NewLoadError(loading.KindDecode, FormatName, path, "file holds more than one document", err)
	}

	q.Normalize()
	if err := q.Validate(); err != nil {
		return nil, loading.NewLoadError(loading.KindInvalidQuest, FormatName, path, "quest failed validation", err)
	}
	q.Format = FormatName
	return &q, nil
}

// Marshal renders q as a YAML quest document this loader can read back.
func Marshal(q *quest.Quest) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(q); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
