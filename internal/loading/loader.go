// Package loading defines the contract every quest authoring format
// implements, plus the discovery helpers shared by the implementations.
package loading

import (
	"context"
	"strings"

	"github.com/nfrund/questy/internal/quest"
	"golang.org/x/text/cases"
)

// QuestLoader turns a directory of quest files of one authoring format into
// quests. Hosts hold one loader per format and may call LoadQuests on all of
// them with the same directory.
type QuestLoader interface {
	// LoadQuests loads every quest of this loader's format found directly in
	// dir. It never fails: an unusable dir yields an empty set, and files
	// that cannot be loaded are logged and left out of the result.
	LoadQuests(ctx context.Context, dir string) quest.Set

	// Format returns the human readable name of the authoring format,
	// for example "Tengo".
	Format() string
}

// Reporter is implemented by loaders that can describe which files they
// skipped and why.
type Reporter interface {
	LoadReport(ctx context.Context, dir string) *Report
}

// Suffixed is implemented by loaders that select files by name suffix.
type Suffixed interface {
	Suffixes() []string
}

// HasSuffixFold reports whether name ends with suffix, ignoring case.
func HasSuffixFold(name, suffix string) bool {
	fold := cases.Fold()
	return strings.HasSuffix(fold.String(name), fold.String(suffix))
}

// MatchesAny reports whether name ends with any of the suffixes, ignoring case.
func MatchesAny(name string, suffixes []string) bool {
	for _, s := range suffixes {
		if HasSuffixFold(name, s) {
			return true
		}
	}
	return false
}
