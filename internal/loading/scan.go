package loading

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/nfrund/questy/internal/quest"
	"github.com/spf13/afero"
)

// DecodeFunc turns the content of one quest file into a quest.
type DecodeFunc func(ctx context.Context, path string, content []byte) (*quest.Quest, error)

// Report is the outcome of loading one directory with one loader.
type Report struct {
	Format   string
	Dir      string
	Quests   quest.Set
	Failures []*LoadError
	Duration time.Duration
}

// NewReport creates an empty report.
func NewReport(format, dir string) *Report {
	return &Report{
		Format: format,
		Dir:    dir,
		Quests: quest.NewSet(),
	}
}

// Fail records a skipped file.
func (r *Report) Fail(err *LoadError) {
	r.Failures = append(r.Failures, err)
	LogFailure(err)
}

// FailedPaths returns the paths of all skipped files.
func (r *Report) FailedPaths() []string {
	paths := make([]string, len(r.Failures))
	for i, f := range r.Failures {
		paths[i] = f.Path
	}
	return paths
}

// Scan lists dir, hands every regular file whose name ends with one of the
// suffixes to decode and aggregates the results. Files are read before
// decode is called, so loaders only need to guard decode itself. A dir that
// is empty, missing or not a directory produces an empty report.
func Scan(ctx context.Context, fs afero.Fs, dir, format string, suffixes []string, decode DecodeFunc) *Report {
	start := time.Now()
	report := NewReport(format, dir)
	defer func() {
		report.Duration = time.Since(start)
		LogScan(report)
	}()

	entries, ok := listDir(fs, dir, format)
	if !ok {
		return report
	}

	for _, entry := range entries {
		if entry.IsDir() || !MatchesAny(entry.Name(), suffixes) {
			continue
		}
		if err := ctx.Err(); err != nil {
			LogSystem(format, "Quest scan interrupted", "dir", dir, "error", err)
			break
		}

		path := filepath.Join(dir, entry.Name())
		content, err := afero.ReadFile(fs, path)
		if err != nil {
			report.Fail(NewLoadError(KindRead, format, path, "failed to read quest file", err))
			continue
		}

		q, err := decode(ctx, path, content)
		if err != nil {
			report.Fail(AsLoadError(err, format, path))
			continue
		}
		if q == nil {
			report.Fail(NewLoadError(KindEntryPoint, format, path, "no quest produced", nil))
			continue
		}

		if q.Format == "" {
			q.Format = format
		}
		if q.Source == "" {
			q.Source = path
		}
		if !report.Quests.Add(q) {
			LogSystem(format, "Duplicate quest ignored", "quest", q.Name, "path", path)
			continue
		}
		LogLoaded(q)
	}

	return report
}

// listDir returns the entries of dir in listing order. Any problem with dir
// is logged and reported as !ok.
func listDir(fs afero.Fs, dir, format string) ([]os.FileInfo, bool) {
	if dir == "" {
		LogSystem(format, "No quest directory given")
		return nil, false
	}
	info, err := fs.Stat(dir)
	if err != nil {
		LogSystem(format, "Quest directory unavailable", "dir", dir, "error", err)
		return nil, false
	}
	if !info.IsDir() {
		LogSystem(format, "Quest path is not a directory", "dir", dir)
		return nil, false
	}

	f, err := fs.Open(dir)
	if err != nil {
		LogSystem(format, "Quest directory unreadable", "dir", dir, "error", err)
		return nil, false
	}
	defer f.Close()

	entries, err := f.Readdir(-1)
	if err != nil {
		LogSystem(format, "Quest directory listing failed", "dir", dir, "error", fmt.Errorf("readdir: %w", err))
		return nil, false
	}
	return entries, true
}
