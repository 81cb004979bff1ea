package samples

import (
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// Extractor writes the embedded sample quests to a directory.
type Extractor struct {
	fs    afero.Fs
	out   io.Writer
	force bool
}

// NewExtractor creates a new Extractor writing to fsys and printing its
// progress to out. With force set, an existing target directory is reused
// and sample files in it are overwritten.
func NewExtractor(fsys afero.Fs, out io.Writer, force bool) *Extractor {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	if out == nil {
		out = io.Discard
	}
	return &Extractor{fs: fsys, out: out, force: force}
}

// Extract writes every sample quest into targetDir and returns the paths
// it wrote.
func (e *Extractor) Extract(targetDir string) ([]string, error) {
	fmt.Fprintf(e.out, "Questy Sample Extractor\n")
	fmt.Fprintf(e.out, "=======================\n\n")
	fmt.Fprintf(e.out, "Target directory: %s\n", targetDir)
	fmt.Fprintf(e.out, "Force overwrite: %v\n\n", e.force)

	if err := e.prepareTargetDirectory(targetDir); err != nil {
		return nil, err
	}

	slog.Info("Extracting sample quests", "dir", targetDir)
	src := FS()
	var written []string
	for _, name := range Names() {
		content, err := fs.ReadFile(src, name)
		if err != nil {
			return written, fmt.Errorf("failed to read sample %s: %w", name, err)
		}
		path := filepath.Join(targetDir, name)
		if err := afero.WriteFile(e.fs, path, content, 0644); err != nil {
			return written, fmt.Errorf("failed to write %s: %w", path, err)
		}
		written = append(written, path)
	}

	e.showExtractionSummary(targetDir)

	fmt.Fprintf(e.out, "\nSample extraction completed successfully!\n")
	fmt.Fprintf(e.out, "\nNext steps:\n")
	fmt.Fprintf(e.out, "1. Review the extracted quests in: %s\n", targetDir)
	fmt.Fprintf(e.out, "2. Run `questy load --dir %s` to check they load\n", targetDir)
	fmt.Fprintf(e.out, "3. Run `questy watch --dir %s` and edit them to see hot reloads\n\n", targetDir)

	return written, nil
}

// prepareTargetDirectory ensures the target directory exists and is ready for extraction.
func (e *Extractor) prepareTargetDirectory(targetDir string) error {
	info, err := e.fs.Stat(targetDir)
	switch {
	case err == nil:
		if !info.IsDir() {
			return fmt.Errorf("target %s is not a directory", targetDir)
		}
		if !e.force {
			fmt.Fprintf(e.out, "Target directory '%s' already exists.\n", targetDir)
			fmt.Fprintf(e.out, "Use --force to overwrite existing files, or choose a different directory.\n")
			return fmt.Errorf("target directory exists and --force not specified")
		}
		fmt.Fprintf(e.out, "Target directory exists, will overwrite files due to --force flag\n")
	case os.IsNotExist(err):
		if err := e.fs.MkdirAll(targetDir, 0755); err != nil {
			return fmt.Errorf("failed to create target directory: %w", err)
		}
		fmt.Fprintf(e.out, "Created target directory: %s\n", targetDir)
	default:
		return fmt.Errorf("failed to check target directory: %w", err)
	}
	return nil
}

// showExtractionSummary lists the files now present in targetDir.
func (e *Extractor) showExtractionSummary(targetDir string) {
	fmt.Fprintf(e.out, "\nExtraction Summary:\n")
	fmt.Fprintf(e.out, "===================\n")

	err := afero.Walk(e.fs, targetDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			rel, _ := filepath.Rel(targetDir, path)
			fmt.Fprintf(e.out, "  %s\n", rel)
		}
		return nil
	})
	if err != nil {
		slog.Warn("Failed to list extracted samples", "dir", targetDir, "error", err)
	}
}
