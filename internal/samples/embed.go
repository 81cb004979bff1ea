// Package samples ships a small set of example quests, one per authoring
// format, and can write them out as a starting point for a quest directory.
package samples

import (
	"embed"
	"io/fs"
	"sort"
)

//go:embed quests/*
var embedded embed.FS

// Dir is the directory inside FS holding the sample quests.
const Dir = "quests"

// FS returns the embedded sample quests rooted at Dir.
func FS() fs.FS {
	sub, err := fs.Sub(embedded, Dir)
	if err != nil {
		panic(err)
	}
	return sub
}

// Names returns the file names of the sample quests, sorted.
func Names() []string {
	entries, err := fs.ReadDir(embedded, Dir)
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names
}
