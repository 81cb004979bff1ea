package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/nfrund/questy/internal/catalog"
	"github.com/nfrund/questy/internal/loading/yamlloader"
	"github.com/nfrund/questy/internal/quest"
	"github.com/nfrund/questy/internal/server"
)

// Output formats accepted by the --output flags.
const (
	OutputTable = "table"
	OutputJSON  = "json"
	OutputYAML  = "yaml"
)

// LoadDisplay is the JSON form of a catalog load.
type LoadDisplay struct {
	Dir        string                   `json:"dir"`
	Quests     []*quest.Quest           `json:"quests"`
	Failures   []server.FailureResponse `json:"failures"`
	Count      int                      `json:"count"`
	DurationMS int64                    `json:"duration_ms"`
}

// ValidOutput reports whether format is one of the given output formats.
func ValidOutput(format string, allowed ...string) error {
	for _, a := range allowed {
		if format == a {
			return nil
		}
	}
	return fmt.Errorf("invalid output format %q, valid formats: %s", format, strings.Join(allowed, ", "))
}

// FilterByFormat keeps the quests loaded by the given authoring format. An
// empty format keeps everything.
func FilterByFormat(quests []*quest.Quest, format string) []*quest.Quest {
	if format == "" {
		return quests
	}
	out := make([]*quest.Quest, 0, len(quests))
	for _, q := range quests {
		if quest.KeyOf(q.Format) == quest.KeyOf(format) {
			out = append(out, q)
		}
	}
	return out
}

// DisplayLoadTable writes the quests of snap and the files that failed to load.
func DisplayLoadTable(w io.Writer, snap *catalog.Snapshot, quests []*quest.Quest) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintln(tw, "NAME\tFORMAT\tOBJECTIVES\tREWARDS\tSOURCE")
	fmt.Fprintln(tw, "----\t------\t----------\t-------\t------")

	if len(quests) == 0 {
		fmt.Fprintln(tw, "No quests found")
	} else {
		for _, q := range quests {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n",
				truncateString(q.Name, 40),
				q.Format,
				len(q.Objectives),
				len(q.Rewards),
				q.Source)
		}
	}
	tw.Flush()

	if len(snap.Failures) > 0 {
		fmt.Fprintf(w, "\n%d file(s) failed to load:\n\n", len(snap.Failures))
		tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "PATH\tFORMAT\tKIND\tERROR")
		fmt.Fprintln(tw, "----\t------\t----\t-----")
		for _, f := range snap.Failures {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", f.Path, f.Format, f.Kind, truncateString(f.Error(), 80))
		}
		tw.Flush()
	}

	fmt.Fprintf(w, "\nLoaded %d quest(s) from %s in %s\n", len(quests), snap.Dir, snap.Duration.Round(time.Microsecond))
}

// DisplayLoadJSON writes the load as one JSON document.
func DisplayLoadJSON(w io.Writer, snap *catalog.Snapshot, quests []*quest.Quest) error {
	failures := make([]server.FailureResponse, len(snap.Failures))
	for i, f := range snap.Failures {
		failures[i] = server.NewFailureResponse(f)
	}
	if quests == nil {
		quests = []*quest.Quest{}
	}

	output := LoadDisplay{
		Dir:        snap.Dir,
		Quests:     quests,
		Failures:   failures,
		Count:      len(quests),
		DurationMS: snap.Duration.Milliseconds(),
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(output)
}

// DisplayQuestDetails writes a single quest in the requested format.
func DisplayQuestDetails(w io.Writer, q *quest.Quest, format string) error {
	switch format {
	case OutputJSON:
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(q)
	case OutputYAML:
		out, err := yamlloader.Marshal(q)
		if err != nil {
			return fmt.Errorf("failed to render quest as YAML: %w", err)
		}
		_, err = w.Write(out)
		return err
	}

	fmt.Fprintf(w, "Name:          %s\n", q.Name)
	fmt.Fprintf(w, "Title:         %s\n", q.Title)
	fmt.Fprintf(w, "Description:   %s\n", q.Description)
	fmt.Fprintf(w, "Format:        %s\n", q.Format)
	fmt.Fprintf(w, "Source:        %s\n", q.Source)
	if len(q.Prerequisites) > 0 {
		fmt.Fprintf(w, "Prerequisites: %s\n", strings.Join(q.Prerequisites, ", "))
	}

	if len(q.Objectives) > 0 {
		fmt.Fprintf(w, "Objectives:\n")
		for _, o := range q.Objectives {
			fmt.Fprintf(w, "  - %s %s", o.Kind, o.Target)
			if o.Amount > 0 {
				fmt.Fprintf(w, " x%d", o.Amount)
			}
			fmt.Fprintln(w)
		}
	}
	if len(q.Rewards) > 0 {
		fmt.Fprintf(w, "Rewards:\n")
		for _, r := range q.Rewards {
			fmt.Fprintf(w, "  - %s %s", r.Kind, r.Item)
			if r.Amount > 0 {
				fmt.Fprintf(w, " x%d", r.Amount)
			}
			fmt.Fprintln(w)
		}
	}
	return nil
}

// DisplayFormats writes one authoring format per line with its file suffixes.
func DisplayFormats(w io.Writer, formats []string, suffixes map[string][]string) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintln(tw, "FORMAT\tSUFFIXES")
	fmt.Fprintln(tw, "------\t--------")
	for _, f := range formats {
		s := strings.Join(suffixes[f], ", ")
		if s == "" {
			s = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\n", f, s)
	}
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
