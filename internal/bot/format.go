package bot

import (
	"fmt"
	"strings"

	"digest_bot/internal/model"
)

const timeLayout = "2006-01-02 15:04 UTC"

// SplitMessage cuts text into parts of at most limit runes, preferring to break at
// a newline in the second half of each part. The newline at a break is dropped.
func SplitMessage(text string, limit int) []string {
	runes := []rune(text)
	if limit <= 0 || len(runes) <= limit {
		return []string{text}
	}

	var parts []string
	for len(runes) > limit {
		cut, skip := limit, 0
		for i := limit; i > limit/2; i-- {
			if runes[i-1] == '\n' {
				cut, skip = i-1, 1
				break
			}
		}
		parts = append(parts, string(runes[:cut]))
		runes = runes[cut+skip:]
	}
	if len(runes) > 0 {
		parts = append(parts, string(runes))
	}
	return parts
}

// FormatSources formats the configured sources for display.
func FormatSources(sources []SourceInfo) string {
	if len(sources) == 0 {
		return "No sources configured."
	}
	var b strings.Builder
	b.WriteString("Sources:\n")
	for _, s := range sources {
		if s.Enabled {
			fmt.Fprintf(&b, "\n%s  (%s) [enabled]\n", s.Name, s.Schedule)
			continue
		}
		fmt.Fprintf(&b, "\n%s  (%s) [disabled]\n", s.Name, s.Schedule)
		if len(s.Missing) > 0 {
			fmt.Fprintf(&b, "   missing: %s\n", strings.Join(s.Missing, ", "))
		}
	}
	return b.String()
}

// FormatRun formats the result of a single run.
func FormatRun(r model.Run) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s: fetched %d, summarized %d, posted %d, failed %d",
		r.Source, r.Outcome, r.Fetched, r.Summarized, r.Posted, r.Failed)
	if r.Error != "" {
		fmt.Fprintf(&b, "\nerror: %s", r.Error)
	}
	return b.String()
}

// FormatRuns formats the run history, newest first.
func FormatRuns(runs []model.Run) string {
	if len(runs) == 0 {
		return "No runs recorded yet."
	}
	var b strings.Builder
	b.WriteString("Recent runs:\n")
	for _, r := range runs {
		fmt.Fprintf(&b, "\n%s %s\n   %s\n", r.StartedAt.UTC().Format(timeLayout), r.ID, FormatRun(r))
	}
	return b.String()
}

// FormatOrphans formats the orphan report of one group.
func FormatOrphans(source, group string, orphans []model.Orphan) string {
	if len(orphans) == 0 {
		return fmt.Sprintf("No orphaned items in %s/%s.", source, group)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Orphaned items in %s/%s:\n", source, group)
	for _, o := range orphans {
		fmt.Fprintf(&b, "  #%s (detected %s)\n", o.ItemID, o.DetectedAt.UTC().Format(timeLayout))
	}
	return b.String()
}
