package bot

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"digest_bot/internal/model"
)

func TestParseRunsArgs(t *testing.T) {
	tests := []struct {
		name       string
		args       string
		wantSource string
		wantLimit  int
		wantErr    bool
	}{
		{name: "empty", args: "", wantLimit: DefaultRunsLimit},
		{name: "source only", args: "issues", wantSource: "issues", wantLimit: DefaultRunsLimit},
		{name: "limit only", args: "5", wantLimit: 5},
		{name: "source and limit", args: "pulls 20", wantSource: "pulls", wantLimit: 20},
		{name: "limit too large", args: "issues 51", wantErr: true},
		{name: "zero limit", args: "0", wantErr: true},
		{name: "second arg not a number", args: "issues pulls", wantErr: true},
		{name: "too many args", args: "a 1 2", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			source, limit, err := ParseRunsArgs(tt.args)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.wantSource, source); diff != "" {
				t.Errorf("source mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.wantLimit, limit); diff != "" {
				t.Errorf("limit mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseOrphansArgs(t *testing.T) {
	tests := []struct {
		name       string
		args       string
		wantSource string
		wantGroup  string
		wantErr    bool
	}{
		{name: "group only", args: "0.18", wantSource: DefaultOrphanSource, wantGroup: "0.18"},
		{name: "source and group", args: "milestones 0.17", wantSource: "milestones", wantGroup: "0.17"},
		{name: "empty", args: "", wantErr: true},
		{name: "too many", args: "a b c", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			source, group, err := ParseOrphansArgs(tt.args)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if diff := cmp.Diff([2]string{tt.wantSource, tt.wantGroup}, [2]string{source, group}); diff != "" {
				t.Errorf("result mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseChatID(t *testing.T) {
	id, err := ParseChatID(" -1001234567890 ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != -1001234567890 {
		t.Errorf("id = %d", id)
	}

	if _, err := ParseChatID("@channel"); err == nil {
		t.Error("expected error for username")
	}
}

func TestSplitMessage(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		limit int
		want  []string
	}{
		{name: "fits", text: "hello", limit: 10, want: []string{"hello"}},
		{name: "empty", text: "", limit: 10, want: []string{""}},
		{name: "hard cut", text: "abcdefgh", limit: 3, want: []string{"abc", "def", "gh"}},
		{name: "break at newline", text: "aaaa\nbbbb", limit: 6, want: []string{"aaaa", "bbbb"}},
		{name: "newline too early is ignored", text: "a\nbbbbbbb", limit: 6, want: []string{"a\nbbbb", "bbb"}},
		{name: "counts runes not bytes", text: "总结总结总结", limit: 4, want: []string{"总结总结", "总结"}},
		{name: "no limit", text: "abc", limit: 0, want: []string{"abc"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, SplitMessage(tt.text, tt.limit)); diff != "" {
				t.Errorf("SplitMessage mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFormatRuns(t *testing.T) {
	if got := FormatRuns(nil); !strings.Contains(got, "No runs") {
		t.Errorf("empty history: %q", got)
	}

	runs := []model.Run{
		{
			ID:        "r2",
			Source:    "milestones",
			StartedAt: time.Date(2025, 11, 5, 4, 40, 0, 0, time.UTC),
			Outcome:   model.OutcomeAborted,
			Error:     "list milestones: status 502",
		},
		{
			ID:         "r1",
			Source:     "issues",
			StartedAt:  time.Date(2025, 11, 5, 5, 0, 0, 0, time.UTC),
			Outcome:    model.OutcomeDone,
			Fetched:    4,
			Summarized: 4,
			Posted:     1,
		},
	}
	got := FormatRuns(runs)

	for _, want := range []string{
		"2025-11-05 04:40 UTC r2",
		"milestones aborted: fetched 0, summarized 0, posted 0, failed 0",
		"error: list milestones: status 502",
		"issues done: fetched 4, summarized 4, posted 1, failed 0",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("FormatRuns missing %q, got:\n%s", want, got)
		}
	}
	if strings.Index(got, "r2") > strings.Index(got, "r1") {
		t.Error("runs should keep the given order")
	}
}

func TestFormatSources(t *testing.T) {
	got := FormatSources([]SourceInfo{
		{Name: "commits", Schedule: "daily 12:00", Enabled: true},
		{Name: "posts", Schedule: "daily 12:20", Missing: []string{"BSKY_ACTOR", "MERGE_TRAIN_CHANNEL_ID"}},
	})
	want := "Sources:\n\ncommits  (daily 12:00) [enabled]\n\nposts  (daily 12:20) [disabled]\n   missing: BSKY_ACTOR, MERGE_TRAIN_CHANNEL_ID\n"
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("FormatSources mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff("No sources configured.", FormatSources(nil)); diff != "" {
		t.Errorf("empty mismatch (-want +got):\n%s", diff)
	}
}
