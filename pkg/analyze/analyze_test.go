package analyze

import (
	"strings"
	"testing"

	"github.com/elonfeng/ghhub/pkg/github"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare json", `{"summary": "x"}`, `{"summary": "x"}`},
		{"json fence", "```json\n{\"summary\": \"x\"}\n```", `{"summary": "x"}`},
		{"plain fence", "```\n{\"summary\": \"x\"}\n```", `{"summary": "x"}`},
		{"fence with preamble", "Here is the analysis:\n```json\n{\"a\": 1}\n```\nDone.", `{"a": 1}`},
		{"surrounding whitespace", "  {\"a\": 1}  ", `{"a": 1}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := ExtractJSON(tc.in); got != tc.want {
				t.Errorf("ExtractJSON(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestDefaultAnalysis(t *testing.T) {
	p := &github.Project{
		Name:        "gin",
		Description: "HTTP web framework",
		Language:    "Go",
		URL:         "https://github.com/gin-gonic/gin",
	}

	a := DefaultAnalysis(p)
	if a.Summary != "HTTP web framework" {
		t.Errorf("summary = %q", a.Summary)
	}
	if len(a.TechStack) != 1 || a.TechStack[0] != "Go" {
		t.Errorf("tech stack = %v", a.TechStack)
	}
	if a.Difficulty != 3 {
		t.Errorf("difficulty = %d, want 3", a.Difficulty)
	}
	if !strings.Contains(a.QuickStart, p.URL) {
		t.Errorf("quick start = %q", a.QuickStart)
	}
}

func TestDefaultAnalysisEmptyProject(t *testing.T) {
	a := DefaultAnalysis(&github.Project{Name: "bare"})
	if a.Summary == "" {
		t.Error("summary should never be empty")
	}
	if len(a.TechStack) != 1 || a.TechStack[0] != "Unknown" {
		t.Errorf("tech stack = %v", a.TechStack)
	}
}

func TestProjectContextTruncatesReadme(t *testing.T) {
	p := &github.Project{Name: "big", FullName: "o/big"}
	readme := strings.Repeat("x", 5000)

	got := projectContext(p, readme, 1000)
	if !strings.Contains(got, "Project: big") {
		t.Errorf("context missing header: %q", got[:80])
	}
	if len(got) > 1200 {
		t.Errorf("context length = %d, readme not truncated", len(got))
	}
}
