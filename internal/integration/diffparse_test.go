package integration

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/valter-silva-au/tracerung/pkg/models"
)

func TestDiffParser_ParseUnified(t *testing.T) {
	text := "diff --git a/internal/x.go b/internal/x.go\n" +
		"--- a/internal/x.go\n" +
		"+++ b/internal/x.go\n" +
		"@@ -1,3 +1,4 @@ func Handle()\n" +
		" line1\n" +
		"-old\n" +
		"+new\n" +
		"+added\n" +
		" line3\n"

	files, err := NewDiffParser().ParseUnified(text)
	if err != nil {
		t.Fatalf("ParseUnified: %v", err)
	}
	want := []models.FileDiff{{
		OrigName:     "internal/x.go",
		NewName:      "internal/x.go",
		LinesAdded:   2,
		LinesRemoved: 1,
		Sections:     []string{"func Handle()"},
		AddedText:    "new\nadded\n",
		RemovedText:  "old\n",
	}}
	if diff := cmp.Diff(want, files); diff != "" {
		t.Errorf("file diff mismatch (-want +got):\n%s", diff)
	}
}

func TestDiffParser_EmptyInput(t *testing.T) {
	files, err := NewDiffParser().ParseUnified("  \n")
	if err != nil || files != nil {
		t.Errorf("ParseUnified(blank) = %v, %v; want nil, nil", files, err)
	}
}

func TestDiffParser_Stats(t *testing.T) {
	p := NewDiffParser()
	tests := []struct {
		name          string
		before, after string
		want          models.DiffStats
	}{
		{"identical", "a\nb\n", "a\nb\n", models.DiffStats{}},
		{"created", "", "x\ny\n", models.DiffStats{LinesAdded: 2}},
		{"deleted", "x\ny\n", "", models.DiffStats{LinesRemoved: 2}},
		{"replace and append", "a\nb\nc\n", "a\nB\nc\nd\n", models.DiffStats{LinesAdded: 2, LinesRemoved: 1, LinesChanged: 1}},
		{"no trailing newline", "a\nb", "a\nb\n", models.DiffStats{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.Stats(tt.before, tt.after); got != tt.want {
				t.Errorf("Stats = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestTrimDiffPrefix(t *testing.T) {
	for in, want := range map[string]string{"a/x.go": "x.go", "b/y/z.go": "y/z.go", "/dev/null": "", "plain.go": "plain.go"} {
		if got := trimDiffPrefix(in); got != want {
			t.Errorf("trimDiffPrefix(%q) = %q, want %q", in, got, want)
		}
	}
}
