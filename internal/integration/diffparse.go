package integration

import (
	"fmt"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/sourcegraph/go-diff/diff"

	"github.com/valter-silva-au/tracerung/pkg/models"
)

// DiffParser extracts file-level statistics from unified diffs and from
// before/after content pairs. It satisfies core.DiffParser.
type DiffParser interface {
	ParseUnified(text string) ([]models.FileDiff, error)
	Stats(before, after string) models.DiffStats
}

type diffParser struct{}

// NewDiffParser creates a DiffParser backed by go-diff and go-difflib.
func NewDiffParser() DiffParser {
	return &diffParser{}
}

// ParseUnified parses a multi-file unified diff. A diff consisting only of
// hunks, with no file headers, yields one FileDiff with empty names.
func (p *diffParser) ParseUnified(text string) ([]models.FileDiff, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	files, err := diff.NewMultiFileDiffReader(strings.NewReader(text)).ReadAllFiles()
	if err == nil && len(files) > 0 {
		out := make([]models.FileDiff, 0, len(files))
		for _, fd := range files {
			out = append(out, fileDiffFrom(trimDiffPrefix(fd.OrigName), trimDiffPrefix(fd.NewName), fd.Hunks))
		}
		return out, nil
	}

	hunks, herr := diff.ParseHunks([]byte(text))
	if herr != nil || len(hunks) == 0 {
		if err != nil {
			return nil, fmt.Errorf("parsing unified diff: %w", err)
		}
		if herr != nil {
			return nil, fmt.Errorf("parsing diff hunks: %w", herr)
		}
		return nil, nil
	}
	return []models.FileDiff{fileDiffFrom("", "", hunks)}, nil
}

func fileDiffFrom(orig, name string, hunks []*diff.Hunk) models.FileDiff {
	fd := models.FileDiff{OrigName: orig, NewName: name}
	var added, removed strings.Builder
	for _, h := range hunks {
		if s := strings.TrimSpace(h.Section); s != "" {
			fd.Sections = append(fd.Sections, s)
		}
		for _, line := range strings.Split(string(h.Body), "\n") {
			switch {
			case strings.HasPrefix(line, "+"):
				fd.LinesAdded++
				added.WriteString(line[1:])
				added.WriteByte('\n')
			case strings.HasPrefix(line, "-"):
				fd.LinesRemoved++
				removed.WriteString(line[1:])
				removed.WriteByte('\n')
			}
		}
	}
	fd.AddedText = added.String()
	fd.RemovedText = removed.String()
	return fd
}

// trimDiffPrefix drops the a/ and b/ prefixes git adds and maps /dev/null
// to the empty name.
func trimDiffPrefix(name string) string {
	if name == "/dev/null" {
		return ""
	}
	if strings.HasPrefix(name, "a/") || strings.HasPrefix(name, "b/") {
		return name[2:]
	}
	return name
}

// Stats counts the lines added, removed and replaced between two versions
// of a file.
func (p *diffParser) Stats(before, after string) models.DiffStats {
	m := difflib.NewMatcher(splitLines(before), splitLines(after))
	var s models.DiffStats
	for _, op := range m.GetOpCodes() {
		switch op.Tag {
		case 'r':
			s.LinesRemoved += op.I2 - op.I1
			s.LinesAdded += op.J2 - op.J1
			s.LinesChanged += min(op.I2-op.I1, op.J2-op.J1)
		case 'd':
			s.LinesRemoved += op.I2 - op.I1
		case 'i':
			s.LinesAdded += op.J2 - op.J1
		}
	}
	return s
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	return difflib.SplitLines(strings.TrimSuffix(s, "\n"))
}
