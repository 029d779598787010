package storage

import (
	"encoding/hex"
	"path"
	"strings"

	"github.com/zeebo/blake3"
)

// workspaceKey maps a workspace path to a directory name: the slug of its
// last element followed by a short blake3 digest of the full path, so two
// checkouts named alike never share a directory. "all" and "" map to "all".
func workspaceKey(workspace string) string {
	if workspace == "" || strings.EqualFold(workspace, "all") {
		return "all"
	}
	sum := blake3.Sum256([]byte(workspace))
	base := fileSafe(path.Base(strings.ReplaceAll(workspace, `\`, "/")))
	if base == "" || base == "_" {
		base = "ws"
	}
	return base + "-" + hex.EncodeToString(sum[:4])
}

// fileSafe replaces every byte outside [A-Za-z0-9._-] with an underscore.
func fileSafe(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := strings.Trim(b.String(), ".")
	if out == "" {
		return "_"
	}
	return out
}
