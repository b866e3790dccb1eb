package storage

import (
	"fmt"
	"strings"
	"time"
)

// ArchiveEntry names one archived clip.
type ArchiveEntry struct {
	Kind     string // "enrollment" or "recognition"
	Username string
	ID       string
	Ext      string // including the leading dot
	Time     time.Time
}

// Path returns the archive path:
//
//	{kind}/{username}/{YYYYMMDD}/{HHMMSS}-{id}{ext}
//
// An empty username is stored as "_". Characters outside [a-z0-9._-] are
// replaced so a path segment never escapes its directory.
func (e ArchiveEntry) Path() string {
	t := e.Time.UTC()
	return fmt.Sprintf("%s/%s/%s/%s-%s%s",
		segment(e.Kind), segment(e.Username),
		t.Format("20060102"), t.Format("150405"),
		segment(e.ID), e.Ext)
}

func segment(s string) string {
	s = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		}
		return '_'
	}, s)
	if s == "" || strings.Trim(s, ".") == "" {
		return "_"
	}
	return s
}
