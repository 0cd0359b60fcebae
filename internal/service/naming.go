package service

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	maxNameRunes        = 100
	maxDescriptionRunes = 300
	defaultName         = "Smart Playlist"
)

// PlaylistName derives a name from the prompt unless override is set. The
// result is a pure function of its inputs.
func PlaylistName(prompt, override string) string {
	if s := strings.TrimSpace(override); s != "" {
		return truncateRunes(s, maxNameRunes)
	}
	s := collapseSpace(prompt)
	if s == "" {
		return defaultName
	}
	r, size := utf8.DecodeRuneInString(s)
	s = string(unicode.ToUpper(r)) + s[size:]
	return truncateRunes(s, maxNameRunes)
}

// PlaylistDescription derives a description from the prompt unless override
// is set.
func PlaylistDescription(prompt, override string) string {
	if s := strings.TrimSpace(override); s != "" {
		return truncateRunes(s, maxDescriptionRunes)
	}
	const prefix = `Generated from prompt: "`
	budget := maxDescriptionRunes - utf8.RuneCountInString(prefix) - 1
	return prefix + truncateRunes(collapseSpace(prompt), budget) + `"`
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// truncateRunes cuts s to at most n runes, ending with an ellipsis when cut.
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:n-1])) + "…"
}
