package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/smartplaylist/api/internal/client"
	"github.com/smartplaylist/api/internal/model"
)

// TextGenerator is the opaque text-generation capability.
type TextGenerator interface {
	ChatCompletion(ctx context.Context, system, user string) (string, error)
}

type GeneratorConfig struct {
	DefaultCount   int
	MaxCount       int
	MinutesPerSong int
}

// SongListGenerator turns a free-text prompt into ordered song candidates.
type SongListGenerator struct {
	llm    TextGenerator
	cfg    GeneratorConfig
	logger *log.Logger
}

func NewSongListGenerator(llm TextGenerator, cfg GeneratorConfig, logger *log.Logger) *SongListGenerator {
	if cfg.DefaultCount <= 0 {
		cfg.DefaultCount = 10
	}
	if cfg.MaxCount <= 0 {
		cfg.MaxCount = 50
	}
	if cfg.MinutesPerSong <= 0 {
		cfg.MinutesPerSong = 4
	}
	return &SongListGenerator{llm: llm, cfg: cfg, logger: logger}
}

// songLine matches `- "Title" by Artist` with the bullet and quote variants
// language models tend to produce.
var songLine = regexp.MustCompile(`^\s*(?:[-*•]|\d+[.)])\s+["“”'](.+?)["“”']\s+(?i:by)\s+(.+?)\s*$`)

// Generate asks the text generator once for a song list. An empty response
// yields an empty list; a non-empty response with no parsable line yields
// ErrGenerationFormat.
func (g *SongListGenerator) Generate(ctx context.Context, prompt string, targetCount, targetDurationMinutes *int) ([]model.SongCandidate, error) {
	count := g.requestedCount(targetCount, targetDurationMinutes)

	raw, err := g.llm.ChatCompletion(ctx, systemPrompt, buildUserPrompt(prompt, count, targetDurationMinutes))
	if err != nil {
		if !client.IsUpstream(err) {
			err = &client.UpstreamError{Op: "generate song list", Err: err}
		}
		return nil, err
	}

	if strings.TrimSpace(raw) == "" {
		g.logger.Warn("text generator returned an empty response")
		return []model.SongCandidate{}, nil
	}

	candidates := ParseSongList(raw)
	if len(candidates) == 0 {
		return nil, ErrGenerationFormat
	}

	g.logger.Debug("parsed song list", "requested", count, "parsed", len(candidates))
	return candidates, nil
}

func (g *SongListGenerator) requestedCount(targetCount, targetDurationMinutes *int) int {
	n := g.cfg.DefaultCount
	switch {
	case targetCount != nil && *targetCount > 0:
		n = *targetCount
	case targetDurationMinutes != nil && *targetDurationMinutes > 0:
		n = (*targetDurationMinutes + g.cfg.MinutesPerSong - 1) / g.cfg.MinutesPerSong
	}
	if n > g.cfg.MaxCount {
		n = g.cfg.MaxCount
	}
	return n
}

// ParseSongList extracts candidates in response order, discarding lines
// that do not match.
func ParseSongList(raw string) []model.SongCandidate {
	var out []model.SongCandidate
	for _, line := range strings.Split(raw, "\n") {
		m := songLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		title := strings.TrimSpace(m[1])
		artist := strings.TrimRight(strings.TrimSpace(m[2]), ".,;")
		if title == "" || artist == "" {
			continue
		}
		out = append(out, model.SongCandidate{Title: title, Artist: artist})
	}
	return out
}

const systemPrompt = `You are an expert music curator with encyclopedic knowledge of recorded music across genres and eras.
You turn a listener's description into a playlist of real, released songs that exist on major streaming services.
Respond with the song list only, one song per line, using exactly this format:
- "Song Title" by Artist Name
Do not number the lines, add commentary, headings, or any other text.`

func buildUserPrompt(prompt string, count int, targetDurationMinutes *int) string {
	var b strings.Builder
	b.WriteString("Interpret the following playlist request. It may mention genre, era, occasion, mood, ")
	b.WriteString("and optionally a number of songs or a total duration.\n\n")
	fmt.Fprintf(&b, "Request: %s\n\n", prompt)
	if targetDurationMinutes != nil && *targetDurationMinutes > 0 {
		fmt.Fprintf(&b, "The playlist should last about %d minutes, roughly %d songs.\n", *targetDurationMinutes, count)
	} else {
		fmt.Fprintf(&b, "List approximately %d songs.\n", count)
	}
	b.WriteString(`Format every line as: - "Song Title" by Artist Name`)
	return b.String()
}
