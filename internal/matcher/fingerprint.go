package matcher

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/nself/content-acquisition/internal/model"
)

var (
	yearPattern = regexp.MustCompile(`(19|20)\d{2}`)
	// SxxEyy / SxxxEyyy tokens (one to three digits each), case-insensitive.
	episodePattern = regexp.MustCompile(`(?i)[sS](\d{1,3})[eE](\d{1,3})`)
	// Trailing release-group convention: "-GROUP" at end, or "[GROUP]" anywhere.
	dashGroupPattern   = regexp.MustCompile(`-([A-Za-z0-9]+)\s*$`)
	bracketGroupPattern = regexp.MustCompile(`\[([^\[\]]+)\]`)
)

// qualityTokens maps a lowercase substring found in the raw title to the
// canonical quality label it implies (§4.4). "4k" aliases to "2160p".
var qualityTokens = []struct {
	token string
	label string
}{
	{"2160p", "2160p"},
	{"4k", "2160p"},
	{"1080p", "1080p"},
	{"720p", "720p"},
	{"hdr", "hdr"},
	{"dolby vision", "dolby vision"},
	{"dv", "dolby vision"},
}

// Fingerprint extracts the structured fingerprint from a raw release title
// (§4.4). size, seeders and leechers come from feed metadata fields rather
// than the title itself, so callers fill them in after the call.
func Fingerprint(rawTitle string) model.Fingerprint {
	fp := model.Fingerprint{
		RawTitle:        rawTitle,
		NormalizedTitle: Normalize(rawTitle),
	}

	if m := yearPattern.FindString(rawTitle); m != "" {
		if y, err := strconv.Atoi(m); err == nil {
			fp.Year = y
		}
	}

	lower := strings.ToLower(rawTitle)
	for _, qt := range qualityTokens {
		if strings.Contains(lower, qt.token) && !fp.HasQuality(qt.label) {
			fp.Qualities = append(fp.Qualities, qt.label)
		}
	}

	if m := episodePattern.FindStringSubmatch(rawTitle); m != nil {
		if s, err := strconv.Atoi(m[1]); err == nil {
			fp.Season = s
		}
		if e, err := strconv.Atoi(m[2]); err == nil {
			fp.Episode = e
		}
	}

	if m := bracketGroupPattern.FindStringSubmatch(rawTitle); m != nil {
		fp.Group = m[1]
	} else if m := dashGroupPattern.FindStringSubmatch(rawTitle); m != nil {
		fp.Group = m[1]
	}

	return fp
}
