package matcher

import "github.com/nself/content-acquisition/internal/model"

// Criteria is the set of optional match constraints evaluated against a
// Fingerprint, in addition to the mandatory title fuzzy match (§4.4).
type Criteria struct {
	DesiredTitle string
	Threshold    float64 // default 0.8 if zero
	Year         int     // 0 means unspecified
	Qualities    []string
}

// releaseTitle returns the part of a raw release title before its first year
// or SxxEyy token ("The.Matrix.1999.1080p" -> "The.Matrix."). The whole
// string is returned when there is no such token or the title starts with one.
func releaseTitle(raw string) string {
	cut := len(raw)
	if loc := yearPattern.FindStringIndex(raw); loc != nil {
		cut = loc[0]
	}
	if loc := episodePattern.FindStringIndex(raw); loc != nil && loc[0] < cut {
		cut = loc[0]
	}
	if cut == 0 {
		return raw
	}
	return raw[:cut]
}

// Matches reports whether fp satisfies c: the title part of candidate (the
// text before its first year or SxxEyy token) must fuzzy-match DesiredTitle;
// if Year is specified the extracted year must equal it; if Qualities is
// non-empty at least one requested quality must be present. All present
// criteria AND.
func Matches(candidate string, fp model.Fingerprint, c Criteria) bool {
	threshold := c.Threshold
	if threshold == 0 {
		threshold = 0.8
	}
	if !FuzzyMatch(releaseTitle(candidate), c.DesiredTitle, threshold) {
		return false
	}
	if c.Year != 0 && fp.Year != c.Year {
		return false
	}
	if len(c.Qualities) > 0 {
		found := false
		for _, q := range c.Qualities {
			if fp.HasQuality(q) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
