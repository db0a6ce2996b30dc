// Package matching resolves track identity across platforms.
//
// Given a library track and a platform candidate it produces a confidence
// score in [0,1]. A strong shared identifier (ISRC, exact file hash,
// Discogs release+position) short-circuits to 1.0; otherwise the score is
// a weighted token-set similarity over title, artist, album, and duration.
package matching

import (
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Scoring weights. Title dominates, then artist, album, duration.
const (
	weightTitle    = 0.45
	weightArtist   = 0.30
	weightAlbum    = 0.15
	weightDuration = 0.10

	// durationToleranceMS is the window within which two durations count
	// as agreeing.
	durationToleranceMS = 3000
)

// Thresholds control the auto-link and candidate cutoffs.
type Thresholds struct {
	Auto      float64 // confidence >= Auto links without confirmation
	Candidate float64 // confidence in [Candidate, Auto) needs confirmation
}

// DefaultThresholds returns the standard cutoffs.
func DefaultThresholds() Thresholds {
	return Thresholds{Auto: 0.82, Candidate: 0.60}
}

// Side holds the comparable fields of one track, library or platform.
type Side struct {
	Title      string
	Artist     string
	Album      string
	DurationMS int
	ISRC       string
	FileHash   string
	ReleaseKey string // Discogs release id + position
}

// Result is the outcome of scoring one candidate pair.
type Result struct {
	Confidence        float64
	IsMatch           bool
	NeedsConfirmation bool
}

// Score compares a library track against a platform candidate.
//
// An empty title or artist on either side yields confidence zero: there
// is nothing safe to match on.
func Score(library, candidate Side, th Thresholds) Result {
	lt, la := Normalize(library.Title), Normalize(library.Artist)
	ct, ca := Normalize(candidate.Title), Normalize(candidate.Artist)

	if lt == "" || la == "" || ct == "" || ca == "" {
		return Result{}
	}

	if strongIdentity(library, candidate) {
		return Result{Confidence: 1.0, IsMatch: true}
	}

	confidence := weightTitle * tokenSetSimilarity(lt, ct)
	confidence += weightArtist * tokenSetSimilarity(la, ca)
	confidence += weightAlbum * tokenSetSimilarity(Normalize(library.Album), Normalize(candidate.Album))
	if durationAgrees(library.DurationMS, candidate.DurationMS) {
		confidence += weightDuration
	}

	result := Result{Confidence: confidence}
	switch {
	case confidence >= th.Auto:
		result.IsMatch = true
	case confidence >= th.Candidate:
		result.NeedsConfirmation = true
	}
	return result
}

// Candidate pairs a scored result with the identifiers needed for
// tie-breaking and linking.
type Candidate struct {
	ExternalID string
	Side       Side
	Result     Result
}

// SelectBest picks the winning candidate deterministically: highest
// confidence first, then shared album, then smallest duration delta,
// then lowest external id lexicographically.
func SelectBest(library Side, candidates []Candidate) *Candidate {
	if len(candidates) == 0 {
		return nil
	}

	sorted := make([]Candidate, len(candidates))
	copy(sorted, candidates)

	libAlbum := Normalize(library.Album)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Result.Confidence != b.Result.Confidence {
			return a.Result.Confidence > b.Result.Confidence
		}
		aAlbum := libAlbum != "" && Normalize(a.Side.Album) == libAlbum
		bAlbum := libAlbum != "" && Normalize(b.Side.Album) == libAlbum
		if aAlbum != bAlbum {
			return aAlbum
		}
		aDelta := absInt(library.DurationMS - a.Side.DurationMS)
		bDelta := absInt(library.DurationMS - b.Side.DurationMS)
		if aDelta != bDelta {
			return aDelta < bDelta
		}
		return a.ExternalID < b.ExternalID
	})

	return &sorted[0]
}

// Normalize lowercases, applies NFC, strips featured-artist parentheticals
// and remaster suffixes, and collapses whitespace.
func Normalize(s string) string {
	s = norm.NFC.String(strings.ToLower(strings.TrimSpace(s)))
	s = stripParentheticals(s)
	s = stripRemasterSuffix(s)
	return strings.Join(strings.Fields(s), " ")
}

// stripParentheticals removes "(feat. X)" / "[with X]" style segments.
// Parentheticals that are part of the title proper are kept.
func stripParentheticals(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); {
		c := s[i]
		if c == '(' || c == '[' {
			closer := byte(')')
			if c == '[' {
				closer = ']'
			}
			if end := strings.IndexByte(s[i+1:], closer); end >= 0 {
				if featuredSegment(s[i+1 : i+1+end]) {
					i += end + 2
					continue
				}
			}
		}
		b.WriteByte(c)
		i++
	}
	return b.String()
}

// featuredSegment reports whether a parenthetical is a featuring credit
// or similar noise rather than part of the title.
func featuredSegment(segment string) bool {
	segment = strings.TrimSpace(segment)
	for _, prefix := range []string{"feat", "ft.", "ft ", "featuring", "with ", "remaster", "remastered", "live", "mono", "stereo", "deluxe", "bonus"} {
		if strings.HasPrefix(segment, prefix) {
			return true
		}
	}
	return false
}

// stripRemasterSuffix removes trailing "- 2011 remaster" style suffixes.
func stripRemasterSuffix(s string) string {
	if idx := strings.LastIndex(s, " - "); idx >= 0 {
		suffix := s[idx+3:]
		if strings.Contains(suffix, "remaster") || strings.Contains(suffix, "re-master") {
			return s[:idx]
		}
	}
	return s
}

// tokenSetSimilarity computes the Jaccard similarity of the two strings'
// token sets. Both inputs must already be normalized.
func tokenSetSimilarity(a, b string) float64 {
	if a == "" && b == "" {
		return 0
	}
	if a == b {
		return 1
	}

	setA := tokenSet(a)
	setB := tokenSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	intersection := 0
	for token := range setA {
		if setB[token] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	return float64(intersection) / float64(union)
}

func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, token := range strings.Fields(s) {
		set[token] = true
	}
	return set
}

// strongIdentity reports whether the two sides share a strong external
// identifier that makes fuzzy scoring unnecessary.
func strongIdentity(a, b Side) bool {
	if a.ISRC != "" && a.ISRC == b.ISRC {
		return true
	}
	if a.FileHash != "" && a.FileHash == b.FileHash {
		return true
	}
	if a.ReleaseKey != "" && a.ReleaseKey == b.ReleaseKey {
		return true
	}
	return false
}

func durationAgrees(a, b int) bool {
	if a == 0 || b == 0 {
		return false
	}
	return absInt(a-b) <= durationToleranceMS
}

func absInt(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
