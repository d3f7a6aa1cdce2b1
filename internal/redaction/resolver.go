package redaction

import (
	"strings"

	"github.com/S-feLayer/SafeLayer-Chat/internal/detect"
	"github.com/S-feLayer/SafeLayer-Chat/internal/session"
)

// Resolver maps spans to session entities. Exact canonical-key matching
// applies to every type; person names additionally get a bounded fuzzy pass
// so "John" later in a conversation resolves to an earlier "John Smith".
// All methods must run inside a session critical region (Store.WithSession).
type Resolver struct {
	// FuzzyDistance is the maximum edit distance for person-name matching.
	FuzzyDistance int
}

// Resolve returns the entity for a span, creating one when no existing
// entity matches. reveal applies only to newly created custom entities.
func (r *Resolver) Resolve(s *session.Session, span detect.Span, reveal *detect.Reveal) *session.Entity {
	key := CanonicalKey(span.Type, span.PatternID, span.Value)

	if e := s.Lookup(span.Type, key); e != nil {
		e.OccurrenceCount++
		return e
	}

	if span.Type == detect.TypePersonName {
		if e := r.fuzzyPerson(s, key); e != nil {
			e.OccurrenceCount++
			return e
		}
	}

	var label string
	if span.Type == detect.TypePersonName {
		label = s.NextPersonLabel()
	}
	mask := maskFor(span.Type, span.Value, span.PatternID, label, reveal)
	return s.Create(span.Type, key, span.Value, mask)
}

// fuzzyPerson finds the existing person entity whose canonical key is within
// the edit-distance threshold of key, or contains/is contained by it as a
// partial-name mention. A match is accepted only when exactly one candidate
// qualifies; two or more means ambiguity, and ambiguity means a new entity.
func (r *Resolver) fuzzyPerson(s *session.Session, key string) *session.Entity {
	var match *session.Entity
	for _, e := range s.EntitiesOfType(detect.TypePersonName) {
		if !r.personMatches(e.CanonicalKey, key) {
			continue
		}
		if match != nil {
			return nil // ambiguous
		}
		match = e
	}
	return match
}

func (r *Resolver) personMatches(stored, candidate string) bool {
	if containsWord(stored, candidate) || containsWord(candidate, stored) {
		return true
	}
	return boundedEditDistance(stored, candidate, r.FuzzyDistance)
}

// containsWord reports whether needle appears in haystack on word
// boundaries, so "john" matches "john smith" but not "johnson brown".
func containsWord(haystack, needle string) bool {
	if needle == "" {
		return false
	}
	idx := strings.Index(haystack, needle)
	for idx >= 0 {
		before := idx == 0 || haystack[idx-1] == ' '
		after := idx+len(needle) == len(haystack) || haystack[idx+len(needle)] == ' '
		if before && after {
			return true
		}
		next := strings.Index(haystack[idx+1:], needle)
		if next < 0 {
			return false
		}
		idx += 1 + next
	}
	return false
}

// boundedEditDistance reports whether the Levenshtein distance between a and
// b is at most max. Standard two-row dynamic program with an early exit once
// every cell in a row exceeds the bound.
func boundedEditDistance(a, b string, max int) bool {
	if abs(len(a)-len(b)) > max {
		return false
	}
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		cur[0] = i
		rowMin := cur[0]
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[j] = min3(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
			if cur[j] < rowMin {
				rowMin = cur[j]
			}
		}
		if rowMin > max {
			return false
		}
		prev, cur = cur, prev
	}
	return prev[len(b)] <= max
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
