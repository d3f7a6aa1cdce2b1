package redaction

import (
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/S-feLayer/SafeLayer-Chat/internal/detect"
)

// Normalize turns raw detector output into an ordered, non-overlapping span
// list. Spans with impossible offsets are logged and dropped. Overlaps keep
// the higher-confidence span; on equal confidence the longer extent wins;
// identical extent and confidence falls back to type precedence. Conflicts
// are logged, never fatal.
func Normalize(textLen int, spans []detect.Span) []detect.Span {
	valid := spans[:0:0]
	for _, s := range spans {
		if s.Start < 0 || s.End <= s.Start || s.End > textLen {
			log.Warn().
				Int("start", s.Start).
				Int("end", s.End).
				Str("type", string(s.Type)).
				Msg("dropping span with invalid offsets")
			continue
		}
		valid = append(valid, s)
	}

	sort.SliceStable(valid, func(i, j int) bool {
		if valid[i].Start != valid[j].Start {
			return valid[i].Start < valid[j].Start
		}
		return valid[i].Confidence > valid[j].Confidence
	})

	var out []detect.Span
	for _, s := range valid {
		if len(out) == 0 {
			out = append(out, s)
			continue
		}
		cur := &out[len(out)-1]
		if s.Start >= cur.End {
			out = append(out, s)
			continue
		}
		if replaceOverlap(*cur, s) {
			*cur = s
		}
	}
	return out
}

// replaceOverlap decides whether challenger wins over the kept span it
// overlaps. Higher confidence wins; equal confidence prefers the longer
// extent; identical extent and confidence resolves by type precedence.
func replaceOverlap(kept, challenger detect.Span) bool {
	if challenger.Confidence != kept.Confidence {
		return challenger.Confidence > kept.Confidence
	}
	keptLen := kept.End - kept.Start
	chLen := challenger.End - challenger.Start
	if chLen != keptLen || kept.Start != challenger.Start {
		return chLen > keptLen
	}
	if kept.Type == challenger.Type {
		return false
	}
	log.Warn().
		Int("start", kept.Start).
		Int("end", kept.End).
		Str("kept_type", string(kept.Type)).
		Str("challenger_type", string(challenger.Type)).
		Msg("identical spans with conflicting types, resolving by precedence")
	return challenger.Type.Precedence() > kept.Type.Precedence()
}
