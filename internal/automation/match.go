package automation

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/replyflow/replyflow/internal/store"
)

// NormalizeText canonicalizes comment text for keyword matching:
// lowercase, NFD decomposition, combining diacritical marks stripped,
// non-word/non-space characters replaced with spaces, and whitespace
// collapsed and trimmed. The function is idempotent.
func NormalizeText(s string) string {
	s = norm.NFD.String(strings.ToLower(s))

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 0x0300 && r <= 0x036F:
			// Combining diacritical marks left behind by NFD ("ç" → "c").
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}

	return strings.Join(strings.Fields(b.String()), " ")
}

// MatchKeyword tests normalized comment text against a campaign's keyword
// set. A keyword matches if the normalized text contains the normalized
// word as a substring; token boundaries are deliberately not checked.
// When multiple keywords match, the first in the campaign's stored keyword
// order wins.
//
// Listen-all campaigns match any non-blank comment with no specific
// keyword (nil, true). Returns (nil, false) when nothing matches.
func MatchKeyword(campaign *store.Campaign, text string) (*store.Keyword, bool) {
	normalized := NormalizeText(text)

	for i := range campaign.Keywords {
		kw := &campaign.Keywords[i]
		if !kw.Active {
			continue
		}
		// Keywords are stored pre-lowercased but re-normalized defensively.
		word := NormalizeText(kw.Word)
		if word != "" && strings.Contains(normalized, word) {
			return kw, true
		}
	}

	if campaign.ListenAll && strings.TrimSpace(text) != "" {
		return nil, true
	}

	return nil, false
}
