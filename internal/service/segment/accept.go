package segment

import "voice-translation-viewer/internal/models"

// DropReason explains why a segment was not merged into the store.
type DropReason string

const (
	DropMissingID      DropReason = "missing_id"
	DropLanguageFilter DropReason = "language_filter"
	DropInterim        DropReason = "interim"
	DropRetired        DropReason = "retired"
)

// Accept applies the language and finality rules shared by every consumer of
// raw segments. It returns the effective language when the segment passes.
// An empty filter accepts every language. Identity checks are left to the
// caller since each view keys segments differently.
func Accept(seg models.Segment, languageFilter string) (string, DropReason, bool) {
	lang := seg.EffectiveLanguage()
	if languageFilter != "" && lang != languageFilter {
		return lang, DropLanguageFilter, false
	}
	if !seg.Final() {
		return lang, DropInterim, false
	}
	return lang, "", true
}
