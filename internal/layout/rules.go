// Package layout groups extracted page text into candidate editorial items.
package layout

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/broadsheet-archive/broadsheet/internal/extract"
	"github.com/broadsheet-archive/broadsheet/internal/store"
)

// blockContext is what a rule predicate sees for one block.
type blockContext struct {
	Block      extract.Block
	MedianFont float64
	// HeadlineScale and ClassifiedMax come from configuration.
	HeadlineScale float64
	ClassifiedMax float64
}

// blockLabel is the rule outcome for one block.
type blockLabel string

const (
	labelHeadline   blockLabel = "headline"
	labelClassified blockLabel = "classified"
	labelAd         blockLabel = "ad"
	labelBody       blockLabel = "body"
)

// rule is one (predicate, label) entry. Rules are evaluated in order and the
// first match wins, which keeps the heuristics auditable: each rule can be
// tested on its own and reordering is an explicit decision.
type rule struct {
	name  string
	match func(blockContext) bool
	label blockLabel
}

// blockRules is the prioritized decision table for native-text blocks. The
// final catch-all labels everything else as body copy.
var blockRules = []rule{
	{
		name: "large-font-headline",
		match: func(c blockContext) bool {
			return c.MedianFont > 0 && c.Block.FontSize >= c.MedianFont*c.HeadlineScale &&
				len(c.Block.Text) <= 160
		},
		label: labelHeadline,
	},
	{
		name: "bold-lead-headline",
		match: func(c blockContext) bool {
			return c.Block.Bold && c.Block.FontSize > c.MedianFont &&
				len(c.Block.Text) <= 120
		},
		label: labelHeadline,
	},
	{
		name: "dense-small-print-classified",
		match: func(c blockContext) bool {
			return c.Block.FontSize <= c.ClassifiedMax && looksLikeClassified(c.Block.Text)
		},
		label: labelClassified,
	},
	{
		name: "display-ad",
		match: func(c blockContext) bool {
			return isShouting(c.Block.Text) && len(strings.Fields(c.Block.Text)) <= 12 &&
				c.Block.FontSize > c.MedianFont
		},
		label: labelAd,
	},
	{
		name:  "body-copy",
		match: func(blockContext) bool { return true },
		label: labelBody,
	},
}

// classifyBlock runs the rule table and returns the winning label.
func classifyBlock(c blockContext) blockLabel {
	for _, r := range blockRules {
		if r.match(c) {
			return r.label
		}
	}
	return labelBody
}

var (
	phoneHintRe = regexp.MustCompile(`\b(?:\+?\d[\d\s-]{6,}\d)\b`)
	priceHintRe = regexp.MustCompile(`(?i)(?:[$£€]|R\s?\d|USD|ZAR|KES|Ksh)\s?\d`)
)

// classifiedMarkers are phrases that mark small-print advertising copy.
var classifiedMarkers = []string{
	"for sale", "to let", "to rent", "wanted", "vacancy", "vacancies",
	"tender", "auction", "notice", "apply", "contact", "call", "p.o. box",
}

// looksLikeClassified reports whether small-print text reads like a
// classified ad: marker phrases plus contact or price patterns.
func looksLikeClassified(text string) bool {
	lower := strings.ToLower(text)
	markers := 0
	for _, m := range classifiedMarkers {
		if strings.Contains(lower, m) {
			markers++
		}
	}
	if markers == 0 {
		return false
	}
	return markers >= 2 || phoneHintRe.MatchString(text) || priceHintRe.MatchString(text)
}

// isShouting reports whether text is predominantly upper case.
func isShouting(text string) bool {
	letters, upper := 0, 0
	for _, r := range text {
		if unicode.IsLetter(r) {
			letters++
			if unicode.IsUpper(r) {
				upper++
			}
		}
	}
	return letters >= 4 && float64(upper) >= 0.8*float64(letters)
}

// itemTypeForLabel maps a block label to the item type it produces.
func itemTypeForLabel(l blockLabel) store.ItemType {
	switch l {
	case labelClassified:
		return store.ItemClassified
	case labelAd:
		return store.ItemAd
	default:
		return store.ItemStory
	}
}
