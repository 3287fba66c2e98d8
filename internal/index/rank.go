package index

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Score tiers. Phrase and substring matches must always outrank pure token
// matches, so tiers dominate and token-hit counts only order within a tier.
const (
	tierPhrase = 1000.0
	tierAll    = 100.0
	tierSome   = 1.0
)

// tokenize lowercases and splits query or document text into terms.
func tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
	var out []string
	for _, f := range fields {
		if len(f) > 0 {
			out = append(out, f)
		}
	}
	return out
}

// scoreDocument ranks one document against the query text. Returns the
// score (0 means no match) and the query terms present in the document.
func scoreDocument(d document, queryText string) (float64, []string) {
	haystack := strings.ToLower(d.Title + "\n" + d.Body)
	phrase := strings.ToLower(strings.TrimSpace(queryText))
	terms := tokenize(queryText)
	if len(terms) == 0 {
		return 0, nil
	}

	var present []string
	hits := 0
	for _, t := range terms {
		n := strings.Count(haystack, t)
		if n > 0 {
			present = append(present, t)
			hits += n
		}
	}
	if len(present) == 0 {
		return 0, nil
	}

	titleBoost := 0.0
	if d.Title != "" && strings.Contains(strings.ToLower(d.Title), phrase) {
		titleBoost = 50
	}

	switch {
	case len(terms) > 0 && strings.Contains(haystack, phrase):
		return tierPhrase + float64(hits) + titleBoost, present
	case len(present) == len(terms):
		return tierAll + float64(hits) + titleBoost, present
	default:
		return tierSome*float64(len(present)) + float64(hits)/100 + titleBoost, present
	}
}

// rankAndPage scores, sorts, and paginates candidate documents. The total
// is the match count before pagination.
func rankAndPage(docs []document, q Query, snippetRadius int) ([]*Result, int) {
	type scored struct {
		doc        document
		score      float64
		highlights []string
	}
	var matched []scored
	for _, d := range docs {
		if !d.matchesFilters(q) {
			continue
		}
		score, present := scoreDocument(d, q.Text)
		if score == 0 {
			continue
		}
		matched = append(matched, scored{doc: d, score: score, highlights: present})
	}

	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].score != matched[j].score {
			return matched[i].score > matched[j].score
		}
		return matched[i].doc.ItemID < matched[j].doc.ItemID
	})

	total := len(matched)
	if q.Skip >= total {
		return nil, total
	}
	end := q.Skip + q.Limit
	if end > total {
		end = total
	}

	var out []*Result
	for _, m := range matched[q.Skip:end] {
		out = append(out, &Result{
			ItemID:        m.doc.ItemID,
			EditionID:     m.doc.EditionID,
			PageNumber:    m.doc.PageNumber,
			ItemType:      m.doc.ItemType,
			Subtype:       m.doc.Subtype,
			NewspaperName: m.doc.NewspaperName,
			EditionDate:   m.doc.EditionDate,
			Title:         m.doc.Title,
			Snippet:       buildSnippet(m.doc.Title+"\n"+m.doc.Body, q.Text, m.highlights, snippetRadius),
			Highlights:    m.highlights,
			Score:         m.score,
		})
	}
	return out, total
}

// buildSnippet assembles a snippet that contains every highlighted term. A
// window is cut around the first occurrence of each term (or of the whole
// phrase when it occurs verbatim); overlapping windows merge, and gaps are
// marked with an ellipsis.
func buildSnippet(text, queryText string, highlights []string, radius int) string {
	if radius <= 0 {
		radius = 90
	}
	lower := strings.ToLower(text)

	type window struct{ start, end int }
	var windows []window
	addWindow := func(pos, length int) {
		start := pos - radius
		if start < 0 {
			start = 0
		}
		end := pos + length + radius
		if end > len(text) {
			end = len(text)
		}
		windows = append(windows, window{start, end})
	}

	phrase := strings.ToLower(strings.TrimSpace(queryText))
	if pos := strings.Index(lower, phrase); pos >= 0 && phrase != "" {
		addWindow(pos, len(phrase))
	}
	for _, term := range highlights {
		if pos := strings.Index(lower, term); pos >= 0 {
			addWindow(pos, len(term))
		}
	}
	if len(windows) == 0 {
		if len(text) > 2*radius {
			return strings.TrimSpace(text[:2*radius]) + "…"
		}
		return strings.TrimSpace(text)
	}

	sort.Slice(windows, func(i, j int) bool { return windows[i].start < windows[j].start })
	merged := windows[:1]
	for _, w := range windows[1:] {
		last := &merged[len(merged)-1]
		if w.start <= last.end {
			if w.end > last.end {
				last.end = w.end
			}
			continue
		}
		merged = append(merged, w)
	}

	var parts []string
	for _, w := range merged {
		start, end := snapToRunes(text, w.start, w.end)
		parts = append(parts, strings.TrimSpace(strings.ReplaceAll(text[start:end], "\n", " ")))
	}
	snippet := strings.Join(parts, " … ")
	if merged[0].start > 0 {
		snippet = "…" + snippet
	}
	if merged[len(merged)-1].end < len(text) {
		snippet += "…"
	}
	return snippet
}

// snapToRunes moves byte offsets off the middle of a UTF-8 sequence.
func snapToRunes(s string, start, end int) (int, int) {
	for start > 0 && start < len(s) && s[start]&0xC0 == 0x80 {
		start--
	}
	for end > start && end < len(s) && s[end]&0xC0 == 0x80 {
		end++
	}
	return start, end
}

// renderStructured flattens a structured_data JSON object into searchable
// "key value" text.
func renderStructured(raw json.RawMessage) string {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return ""
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		switch v := m[k].(type) {
		case string:
			if v != "" {
				fmt.Fprintf(&sb, "%s %s\n", k, v)
			}
		case float64:
			if v != 0 {
				fmt.Fprintf(&sb, "%s %v\n", k, v)
			}
		case []any:
			for _, e := range v {
				fmt.Fprintf(&sb, "%s %v\n", k, e)
			}
		}
	}
	return strings.TrimSpace(sb.String())
}
