package layout

import (
	"math"
	"sort"
	"strings"

	"github.com/broadsheet-archive/broadsheet/internal/config"
	"github.com/broadsheet-archive/broadsheet/internal/extract"
	"github.com/broadsheet-archive/broadsheet/internal/store"
)

// Candidate is one segmented region of a page, before classification and
// entity extraction.
type Candidate struct {
	PageNumber int
	ItemType   store.ItemType
	Title      string
	Text       string
	Bounds     store.BoundingBox
}

// Segmenter splits extracted pages into candidate items.
type Segmenter struct {
	cfg config.LayoutCfg
}

// NewSegmenter creates a segmenter with the given thresholds.
func NewSegmenter(cfg config.LayoutCfg) *Segmenter {
	if cfg.HeadlineFontScale <= 1 {
		cfg.HeadlineFontScale = 1.4
	}
	if cfg.ClassifiedMaxFontSize <= 0 {
		cfg.ClassifiedMaxFontSize = 8.0
	}
	return &Segmenter{cfg: cfg}
}

// SegmentPage segments one page into candidate items. Pages with layout
// blocks use the font-and-position rules; OCR pages, which carry no layout
// metadata, fall back to text-only heuristics. When segmentation is
// ambiguous the segmenter over-segments: an extra untitled item is cheaper
// to merge downstream than a silently swallowed one is to recover.
func (s *Segmenter) SegmentPage(page extract.Result, pageNumber int) []Candidate {
	if len(page.Blocks) > 0 {
		return s.segmentBlocks(page.Blocks, pageNumber)
	}
	return s.segmentText(page.Text, pageNumber)
}

// candidateBuilder accumulates blocks into one candidate.
type candidateBuilder struct {
	kind   store.ItemType
	title  string
	parts  []string
	blocks []extract.Block
}

func (b *candidateBuilder) add(blk extract.Block) {
	b.parts = append(b.parts, blk.Text)
	b.blocks = append(b.blocks, blk)
}

func (b *candidateBuilder) empty() bool {
	return b.title == "" && len(b.parts) == 0
}

func (s *Segmenter) segmentBlocks(blocks []extract.Block, pageNumber int) []Candidate {
	median := medianFontSize(blocks)
	geom := newPageGeometry(blocks)

	var out []Candidate
	cur := &candidateBuilder{kind: store.ItemStory}

	flush := func() {
		if cur.empty() {
			return
		}
		out = append(out, Candidate{
			PageNumber: pageNumber,
			ItemType:   cur.kind,
			Title:      cur.title,
			Text:       strings.TrimSpace(strings.Join(cur.parts, "\n")),
			Bounds:     geom.bounds(cur.blocks),
		})
		cur = &candidateBuilder{kind: store.ItemStory}
	}

	for _, blk := range blocks {
		label := classifyBlock(blockContext{
			Block:         blk,
			MedianFont:    median,
			HeadlineScale: s.cfg.HeadlineFontScale,
			ClassifiedMax: s.cfg.ClassifiedMaxFontSize,
		})

		switch label {
		case labelHeadline:
			flush()
			cur.title = blk.Text
			cur.blocks = append(cur.blocks, blk)
		case labelClassified, labelAd:
			flush()
			single := &candidateBuilder{kind: itemTypeForLabel(label)}
			single.add(blk)
			out = append(out, Candidate{
				PageNumber: pageNumber,
				ItemType:   single.kind,
				Text:       blk.Text,
				Bounds:     geom.bounds(single.blocks),
			})
		default:
			cur.add(blk)
		}
	}
	flush()

	return out
}

// segmentText handles OCR output: paragraphs separated by blank lines, with
// a short shouting first line treated as a headline.
func (s *Segmenter) segmentText(text string, pageNumber int) []Candidate {
	paras := splitParagraphs(text)
	if len(paras) == 0 {
		return nil
	}

	var out []Candidate
	cur := &candidateBuilder{kind: store.ItemStory}
	start := 0

	total := len(paras)
	flush := func(end int) {
		if cur.empty() {
			return
		}
		out = append(out, Candidate{
			PageNumber: pageNumber,
			ItemType:   cur.kind,
			Title:      cur.title,
			Text:       strings.TrimSpace(strings.Join(cur.parts, "\n\n")),
			Bounds:     fractionBounds(start, end, total),
		})
		cur = &candidateBuilder{kind: store.ItemStory}
	}

	for i, p := range paras {
		switch {
		case looksLikeClassified(p):
			flush(i)
			out = append(out, Candidate{
				PageNumber: pageNumber,
				ItemType:   store.ItemClassified,
				Text:       p,
				Bounds:     fractionBounds(i, i+1, total),
			})
			start = i + 1
		case isHeadlineLine(p):
			flush(i)
			cur.title = p
			start = i
		case isShouting(p) && len(strings.Fields(p)) <= 12:
			flush(i)
			out = append(out, Candidate{
				PageNumber: pageNumber,
				ItemType:   store.ItemAd,
				Text:       p,
				Bounds:     fractionBounds(i, i+1, total),
			})
			start = i + 1
		default:
			if cur.empty() {
				start = i
			}
			cur.parts = append(cur.parts, p)
		}
	}
	flush(total)

	return out
}

// isHeadlineLine reports whether a paragraph reads like a standalone
// headline: one short line, title or upper case, no closing period.
func isHeadlineLine(p string) bool {
	if strings.Contains(p, "\n") {
		return false
	}
	words := strings.Fields(p)
	if len(words) < 2 || len(words) > 14 {
		return false
	}
	if strings.HasSuffix(p, ".") {
		return false
	}
	return isShouting(p) || isTitleCase(words)
}

// isTitleCase reports whether most words start with an upper-case letter.
func isTitleCase(words []string) bool {
	capped := 0
	for _, w := range words {
		r := []rune(w)[0]
		if r >= 'A' && r <= 'Z' {
			capped++
		}
	}
	return float64(capped) >= 0.7*float64(len(words))
}

func splitParagraphs(text string) []string {
	var out []string
	for _, p := range strings.Split(text, "\n\n") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func medianFontSize(blocks []extract.Block) float64 {
	sizes := make([]float64, 0, len(blocks))
	for _, b := range blocks {
		if b.FontSize > 0 {
			sizes = append(sizes, b.FontSize)
		}
	}
	if len(sizes) == 0 {
		return 0
	}
	sort.Float64s(sizes)
	mid := len(sizes) / 2
	if len(sizes)%2 == 0 {
		return (sizes[mid-1] + sizes[mid]) / 2
	}
	return sizes[mid]
}

// pageGeometry maps text-space block coordinates onto 0..1 page fractions.
// PDF text space has its origin at the bottom left; fractions are measured
// from the top left so readers and the UI agree on "top of page".
type pageGeometry struct {
	minX, maxX float64
	minY, maxY float64
}

func newPageGeometry(blocks []extract.Block) pageGeometry {
	g := pageGeometry{minX: math.Inf(1), maxX: math.Inf(-1), minY: math.Inf(1), maxY: math.Inf(-1)}
	for _, b := range blocks {
		g.minX = math.Min(g.minX, b.X)
		g.maxX = math.Max(g.maxX, b.X)
		g.minY = math.Min(g.minY, b.Y)
		g.maxY = math.Max(g.maxY, b.Y)
	}
	return g
}

func (g pageGeometry) bounds(blocks []extract.Block) store.BoundingBox {
	if len(blocks) == 0 || g.maxX <= g.minX || g.maxY <= g.minY {
		return store.BoundingBox{W: 1, H: 1}
	}
	minX, maxX := math.Inf(1), math.Inf(-1)
	minY, maxY := math.Inf(1), math.Inf(-1)
	for _, b := range blocks {
		minX = math.Min(minX, b.X)
		maxX = math.Max(maxX, b.X)
		minY = math.Min(minY, b.Y)
		maxY = math.Max(maxY, b.Y)
	}
	spanX := g.maxX - g.minX
	spanY := g.maxY - g.minY
	box := store.BoundingBox{
		X: (minX - g.minX) / spanX,
		Y: (g.maxY - maxY) / spanY,
		W: (maxX - minX) / spanX,
		H: (maxY - minY) / spanY,
	}
	return clampBox(box)
}

// fractionBounds approximates a vertical slice of the page for text-only
// segmentation, where no real coordinates exist.
func fractionBounds(start, end, total int) store.BoundingBox {
	if total <= 0 || end <= start {
		return store.BoundingBox{W: 1, H: 1}
	}
	return clampBox(store.BoundingBox{
		X: 0,
		Y: float64(start) / float64(total),
		W: 1,
		H: float64(end-start) / float64(total),
	})
}

func clampBox(b store.BoundingBox) store.BoundingBox {
	clamp := func(v float64) float64 { return math.Max(0, math.Min(1, v)) }
	b.X, b.Y = clamp(b.X), clamp(b.Y)
	b.W, b.H = clamp(b.W), clamp(b.H)
	if b.W == 0 {
		b.W = 0.01
	}
	if b.H == 0 {
		b.H = 0.01
	}
	return b
}
