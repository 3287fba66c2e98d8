// Package stories merges continuation items spanning multiple pages into
// logical story groups.
package stories

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"sort"
	"strings"

	"github.com/broadsheet-archive/broadsheet/internal/config"
	"github.com/broadsheet-archive/broadsheet/internal/store"
)

// Grouper links STORY items across pages into StoryGroups.
type Grouper struct {
	cfg config.StoriesCfg
}

// NewGrouper creates a grouper with the given thresholds.
func NewGrouper(cfg config.StoriesCfg) *Grouper {
	if cfg.HeadlineSimilarity <= 0 {
		cfg.HeadlineSimilarity = 0.5
	}
	if cfg.ExcerptLength <= 0 {
		cfg.ExcerptLength = 280
	}
	return &Grouper{cfg: cfg}
}

var (
	continuedOnRe   = regexp.MustCompile(`(?i)continued\s+on\s+page\s+(\d+)`)
	continuedFromRe = regexp.MustCompile(`(?i)continued\s+from\s+page\s+(\d+)`)
)

// Group computes story groups for one edition's items. Only STORY items
// participate. Linking is a similarity relation between items on different
// pages: an explicit "continued on/from page N" marker, or headline token
// overlap at or above the configured threshold on consecutive pages.
// Connected components become groups via index-based union-find, so the
// result is deterministic for a given item set.
func (g *Grouper) Group(editionID string, items []*store.Item) []*store.StoryGroup {
	var storyItems []*store.Item
	for _, it := range items {
		if it.ItemType == store.ItemStory {
			storyItems = append(storyItems, it)
		}
	}
	if len(storyItems) == 0 {
		return nil
	}

	// Stable input order: page, then on-page position, then id.
	sort.SliceStable(storyItems, func(i, j int) bool {
		a, b := storyItems[i], storyItems[j]
		if a.PageNumber != b.PageNumber {
			return a.PageNumber < b.PageNumber
		}
		if a.Bounds.Y != b.Bounds.Y {
			return a.Bounds.Y < b.Bounds.Y
		}
		return a.ID < b.ID
	})

	uf := newUnionFind(len(storyItems))
	for i := 0; i < len(storyItems); i++ {
		for j := i + 1; j < len(storyItems); j++ {
			if linked(storyItems[i], storyItems[j], g.cfg.HeadlineSimilarity) {
				uf.union(i, j)
			}
		}
	}

	// Collect components preserving first-seen order.
	components := make(map[int][]int)
	var roots []int
	for i := range storyItems {
		r := uf.find(i)
		if _, seen := components[r]; !seen {
			roots = append(roots, r)
		}
		components[r] = append(components[r], i)
	}

	var groups []*store.StoryGroup
	for _, r := range roots {
		groups = append(groups, g.buildGroup(editionID, storyItems, components[r]))
	}
	return groups
}

// linked reports whether two story items belong to the same story.
func linked(a, b *store.Item, similarity float64) bool {
	if a.PageNumber == b.PageNumber {
		return false
	}
	if markerLink(a, b) || markerLink(b, a) {
		return true
	}
	// Headline matching only applies across adjacent pages.
	diff := a.PageNumber - b.PageNumber
	if diff != 1 && diff != -1 {
		return false
	}
	return a.Title != "" && b.Title != "" &&
		tokenJaccard(a.Title, b.Title) >= similarity
}

// markerLink reports whether a's text points at b's page with a continuation
// marker, or b declares it continues from a's page.
func markerLink(a, b *store.Item) bool {
	if m := continuedOnRe.FindStringSubmatch(a.Text); m != nil && atoi(m[1]) == b.PageNumber {
		return true
	}
	if m := continuedFromRe.FindStringSubmatch(b.Text); m != nil && atoi(m[1]) == a.PageNumber {
		return true
	}
	return false
}

func (g *Grouper) buildGroup(editionID string, items []*store.Item, idxs []int) *store.StoryGroup {
	sort.Ints(idxs)

	grp := &store.StoryGroup{EditionID: editionID}
	var texts []string
	seenPages := make(map[int]bool)
	for _, i := range idxs {
		it := items[i]
		if grp.Title == "" && it.Title != "" {
			grp.Title = it.Title
		}
		if !seenPages[it.PageNumber] {
			seenPages[it.PageNumber] = true
			grp.Pages = append(grp.Pages, it.PageNumber)
		}
		grp.ItemIDs = append(grp.ItemIDs, it.ID)
		texts = append(texts, it.Text)
	}
	sort.Ints(grp.Pages)

	grp.FullText = strings.Join(texts, "\n\n")
	grp.Excerpt = excerpt(grp.FullText, g.cfg.ExcerptLength)
	// Content-derived id keeps regrouping idempotent: the same item set
	// always yields the same group ids.
	grp.ID = groupID(editionID, grp.ItemIDs)
	return grp
}

// excerpt returns the leading n runes, cut at a word boundary when possible.
func excerpt(text string, n int) string {
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	cut := string(runes[:n])
	if i := strings.LastIndexByte(cut, ' '); i > n/2 {
		cut = cut[:i]
	}
	return cut + "…"
}

func groupID(editionID string, itemIDs []string) string {
	h := sha256.New()
	h.Write([]byte(editionID))
	for _, id := range itemIDs {
		h.Write([]byte{0})
		h.Write([]byte(id))
	}
	return hex.EncodeToString(h.Sum(nil))[:32]
}

// tokenJaccard computes token-set Jaccard similarity of two headlines.
func tokenJaccard(a, b string) float64 {
	as, bs := tokenSet(a), tokenSet(b)
	if len(as) == 0 || len(bs) == 0 {
		return 0
	}
	inter := 0
	for t := range as {
		if bs[t] {
			inter++
		}
	}
	union := len(as) + len(bs) - inter
	return float64(inter) / float64(union)
}

func tokenSet(s string) map[string]bool {
	out := make(map[string]bool)
	for _, t := range strings.Fields(strings.ToLower(s)) {
		t = strings.Trim(t, ".,;:!?\"'()")
		if len(t) > 1 {
			out[t] = true
		}
	}
	return out
}

func atoi(s string) int {
	n := 0
	for _, r := range s {
		n = n*10 + int(r-'0')
	}
	return n
}

// unionFind is a standard index-based disjoint set with path compression.
type unionFind struct {
	parent []int
	rank   []int
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{parent: make([]int, n), rank: make([]int, n)}
	for i := range uf.parent {
		uf.parent[i] = i
	}
	return uf
}

func (u *unionFind) find(i int) int {
	for u.parent[i] != i {
		u.parent[i] = u.parent[u.parent[i]]
		i = u.parent[i]
	}
	return i
}

func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	if u.rank[ra] < u.rank[rb] {
		ra, rb = rb, ra
	}
	u.parent[rb] = ra
	if u.rank[ra] == u.rank[rb] {
		u.rank[ra]++
	}
}
