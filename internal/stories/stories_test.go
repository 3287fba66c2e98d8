package stories

import (
	"strings"
	"testing"

	"github.com/broadsheet-archive/broadsheet/internal/config"
	"github.com/broadsheet-archive/broadsheet/internal/store"
)

func testGrouper() *Grouper {
	return NewGrouper(config.StoriesCfg{HeadlineSimilarity: 0.5, ExcerptLength: 280})
}

func storyItem(id string, page int, title, text string) *store.Item {
	return &store.Item{
		ID: id, EditionID: "ed-1", PageNumber: page,
		ItemType: store.ItemStory, Title: title, Text: text,
	}
}

func TestGroupContinuationMarker(t *testing.T) {
	items := []*store.Item{
		storyItem("it-1", 1, "Flood Recovery Begins", "Work started this week. Continued on page 6."),
		storyItem("it-2", 3, "Market Report", "Prices held steady."),
		storyItem("it-6", 6, "", "Continued from page 1. Crews cleared the northern district."),
	}

	groups := testGrouper().Group("ed-1", items)
	if len(groups) != 2 {
		t.Fatalf("got %d groups, want 2: %+v", len(groups), groups)
	}

	flood := groups[0]
	if flood.Title != "Flood Recovery Begins" {
		t.Errorf("title = %q", flood.Title)
	}
	if len(flood.Pages) != 2 || flood.Pages[0] != 1 || flood.Pages[1] != 6 {
		t.Errorf("pages = %v", flood.Pages)
	}
	if len(flood.ItemIDs) != 2 {
		t.Errorf("item_ids = %v", flood.ItemIDs)
	}
	if !strings.Contains(flood.FullText, "Work started") || !strings.Contains(flood.FullText, "northern district") {
		t.Errorf("full_text = %q", flood.FullText)
	}

	market := groups[1]
	if market.Title != "Market Report" || len(market.ItemIDs) != 1 {
		t.Errorf("market = %+v", market)
	}
}

func TestGroupHeadlineSimilarity(t *testing.T) {
	items := []*store.Item{
		storyItem("it-1", 2, "County Budget Debate Rages", "The debate opened on Monday."),
		storyItem("it-2", 3, "Budget Debate Rages On", "Members clashed over allocations."),
		// Same headline but three pages away: not linked by similarity.
		storyItem("it-3", 6, "County Budget Debate Rages", "A reprint elsewhere."),
	}

	groups := testGrouper().Group("ed-1", items)
	if len(groups) != 2 {
		t.Fatalf("got %d groups, want 2: %+v", len(groups), groups)
	}
	if len(groups[0].ItemIDs) != 2 {
		t.Errorf("first group = %+v", groups[0])
	}
	if len(groups[1].ItemIDs) != 1 {
		t.Errorf("second group = %+v", groups[1])
	}
}

func TestGroupIgnoresNonStories(t *testing.T) {
	items := []*store.Item{
		{ID: "ad-1", PageNumber: 1, ItemType: store.ItemAd, Text: "BIG SALE"},
		{ID: "cl-1", PageNumber: 1, ItemType: store.ItemClassified, Text: "For sale: bicycle"},
	}
	if groups := testGrouper().Group("ed-1", items); groups != nil {
		t.Errorf("groups = %+v, want none", groups)
	}
}

func TestGroupSingleItem(t *testing.T) {
	items := []*store.Item{
		storyItem("it-1", 4, "Lone Story", "Nothing links to this."),
	}
	groups := testGrouper().Group("ed-1", items)
	if len(groups) != 1 {
		t.Fatalf("got %d groups", len(groups))
	}
	g := groups[0]
	if g.Title != "Lone Story" || len(g.Pages) != 1 || g.Pages[0] != 4 {
		t.Errorf("group = %+v", g)
	}
	if len(g.ID) != 32 {
		t.Errorf("id = %q", g.ID)
	}
}

func TestGroupIdempotent(t *testing.T) {
	items := func() []*store.Item {
		return []*store.Item{
			storyItem("it-1", 1, "Flood Recovery Begins", "Continued on page 2."),
			storyItem("it-2", 2, "", "Continued from page 1. More text."),
			storyItem("it-3", 5, "Sports Roundup", "Results from the weekend."),
		}
	}

	first := testGrouper().Group("ed-1", items())
	second := testGrouper().Group("ed-1", items())
	if len(first) != len(second) {
		t.Fatalf("group counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Errorf("group %d id changed: %q vs %q", i, first[i].ID, second[i].ID)
		}
	}

	// A different edition yields different ids for the same items.
	other := testGrouper().Group("ed-2", items())
	if other[0].ID == first[0].ID {
		t.Error("group id should depend on edition")
	}
}

func TestTokenJaccard(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		min  float64
		max  float64
	}{
		{"identical", "Budget Debate Rages", "Budget Debate Rages", 1, 1},
		{"disjoint", "Budget Debate", "Harvest Festival", 0, 0},
		{"partial", "County Budget Debate Rages", "Budget Debate Rages On", 0.5, 0.7},
		{"case and punctuation ignored", "budget, debate!", "Budget Debate", 1, 1},
		{"empty", "", "Budget", 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tokenJaccard(tt.a, tt.b)
			if got < tt.min || got > tt.max {
				t.Errorf("tokenJaccard(%q, %q) = %v, want in [%v, %v]", tt.a, tt.b, got, tt.min, tt.max)
			}
		})
	}
}

func TestExcerpt(t *testing.T) {
	long := strings.Repeat("word ", 100)
	got := excerpt(long, 50)
	if !strings.HasSuffix(got, "…") {
		t.Errorf("excerpt = %q", got)
	}
	if len([]rune(got)) > 52 {
		t.Errorf("excerpt too long: %d runes", len([]rune(got)))
	}
	if strings.HasSuffix(strings.TrimSuffix(got, "…"), "wor") {
		t.Errorf("excerpt cut mid-word: %q", got)
	}

	short := "fits entirely"
	if got := excerpt(short, 280); got != short {
		t.Errorf("short excerpt = %q", got)
	}
}

func TestMarkerLinkAnyDistance(t *testing.T) {
	a := storyItem("it-1", 1, "Front Page Lead", "Continued on page 9.")
	b := storyItem("it-9", 9, "", "The story concludes here.")
	if !linked(a, b, 0.5) {
		t.Error("marker link should span any page distance")
	}

	// Marker pointing at a different page does not link.
	c := storyItem("it-5", 5, "", "Unrelated text.")
	if linked(a, c, 0.5) {
		t.Error("marker should only link the named page")
	}
}
