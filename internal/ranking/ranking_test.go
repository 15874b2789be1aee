package ranking

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/FranksOps/painminer/internal/scraper"
)

func post(id, source, title, body string) scraper.RawPost {
	return scraper.RawPost{NativeID: id, Source: source, Title: title, Body: body, Permalink: "/r/" + source + "/comments/" + id}
}

func TestRank_OrderAndStability(t *testing.T) {
	raw := []scraper.RawPost{
		post("p1", "a", "Just a normal update here", "nothing to see, all fine today"),
		post("p2", "a", "Manual process is so frustrating", "I hate it"),
		post("p3", "b", "Another calm and uneventful post", "all good over here"),
		post("p4", "b", "Is there a tool? What do you use?", "looking around"),
	}

	got := New(nil).Rank(7, raw)
	if len(got) != 4 {
		t.Fatalf("expected 4 posts, got %d", len(got))
	}

	for i := 1; i < len(got); i++ {
		if got[i-1].PainScore < got[i].PainScore {
			t.Errorf("not sorted descending at %d: %d < %d", i, got[i-1].PainScore, got[i].PainScore)
		}
	}

	// p1 and p3 both score 0; discovery order must hold.
	var zeros []string
	for _, p := range got {
		if p.JobID != 7 {
			t.Errorf("expected JobID 7, got %d", p.JobID)
		}
		if p.PainScore == 0 {
			zeros = append(zeros, p.NativeID)
		}
	}
	if strings.Join(zeros, ",") != "p1,p3" {
		t.Errorf("expected stable tie order p1,p3, got %v", zeros)
	}
}

func TestRank_MinTextLength(t *testing.T) {
	raw := []scraper.RawPost{
		post("short", "a", "Short", ""),              // "Short " = 6 runes
		post("edge", "a", "1234567890123456789", ""), // 19 + 1 space = 20 runes
		post("under", "a", "123456789012345678", ""), // 19 runes
		post("wide", "a", "ééééééééééééééééééé", ""), // 19 two-byte runes + space = 20 runes
	}

	got := New(nil).Rank(1, raw)
	ids := map[string]bool{}
	for _, p := range got {
		ids[p.NativeID] = true
	}
	if ids["short"] || ids["under"] {
		t.Errorf("expected short posts to be discarded: %v", ids)
	}
	if !ids["edge"] || !ids["wide"] {
		t.Errorf("expected 20-rune posts to be kept: %v", ids)
	}
}

func TestRank_BodyTruncatedAfterScoring(t *testing.T) {
	body := strings.Repeat("x", MaxBodyLength) + " I hate this manual process"
	got := New(nil).Rank(1, []scraper.RawPost{post("long", "a", "A long title for this post", body)})
	if len(got) != 1 {
		t.Fatalf("expected 1 post, got %d", len(got))
	}
	if n := utf8.RuneCountInString(got[0].Body); n != MaxBodyLength {
		t.Errorf("expected body of %d runes, got %d", MaxBodyLength, n)
	}
	if got[0].PainScore == 0 {
		t.Error("expected the score to include text beyond the truncation point")
	}
}

func TestRank_Cap(t *testing.T) {
	var raw []scraper.RawPost
	for i := 0; i < 150; i++ {
		raw = append(raw, post(fmt.Sprintf("p%d", i), "a", "A sufficiently long title number", ""))
	}
	if got := New(nil).Rank(1, raw); len(got) != MaxPosts {
		t.Errorf("expected %d posts, got %d", MaxPosts, len(got))
	}
	if got := New(nil, WithMaxPosts(5)).Rank(1, raw); len(got) != 5 {
		t.Errorf("expected 5 posts, got %d", len(got))
	}
}

func TestRank_NoDedupAcrossSources(t *testing.T) {
	raw := []scraper.RawPost{
		post("same", "a", "Crossposted complaint about manual work", ""),
		post("same", "b", "Crossposted complaint about manual work", ""),
	}
	got := New(nil).Rank(1, raw)
	if len(got) != 2 {
		t.Fatalf("expected both copies kept, got %d", len(got))
	}
	if got[0].URL != "https://reddit.com/r/a/comments/same" {
		t.Errorf("unexpected URL %s", got[0].URL)
	}
}

func TestRank_Empty(t *testing.T) {
	if got := New(nil).Rank(1, nil); len(got) != 0 {
		t.Errorf("expected no posts, got %d", len(got))
	}
}

func TestTruncateRunes(t *testing.T) {
	if got := truncateRunes("héllo", 2); got != "hé" {
		t.Errorf("truncateRunes = %q", got)
	}
	if got := truncateRunes("abc", 5); got != "abc" {
		t.Errorf("truncateRunes = %q", got)
	}
}

func TestRank_CreatedAtFromSource(t *testing.T) {
	p := post("t", "a", "A title long enough to be kept", "")
	p.CreatedUTC = 1700000000
	got := New(nil).Rank(1, []scraper.RawPost{p})
	if len(got) != 1 {
		t.Fatalf("expected 1 post, got %d", len(got))
	}
	if got[0].CreatedAt.Unix() != 1700000000 {
		t.Errorf("unexpected CreatedAt %v", got[0].CreatedAt)
	}
}

func TestRankComments(t *testing.T) {
	comments := []scraper.Comment{
		{ID: "c1", Body: "I hate this, so frustrating"},
		{ID: "c2", Body: "looking for a tool"},
		{ID: "c3", Body: "This is a nightmare"},
		{ID: "c4", Body: "Annoying and terrible", Depth: 2},
		{ID: "c5", Body: "ok"},
	}

	got := New(nil).RankComments(comments, MinCommentPain)

	var ids []string
	for _, c := range got {
		ids = append(ids, fmt.Sprintf("%s=%d", c.ID, c.PainScore))
	}
	if strings.Join(ids, ",") != "c1=8,c4=8,c3=4" {
		t.Errorf("ranked comments = %v", ids)
	}
	if got[1].Depth != 2 || got[0].Signals["frustrated"] != 2 {
		t.Errorf("comment fields not carried: %+v", got[:2])
	}

	if all := New(nil).RankComments(comments, 0); len(all) != len(comments) {
		t.Errorf("threshold 0 kept %d of %d", len(all), len(comments))
	}
}
