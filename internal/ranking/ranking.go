// Package ranking turns raw fetched posts into the scored, ordered list that
// is persisted for a search job.
package ranking

import (
	"math"
	"sort"
	"time"
	"unicode/utf8"

	"github.com/FranksOps/painminer/internal/analyzer"
	"github.com/FranksOps/painminer/internal/scraper"
	"github.com/FranksOps/painminer/internal/storage"
)

const (
	// MinTextLength is the minimum rune count of title+" "+body for a post to be kept.
	MinTextLength = 20
	// MaxBodyLength is the rune cap applied to stored bodies.
	MaxBodyLength = 5000
	// MaxPosts is the number of ranked posts kept per job.
	MaxPosts = 100
	// MinCommentPain is the default threshold for listing a thread comment.
	MinCommentPain = 3
)

// Option configures an Aggregator.
type Option func(*Aggregator)

func WithMinTextLength(n int) Option { return func(a *Aggregator) { a.minText = n } }
func WithMaxBodyLength(n int) Option { return func(a *Aggregator) { a.maxBody = n } }
func WithMaxPosts(n int) Option      { return func(a *Aggregator) { a.maxPosts = n } }

// Aggregator filters, scores, orders and truncates fetched posts.
type Aggregator struct {
	scorer   *analyzer.Scorer
	minText  int
	maxBody  int
	maxPosts int
}

// New returns an Aggregator using scorer, or the default rules when nil.
func New(scorer *analyzer.Scorer, opts ...Option) *Aggregator {
	if scorer == nil {
		scorer = analyzer.NewScorer()
	}
	a := &Aggregator{
		scorer:   scorer,
		minText:  MinTextLength,
		maxBody:  MaxBodyLength,
		maxPosts: MaxPosts,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Rank scores raw in discovery order and returns at most MaxPosts posts
// ordered by pain score descending. Ties keep discovery order. The score is
// computed on the full text before the body is truncated.
func (a *Aggregator) Rank(jobID int64, raw []scraper.RawPost) []*storage.RankedPost {
	ranked := make([]*storage.RankedPost, 0, len(raw))
	for _, p := range raw {
		text := p.Title + " " + p.Body
		if utf8.RuneCountInString(text) < a.minText {
			continue
		}

		score, signals := a.scorer.Score(text)
		ranked = append(ranked, &storage.RankedPost{
			JobID:       jobID,
			NativeID:    p.NativeID,
			Source:      p.Source,
			Title:       p.Title,
			Body:        truncateRunes(p.Body, a.maxBody),
			Upvotes:     p.Score,
			NumComments: p.NumComments,
			URL:         p.URL(),
			PainScore:   score,
			Signals:     signals,
			CreatedAt:   postTime(p.CreatedUTC),
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].PainScore > ranked[j].PainScore
	})

	if len(ranked) > a.maxPosts {
		ranked = ranked[:a.maxPosts]
	}
	return ranked
}

// ScoredComment is a thread comment with its pain score.
type ScoredComment struct {
	scraper.Comment
	PainScore int            `json:"painScore"`
	Signals   map[string]int `json:"signals"`
}

// RankComments scores every comment and keeps those at or above minPain,
// ordered by pain descending. Ties keep thread order.
func (a *Aggregator) RankComments(comments []scraper.Comment, minPain int) []ScoredComment {
	out := make([]ScoredComment, 0, len(comments))
	for _, c := range comments {
		score, signals := a.scorer.Score(c.Body)
		if score < minPain {
			continue
		}
		out = append(out, ScoredComment{Comment: c, PainScore: score, Signals: signals})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].PainScore > out[j].PainScore
	})
	return out
}

func postTime(epoch float64) time.Time {
	if epoch <= 0 {
		return time.Now().UTC()
	}
	sec, frac := math.Modf(epoch)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC()
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
