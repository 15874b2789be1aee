// Package summarizer asks a text generator to turn the highest-ranked posts
// of a job into an overall summary and a list of product opportunities.
package summarizer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/FranksOps/painminer/internal/llm"
	"github.com/FranksOps/painminer/internal/metrics"
	"github.com/FranksOps/painminer/internal/storage"
)

const (
	// MaxDigestPosts is how many ranked posts are shown to the generator.
	MaxDigestPosts = 25
	// DigestBodyLength is the rune prefix of each body included in the digest.
	DigestBodyLength = 300

	NoPostsSummary  = "No posts found to analyze."
	FailedSummary   = "AI Analysis failed or timed out."
	NoResultSummary = "AI Analysis returned no usable result."

	MinConfidence = 1
	MaxConfidence = 10
)

// Outcomes reported in Result.Outcome and as metric labels.
const (
	OutcomeEmpty       = "empty"
	OutcomeOK          = "ok"
	OutcomeError       = "error"
	OutcomeUnparseable = "unparseable"
)

const promptTemplate = `Analyze these Reddit posts for startup opportunities. Return JSON only:
{
  "summary": "2-sentence opportunity summary",
  "top_opportunities": [
    {
      "name": "product name",
      "problem": "one sentence problem",
      "target_user": "who has this problem",
      "pricing": "low/medium/high",
      "confidence": 1-10,
      "validation_test": "cheapest experiment that would confirm demand",
      "description": "brief description"
    }
  ]
}

POSTS:
%s`

// Result is the outcome of one summarization pass. Opportunities carry no
// JobID; the caller assigns it when persisting.
type Result struct {
	Summary       string
	Opportunities []*storage.Opportunity
	Outcome       string
	// Err is the generator or parse error behind a fallback summary.
	Err error
}

// Option configures a Summarizer.
type Option func(*Summarizer)

// WithTimeout bounds the generator call.
func WithTimeout(d time.Duration) Option { return func(s *Summarizer) { s.timeout = d } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(s *Summarizer) { s.logger = l } }

type Summarizer struct {
	gen     llm.Generator
	timeout time.Duration
	logger  *slog.Logger
}

func New(gen llm.Generator, opts ...Option) *Summarizer {
	s := &Summarizer{gen: gen, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Summarize never fails: generator and parse failures map to fallback
// summaries with no opportunities.
func (s *Summarizer) Summarize(ctx context.Context, posts []*storage.RankedPost) Result {
	if len(posts) > MaxDigestPosts {
		posts = posts[:MaxDigestPosts]
	}
	if len(posts) == 0 {
		metrics.RecordSummarize(OutcomeEmpty, 0)
		return Result{Summary: NoPostsSummary, Outcome: OutcomeEmpty}
	}

	prompt := BuildPrompt(posts)

	callCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	text, err := s.gen.Generate(callCtx, prompt)
	elapsed := time.Since(start)
	if err != nil {
		s.logger.Warn("opportunity generation failed", "error", err, "duration", elapsed)
		metrics.RecordSummarize(OutcomeError, elapsed)
		return Result{Summary: FailedSummary, Outcome: OutcomeError, Err: err}
	}

	summary, opps, err := Parse(text)
	if err != nil {
		s.logger.Warn("opportunity response unusable", "error", err, "response_bytes", len(text))
		metrics.RecordSummarize(OutcomeUnparseable, elapsed)
		return Result{Summary: NoResultSummary, Outcome: OutcomeUnparseable, Err: err}
	}

	metrics.RecordSummarize(OutcomeOK, elapsed)
	s.logger.Debug("opportunities generated", "count", len(opps), "duration", elapsed)
	return Result{Summary: summary, Opportunities: opps, Outcome: OutcomeOK}
}

// BuildDigest renders posts as numbered blocks separated by blank lines.
func BuildDigest(posts []*storage.RankedPost) string {
	blocks := make([]string, 0, len(posts))
	for i, p := range posts {
		blocks = append(blocks, fmt.Sprintf("POST #%d [Pain: %d/10]\nr/%s: %s\n%s...",
			i+1, p.PainScore, p.Source, p.Title, prefixRunes(p.Body, DigestBodyLength)))
	}
	return strings.Join(blocks, "\n\n")
}

// BuildPrompt embeds the digest of posts in the instruction template.
func BuildPrompt(posts []*storage.RankedPost) string {
	return fmt.Sprintf(promptTemplate, BuildDigest(posts))
}

// ErrNoJSON is returned when a response contains no decodable JSON object.
var ErrNoJSON = errors.New("no JSON object in response")

// ExtractJSON returns the first complete JSON object embedded in text,
// ignoring any surrounding prose.
func ExtractJSON(text string) (json.RawMessage, error) {
	for i := strings.IndexByte(text, '{'); i >= 0; {
		var raw json.RawMessage
		if err := json.NewDecoder(strings.NewReader(text[i:])).Decode(&raw); err == nil {
			return raw, nil
		}
		next := strings.IndexByte(text[i+1:], '{')
		if next < 0 {
			break
		}
		i += next + 1
	}
	return nil, ErrNoJSON
}

type response struct {
	Summary          string      `json:"summary"`
	TopOpportunities []candidate `json:"top_opportunities"`
}

type candidate struct {
	Name           string          `json:"name"`
	Problem        string          `json:"problem"`
	TargetUser     string          `json:"target_user"`
	Pricing        string          `json:"pricing"`
	Confidence     json.RawMessage `json:"confidence"`
	ValidationTest string          `json:"validation_test"`
	Description    string          `json:"description"`
}

// Parse extracts the summary and opportunities from a generator response.
// Candidates without a name or problem are dropped.
func Parse(text string) (string, []*storage.Opportunity, error) {
	raw, err := ExtractJSON(text)
	if err != nil {
		return "", nil, err
	}

	var r response
	if err := json.Unmarshal(raw, &r); err != nil {
		return "", nil, fmt.Errorf("decode response: %w", err)
	}

	summary := strings.TrimSpace(r.Summary)
	if summary == "" {
		summary = NoResultSummary
	}

	opps := make([]*storage.Opportunity, 0, len(r.TopOpportunities))
	for _, c := range r.TopOpportunities {
		name := strings.TrimSpace(c.Name)
		problem := strings.TrimSpace(c.Problem)
		if name == "" || problem == "" {
			continue
		}
		opps = append(opps, &storage.Opportunity{
			Name:           name,
			Problem:        problem,
			TargetUser:     strings.TrimSpace(c.TargetUser),
			Pricing:        strings.TrimSpace(c.Pricing),
			Confidence:     parseConfidence(c.Confidence),
			ValidationTest: strings.TrimSpace(c.ValidationTest),
			Description:    strings.TrimSpace(c.Description),
		})
	}
	return summary, opps, nil
}

// parseConfidence accepts a JSON number or a string starting with one
// ("8", "7.5", "8/10") and clamps it to [MinConfidence, MaxConfidence].
// Anything else yields MinConfidence.
func parseConfidence(raw json.RawMessage) int {
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return MinConfidence
		}
		s = strings.TrimSpace(s)
		end := 0
		for end < len(s) && (s[end] == '.' || s[end] == '-' || (s[end] >= '0' && s[end] <= '9')) {
			end++
		}
		f, err = strconv.ParseFloat(s[:end], 64)
		if err != nil {
			return MinConfidence
		}
	}
	switch {
	case math.IsNaN(f) || f < MinConfidence:
		return MinConfidence
	case f > MaxConfidence:
		return MaxConfidence
	}
	return int(math.Round(f))
}

func prefixRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
