package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/FranksOps/painminer/internal/analyzer"
	"github.com/FranksOps/painminer/internal/pipeline"
	"github.com/FranksOps/painminer/internal/storage"
	"github.com/fatih/color"
)

// Pain bands used by the distribution chart.
const (
	BandLow    = "low"
	BandMedium = "medium"
	BandHigh   = "high"
)

// Band classifies a pain score.
func Band(score int) string {
	switch {
	case score >= 7:
		return BandHigh
	case score >= 4:
		return BandMedium
	default:
		return BandLow
	}
}

// Summary contains aggregated figures about one search job.
type Summary struct {
	JobID         int64                      `json:"jobId"`
	Query         string                     `json:"query"`
	Status        string                     `json:"status"`
	Summary       string                     `json:"summary,omitempty"`
	CreatedAt     time.Time                  `json:"createdAt"`
	TotalPosts    int                        `json:"totalPosts"`
	AveragePain   float64                    `json:"averagePain"`
	MaxPain       int                        `json:"maxPain"`
	Histogram     [analyzer.MaxScore + 1]int `json:"histogram"`
	Bands         map[string]int             `json:"bands"`
	Signals       map[string]int             `json:"signals"`
	PostsBySource map[string]int             `json:"postsBySource"`
	Opportunities int                        `json:"opportunities"`
}

// GenerateSummary aggregates a job's posts and opportunities.
func GenerateSummary(d *pipeline.JobDetails) Summary {
	s := Summary{
		Bands:         map[string]int{BandLow: 0, BandMedium: 0, BandHigh: 0},
		Signals:       make(map[string]int),
		PostsBySource: make(map[string]int),
	}
	if d == nil || d.SearchJob == nil {
		return s
	}

	s.JobID = d.ID
	s.Query = d.Query
	s.Status = string(d.Status)
	s.Summary = d.Summary
	s.CreatedAt = d.CreatedAt
	s.Opportunities = len(d.Opportunities)

	total := 0
	for _, p := range d.Posts {
		s.TotalPosts++
		total += p.PainScore
		if p.PainScore > s.MaxPain {
			s.MaxPain = p.PainScore
		}
		if p.PainScore >= 0 && p.PainScore <= analyzer.MaxScore {
			s.Histogram[p.PainScore]++
		}
		s.Bands[Band(p.PainScore)]++
		s.PostsBySource[p.Source]++
		for name, n := range p.Signals {
			s.Signals[name] += n
		}
	}
	if s.TotalPosts > 0 {
		s.AveragePain = float64(total) / float64(s.TotalPosts)
	}
	return s
}

// WriteJSON writes the summary to the provided writer in JSON format.
func WriteJSON(w io.Writer, summary Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	return nil
}

var csvHeader = []string{"rank", "pain_score", "subreddit", "title", "score", "num_comments", "url", "signals"}

// WriteCSV exports the job's posts in rank order.
func WriteCSV(w io.Writer, d *pipeline.JobDetails) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for i, p := range d.Posts {
		rec := []string{
			strconv.Itoa(i + 1),
			strconv.Itoa(p.PainScore),
			p.Source,
			p.Title,
			strconv.Itoa(p.Upvotes),
			strconv.Itoa(p.NumComments),
			p.URL,
			formatSignals(p.Signals),
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// formatSignals renders non-zero signal counts as "name=n" pairs sorted by name.
func formatSignals(signals map[string]int) string {
	names := make([]string, 0, len(signals))
	for name, n := range signals {
		if n > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = fmt.Sprintf("%s=%d", name, signals[name])
	}
	return strings.Join(parts, " ")
}

// TextOptions controls WriteText.
type TextOptions struct {
	// TopPosts limits the listed posts; zero means 10.
	TopPosts int
	// Evidence, when set, quotes the sentences that triggered each signal
	// under every listed post.
	Evidence *analyzer.Scorer
}

// WriteText writes a human-readable, colored report. Color output follows
// color.NoColor.
func WriteText(w io.Writer, d *pipeline.JobDetails, opts TextOptions) error {
	if opts.TopPosts <= 0 {
		opts.TopPosts = 10
	}
	s := GenerateSummary(d)

	bold := color.New(color.Bold).SprintFunc()
	cyan := color.New(color.FgCyan).SprintFunc()
	bandColor := map[string]func(a ...any) string{
		BandLow:    color.New(color.FgGreen).SprintFunc(),
		BandMedium: color.New(color.FgYellow).SprintFunc(),
		BandHigh:   color.New(color.FgRed).SprintFunc(),
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s #%d %q [%s]\n", bold("Search"), s.JobID, s.Query, s.Status)
	if s.Summary != "" {
		fmt.Fprintf(&b, "%s\n", s.Summary)
	}
	fmt.Fprintf(&b, "\nPosts: %d  Avg pain: %.1f  Max pain: %d  Opportunities: %d\n", s.TotalPosts, s.AveragePain, s.MaxPain, s.Opportunities)

	fmt.Fprintf(&b, "\n%s\n", bold("Pain distribution"))
	widest := 0
	for _, n := range s.Histogram {
		widest = max(widest, n)
	}
	for score, n := range s.Histogram {
		bar := ""
		if widest > 0 {
			bar = strings.Repeat("#", (n*30+widest-1)/widest)
		}
		fmt.Fprintf(&b, "%2d | %s %d\n", score, bandColor[Band(score)](bar), n)
	}

	if len(d.Posts) > 0 {
		fmt.Fprintf(&b, "\n%s\n", bold("Top posts"))
		for i, p := range d.Posts {
			if i >= opts.TopPosts {
				break
			}
			fmt.Fprintf(&b, "%3d. %s r/%s %s\n     %s\n", i+1,
				bandColor[Band(p.PainScore)](fmt.Sprintf("[%d/10]", p.PainScore)),
				p.Source, p.Title, cyan(p.URL))
			if opts.Evidence != nil {
				for _, ev := range opts.Evidence.Evidence(p.Title + "\n" + p.Body) {
					quote := ""
					if len(ev.Sentences) > 0 {
						quote = clip(ev.Sentences[0], evidenceWidth)
					}
					fmt.Fprintf(&b, "     %s x%d: %q\n", ev.Signal, ev.Count, quote)
				}
			}
		}
	}

	if len(d.Opportunities) > 0 {
		fmt.Fprintf(&b, "\n%s\n", bold("Opportunities"))
		for _, o := range d.Opportunities {
			writeOpportunity(&b, o)
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

const evidenceWidth = 100

func writeOpportunity(b *strings.Builder, o *storage.Opportunity) {
	bold := color.New(color.Bold).SprintFunc()
	fmt.Fprintf(b, "  * %s (confidence %d/10, pricing %s)\n    %s\n", bold(o.Name), o.Confidence, o.Pricing, o.Problem)
	if o.TargetUser != "" {
		fmt.Fprintf(b, "    for: %s\n", o.TargetUser)
	}
	if o.ValidationTest != "" {
		fmt.Fprintf(b, "    validate: %s\n", o.ValidationTest)
	}
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

var htmlReport = template.Must(template.New("htmlReport").Funcs(template.FuncMap{
	"band": Band,
}).Parse(`<!DOCTYPE html>
<html>
<head>
<title>PainMiner Report #{{.Summary.JobID}}</title>
<style>
  body { font-family: sans-serif; margin: 40px; color: #333; }
  h1 { border-bottom: 2px solid #ccc; padding-bottom: 10px; }
  .stat-card { display: inline-block; padding: 20px; margin: 10px 10px 10px 0; background: #f4f4f4; border-radius: 5px; min-width: 150px; }
  .stat-val { font-size: 24px; font-weight: bold; }
  table { border-collapse: collapse; margin-top: 10px; }
  th, td { padding: 8px 12px; border: 1px solid #ccc; text-align: left; }
  th { background: #eaeaea; }
  .low { color: #2b7bd6; } .medium { color: #e8912d; } .high { color: #d9534f; }
</style>
</head>
<body>
  <h1>PainMiner Report: {{.Summary.Query}}</h1>
  <p><strong>Status:</strong> {{.Summary.Status}} &middot; {{.Summary.CreatedAt.Format "2006-01-02 15:04:05"}}</p>
  {{- if .Summary.Summary}}
  <p>{{.Summary.Summary}}</p>
  {{- end}}

  <div class="stat-card"><div>Posts</div><div class="stat-val">{{.Summary.TotalPosts}}</div></div>
  <div class="stat-card"><div>Average Pain</div><div class="stat-val">{{printf "%.1f" .Summary.AveragePain}}</div></div>
  <div class="stat-card"><div>Max Pain</div><div class="stat-val {{band .Summary.MaxPain}}">{{.Summary.MaxPain}}</div></div>
  <div class="stat-card"><div>Opportunities</div><div class="stat-val">{{.Summary.Opportunities}}</div></div>

  <h3>Pain Distribution</h3>
  <table>
    <tr><th>Band</th><th>Posts</th></tr>
    <tr><td class="low">Low (0-3)</td><td>{{index .Summary.Bands "low"}}</td></tr>
    <tr><td class="medium">Medium (4-6)</td><td>{{index .Summary.Bands "medium"}}</td></tr>
    <tr><td class="high">High (7-10)</td><td>{{index .Summary.Bands "high"}}</td></tr>
  </table>

  <h3>Opportunities</h3>
  <table>
    <tr><th>Name</th><th>Problem</th><th>Target User</th><th>Pricing</th><th>Confidence</th></tr>
    {{- range .Details.Opportunities}}
    <tr><td>{{.Name}}</td><td>{{.Problem}}</td><td>{{.TargetUser}}</td><td>{{.Pricing}}</td><td>{{.Confidence}}/10</td></tr>
    {{- else}}
    <tr><td colspan="5">None</td></tr>
    {{- end}}
  </table>

  <h3>Posts</h3>
  <table>
    <tr><th>Pain</th><th>Subreddit</th><th>Title</th><th>Score</th><th>Comments</th></tr>
    {{- range .Details.Posts}}
    <tr><td class="{{band .PainScore}}">{{.PainScore}}</td><td>r/{{.Source}}</td><td><a href="{{.URL}}">{{.Title}}</a></td><td>{{.Upvotes}}</td><td>{{.NumComments}}</td></tr>
    {{- else}}
    <tr><td colspan="5">None</td></tr>
    {{- end}}
  </table>
</body>
</html>
`))

// WriteHTML writes a standalone HTML report. Post and opportunity text is
// escaped.
func WriteHTML(w io.Writer, d *pipeline.JobDetails) error {
	data := struct {
		Summary Summary
		Details *pipeline.JobDetails
	}{GenerateSummary(d), d}

	if err := htmlReport.Execute(w, data); err != nil {
		return fmt.Errorf("render html report: %w", err)
	}
	return nil
}
