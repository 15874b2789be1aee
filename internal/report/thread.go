package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/FranksOps/painminer/internal/ranking"
	"github.com/FranksOps/painminer/internal/scraper"
	"github.com/FranksOps/painminer/internal/storage"
	"github.com/fatih/color"
)

const commentWidth = 200

// ThreadReport is a scored thread as written by WriteThread.
type ThreadReport struct {
	Post          scraper.RawPost         `json:"post"`
	TotalComments int                     `json:"totalComments"`
	Comments      []ranking.ScoredComment `json:"comments"`
}

// WriteThreadJSON writes r as indented JSON.
func WriteThreadJSON(w io.Writer, r ThreadReport) error {
	if r.Comments == nil {
		r.Comments = []ranking.ScoredComment{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// WriteThread lists the top painful comments of a thread. top <= 0 means 10.
func WriteThread(w io.Writer, r ThreadReport, top int) error {
	if top <= 0 {
		top = 10
	}
	bold := color.New(color.Bold).SprintFunc()
	cyan := color.New(color.FgCyan).SprintFunc()

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", bold("Thread"), r.Post.Title)
	fmt.Fprintf(&b, "r/%s  score %d  comments %d  %s\n", r.Post.Source, r.Post.Score, r.Post.NumComments, cyan(r.Post.URL()))
	fmt.Fprintf(&b, "\n%d painful comments out of %d\n", len(r.Comments), r.TotalComments)

	for i, c := range r.Comments {
		if i >= top {
			break
		}
		pain := fmt.Sprintf("[%d/10]", c.PainScore)
		fmt.Fprintf(&b, "\n%3d. %s u/%s (score %d, depth %d)\n     %s\n", i+1,
			painColor(c.PainScore)(pain), c.Author, c.Score, c.Depth,
			clip(strings.Join(strings.Fields(c.Body), " "), commentWidth))
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// WriteAnalysis writes a summary and opportunities produced outside of a job
// run.
func WriteAnalysis(w io.Writer, jobID int64, summary string, opps []*storage.Opportunity) error {
	bold := color.New(color.Bold).SprintFunc()

	var b strings.Builder
	fmt.Fprintf(&b, "%s for search #%d\n%s\n", bold("Analysis"), jobID, summary)
	if len(opps) == 0 {
		b.WriteString("\nNo opportunities.\n")
	} else {
		b.WriteString("\n")
	}
	for _, o := range opps {
		writeOpportunity(&b, o)
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func painColor(score int) func(a ...any) string {
	switch Band(score) {
	case BandHigh:
		return color.New(color.FgRed).SprintFunc()
	case BandMedium:
		return color.New(color.FgYellow).SprintFunc()
	}
	return color.New(color.FgGreen).SprintFunc()
}
