package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// MaxCommentDepth is the deepest reply level extracted from a thread. Top
// level comments are depth 0.
const MaxCommentDepth = 5

// ErrNotThread is returned for links that do not point at a comment thread.
var ErrNotThread = errors.New("not a thread link")

// Comment is one reply in a thread.
type Comment struct {
	ID     string `json:"id"`
	Author string `json:"author"`
	Body   string `json:"body"`
	Score  int    `json:"score"`
	Depth  int    `json:"depth"`
}

// Thread is a post with its comment tree flattened in depth-first order.
type Thread struct {
	Post     RawPost   `json:"post"`
	Comments []Comment `json:"comments"`
}

// ThreadURL maps a thread link onto the JSON endpoint of the configured base
// URL. Full reddit.com URLs and bare permalinks are accepted; query strings
// are dropped.
func (f *Fetcher) ThreadURL(link string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(link))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNotThread, err)
	}
	path := strings.TrimSuffix(strings.TrimRight(u.Path, "/"), ".json")
	if !strings.Contains(path, "/comments/") {
		return "", fmt.Errorf("%w: %q", ErrNotThread, link)
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return f.cfg.BaseURL + path + ".json", nil
}

// Thread fetches a post and its comments down to MaxCommentDepth. Unlike
// Fetch it reports every failure to the caller.
func (f *Fetcher) Thread(ctx context.Context, link string) (*Thread, error) {
	target, err := f.ThreadURL(link)
	if err != nil {
		return nil, err
	}

	var t *Thread
	err = f.fetch(ctx, target, func(body []byte) error {
		var err error
		t, err = decodeThread(body)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("thread %s: %w", link, err)
	}
	return t, nil
}

type commentListing struct {
	Data struct {
		Children []commentNode `json:"children"`
	} `json:"data"`
}

type commentNode struct {
	Kind string `json:"kind"`
	Data struct {
		ID     string `json:"id"`
		Author string `json:"author"`
		Body   string `json:"body"`
		Score  int    `json:"score"`
		// Replies is a listing, or "" when there are none.
		Replies json.RawMessage `json:"replies"`
	} `json:"data"`
}

func decodeThread(body []byte) (*Thread, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(body, &parts); err != nil {
		return nil, &decodeError{err: err}
	}
	if len(parts) == 0 {
		return nil, &decodeError{err: errors.New("empty thread response")}
	}

	var head listing
	if err := json.Unmarshal(parts[0], &head); err != nil {
		return nil, &decodeError{err: err}
	}
	if len(head.Data.Children) == 0 {
		return nil, &decodeError{err: errors.New("thread has no post")}
	}
	d := head.Data.Children[0].Data
	text := d.Selftext
	if text == "" && d.SelftextHTML != nil {
		text = htmlToText(*d.SelftextHTML)
	}
	t := &Thread{Post: RawPost{
		NativeID:    d.ID,
		Source:      d.Subreddit,
		Title:       d.Title,
		Body:        text,
		Score:       d.Score,
		NumComments: d.NumComments,
		Permalink:   d.Permalink,
		CreatedUTC:  d.CreatedUTC,
	}}

	if len(parts) > 1 {
		var replies commentListing
		if err := json.Unmarshal(parts[1], &replies); err != nil {
			return nil, &decodeError{err: err}
		}
		for _, c := range replies.Data.Children {
			t.Comments = walkComments(t.Comments, c, 0)
		}
	}
	return t, nil
}

// walkComments appends n and its replies depth-first. "more" stubs and
// deleted bodies carry no text and are skipped, but their replies are not.
func walkComments(out []Comment, n commentNode, depth int) []Comment {
	if depth > MaxCommentDepth {
		return out
	}
	if n.Data.Body != "" {
		author := n.Data.Author
		if author == "" {
			author = "[deleted]"
		}
		out = append(out, Comment{
			ID:     n.Data.ID,
			Author: author,
			Body:   n.Data.Body,
			Score:  n.Data.Score,
			Depth:  depth,
		})
	}

	raw := bytes.TrimSpace(n.Data.Replies)
	if len(raw) == 0 || raw[0] != '{' {
		return out
	}
	var replies commentListing
	if err := json.Unmarshal(raw, &replies); err != nil {
		return out
	}
	for _, c := range replies.Data.Children {
		out = walkComments(out, c, depth+1)
	}
	return out
}
