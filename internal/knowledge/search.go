// Package knowledge scores and retrieves documents for the search
// endpoint: seeded knowledge-base articles, the caller's personal notes,
// or both merged.
package knowledge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"unicode"

	"bilancio/internal/core"
)

// Sources a search can run against.
const (
	SourceKB   = "kb"
	SourceUser = "user"
	SourceAll  = "all"
)

// Result-set bounds.
const (
	DefaultLimit = 5
	MaxLimit     = 50
)

var (
	ErrEmptyQuery       = errors.New("empty query")
	ErrUnknownSource    = errors.New("unknown source")
	ErrIdentityRequired = errors.New("identity required")
)

// Repository is the slice of the storage layer the search needs.
type Repository interface {
	ListArticles(ctx context.Context) ([]core.Article, error)
	ListNotes(ctx context.Context, userID string) ([]core.Note, error)
}

// Document is one searchable entry.
type Document struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Title  string `json:"title"`
	Body   string `json:"body"`
}

// Result pairs a document with its similarity score in [0, 1].
type Result struct {
	Document
	Score float64 `json:"score"`
}

// Query carries one search invocation. Zero values select the defaults:
// source "kb", limit 5, no similarity floor, no document filter.
type Query struct {
	Text          string
	Source        string
	Limit         int
	MinSimilarity float64
	DocID         string
	BuildContext  bool
}

// SearchResult is the scored and optionally contextualized outcome.
type SearchResult struct {
	Results []Result
	Context string
}

// Service runs searches against the configured repository.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Search scores the selected corpus against the query text. userID may be
// empty only for the knowledge-base source; personal notes require an
// authenticated identity.
func (s *Service) Search(ctx context.Context, userID string, q Query) (SearchResult, error) {
	text := strings.TrimSpace(q.Text)
	if text == "" {
		return SearchResult{}, ErrEmptyQuery
	}

	source := q.Source
	if source == "" {
		source = SourceKB
	}
	switch source {
	case SourceKB, SourceUser, SourceAll:
	default:
		return SearchResult{}, fmt.Errorf("%w: %s", ErrUnknownSource, source)
	}

	if source != SourceKB && userID == "" {
		return SearchResult{}, ErrIdentityRequired
	}

	limit := q.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	docs, err := s.collect(ctx, userID, source)
	if err != nil {
		return SearchResult{}, err
	}

	queryTokens := tokenize(text)
	var results []Result
	for _, doc := range docs {
		if q.DocID != "" && doc.ID != q.DocID {
			continue
		}
		score := similarity(queryTokens, doc)
		if score <= 0 || score < q.MinSimilarity {
			continue
		}
		results = append(results, Result{Document: doc, Score: score})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Title < results[j].Title
	})
	if len(results) > limit {
		results = results[:limit]
	}

	out := SearchResult{Results: results}
	if q.BuildContext {
		out.Context = buildContext(text, results)
	}

	slog.DebugContext(ctx, "Knowledge search completed",
		"source", source,
		"results", len(results))

	return out, nil
}

// collect loads the documents for one source. Storage failures propagate:
// the endpoint reports them as a generic internal error instead of
// degrading to an empty result set.
func (s *Service) collect(ctx context.Context, userID, source string) ([]Document, error) {
	var docs []Document

	if source == SourceKB || source == SourceAll {
		articles, err := s.repo.ListArticles(ctx)
		if err != nil {
			return nil, fmt.Errorf("list articles: %w", err)
		}
		for _, a := range articles {
			docs = append(docs, Document{ID: a.ID, Source: SourceKB, Title: a.Title, Body: a.Body})
		}
	}

	if source == SourceUser || source == SourceAll {
		notes, err := s.repo.ListNotes(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("list notes: %w", err)
		}
		for _, n := range notes {
			docs = append(docs, Document{ID: n.ID, Source: SourceUser, Title: n.Title, Body: n.Body})
		}
	}

	return docs, nil
}

// similarity is the normalized token overlap between the query and one
// document. A query token found in the title weighs 2, in the body 1, so
// a document whose title covers every query token scores 1.0 and a
// body-only match tops out at 0.5.
func similarity(queryTokens []string, doc Document) float64 {
	if len(queryTokens) == 0 {
		return 0
	}

	title := tokenSet(tokenize(doc.Title))
	body := tokenSet(tokenize(doc.Body))

	var weight float64
	for _, tok := range queryTokens {
		switch {
		case title[tok]:
			weight += 2
		case body[tok]:
			weight += 1
		}
	}

	return weight / (2 * float64(len(queryTokens)))
}

// tokenize folds case, strips punctuation and splits into unique tokens,
// preserving first-seen order.
func tokenize(s string) []string {
	folded := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			return unicode.ToLower(r)
		}
		return ' '
	}, s)

	seen := make(map[string]bool)
	var out []string
	for _, tok := range strings.Fields(folded) {
		if !seen[tok] {
			seen[tok] = true
			out = append(out, tok)
		}
	}
	return out
}

func tokenSet(tokens []string) map[string]bool {
	set := make(map[string]bool, len(tokens))
	for _, tok := range tokens {
		set[tok] = true
	}
	return set
}

// buildContext assembles a compact source list from the top results, ready
// to be pasted into a prompt or shown next to the answer.
func buildContext(query string, results []Result) string {
	if len(results) == 0 {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Fonti rilevanti per %q:\n", query)
	for i, r := range results {
		fmt.Fprintf(&b, "\n[%d] %s\n%s\n", i+1, r.Title, r.Body)
	}
	return b.String()
}
