// Package matcher routes a question to the most relevant document in a
// catalog.
package matcher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"math"
	"strings"

	"github.com/siegzhong-maker/knowledge/internal/domain"
	"github.com/siegzhong-maker/knowledge/internal/observability"
	"github.com/siegzhong-maker/knowledge/internal/prompt"
)

// Reasons reported for results not chosen by the model.
const (
	ReasonNoDocuments  = "no documents available"
	ReasonMatched      = "matched"
	ReasonKeywordMatch = "keyword match"
	ReasonDefaultMatch = "default match"
)

// Fixed relevance scores for the fallback paths.
const (
	KeywordRelevance = 60
	DefaultRelevance = 30
	ModelRelevance   = 50
)

// Path names which branch produced a result.
type Path string

const (
	PathEmpty   Path = "empty"
	PathCache   Path = "cache"
	PathModel   Path = "model"
	PathKeyword Path = "keyword"
	PathDefault Path = "default"
)

// Completer runs one non-streaming upstream call.
type Completer interface {
	Complete(ctx context.Context, apiKey string, task prompt.Task) (string, error)
}

// Cache stores model-chosen results by question and candidate set.
type Cache interface {
	Get(ctx context.Context, key string) (domain.MatchResult, bool, error)
	Set(ctx context.Context, key string, result domain.MatchResult) error
}

// Matcher selects a document for a question.
type Matcher struct {
	completer Completer
	cache     Cache
	metrics   *observability.Metrics
}

// New creates a matcher. cache and metrics may be nil.
func New(completer Completer, cache Cache, metrics *observability.Metrics) *Matcher {
	return &Matcher{completer: completer, cache: cache, metrics: metrics}
}

// Match returns the best document for question. The result's DocID is nil
// only when docs is empty; otherwise it is always one of docs.
func (m *Matcher) Match(ctx context.Context, question string, docs []domain.DocumentSummary, apiKey string) domain.MatchResult {
	result, _ := m.MatchWithPath(ctx, question, docs, apiKey)
	return result
}

// MatchWithPath is Match that also reports which branch produced the result.
func (m *Matcher) MatchWithPath(ctx context.Context, question string, docs []domain.DocumentSummary, apiKey string) (domain.MatchResult, Path) {
	if len(docs) == 0 {
		m.observe(PathEmpty)
		return domain.MatchResult{DocID: nil, Relevance: 0, Reason: ReasonNoDocuments}, PathEmpty
	}

	logger := observability.LoggerFromContext(ctx)
	key := CacheKey(question, docs)
	if m.cache != nil {
		cached, ok, err := m.cache.Get(ctx, key)
		if err != nil {
			logger.Warn("match cache read failed", "error", err)
		} else if ok && contains(docs, cached.DocID) {
			m.observe(PathCache)
			return cached, PathCache
		}
	}

	response, err := m.completer.Complete(ctx, apiKey, prompt.Match(question, docs))
	if err != nil {
		logger.Warn("match classification failed, using keyword fallback", "error", err)
	} else if result, ok := ParseChoice(response, docs); ok {
		if m.cache != nil {
			if err := m.cache.Set(ctx, key, result); err != nil {
				logger.Warn("match cache write failed", "error", err)
			}
		}
		m.observe(PathModel)
		return result, PathModel
	} else {
		logger.Info("match classification unusable, using keyword fallback")
	}

	result, path := Fallback(question, docs)
	m.observe(path)
	return result, path
}

func (m *Matcher) observe(path Path) {
	if m.metrics != nil {
		m.metrics.MatchResults.WithLabelValues(string(path)).Inc()
	}
}

type choice struct {
	Index     *float64 `json:"index"`
	Relevance *float64 `json:"relevance"`
	Reason    string   `json:"reason"`
}

// ParseChoice reads the first {...} object in response. ok is false when
// nothing parses or the 1-based index is outside docs.
func ParseChoice(response string, docs []domain.DocumentSummary) (domain.MatchResult, bool) {
	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start < 0 || end <= start {
		return domain.MatchResult{}, false
	}

	var c choice
	if err := json.Unmarshal([]byte(response[start:end+1]), &c); err != nil {
		return domain.MatchResult{}, false
	}

	index := 1
	if c.Index != nil && *c.Index != 0 {
		if *c.Index != math.Trunc(*c.Index) {
			return domain.MatchResult{}, false
		}
		index = int(*c.Index)
	}
	if index < 1 || index > len(docs) {
		return domain.MatchResult{}, false
	}

	relevance := ModelRelevance
	if c.Relevance != nil && *c.Relevance != 0 {
		relevance = clamp(int(math.Round(*c.Relevance)), 0, 100)
	}
	reason := c.Reason
	if reason == "" {
		reason = ReasonMatched
	}

	id := docs[index-1].ID
	return domain.MatchResult{DocID: &id, Relevance: relevance, Reason: reason}, true
}

// Fallback picks the first document whose keywords occur in the question or
// whose title or theme the question contains, case-insensitively; failing
// that, the first document. docs must be non-empty.
func Fallback(question string, docs []domain.DocumentSummary) (domain.MatchResult, Path) {
	q := strings.ToLower(question)
	for _, d := range docs {
		if keywordHit(q, d) {
			id := d.ID
			return domain.MatchResult{DocID: &id, Relevance: KeywordRelevance, Reason: ReasonKeywordMatch}, PathKeyword
		}
	}
	id := docs[0].ID
	return domain.MatchResult{DocID: &id, Relevance: DefaultRelevance, Reason: ReasonDefaultMatch}, PathDefault
}

func keywordHit(q string, d domain.DocumentSummary) bool {
	for _, k := range d.Keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" && strings.Contains(q, k) {
			return true
		}
	}
	for _, s := range []string{d.Title, d.Theme} {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" && strings.Contains(q, s) {
			return true
		}
	}
	return false
}

// CacheKey identifies a question against an ordered candidate set.
func CacheKey(question string, docs []domain.DocumentSummary) string {
	h := sha256.New()
	h.Write([]byte(strings.TrimSpace(question)))
	for _, d := range docs {
		h.Write([]byte{0})
		h.Write([]byte(d.ID))
	}
	return hex.EncodeToString(h.Sum(nil))
}

func contains(docs []domain.DocumentSummary, id *string) bool {
	if id == nil {
		return false
	}
	for _, d := range docs {
		if d.ID == *id {
			return true
		}
	}
	return false
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
