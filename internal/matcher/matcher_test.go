package matcher

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siegzhong-maker/knowledge/internal/domain"
	"github.com/siegzhong-maker/knowledge/internal/observability"
	"github.com/siegzhong-maker/knowledge/internal/prompt"
)

type fakeCompleter struct {
	response string
	err      error
	calls    int
	lastKey  string
	lastTask prompt.Task
}

func (f *fakeCompleter) Complete(_ context.Context, apiKey string, task prompt.Task) (string, error) {
	f.calls++
	f.lastKey = apiKey
	f.lastTask = task
	return f.response, f.err
}

type memoryCache struct {
	values map[string]domain.MatchResult
	err    error
}

func (c *memoryCache) Get(_ context.Context, key string) (domain.MatchResult, bool, error) {
	if c.err != nil {
		return domain.MatchResult{}, false, c.err
	}
	r, ok := c.values[key]
	return r, ok, nil
}

func (c *memoryCache) Set(_ context.Context, key string, result domain.MatchResult) error {
	if c.err != nil {
		return c.err
	}
	if c.values == nil {
		c.values = map[string]domain.MatchResult{}
	}
	c.values[key] = result
	return nil
}

var catalog = []domain.DocumentSummary{
	{ID: "team", Title: "合伙人手册", Theme: "团队搭建", Keywords: []string{"股权", "Cofounder"}},
	{ID: "fund", Title: "融资指南", Theme: "早期融资", Keywords: []string{"估值"}},
	{ID: "user", Title: "用户访谈"},
}

func docID(t *testing.T, r domain.MatchResult) string {
	t.Helper()
	require.NotNil(t, r.DocID)
	return *r.DocID
}

func TestMatchEmptyMakesNoCall(t *testing.T) {
	c := &fakeCompleter{}
	metrics := observability.NewMetrics(nil)
	r, path := New(c, nil, metrics).MatchWithPath(context.Background(), "anything", nil, "")

	assert.Nil(t, r.DocID)
	assert.Zero(t, r.Relevance)
	assert.Equal(t, ReasonNoDocuments, r.Reason)
	assert.Equal(t, PathEmpty, path)
	assert.Zero(t, c.calls)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.MatchResults.WithLabelValues("empty")))
}

func TestMatchModelChoice(t *testing.T) {
	c := &fakeCompleter{response: "好的，结果如下：\n```json\n{\"index\": 2, \"relevance\": 88, \"reason\": \"问题关于融资\"}\n```"}
	r, path := New(c, nil, nil).MatchWithPath(context.Background(), "怎么谈估值", catalog, "sk-abc")

	assert.Equal(t, PathModel, path)
	assert.Equal(t, "fund", docID(t, r))
	assert.Equal(t, 88, r.Relevance)
	assert.Equal(t, "问题关于融资", r.Reason)
	assert.Equal(t, "sk-abc", c.lastKey)
	assert.Equal(t, domain.CallOpMatch, c.lastTask.Op)
}

func TestParseChoiceDefaults(t *testing.T) {
	r, ok := ParseChoice(`{"reason": ""}`, catalog)
	require.True(t, ok)
	assert.Equal(t, "team", *r.DocID)
	assert.Equal(t, ModelRelevance, r.Relevance)
	assert.Equal(t, ReasonMatched, r.Reason)

	r, ok = ParseChoice(`{"index": 3, "relevance": 250}`, catalog)
	require.True(t, ok)
	assert.Equal(t, "user", *r.DocID)
	assert.Equal(t, 100, r.Relevance)
}

func TestParseChoiceRejects(t *testing.T) {
	for _, response := range []string{
		"",
		"no json here",
		`{"index": 4}`,
		`{"index": -1}`,
		`{"index": 1.5}`,
		`{"index": "two"}`,
		`{broken`,
	} {
		_, ok := ParseChoice(response, catalog)
		assert.False(t, ok, response)
	}
}

func TestMatchFallbacks(t *testing.T) {
	tests := []struct {
		name      string
		completer *fakeCompleter
		question  string
		want      string
		relevance int
		path      Path
	}{
		{"model error keyword", &fakeCompleter{err: errors.New("timeout")}, "股权怎么分", "team", KeywordRelevance, PathKeyword},
		{"out of range keyword", &fakeCompleter{response: `{"index": 9}`}, "估值多少合适", "fund", KeywordRelevance, PathKeyword},
		{"case insensitive keyword", &fakeCompleter{response: "?"}, "how to find a COFOUNDER", "team", KeywordRelevance, PathKeyword},
		{"title contained", &fakeCompleter{response: "?"}, "请介绍用户访谈的方法", "user", KeywordRelevance, PathKeyword},
		{"theme contained", &fakeCompleter{response: "?"}, "早期融资要注意什么", "fund", KeywordRelevance, PathKeyword},
		{"default", &fakeCompleter{err: domain.NewRateLimitError("slow down")}, "今天天气如何", "team", DefaultRelevance, PathDefault},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, path := New(tt.completer, nil, nil).MatchWithPath(context.Background(), tt.question, catalog, "")
			assert.Equal(t, tt.path, path)
			assert.Equal(t, tt.want, docID(t, r))
			assert.Equal(t, tt.relevance, r.Relevance)
			assert.Equal(t, 1, tt.completer.calls)
		})
	}
}

func TestFallbackSkipsEmptyFields(t *testing.T) {
	docs := []domain.DocumentSummary{{ID: "a", Keywords: []string{""}}, {ID: "b", Title: "定价"}}
	r, path := Fallback("产品如何定价", docs)
	assert.Equal(t, PathKeyword, path)
	assert.Equal(t, "b", *r.DocID)
}

func TestMatchUsesCache(t *testing.T) {
	cache := &memoryCache{}
	c := &fakeCompleter{response: `{"index": 2, "relevance": 70, "reason": "r"}`}
	m := New(c, cache, nil)

	first, path := m.MatchWithPath(context.Background(), "估值", catalog, "")
	assert.Equal(t, PathModel, path)

	second, path := m.MatchWithPath(context.Background(), "估值", catalog, "")
	assert.Equal(t, PathCache, path)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, c.calls)

	// A different candidate set is a different key.
	_, path = m.MatchWithPath(context.Background(), "估值", catalog[:2], "")
	assert.Equal(t, PathModel, path)
}

func TestMatchIgnoresCacheErrors(t *testing.T) {
	c := &fakeCompleter{response: `{"index": 1}`}
	r := New(c, &memoryCache{err: errors.New("redis down")}, nil).Match(context.Background(), "q", catalog, "")
	assert.Equal(t, "team", docID(t, r))
}

func TestMatchDoesNotCacheFallbacks(t *testing.T) {
	cache := &memoryCache{}
	New(&fakeCompleter{err: errors.New("x")}, cache, nil).Match(context.Background(), "股权", catalog, "")
	assert.Empty(t, cache.values)
}
