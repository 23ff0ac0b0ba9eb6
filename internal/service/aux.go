package service

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"github.com/siegzhong-maker/knowledge/internal/domain"
	"github.com/siegzhong-maker/knowledge/internal/matcher"
	"github.com/siegzhong-maker/knowledge/internal/observability"
	"github.com/siegzhong-maker/knowledge/internal/prompt"
)

const maxTags = 5

var tagSeparators = regexp.MustCompile(`[,，、]`)

// MatchDocument routes question to one of docs. It never fails.
func (s *Service) MatchDocument(ctx context.Context, question string, docs []domain.DocumentSummary, perCallKey string) domain.MatchResult {
	return s.matcher.Match(ctx, question, docs, perCallKey)
}

// MatchDocumentWithPath is MatchDocument that also reports the branch taken,
// so callers can treat fallback results as low confidence.
func (s *Service) MatchDocumentWithPath(ctx context.Context, question string, docs []domain.DocumentSummary, perCallKey string) (domain.MatchResult, matcher.Path) {
	return s.matcher.MatchWithPath(ctx, question, docs, perCallKey)
}

// WelcomeMessage greets the user for a document persona. Any failure yields
// the fixed fallback greeting.
func (s *Service) WelcomeMessage(ctx context.Context, info domain.DocInfo, perCallKey string) string {
	info = prompt.WithDefaults(&info)
	text, err := s.Complete(ctx, perCallKey, prompt.Welcome(info))
	if err != nil || strings.TrimSpace(text) == "" {
		observability.LoggerFromContext(ctx).Warn("welcome generation failed, using fallback", "error", err)
		return prompt.WelcomeFallback(info)
	}
	return strings.TrimSpace(text)
}

// TestConnection checks that the provider accepts a key. An empty apiKey
// tests the stored default, which must be configured.
func (s *Service) TestConnection(ctx context.Context, apiKey string) (domain.ConnectionResult, error) {
	key := apiKey
	if key == "" {
		resolved, err := s.resolver.Resolve(ctx, "")
		if err != nil {
			return domain.ConnectionResult{}, err
		}
		key = resolved
	}

	start := time.Now()
	_, err := s.llmClient.ListModels(ctx, key)
	s.recordCall(ctx, domain.CallOpPing, "", false, start, err)

	switch {
	case err == nil:
		return domain.ConnectionResult{Success: true, Message: "connection succeeded"}, nil
	case domain.IsKind(err, domain.KindAuthentication):
		return domain.ConnectionResult{Success: false, Message: "invalid API key"}, nil
	default:
		return domain.ConnectionResult{Success: false, Message: "connection failed: " + err.Error()}, nil
	}
}

// APIStatus reports whether a default key is stored and reachable.
func (s *Service) APIStatus(ctx context.Context) (domain.APIStatus, error) {
	configured, err := s.resolver.Configured(ctx)
	if err != nil {
		return domain.APIStatus{}, err
	}
	if !configured {
		return domain.APIStatus{Configured: false, Status: "not configured"}, nil
	}

	result, err := s.TestConnection(ctx, "")
	if err != nil {
		return domain.APIStatus{Configured: true, Status: "connection failed", Message: err.Error()}, nil
	}
	status := "connected"
	if !result.Success {
		status = "connection failed"
	}
	return domain.APIStatus{Configured: true, Status: status, Message: result.Message}, nil
}

// Summarize returns a short summary of content.
func (s *Service) Summarize(ctx context.Context, content, perCallKey string) (string, error) {
	if strings.TrimSpace(content) == "" {
		return "", domain.NewValidationError("content is required")
	}
	return s.Complete(ctx, perCallKey, prompt.Summary(content))
}

// SuggestTags returns at most five tags for content.
func (s *Service) SuggestTags(ctx context.Context, content, perCallKey string) ([]string, error) {
	if strings.TrimSpace(content) == "" {
		return nil, domain.NewValidationError("content is required")
	}
	text, err := s.Complete(ctx, perCallKey, prompt.SuggestTags(content))
	if err != nil {
		return nil, err
	}
	return ParseTags(text), nil
}

// ParseTags splits a model answer on ASCII and CJK separators.
func ParseTags(text string) []string {
	tags := []string{}
	for _, t := range tagSeparators.Split(text, -1) {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
		if len(tags) == maxTags {
			break
		}
	}
	return tags
}

// AnalyzeDocument classifies a document. Failures yield DefaultAnalysis.
func (s *Service) AnalyzeDocument(ctx context.Context, title, content, perCallKey string) domain.DocumentAnalysis {
	text, err := s.Complete(ctx, perCallKey, prompt.Analyze(title, content))
	if err != nil {
		observability.LoggerFromContext(ctx).Warn("document analysis failed", "error", err)
		return DefaultAnalysis(title)
	}
	analysis, ok := ParseAnalysis(text)
	if !ok {
		return DefaultAnalysis(title)
	}
	return analysis
}

// ParseAnalysis decodes the first {...} object in text.
func ParseAnalysis(text string) (domain.DocumentAnalysis, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return domain.DocumentAnalysis{}, false
	}
	var a domain.DocumentAnalysis
	if err := json.Unmarshal([]byte(text[start:end+1]), &a); err != nil {
		return domain.DocumentAnalysis{}, false
	}
	if a.Keywords == nil {
		a.Keywords = []string{}
	}
	return a, true
}

// DefaultAnalysis is returned when a document could not be analyzed.
func DefaultAnalysis(title string) domain.DocumentAnalysis {
	theme := title
	if theme == "" {
		theme = "未分类文档"
	}
	return domain.DocumentAnalysis{
		Category:    prompt.DefaultCategory,
		Theme:       theme,
		Description: "文档内容分析中...",
		Keywords:    []string{},
		Role:        "知识助手",
	}
}
