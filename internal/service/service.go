// Package service orchestrates key resolution, prompt composition, the
// upstream relay and post-processing for every consultation operation.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/siegzhong-maker/knowledge/internal/adapter/llm"
	"github.com/siegzhong-maker/knowledge/internal/domain"
	"github.com/siegzhong-maker/knowledge/internal/keyring"
	"github.com/siegzhong-maker/knowledge/internal/matcher"
	"github.com/siegzhong-maker/knowledge/internal/observability"
	"github.com/siegzhong-maker/knowledge/internal/policy"
	"github.com/siegzhong-maker/knowledge/internal/prompt"
	store "github.com/siegzhong-maker/knowledge/internal/repository"
)

type Service struct {
	store        store.Store
	cipher       *keyring.Cipher
	resolver     *keyring.Resolver
	llmClient    llm.ChatClient
	policyEngine *policy.Engine
	matcher      *matcher.Matcher
	metrics      *observability.Metrics
}

// New wires a service. policyEngine, cache and metrics may be nil.
func New(st store.Store, cipher *keyring.Cipher, llmClient llm.ChatClient, policyEngine *policy.Engine, cache matcher.Cache, metrics *observability.Metrics) *Service {
	if metrics == nil {
		metrics = observability.NewMetrics(nil)
	}
	s := &Service{
		store:        st,
		cipher:       cipher,
		resolver:     keyring.NewResolver(st, cipher),
		llmClient:    llmClient,
		policyEngine: policyEngine,
		metrics:      metrics,
	}
	s.matcher = matcher.New(s, cache, metrics)
	return s
}

// Complete runs one non-streaming call for task. perCallKey overrides the
// stored default when it has the sk- prefix.
func (s *Service) Complete(ctx context.Context, perCallKey string, task prompt.Task) (string, error) {
	apiKey, err := s.resolver.Resolve(ctx, perCallKey)
	if err != nil {
		return "", err
	}
	req := s.request(ctx, task)

	start := time.Now()
	text, err := s.llmClient.CreateChatCompletion(ctx, apiKey, req)
	s.recordCall(ctx, task.Op, req.Model, false, start, err)
	return text, err
}

func (s *Service) request(ctx context.Context, task prompt.Task) *llm.ChatCompletionRequest {
	return &llm.ChatCompletionRequest{
		Model:       s.resolver.Model(ctx),
		Messages:    task.Messages,
		Temperature: task.Temperature,
		MaxTokens:   task.MaxTokens,
	}
}

// recordCall writes the audit row and metrics for one upstream call. Audit
// failures are logged and never fail the call.
func (s *Service) recordCall(ctx context.Context, op domain.CallOp, model string, stream bool, start time.Time, callErr error) {
	latency := time.Since(start)

	outcome := "ok"
	call := &domain.LLMCall{
		CallID:    "llm_" + uuid.New().String()[:8],
		RequestID: observability.RequestIDFromContext(ctx),
		Op:        op,
		Model:     model,
		Stream:    stream,
		LatencyMs: latency.Milliseconds(),
		CreatedAt: time.Now(),
	}
	if callErr != nil {
		outcome = string(domain.KindOf(callErr))
		call.ErrorKind = outcome
		call.Error = callErr.Error()
	}

	s.metrics.UpstreamCalls.WithLabelValues(string(op), outcome).Inc()
	s.metrics.UpstreamLatency.WithLabelValues(string(op)).Observe(latency.Seconds())

	logger := observability.LoggerFromContext(ctx)
	if err := s.store.RecordLLMCall(context.WithoutCancel(ctx), call); err != nil {
		logger.Warn("failed to record llm call", "call_id", call.CallID, "error", err)
	}
	if callErr != nil {
		logger.Warn("llm call failed", "op", op, "model", model, "latency_ms", call.LatencyMs, "error", callErr)
		return
	}
	logger.Debug("llm call done", "op", op, "model", model, "stream", stream, "latency_ms", call.LatencyMs)
}

// checkPolicy screens caller messages before any upstream work.
func (s *Service) checkPolicy(ctx context.Context, op domain.CallOp, messages []domain.Message, documentText, perCallKey string) error {
	if s.policyEngine == nil {
		return nil
	}
	in := policy.NewInput(op, s.resolver.Model(ctx), messages, documentText, perCallKey != "")
	err := s.policyEngine.Check(ctx, in)
	var de *domain.Error
	if err != nil && !errors.As(err, &de) {
		// A broken policy is an operator problem, not a caller one.
		return domain.NewConfigurationError("request policy failed", err)
	}
	return err
}
