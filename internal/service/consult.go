package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/siegzhong-maker/knowledge/internal/adapter/llm"
	"github.com/siegzhong-maker/knowledge/internal/citation"
	"github.com/siegzhong-maker/knowledge/internal/domain"
	"github.com/siegzhong-maker/knowledge/internal/observability"
	"github.com/siegzhong-maker/knowledge/internal/prompt"
)

// ConsultRequest is a streaming consultation about an optional document.
type ConsultRequest struct {
	Messages     []domain.Message   `json:"messages"`
	DocumentText string             `json:"pdfContent,omitempty"`
	UserContext  domain.UserContext `json:"context,omitempty"`
	DocInfo      *domain.DocInfo    `json:"docInfo,omitempty"`
	DocID        string             `json:"docId,omitempty"`
	APIKey       string             `json:"userApiKey,omitempty"`
	// DocRequested forces grounded mode, so a missing document is reported
	// to the model instead of silently answering from general knowledge.
	DocRequested bool               `json:"docRequested,omitempty"`
}

// ChatRequest is a streaming reading-assistant conversation.
type ChatRequest struct {
	Messages []domain.Message `json:"messages"`
	Context  string           `json:"context,omitempty"`
	APIKey   string           `json:"userApiKey,omitempty"`
}

// Consult validates req and opens the upstream stream. The caller must Close
// the returned relay.
func (s *Service) Consult(ctx context.Context, req ConsultRequest) (*Relay, error) {
	if err := s.checkPolicy(ctx, domain.CallOpConsult, req.Messages, req.DocumentText, req.APIKey); err != nil {
		return nil, err
	}
	mode := prompt.ModeFor(req.DocInfo, req.DocumentText)
	if req.DocRequested {
		mode = domain.PromptModeGrounded
	}
	cfg := prompt.Config{
		Mode:         mode,
		DocInfo:      req.DocInfo,
		UserContext:  req.UserContext,
		DocumentText: req.DocumentText,
	}
	return s.openRelay(ctx, req.APIKey, prompt.Consult(cfg, req.Messages))
}

// Chat validates req and opens the upstream stream. The caller must Close
// the returned relay.
func (s *Service) Chat(ctx context.Context, req ChatRequest) (*Relay, error) {
	if err := s.checkPolicy(ctx, domain.CallOpChat, req.Messages, req.Context, req.APIKey); err != nil {
		return nil, err
	}
	return s.openRelay(ctx, req.APIKey, prompt.Chat(req.Context, req.Messages))
}

func (s *Service) openRelay(ctx context.Context, perCallKey string, task prompt.Task) (*Relay, error) {
	apiKey, err := s.resolver.Resolve(ctx, perCallKey)
	if err != nil {
		return nil, err
	}
	req := s.request(ctx, task)

	start := time.Now()
	stream, err := s.llmClient.OpenStream(ctx, apiKey, req)
	if err != nil {
		s.recordCall(ctx, task.Op, req.Model, true, start, err)
		return nil, err
	}
	return &Relay{
		svc:    s,
		ctx:    ctx,
		stream: stream,
		op:     task.Op,
		model:  req.Model,
		start:  start,
	}, nil
}

// Relay forwards content deltas from one upstream stream, in arrival order,
// one per Next call. It accumulates the full answer for post-processing.
type Relay struct {
	svc    *Service
	ctx    context.Context
	stream *llm.Stream
	op     domain.CallOp
	model  string
	start  time.Time

	answer    strings.Builder
	err       error
	closeOnce sync.Once
}

// Next returns the next content delta, or io.EOF once the stream has ended.
// Any other error is final.
func (r *Relay) Next() (string, error) {
	delta, err := r.stream.Next()
	if err != nil {
		if !errors.Is(err, io.EOF) && r.err == nil {
			r.err = err
		}
		return "", err
	}
	r.answer.WriteString(delta)
	r.svc.metrics.StreamDeltas.Inc()
	return delta, nil
}

// Answer returns the text relayed so far.
func (r *Relay) Answer() string {
	return r.answer.String()
}

// Close releases the upstream stream and records the call. It is safe to
// call more than once.
func (r *Relay) Close() error {
	err := r.stream.Close()
	r.closeOnce.Do(func() {
		r.svc.recordCall(r.ctx, r.op, r.model, true, r.start, r.err)
		observability.LoggerFromContext(r.ctx).Debug("relay closed", "op", r.op, "answer_chars", r.answer.Len())
	})
	return err
}

// ExtractCitations parses page references out of a finished answer.
func (s *Service) ExtractCitations(text, docID, docTitle string) []domain.Citation {
	citations := citation.Extract(text, docID, docTitle)
	s.metrics.Citations.Add(float64(len(citations)))
	return citations
}
