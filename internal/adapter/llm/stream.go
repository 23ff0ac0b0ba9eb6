package llm

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"iter"
	"strings"
	"sync"

	"github.com/siegzhong-maker/knowledge/internal/domain"
)

const (
	dataPrefix   = "data: "
	doneSentinel = "[DONE]"
)

// Stream reads content deltas from an upstream SSE body one at a time.
// Nothing is read ahead of the caller.
type Stream struct {
	ctx    context.Context
	body   io.ReadCloser
	reader *bufio.Reader

	done      bool
	closeOnce sync.Once
	closeErr  error
	stop      func() bool
}

// NewStream wraps an upstream SSE body. Cancelling ctx closes the body.
func NewStream(ctx context.Context, body io.ReadCloser) *Stream {
	s := &Stream{
		ctx:    ctx,
		body:   body,
		reader: bufio.NewReader(body),
	}
	s.stop = context.AfterFunc(ctx, s.closeBody)
	return s
}

// Next returns the next non-empty content delta. It returns io.EOF after the
// [DONE] sentinel or when upstream ends the body. Records that fail to parse
// or carry no content are skipped.
//
// Lines are split on '\n' before being converted to strings; '\n' never
// occurs inside a multi-byte UTF-8 sequence, so a rune split across network
// reads is always reassembled before decoding.
func (s *Stream) Next() (string, error) {
	if s.done {
		return "", io.EOF
	}

	for {
		line, err := s.reader.ReadString('\n')
		if line != "" {
			if delta, ok, terminal := s.parseLine(line); terminal {
				s.finish()
				return "", io.EOF
			} else if ok {
				return delta, nil
			}
		}

		if err != nil {
			if ctxErr := s.ctx.Err(); ctxErr != nil {
				s.finish()
				return "", domain.NewUpstreamError("stream cancelled", ctxErr)
			}
			s.finish()
			if errors.Is(err, io.EOF) {
				return "", io.EOF
			}
			return "", domain.NewUpstreamError("stream interrupted", err)
		}
	}
}

// parseLine interprets one SSE line. terminal is true for the [DONE] sentinel.
func (s *Stream) parseLine(line string) (delta string, ok bool, terminal bool) {
	line = strings.TrimRight(line, "\r\n")
	if !strings.HasPrefix(line, dataPrefix) {
		return "", false, false
	}

	data := line[len(dataPrefix):]
	if data == doneSentinel {
		return "", false, true
	}

	var chunk StreamChunk
	if err := json.Unmarshal([]byte(data), &chunk); err != nil {
		// Malformed records are expected occasionally and are not fatal.
		return "", false, false
	}
	if len(chunk.Choices) == 0 || chunk.Choices[0].Delta == nil || chunk.Choices[0].Delta.Content == "" {
		return "", false, false
	}
	return chunk.Choices[0].Delta.Content, true, false
}

func (s *Stream) finish() {
	s.done = true
	s.Close()
}

// Deltas iterates over the remaining content deltas. The stream is closed when
// the loop ends for any reason, including an early break. A non-nil error is
// yielded at most once, as the final element.
func (s *Stream) Deltas() iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		defer s.Close()
		for {
			delta, err := s.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield("", err)
				return
			}
			if !yield(delta, nil) {
				return
			}
		}
	}
}

// Close releases the upstream body. It is safe to call more than once.
func (s *Stream) Close() error {
	s.stop()
	s.closeBody()
	return s.closeErr
}

func (s *Stream) closeBody() {
	s.closeOnce.Do(func() {
		s.closeErr = s.body.Close()
	})
}
