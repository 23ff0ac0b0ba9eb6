package domain

import "time"

// Message is one turn of a conversation. Slice order is conversation order.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// DocInfo describes the document and persona grounding a conversation.
type DocInfo struct {
	Title    string `json:"title"`
	Category string `json:"category"`
	Theme    string `json:"theme"`
	Role     string `json:"role"`
}

// UserContext is a free-form user profile serialized into the prompt.
type UserContext map[string]any

// DocumentSummary is a catalog entry considered by the document matcher.
type DocumentSummary struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Category    string   `json:"category,omitempty"`
	Theme       string   `json:"theme,omitempty"`
	Description string   `json:"description,omitempty"`
	Keywords    []string `json:"keywords,omitempty"`
}

// Citation is a page reference reconstructed from model output.
type Citation struct {
	DocID     string `json:"docId,omitempty"`
	DocTitle  string `json:"docTitle"`
	DocName   string `json:"docName"`
	Page      int    `json:"page"`
	Text      string `json:"text"`
	FullMatch string `json:"fullMatch"`
}

// MatchResult is the outcome of routing a question to a document.
// DocID is nil only when there were no candidates.
type MatchResult struct {
	DocID     *string `json:"docId"`
	Relevance int     `json:"relevance"`
	Reason    string  `json:"reason"`
}

// DocumentAnalysis is the model's classification of a single document.
type DocumentAnalysis struct {
	Category    string   `json:"category"`
	Theme       string   `json:"theme"`
	Description string   `json:"description"`
	Keywords    []string `json:"keywords"`
	Role        string   `json:"role"`
}

// ConnectionResult reports whether the upstream provider accepted a key.
type ConnectionResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// APIStatus summarizes the stored key and its reachability.
type APIStatus struct {
	Configured bool   `json:"configured"`
	Status     string `json:"status"`
	Message    string `json:"message,omitempty"`
}

// StreamChunk is one forwarded unit of a relayed answer.
// Exactly one of Content, Error or Done is meaningful.
type StreamChunk struct {
	Content string `json:"content,omitempty"`
	Error   string `json:"error,omitempty"`
	Done    bool   `json:"-"`
}

// LLMCall is the audit record of one upstream request. It never carries
// message content.
type LLMCall struct {
	CallID    string    `json:"call_id"`
	RequestID string    `json:"request_id,omitempty"`
	Op        CallOp    `json:"op"`
	Model     string    `json:"model"`
	Stream    bool      `json:"stream"`
	LatencyMs int64     `json:"latency_ms"`
	ErrorKind string    `json:"error_kind,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
