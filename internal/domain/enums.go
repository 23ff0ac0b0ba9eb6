// Package domain defines the transient entities of the consultation core.
package domain

// Role is the author of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the roles the upstream model accepts.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// PromptMode selects how the system instruction is built.
type PromptMode string

const (
	PromptModeGeneric  PromptMode = "generic"
	PromptModeGrounded PromptMode = "grounded"
)

// CallOp names an upstream operation for audit and metrics.
type CallOp string

const (
	CallOpConsult CallOp = "consult"
	CallOpChat    CallOp = "chat"
	CallOpMatch   CallOp = "match"
	CallOpWelcome CallOp = "welcome"
	CallOpSummary CallOp = "summary"
	CallOpTags    CallOp = "suggest_tags"
	CallOpAnalyze CallOp = "analyze"
	CallOpPing    CallOp = "ping"
)

// Setting keys read from the persisted settings table.
const (
	SettingAPIKey = "deepseek_api_key"
	SettingModel  = "deepseek_model"
)

// DefaultModel is used when no model has been configured.
const DefaultModel = "deepseek-chat"
