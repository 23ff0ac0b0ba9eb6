// Package prompt builds the message lists sent to the upstream model.
package prompt

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/siegzhong-maker/knowledge/internal/domain"
)

// Character caps applied to embedded document text, counted in runes.
const (
	MaxDocumentChars = 50000
	MaxSummaryChars  = 30000
	MaxChatChars     = 20000
	MaxTagChars      = 10000
	MaxAnalyzeChars  = 10000
)

// TruncationMarker is appended to document text cut at a cap.
const TruncationMarker = "\n\n……（文档内容过长，以下部分已截断）"

// MissingDocumentWarning replaces the document section when grounded mode
// has no text to ground on.
const MissingDocumentWarning = "**警告：未提供文档内容，请告知用户需要先加载知识库文档。**"

// Defaults used when DocInfo leaves a field empty.
const (
	DefaultDocTitle  = "知识库文档"
	DefaultCategory  = "通用"
	DefaultAssistant = "创业助手"
)

// Stages is the ordered startup-process taxonomy the model classifies
// questions into.
var Stages = []Stage{
	{Name: "选方向", Summary: "确定创业方向和赛道"},
	{Name: "找合伙人", Summary: "寻找合适的合作伙伴，搭建团队"},
	{Name: "找用户", Summary: "明确目标用户，建立用户画像，挖掘痛点"},
	{Name: "创产品", Summary: "开发和迭代产品"},
	{Name: "营销1.0", Summary: "初步营销和推广"},
	{Name: "融资", Summary: "寻找投资和资金支持"},
}

// Stage is one named step of the taxonomy.
type Stage struct {
	Name    string
	Summary string
}

// Config selects how the consultation system message is built.
type Config struct {
	Mode         domain.PromptMode
	DocInfo      *domain.DocInfo
	UserContext  domain.UserContext
	DocumentText string
}

// ModeFor returns grounded mode when either document metadata or document
// text is present.
func ModeFor(docInfo *domain.DocInfo, documentText string) domain.PromptMode {
	if docInfo != nil || documentText != "" {
		return domain.PromptModeGrounded
	}
	return domain.PromptModeGeneric
}

const roleIntro = "你是创业综合助手，基于知识库回答创业相关问题。"

const stageTagInstruction = `1. **前置判断（必须）**：在回答开头，先判断用户问题属于哪个创业步骤，格式：
   "📌 **这个问题属于：[步骤名称]（第X步）**"
   例如："📌 **这个问题属于：找合伙人（第2步）**"`

const bulletInstruction = `2. **简洁回答**：直接给出核心要点（3-5个），每个要点1-2句话，避免冗长解释`

const genericSourceInstruction = `3. **基于知识库**：如果有知识库内容，基于知识库回答；如果没有，基于你的知识回答`

const citationInstruction = `3. **引用标注**：引用文档内容时使用 [Page X] 格式，引用标记紧跟在相关内容之后`

const groundingInstruction = `4. **基于文档**：严格基于提供的文档内容回答，不要使用文档中没有的信息`

// Compose returns a new message list: the system message built from cfg,
// followed by a copy of conversation in its original order.
func Compose(cfg Config, conversation []domain.Message) []domain.Message {
	return prepend(SystemPrompt(cfg), conversation)
}

// SystemPrompt renders the consultation system message for cfg.
func SystemPrompt(cfg Config) string {
	var b strings.Builder
	b.WriteString(roleIntro)
	b.WriteString("\n\n**回答格式要求：**\n")
	b.WriteString(stageTagInstruction)
	b.WriteString("\n\n")
	b.WriteString(bulletInstruction)
	b.WriteString("\n\n")

	if cfg.Mode != domain.PromptModeGrounded {
		b.WriteString(genericSourceInstruction)
		b.WriteString("\n\n")
		b.WriteString(stageList())
		b.WriteString("\n保持专业、简洁的语气。")
		return b.String()
	}

	b.WriteString(citationInstruction)
	b.WriteString("\n\n")
	b.WriteString(groundingInstruction)
	b.WriteString("\n\n")
	b.WriteString(stageList())

	info := WithDefaults(cfg.DocInfo)
	b.WriteString("\n**文档主题：** ")
	b.WriteString(info.Theme)
	b.WriteString("\n**当前用户背景：** ")
	b.WriteString(serializeContext(cfg.UserContext))
	b.WriteString("\n\n")

	if cfg.DocumentText == "" {
		b.WriteString(MissingDocumentWarning)
	} else {
		b.WriteString("\n\n**文档内容（请严格基于此内容回答）：**\n")
		b.WriteString(Truncate(cfg.DocumentText, MaxDocumentChars))
	}
	return b.String()
}

func stageList() string {
	var b strings.Builder
	b.WriteString("创业6步框架：\n")
	for i, s := range Stages {
		b.WriteString(strconv.Itoa(i + 1))
		b.WriteString(". ")
		b.WriteString(s.Name)
		b.WriteString(" - ")
		b.WriteString(s.Summary)
		b.WriteString("\n")
	}
	return b.String()
}

// WithDefaults fills empty DocInfo fields. Theme falls back to the title.
func WithDefaults(info *domain.DocInfo) domain.DocInfo {
	var out domain.DocInfo
	if info != nil {
		out = *info
	}
	if out.Title == "" {
		out.Title = DefaultDocTitle
	}
	if out.Category == "" {
		out.Category = DefaultCategory
	}
	if out.Theme == "" {
		out.Theme = out.Title
	}
	if out.Role == "" {
		out.Role = DefaultAssistant
	}
	return out
}

// serializeContext renders the user profile as JSON, "{}" when absent.
// encoding/json sorts map keys, so the output is stable.
func serializeContext(uc domain.UserContext) string {
	if len(uc) == 0 {
		return "{}"
	}
	data, err := json.Marshal(uc)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// Truncate cuts s to at most limit runes and appends TruncationMarker when
// anything was removed.
func Truncate(s string, limit int) string {
	cut, truncated := cutRunes(s, limit)
	if !truncated {
		return s
	}
	return cut + TruncationMarker
}

// cutRunes returns the first limit runes of s without a marker.
func cutRunes(s string, limit int) (string, bool) {
	if limit <= 0 {
		return "", s != ""
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i], true
		}
		n++
	}
	return s, false
}

func prepend(system string, conversation []domain.Message) []domain.Message {
	out := make([]domain.Message, 0, len(conversation)+1)
	out = append(out, domain.Message{Role: domain.RoleSystem, Content: system})
	out = append(out, conversation...)
	return out
}
