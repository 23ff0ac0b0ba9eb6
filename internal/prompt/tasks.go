package prompt

import (
	"fmt"
	"strings"

	"github.com/siegzhong-maker/knowledge/internal/domain"
)

// Task is a composed upstream call: messages plus sampling parameters.
type Task struct {
	Op          domain.CallOp
	Messages    []domain.Message
	MaxTokens   int
	Temperature float64
}

// Default sampling parameters when a task does not override them.
const (
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 2000
)

// Consult builds the streaming consultation call.
func Consult(cfg Config, conversation []domain.Message) Task {
	return Task{
		Op:          domain.CallOpConsult,
		Messages:    Compose(cfg, conversation),
		MaxTokens:   1000,
		Temperature: 0.5,
	}
}

// Chat builds the streaming reading-assistant call. Without reading context
// the conversation is sent unchanged.
func Chat(readingContext string, conversation []domain.Message) Task {
	t := Task{
		Op:          domain.CallOpChat,
		MaxTokens:   DefaultMaxTokens,
		Temperature: DefaultTemperature,
	}
	if readingContext == "" {
		t.Messages = append([]domain.Message(nil), conversation...)
		return t
	}
	system := "你是一个知识管理助手。当前用户正在阅读以下内容，请基于此内容回答用户的问题：\n\n" +
		Truncate(readingContext, MaxChatChars)
	t.Messages = prepend(system, conversation)
	return t
}

// Summary builds the summarization call.
func Summary(content string) Task {
	return Task{
		Op: domain.CallOpSummary,
		Messages: pair(
			"你是一个专业的知识管理助手，擅长总结和提炼文章的核心观点。请用简洁的中文总结以下内容，突出关键信息和要点。",
			"请为以下内容生成摘要：\n\n"+Truncate(content, MaxSummaryChars),
		),
		MaxTokens:   500,
		Temperature: 0.5,
	}
}

// SuggestTags builds the tag suggestion call.
func SuggestTags(content string) Task {
	return Task{
		Op: domain.CallOpTags,
		Messages: pair(
			"你是一个标签生成助手。请根据内容生成3-5个简洁的中文标签，用逗号分隔。标签应该是名词或短语，长度不超过4个字。",
			"请为以下内容生成标签：\n\n"+Truncate(content, MaxTagChars),
		),
		MaxTokens:   100,
		Temperature: 0.8,
	}
}

const analyzeSystem = `你是一个文档分析专家。请分析以下文档，识别其主题、分类和关键信息。

请以JSON格式返回分析结果，格式如下：
{
  "category": "文档的主要分类（如：团队管理、品牌营销、财务管理等，用简洁的中文）",
  "theme": "文档的核心主题（一句话概括）",
  "description": "文档的简要描述（50字以内）",
  "keywords": ["关键词1", "关键词2", "关键词3"],
  "role": "适合的助手角色名称（如：团队管理助手、品牌营销助手等）"
}

只返回JSON，不要其他文字。`

// Analyze builds the document classification call.
func Analyze(title, content string) Task {
	return Task{
		Op: domain.CallOpAnalyze,
		Messages: pair(
			analyzeSystem,
			fmt.Sprintf("文档标题：%s\n\n文档内容：\n%s", title, Truncate(content, MaxAnalyzeChars)),
		),
		MaxTokens:   500,
		Temperature: 0.3,
	}
}

const matchSystem = `你是一个智能文档匹配专家。根据用户的问题，从以下文档列表中选择最相关的一个。

请以JSON格式返回结果，格式如下：
{
  "index": 文档编号（从1开始）,
  "relevance": 相关度评分（0-100）,
  "reason": "选择理由（简短说明）"
}

只返回JSON，不要其他文字。`

// Match builds the document routing call. Candidates are numbered from 1.
func Match(question string, docs []domain.DocumentSummary) Task {
	entries := make([]string, len(docs))
	for i, d := range docs {
		category := d.Category
		if category == "" {
			category = "未分类"
		}
		entries[i] = fmt.Sprintf("%d. 标题：%s\n   分类：%s\n   主题：%s\n   描述：%s\n   关键词：%s",
			i+1, d.Title, category, d.Theme, d.Description, strings.Join(d.Keywords, "、"))
	}

	return Task{
		Op: domain.CallOpMatch,
		Messages: pair(
			matchSystem,
			fmt.Sprintf("用户问题：%s\n\n可用文档：\n%s\n\n请选择最相关的文档。", question, strings.Join(entries, "\n\n")),
		),
		MaxTokens:   200,
		Temperature: 0.3,
	}
}

// Welcome builds the short greeting call for a document persona.
func Welcome(info domain.DocInfo) Task {
	return Task{
		Op: domain.CallOpWelcome,
		Messages: pair(
			"你是一个友好的AI助手。根据文档信息生成一段欢迎消息，介绍你能帮助用户解决什么问题。消息要简洁、友好、易懂。",
			fmt.Sprintf("文档标题：%s\n分类：%s\n主题：%s\n助手角色：%s\n\n请生成一段欢迎消息（100字以内），告诉用户我能帮助他们解决什么问题。",
				info.Title, info.Category, info.Theme, info.Role),
		),
		MaxTokens:   200,
		Temperature: 0.7,
	}
}

// WelcomeFallback is the fixed greeting used when the welcome call fails.
func WelcomeFallback(info domain.DocInfo) string {
	return fmt.Sprintf("您好！我是%s，可以基于《%s》为您解答相关问题。请告诉我您的问题。", info.Role, info.Title)
}

func pair(system, user string) []domain.Message {
	return []domain.Message{
		{Role: domain.RoleSystem, Content: system},
		{Role: domain.RoleUser, Content: user},
	}
}
