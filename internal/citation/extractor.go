// Package citation turns inline page markers in model output into
// structured, deduplicated citations.
package citation

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/siegzhong-maker/knowledge/internal/domain"
)

// Form names a surface form of a page reference.
type Form string

const (
	FormNamed Form = "named" // [文档A - Page 5], [文档A - 第5页]
	FormPage  Form = "page"  // [Page 5], [第5页]
	FormShort Form = "short" // [P5], [P.5], [P 5]
	FormBare  Form = "bare"  // Page 5。 / 第5页， at a sentence end
)

const (
	contextRunes = 100
	maxExcerpt   = 200
	minExcerpt   = 10

	// DefaultDocTitle labels citations when neither a title nor a name is known.
	DefaultDocTitle = "文档"
)

type pattern struct {
	form Form
	re   *regexp.Regexp
	// trailing requires sentence-ending punctuation or end of text after the
	// match, which RE2 cannot express as a lookahead.
	trailing bool
}

// patterns are tried in priority order. Group 1 is the page number; for
// FormNamed group 1 is the document name and group 2 the page.
var patterns = []pattern{
	{form: FormNamed, re: regexp.MustCompile(`(?i)\[([^\]]+?)\s*[-–—]\s*(?:Page|页|第)\s*(\d+)(?:\s*页)?\]`)},
	{form: FormPage, re: regexp.MustCompile(`(?i)\[(?:Page|页|第)\s*(\d+)(?:\s*页)?\]`)},
	{form: FormShort, re: regexp.MustCompile(`(?i)\[P[.\s]*(\d+)\]`)},
	{form: FormBare, re: regexp.MustCompile(`(?i)(?:Page|页|第)\s*(\d+)(?:\s*页)?`), trailing: true},
}

var (
	markerRe     = regexp.MustCompile(`\[[^\]]*\]`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// Match is one page reference found in text, before excerpting.
type Match struct {
	Form    Form
	DocName string
	Page    int
	Start   int
	End     int
}

// Extract scans text left to right and returns one citation per distinct
// (page, document) pair, first occurrence first. It never returns nil.
func Extract(text, docID, docTitle string) []domain.Citation {
	citations := []domain.Citation{}
	if text == "" {
		return citations
	}

	seen := make(map[string]struct{})
	for _, m := range Scan(text) {
		docName := m.DocName
		if docName == "" {
			docName = docTitle
		}

		key := dedupKey(m.Page, docName, docID)
		if _, dup := seen[key]; dup {
			continue
		}

		excerpt := Excerpt(text, m.Start, m.End)
		if len([]rune(excerpt)) <= minExcerpt {
			continue
		}
		seen[key] = struct{}{}

		title := docTitle
		if title == "" {
			title = docName
		}
		if title == "" {
			title = DefaultDocTitle
		}

		citations = append(citations, domain.Citation{
			DocID:     docID,
			DocTitle:  title,
			DocName:   docName,
			Page:      m.Page,
			Text:      excerpt,
			FullMatch: text[m.Start:m.End],
		})
	}
	return citations
}

// Scan returns the non-overlapping page references in text. At each position
// the earliest match wins; patterns starting at the same offset are ranked by
// priority. Matches whose page is not a positive integer are skipped.
func Scan(text string) []Match {
	var out []Match
	pos := 0
	for pos < len(text) {
		best, ok := nextMatch(text, pos)
		if !ok {
			break
		}
		pos = best.End
		if best.Page > 0 {
			out = append(out, best)
		}
	}
	return out
}

func nextMatch(text string, pos int) (Match, bool) {
	var (
		best  Match
		found bool
	)
	for _, p := range patterns {
		m, ok := p.find(text, pos)
		if !ok {
			continue
		}
		if !found || m.Start < best.Start {
			best, found = m, true
		}
	}
	return best, found
}

// find returns the first match of p at or after pos.
func (p pattern) find(text string, pos int) (Match, bool) {
	for pos <= len(text) {
		loc := p.re.FindStringSubmatchIndex(text[pos:])
		if loc == nil {
			return Match{}, false
		}
		start, end := pos+loc[0], pos+loc[1]
		if p.trailing && !atSentenceEnd(text[end:]) {
			_, size := utf8.DecodeRuneInString(text[start:])
			pos = start + max(size, 1)
			continue
		}

		m := Match{Form: p.form, Start: start, End: end}
		pageGroup := 1
		if p.form == FormNamed {
			m.DocName = strings.TrimSpace(text[pos+loc[2] : pos+loc[3]])
			pageGroup = 2
		}
		m.Page = parsePage(text[pos+loc[2*pageGroup] : pos+loc[2*pageGroup+1]])
		return m, true
	}
	return Match{}, false
}

// atSentenceEnd reports whether rest begins with optional whitespace followed
// by sentence-ending punctuation or a newline, or is empty.
func atSentenceEnd(rest string) bool {
	if rest == "" {
		return true
	}
	for _, r := range rest {
		switch {
		case strings.ContainsRune("。，、；：！？\n", r):
			return true
		case unicode.IsSpace(r):
			continue
		default:
			return false
		}
	}
	return false
}

func parsePage(digits string) int {
	n, err := strconv.Atoi(digits)
	if err != nil || n <= 0 {
		return 0
	}
	return n
}

// Excerpt returns the cleaned context around text[start:end]: up to 100 runes
// either side, bracketed markers removed, whitespace collapsed, at most 200
// runes.
func Excerpt(text string, start, end int) string {
	before := []rune(text[:start])
	after := []rune(text[end:])

	from := max(0, len(before)-contextRunes)
	to := min(len(after), contextRunes)

	window := string(before[from:]) + text[start:end] + string(after[:to])
	window = markerRe.ReplaceAllString(strings.TrimSpace(window), "")
	window = whitespaceRe.ReplaceAllString(strings.TrimSpace(window), " ")

	runes := []rune(window)
	if len(runes) > maxExcerpt {
		runes = runes[:maxExcerpt]
	}
	return string(runes)
}

func dedupKey(page int, docName, docID string) string {
	switch {
	case docName != "":
		return strconv.Itoa(page) + "-" + docName
	case docID != "":
		return strconv.Itoa(page) + "-" + docID
	default:
		return strconv.Itoa(page) + "-default"
	}
}
