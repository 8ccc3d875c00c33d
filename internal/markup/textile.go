// Package markup converts Redmine Textile markup to Markdown.
//
// Conversion is a fixed sequence of regular-expression passes. Several passes
// need lookbehind and lookahead (emphasis markers must not match inside
// words), so the package uses regexp2 rather than the standard library's RE2
// engine. Preformatted blocks and inline code are swapped out for
// placeholder tokens first so that later passes never touch their content.
package markup

import (
	"strconv"
	"strings"

	"github.com/dlclark/regexp2"
)

// hspace matches horizontal whitespace.
const hspace = `[ \t\u00A0]`

// nonWord is \W over ASCII word characters only. regexp2's own \W does not
// match letters such as "ä".
const nonWord = `[^A-Za-z0-9_]`

type rule struct {
	re   *regexp2.Regexp
	repl string
}

var (
	quotedPre = compile(`(?ms)^(>\h*<pre>)(.*?)(</pre>)`)
	quoteLine = compile(`\n(?!>)`)
	pre       = compile(`(?s)(\h*|>\s*)<pre>\h*\n?(.*?)\n?(\h*|>\s*)</pre>\h*\n?`)
	preCode   = compile(`(?s)^\s*<code\s+class="(.*?)">\h*\n?(.*?)\n?\h*</code>\s*$`)

	inlineCode = compile(`(?m)(?<=^|\h|\|)@(?!\h|@)(.+?)(?<!\h)@(?=$|\W|\|)`)

	unorderedList = compile(`(?m)^(\h*)(\*{1,10})(?=\h+[^ \t\u00A0\n])`)
	orderedList   = compile(`(?m)^(\h*)(#{1,10})(?=\h+[^ \t\u00A0\n])`)

	// Applied in order after lists.
	rules = []rule{
		{compile(`(?m)^\h*h1\.\h+`), "# "},
		{compile(`(?m)^\h*h2\.\h+`), "## "},
		{compile(`(?m)^\h*h3\.\h+`), "### "},
		{compile(`(?m)^\h*h4\.\h+`), "#### "},

		{compile(`(?m)(?<=^|\h|\|)__(?!\h|_)(.+?)(?<!\h)__(?=$|\W|\|)`), "_${1}_"},
		{compile(`(?m)(?<=^|\h|\|)\*(?!\h|\*)(.+?)(?<!\h)\*(?=$|\W|\|)`), "**${1}**"},
		{compile(`(?m)(?<=^|\h|\|)\+(?!\h|\+)(.+?)(?<!\h)\+(?=$|\W|\|)`), "++${1}++"},
		{compile(`(?m)(?<=^|\h|\|)-(?!\h|-)(.+?)(?<!\h)-(?=$|\W|\|)`), "~~${1}~~"},

		{compile(`(?m)(?<=^|\h)commit:("?)([0-9a-fA-F]{8,})\1`), "${2} "},
		{compile(`\[\[([^#|:]+?)\]\]`), "${1}"},

		{compile(`(?mi)(?<=^|\h)!>?(?!\h)(.+?(?:\.png|\.gif|\.jpg|\.jpeg))\((.+?)\)!`), "![${2}](${1})"},
		{compile(`(?mi)(?<=^|\h)!>?(?!\h)(.+?(?:\.png|\.gif|\.jpg|\.jpeg))!`), "![${1}](${1})"},
	}
)

func compile(pattern string) *regexp2.Regexp {
	pattern = strings.ReplaceAll(pattern, `\h`, hspace)
	pattern = strings.ReplaceAll(pattern, `\W`, nonWord)
	return regexp2.MustCompile(pattern, regexp2.None)
}

// NormalizeNewlines converts CRLF and CR line endings to LF.
func NormalizeNewlines(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.ReplaceAll(text, "\r", "\n")
}

// Convert translates Textile to Markdown. Empty input is returned unchanged.
func Convert(text string) string {
	if text == "" {
		return text
	}
	text = NormalizeNewlines(text)
	tokens := newTokenizer(text)

	text = replaceFunc(quotedPre, text, func(m regexp2.Match) string {
		content := group(m, 2)
		if !strings.HasPrefix(content, "\n") {
			content = "\n" + content
		}
		content = replace(quoteLine, content, "\n> ")
		if !strings.HasSuffix(content, "\n> ") {
			content += "\n> "
		}
		return group(m, 1) + content + group(m, 3)
	})

	blocks := make(map[string]preBlock)
	text = replaceFunc(pre, text, func(m regexp2.Match) string {
		tok := tokens.next("pre")
		blocks[tok] = preBlock{open: group(m, 1), content: group(m, 2), close: group(m, 3)}
		return tok
	})

	spans := make(map[string]string)
	text = replaceFunc(inlineCode, text, func(m regexp2.Match) string {
		tok := tokens.next("code")
		spans[tok] = "`" + group(m, 1) + "`"
		return tok
	})

	text = replaceFunc(unorderedList, text, func(m regexp2.Match) string {
		return group(m, 1) + strings.Repeat(" ", (len(group(m, 2))-1)*2) + "-"
	})
	text = replaceFunc(orderedList, text, func(m regexp2.Match) string {
		return group(m, 1) + strings.Repeat(" ", (len(group(m, 2))-1)*3) + "1."
	})

	for _, r := range rules {
		text = replace(r.re, text, r.repl)
	}

	for tok, code := range spans {
		text = strings.Replace(text, tok, code, 1)
	}
	for tok, b := range blocks {
		text = strings.Replace(text, tok, b.fence(), 1)
	}
	return text
}

// ConvertPtr converts an optional text, keeping nil as nil.
func ConvertPtr(text *string) *string {
	if text == nil {
		return nil
	}
	out := Convert(*text)
	return &out
}

type preBlock struct {
	open, content, close string
}

// fence renders the block as a tilde fence, using the code class as the
// fence language and keeping blockquote markers.
func (b preBlock) fence() string {
	var sb strings.Builder
	if strings.HasPrefix(b.open, ">") {
		sb.WriteString("> ~~~")
	} else {
		sb.WriteString("~~~")
	}
	body := replace(preCode, b.content, "${1}\n${2}")
	if body == b.content {
		sb.WriteByte('\n')
	}
	sb.WriteString(body)
	if strings.HasPrefix(b.close, ">") {
		sb.WriteString("\n> ~~~\n")
	} else {
		sb.WriteString("\n~~~\n")
	}
	return sb.String()
}

// tokenizer hands out placeholder tokens delimited by a private-use rune
// sequence that does not occur in the input.
type tokenizer struct {
	delim string
	n     int
}

func newTokenizer(text string) *tokenizer {
	delim := "\uE000"
	for strings.Contains(text, delim) {
		delim += "\uE000"
	}
	return &tokenizer{delim: delim}
}

func (t *tokenizer) next(kind string) string {
	t.n++
	return t.delim + kind + strconv.Itoa(t.n) + t.delim
}

func group(m regexp2.Match, n int) string {
	return m.GroupByNumber(n).String()
}

// replace and replaceFunc only fail on match timeouts, which are not set.
func replace(re *regexp2.Regexp, text, repl string) string {
	out, err := re.Replace(text, repl, -1, -1)
	if err != nil {
		return text
	}
	return out
}

func replaceFunc(re *regexp2.Regexp, text string, fn regexp2.MatchEvaluator) string {
	out, err := re.ReplaceFunc(text, fn, -1, -1)
	if err != nil {
		return text
	}
	return out
}
