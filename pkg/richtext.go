package notion_blog

import (
	"strings"
	"unicode"
)

var markdownEscaper = strings.NewReplacer(
	`\`, `\\`,
	"`", "\\`",
	"*", `\*`,
	"_", `\_`,
	"[", `\[`,
	"]", `\]`,
	"~", `\~`,
	"$", `\$`,
	"<", `\<`,
)

var urlEscaper = strings.NewReplacer(
	" ", "%20",
	"(", "%28",
	")", "%29",
)

// ConvertRichText renders rich text runs as inline Markdown.
//
// Code formatting wins over bold, italic and strikethrough since inline code
// cannot hold emphasis markers. A link wraps whatever the run rendered to.
func ConvertRichText(runs []RichText) string {
	var sb strings.Builder
	for _, r := range runs {
		sb.WriteString(renderRun(r))
	}
	return sb.String()
}

// PlainText concatenates the raw text of the runs.
func PlainText(runs []RichText) string {
	var sb strings.Builder
	for _, r := range runs {
		sb.WriteString(r.Text)
	}
	return sb.String()
}

// HasEquation reports whether any run is an inline equation.
func HasEquation(runs []RichText) bool {
	for _, r := range runs {
		if r.Equation {
			return true
		}
	}
	return false
}

func renderRun(r RichText) string {
	if r.Text == "" {
		return ""
	}

	var out string
	switch {
	case r.Equation:
		out = "$" + r.Text + "$"
	case r.Code:
		out = inlineCode(r.Text)
	default:
		out = markdownEscaper.Replace(r.Text)
		if r.Strikethrough {
			out = wrap(out, "~~")
		}
		if r.Italic {
			out = wrap(out, "*")
		}
		if r.Bold {
			out = wrap(out, "**")
		}
	}

	if r.Link != "" {
		out = "[" + out + "](" + EscapeURL(r.Link) + ")"
	}
	return out
}

// wrap puts marker around s, keeping surrounding whitespace outside the
// markers so the emphasis still parses.
func wrap(s, marker string) string {
	core := strings.TrimFunc(s, unicode.IsSpace)
	if core == "" {
		return s
	}
	start := strings.Index(s, core)
	return s[:start] + marker + core + marker + s[start+len(core):]
}

func inlineCode(s string) string {
	if !strings.Contains(s, "`") {
		return "`" + s + "`"
	}
	fence := "``"
	for strings.Contains(s, fence) {
		fence += "`"
	}
	return fence + " " + s + " " + fence
}

// EscapeURL makes a URL safe to place inside a Markdown link destination.
func EscapeURL(u string) string {
	return urlEscaper.Replace(u)
}

// escapeLinkText escapes brackets in plain text used as link or image text.
func escapeLinkText(s string) string {
	return strings.NewReplacer(`\`, `\\`, "[", `\[`, "]", `\]`).Replace(s)
}

// escapeBlockStarts escapes the characters that would open a block construct
// (heading, quote, list item, thematic break, setext underline) at the start
// of each line of rendered inline text.
func escapeBlockStarts(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = escapeLineStart(line)
	}
	return strings.Join(lines, "\n")
}

func escapeLineStart(line string) string {
	i := 0
	for i < len(line) && (line[i] == ' ' || line[i] == '\t') {
		i++
	}
	if i == len(line) {
		return line
	}
	rest := line[i:]
	at := -1

	switch c := rest[0]; {
	case c == '>':
		at = 0
	case c == '#':
		n := len(rest) - len(strings.TrimLeft(rest, "#"))
		if n <= 6 && endsMarker(rest, n) {
			at = 0
		}
	case c == '-' || c == '+':
		if endsMarker(rest, 1) || (c == '-' && onlyRuns(rest, c)) {
			at = 0
		}
	case c == '=':
		if onlyRuns(rest, c) {
			at = 0
		}
	case c >= '0' && c <= '9':
		n := len(rest) - len(strings.TrimLeft(rest, "0123456789"))
		if n <= 9 && n < len(rest) && (rest[n] == '.' || rest[n] == ')') && endsMarker(rest, n+1) {
			at = n
		}
	}
	if at < 0 {
		return line
	}
	return line[:i+at] + `\` + line[i+at:]
}

// endsMarker reports whether a marker of length n is followed by a space,
// a tab or the end of the line.
func endsMarker(s string, n int) bool {
	return n == len(s) || s[n] == ' ' || s[n] == '\t'
}

// onlyRuns reports whether s is made of c and blanks only.
func onlyRuns(s string, c byte) bool {
	return strings.Trim(s, string(c)+" \t") == ""
}
