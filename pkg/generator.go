package notion_blog

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// ConvertOptions tunes the Markdown output.
type ConvertOptions struct {
	// Indent is prefixed once per list nesting level.
	Indent string
	// ToggleAsDetails renders toggles as <details> elements instead of
	// expanding their content inline.
	ToggleAsDetails bool
}

// DefaultConvertOptions indents nested lists by four spaces.
func DefaultConvertOptions() ConvertOptions {
	return ConvertOptions{Indent: "    "}
}

// Rendered is the output of Convert.
type Rendered struct {
	Markdown string
	// MathNeeded is set when a block or inline equation was rendered.
	MathNeeded bool
	// Images lists image references in the order they appear in Markdown.
	Images   []ImageReference
	Warnings []Warning
}

// Convert walks the block tree depth first and renders it as Markdown.
// It performs no I/O and never fails: blocks it cannot render are dropped and
// reported as warnings.
func Convert(blocks []Block, opts ConvertOptions) Rendered {
	if opts.Indent == "" {
		opts.Indent = DefaultConvertOptions().Indent
	}
	r := &renderer{opts: opts}
	r.blocks(blocks, "", false)

	md := strings.TrimRight(strings.Join(r.lines, "\n"), "\n")
	if md != "" {
		md += "\n"
	}
	return Rendered{
		Markdown:   md,
		MathNeeded: r.math,
		Images:     r.images,
		Warnings:   r.warnings,
	}
}

// Generate writes the article: front matter, a blank line, then the body.
func Generate(w io.Writer, res *ConversionResult) error {
	header, err := res.FrontMatter.Render()
	if err != nil {
		return fmt.Errorf("rendering front matter: %w", err)
	}
	if _, err := io.WriteString(w, header+"\n"+res.Body); err != nil {
		return fmt.Errorf("writing article: %w", err)
	}
	return nil
}

type renderer struct {
	opts     ConvertOptions
	lines    []string
	math     bool
	images   []ImageReference
	warnings []Warning
}

// emit appends one line. Empty lines drop the trailing spaces of prefix so
// blank lines inside quotes stay as ">".
func (r *renderer) emit(prefix, line string) {
	if line == "" {
		r.lines = append(r.lines, strings.TrimRight(prefix, " "))
		return
	}
	r.lines = append(r.lines, prefix+line)
}

func (r *renderer) emitText(prefix, text string) {
	for _, line := range strings.Split(text, "\n") {
		r.emit(prefix, line)
	}
}

func (r *renderer) blank(prefix string) {
	r.emit(prefix, "")
}

func (r *renderer) warn(b Block, detail string) {
	r.warnings = append(r.warnings, Warning{Kind: WarningUnsupportedBlock, BlockID: b.ID, Detail: detail})
}

func (r *renderer) richText(runs []RichText) string {
	if HasEquation(runs) {
		r.math = true
	}
	return ConvertRichText(runs)
}

// blocks renders siblings. nested is true for the children of a list item,
// where a trailing list run needs no closing blank line.
func (r *renderer) blocks(list []Block, prefix string, nested bool) {
	ordinal := 0
	for i, b := range list {
		if b.Kind == KindNumberedItem {
			ordinal++
		} else {
			ordinal = 0
		}

		r.block(b, prefix, ordinal)

		if b.Kind.isListItem() {
			last := i == len(list)-1
			if (last && !nested) || (!last && !list[i+1].Kind.isListItem()) {
				r.blank(prefix)
			}
		}
	}
}

func (r *renderer) block(b Block, prefix string, ordinal int) {
	switch b.Kind {
	case KindParagraph:
		text := escapeBlockStarts(r.richText(b.RichText))
		if text != "" {
			r.emitText(prefix, text)
		}
		r.blank(prefix)
		r.blocks(b.Children, prefix, false)

	case KindHeading1, KindHeading2, KindHeading3:
		level := map[BlockKind]int{KindHeading1: 1, KindHeading2: 2, KindHeading3: 3}[b.Kind]
		text := strings.ReplaceAll(r.richText(b.RichText), "\n", " ")
		r.emit(prefix, strings.Repeat("#", level)+" "+text)
		r.blank(prefix)
		r.blocks(b.Children, prefix, false)

	case KindBulletedItem:
		r.listItem(b, prefix, "- ")

	case KindNumberedItem:
		r.listItem(b, prefix, strconv.Itoa(ordinal)+". ")

	case KindTodo:
		box := "[ ] "
		if b.Checked {
			box = "[x] "
		}
		r.listItem(b, prefix, "- "+box)

	case KindCode:
		r.code(b, prefix)

	case KindEquation:
		r.math = true
		r.emit(prefix, "$$")
		r.emitText(prefix, b.Expression)
		r.emit(prefix, "$$")
		r.blank(prefix)

	case KindImage:
		if b.URL == "" {
			r.warn(b, "image without source url")
			return
		}
		alt := escapeLinkText(strings.ReplaceAll(PlainText(b.Caption), "\n", " "))
		src := EscapeURL(b.URL)
		r.emit(prefix, "!["+alt+"]("+src+")")
		r.blank(prefix)
		r.images = append(r.images, ImageReference{URL: src, Alt: alt, BlockID: b.ID})

	case KindQuote:
		r.quote(b, prefix, "")

	case KindCallout:
		icon := ""
		if b.Icon != "" {
			icon = b.Icon + " "
		}
		r.quote(b, prefix, icon)

	case KindDivider:
		r.emit(prefix, "---")
		r.blank(prefix)

	case KindToggle:
		r.toggle(b, prefix)

	case KindTable:
		r.table(b, prefix)

	case KindTableRow:
		r.emit(prefix, r.tableRow(b.Cells, len(b.Cells)))

	case KindBookmark:
		if b.URL == "" {
			r.warn(b, "bookmark without url")
			return
		}
		title := PlainText(b.Caption)
		if title == "" {
			title = b.Title
		}
		if title == "" {
			title = b.URL
		}
		r.emit(prefix, "["+escapeLinkText(strings.ReplaceAll(title, "\n", " "))+"]("+EscapeURL(b.URL)+")")
		r.blank(prefix)

	default:
		source := b.SourceType
		if source == "" {
			source = string(b.Kind)
		}
		r.warn(b, "unsupported block type "+source)
	}
}

func (r *renderer) listItem(b Block, prefix, marker string) {
	lines := strings.Split(escapeBlockStarts(r.richText(b.RichText)), "\n")
	r.emit(prefix, marker+lines[0])
	cont := prefix + strings.Repeat(" ", len(marker))
	for _, line := range lines[1:] {
		r.emit(cont, line)
	}
	r.blocks(b.Children, prefix+r.opts.Indent, true)
}

func (r *renderer) code(b Block, prefix string) {
	source := PlainText(b.RichText)
	fence := "```"
	for strings.Contains(source, fence) {
		fence += "`"
	}
	r.emit(prefix, fence+codeLanguage(b.Language))
	if source != "" {
		r.emitText(prefix, source)
	}
	r.emit(prefix, fence)
	r.blank(prefix)
}

// codeLanguage turns a declared language into a fence tag. Notion's
// "plain text" counts as no language.
func codeLanguage(lang string) string {
	lang = strings.TrimSpace(strings.ToLower(lang))
	if lang == "" || lang == "plain text" {
		return ""
	}
	return strings.ReplaceAll(lang, " ", "-")
}

func (r *renderer) quote(b Block, prefix, lead string) {
	inner := prefix + "> "
	text := escapeBlockStarts(r.richText(b.RichText))
	if text != "" || lead != "" {
		r.emitText(inner, lead+text)
	}
	if len(b.Children) > 0 {
		if text != "" || lead != "" {
			r.blank(inner)
		}
		r.blocks(b.Children, inner, false)
		// drop the quote's own trailing blank continuation
		if n := len(r.lines); n > 0 && r.lines[n-1] == strings.TrimRight(inner, " ") {
			r.lines = r.lines[:n-1]
		}
	}
	r.blank(prefix)
}

var summaryPolicy = bluemonday.StrictPolicy()

func (r *renderer) toggle(b Block, prefix string) {
	if r.opts.ToggleAsDetails {
		if HasEquation(b.RichText) {
			r.math = true
		}
		summary := summaryPolicy.Sanitize(strings.ReplaceAll(PlainText(b.RichText), "\n", " "))
		r.emit(prefix, "<details><summary>"+summary+"</summary>")
		r.blank(prefix)
		r.blocks(b.Children, prefix, false)
		r.emit(prefix, "</details>")
		r.blank(prefix)
		return
	}

	text := escapeBlockStarts(r.richText(b.RichText))
	if text != "" {
		r.emitText(prefix, text)
		r.blank(prefix)
	}
	r.blocks(b.Children, prefix, false)
}

func (r *renderer) table(b Block, prefix string) {
	var rows [][][]RichText
	width := 0
	for _, child := range b.Children {
		if child.Kind != KindTableRow {
			continue
		}
		rows = append(rows, child.Cells)
		if len(child.Cells) > width {
			width = len(child.Cells)
		}
	}
	if len(rows) == 0 || width == 0 {
		return
	}

	r.emit(prefix, r.tableRow(rows[0], width))
	sep := make([]string, width)
	for i := range sep {
		sep[i] = "---"
	}
	r.emit(prefix, "| "+strings.Join(sep, " | ")+" |")
	for _, row := range rows[1:] {
		r.emit(prefix, r.tableRow(row, width))
	}
	r.blank(prefix)
}

var cellEscaper = strings.NewReplacer("|", `\|`, "\n", "<br>")

func (r *renderer) tableRow(cells [][]RichText, width int) string {
	out := make([]string, width)
	for i := 0; i < width; i++ {
		if i < len(cells) {
			out[i] = cellEscaper.Replace(r.richText(cells[i]))
		}
	}
	return "| " + strings.Join(out, " | ") + " |"
}
