package notion_blog

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DateLayout is the timestamp layout written to the front matter.
const DateLayout = "2006-01-02 15:04:05"

// FrontMatter holds the header fields in their output order.
type FrontMatter struct {
	Title       string
	Date        time.Time
	Tags        []string
	Categories  string
	Description string
	MathJax     bool
}

// Overrides replaces values taken from the page. Zero values leave the page
// value in place; a non-nil empty Tags slice clears the tags.
type Overrides struct {
	Title       string
	Tags        []string
	Category    string
	Description string
	MathJax     *bool
}

// MakeFrontMatter maps page properties to front matter fields. Only the
// configured property names are read; everything else is ignored.
//
// The math flag is the converter's detection OR'd with an enabled MathJax
// property; a MathJax property that is present and unchecked suppresses the
// detection.
func MakeFrontMatter(doc *PageDocument, mathNeeded bool, overrides Overrides, props PropertyMapping, defaults HexoConfig, now time.Time) FrontMatter {
	fm := FrontMatter{
		Title:       doc.Title,
		Date:        now,
		Tags:        append([]string{}, defaults.DefaultTags...),
		Categories:  defaults.DefaultCategory,
		Description: defaults.DefaultDescription,
		MathJax:     mathNeeded || defaults.DefaultMathJax,
	}

	if fm.Title == "" {
		fm.Title = defaults.DefaultTitle
	}

	if p, ok := doc.Property(props.Tags); ok {
		switch p.Kind {
		case PropertyMultiSelect:
			fm.Tags = append([]string{}, p.Options...)
		case PropertySelect, PropertyText:
			if p.Text != "" {
				fm.Tags = splitTags(p.Text)
			}
		}
	}

	if p, ok := doc.Property(props.Category); ok {
		switch p.Kind {
		case PropertySelect, PropertyText:
			if p.Text != "" {
				fm.Categories = p.Text
			}
		case PropertyMultiSelect:
			if len(p.Options) > 0 {
				fm.Categories = p.Options[0]
			}
		}
	}
	if mapped, ok := props.CategoryMap[fm.Categories]; ok {
		fm.Categories = mapped
	}

	if p, ok := doc.Property(props.Description); ok && (p.Kind == PropertyText || p.Kind == PropertySelect) {
		if p.Text != "" {
			fm.Description = p.Text
		}
	}

	if p, ok := doc.Property(props.MathJax); ok && p.Kind == PropertyCheckbox {
		fm.MathJax = p.Checked
	}

	if overrides.Title != "" {
		fm.Title = overrides.Title
	}
	if overrides.Tags != nil {
		fm.Tags = append([]string{}, overrides.Tags...)
	}
	if overrides.Category != "" {
		fm.Categories = overrides.Category
	}
	if overrides.Description != "" {
		fm.Description = overrides.Description
	}
	if overrides.MathJax != nil {
		fm.MathJax = *overrides.MathJax
	}

	return fm
}

func splitTags(s string) []string {
	var tags []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

// Render writes the header including its --- delimiters. Field order is
// fixed: title, date, tags, categories, description, mathjax. An empty
// description is left out.
func (fm FrontMatter) Render() (string, error) {
	root := &yaml.Node{Kind: yaml.MappingNode}
	add := func(key string, value *yaml.Node) {
		root.Content = append(root.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}, value)
	}

	add("title", stringNode(fm.Title))
	add("date", &yaml.Node{Kind: yaml.ScalarNode, Value: fm.Date.Format(DateLayout)})

	tags := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
	for _, t := range fm.Tags {
		tags.Content = append(tags.Content, stringNode(t))
	}
	if len(tags.Content) == 0 {
		tags.Style = yaml.FlowStyle
	}
	add("tags", tags)

	add("categories", stringNode(fm.Categories))
	if fm.Description != "" {
		add("description", stringNode(fm.Description))
	}
	add("mathjax", &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: strconv.FormatBool(fm.MathJax)})

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(root); err != nil {
		return "", fmt.Errorf("encoding front matter: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("encoding front matter: %w", err)
	}
	return "---\n" + buf.String() + "---\n", nil
}

func stringNode(s string) *yaml.Node {
	n := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: s}
	if needsQuoting(s) {
		n.Style = yaml.DoubleQuotedStyle
	}
	return n
}

// needsQuoting reports whether a plain scalar would be misread: structural
// characters, line breaks, quotes, or text that resolves to another type.
func needsQuoting(s string) bool {
	if s == "" {
		return true
	}
	if strings.ContainsAny(s, ":#\n\r\t\"'\\") {
		return true
	}
	if strings.ContainsRune("-?,[]{}&*!|>%@`", rune(s[0])) {
		return true
	}
	if s != strings.TrimSpace(s) {
		return true
	}
	switch strings.ToLower(s) {
	case "true", "false", "yes", "no", "on", "off", "y", "n", "null", "~":
		return true
	}
	if _, err := strconv.ParseFloat(s, 64); err == nil {
		return true
	}
	return false
}
