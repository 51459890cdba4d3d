package notion_blog

import (
	"fmt"
	"strings"
	"time"
)

// BlockKind tags a block with the structural role it plays in the page.
type BlockKind string

const (
	KindParagraph    BlockKind = "paragraph"
	KindHeading1     BlockKind = "heading_1"
	KindHeading2     BlockKind = "heading_2"
	KindHeading3     BlockKind = "heading_3"
	KindBulletedItem BlockKind = "bulleted_list_item"
	KindNumberedItem BlockKind = "numbered_list_item"
	KindTodo         BlockKind = "to_do"
	KindCode         BlockKind = "code"
	KindEquation     BlockKind = "equation"
	KindImage        BlockKind = "image"
	KindQuote        BlockKind = "quote"
	KindDivider      BlockKind = "divider"
	KindCallout      BlockKind = "callout"
	KindToggle       BlockKind = "toggle"
	KindTable        BlockKind = "table"
	KindTableRow     BlockKind = "table_row"
	KindBookmark     BlockKind = "bookmark"
	KindUnsupported  BlockKind = "unsupported"
)

func (k BlockKind) isListItem() bool {
	return k == KindBulletedItem || k == KindNumberedItem || k == KindTodo
}

// RichText is one formatted run of text. For equation runs Text holds the
// expression.
type RichText struct {
	Text          string
	Bold          bool
	Italic        bool
	Strikethrough bool
	Code          bool
	Equation      bool
	Link          string
}

// Block is one node of a page's content tree. Children are owned by their
// parent; nothing is shared between nodes.
type Block struct {
	ID       string
	Kind     BlockKind
	RichText []RichText
	Children []Block

	Language     string       // code
	Checked      bool         // to_do
	URL          string       // image source, bookmark target
	Caption      []RichText   // image, bookmark, code
	Icon         string       // callout emoji
	Expression   string       // equation
	Cells        [][]RichText // table_row
	ColumnHeader bool         // table
	Title        string       // bookmark preview title
	SourceType   string       // original type name of unsupported blocks
}

// PropertyKind is the value type of a page property.
type PropertyKind int

const (
	PropertyText PropertyKind = iota + 1
	PropertySelect
	PropertyMultiSelect
	PropertyCheckbox
)

// Property is a typed page property value.
type Property struct {
	Name    string
	Kind    PropertyKind
	Text    string   // text and select
	Options []string // multi-select
	Checked bool     // checkbox
}

// PageDocument is a fetched page: its properties and the full block tree.
type PageDocument struct {
	ID             string
	Title          string
	URL            string
	CreatedTime    time.Time
	LastEditedTime time.Time
	Properties     map[string]Property
	Blocks         []Block
}

// Property looks a property up by name, ignoring case. An exact match wins.
func (d *PageDocument) Property(name string) (Property, bool) {
	if d == nil || name == "" {
		return Property{}, false
	}
	if p, ok := d.Properties[name]; ok {
		return p, true
	}
	for key, p := range d.Properties {
		if strings.EqualFold(key, name) {
			return p, true
		}
	}
	return Property{}, false
}

// ImageReference is a transient image URL found while converting a page.
type ImageReference struct {
	URL     string
	Alt     string
	BlockID string
}

// WarningKind classifies a non-fatal problem.
type WarningKind string

const (
	WarningUnsupportedBlock WarningKind = "unsupported_block"
	WarningImageFailed      WarningKind = "image_failed"
	WarningBookmarkPreview  WarningKind = "bookmark_preview"
)

// Warning is a degraded-output notice reported alongside a successful result.
type Warning struct {
	Kind    WarningKind
	BlockID string
	Detail  string
}

func (w Warning) String() string {
	if w.BlockID == "" {
		return fmt.Sprintf("%s: %s", w.Kind, w.Detail)
	}
	return fmt.Sprintf("%s [%s]: %s", w.Kind, w.BlockID, w.Detail)
}

// ConversionResult is the finished article.
type ConversionResult struct {
	Title       string
	FrontMatter FrontMatter
	Body        string
	MathNeeded  bool
	Images      []ImageReference
	Warnings    []Warning
}
