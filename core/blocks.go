package core

import (
	"github.com/jomei/notionapi"

	translator "notion2hexo/pkg"
)

// convertRichText maps SDK rich text to the document model. Mentions keep
// their plain text.
func convertRichText(rt []notionapi.RichText) []translator.RichText {
	if len(rt) == 0 {
		return nil
	}
	out := make([]translator.RichText, 0, len(rt))
	for _, r := range rt {
		run := translator.RichText{Text: r.PlainText, Link: r.Href}
		if r.Annotations != nil {
			run.Bold = r.Annotations.Bold
			run.Italic = r.Annotations.Italic
			run.Strikethrough = r.Annotations.Strikethrough
			run.Code = r.Annotations.Code
		}
		if r.Equation != nil {
			run.Equation = true
			run.Text = r.Equation.Expression
		}
		if run.Text == "" && r.Text != nil {
			run.Text = r.Text.Content
			if run.Link == "" && r.Text.Link != nil {
				run.Link = r.Text.Link.Url
			}
		}
		out = append(out, run)
	}
	return out
}

// convertBlock maps one SDK block without its children. Types the converter
// does not know become KindUnsupported and keep their type name.
func convertBlock(b notionapi.Block) translator.Block {
	out := translator.Block{ID: string(b.GetID())}

	switch v := b.(type) {
	case *notionapi.ParagraphBlock:
		out.Kind = translator.KindParagraph
		out.RichText = convertRichText(v.Paragraph.RichText)
	case *notionapi.Heading1Block:
		out.Kind = translator.KindHeading1
		out.RichText = convertRichText(v.Heading1.RichText)
	case *notionapi.Heading2Block:
		out.Kind = translator.KindHeading2
		out.RichText = convertRichText(v.Heading2.RichText)
	case *notionapi.Heading3Block:
		out.Kind = translator.KindHeading3
		out.RichText = convertRichText(v.Heading3.RichText)
	case *notionapi.BulletedListItemBlock:
		out.Kind = translator.KindBulletedItem
		out.RichText = convertRichText(v.BulletedListItem.RichText)
	case *notionapi.NumberedListItemBlock:
		out.Kind = translator.KindNumberedItem
		out.RichText = convertRichText(v.NumberedListItem.RichText)
	case *notionapi.ToDoBlock:
		out.Kind = translator.KindTodo
		out.RichText = convertRichText(v.ToDo.RichText)
		out.Checked = v.ToDo.Checked
	case *notionapi.CodeBlock:
		out.Kind = translator.KindCode
		out.RichText = convertRichText(v.Code.RichText)
		out.Caption = convertRichText(v.Code.Caption)
		out.Language = v.Code.Language
	case *notionapi.EquationBlock:
		out.Kind = translator.KindEquation
		out.Expression = v.Equation.Expression
	case *notionapi.ImageBlock:
		out.Kind = translator.KindImage
		out.URL = v.Image.GetURL()
		out.Caption = convertRichText(v.Image.Caption)
	case *notionapi.QuoteBlock:
		out.Kind = translator.KindQuote
		out.RichText = convertRichText(v.Quote.RichText)
	case *notionapi.CalloutBlock:
		out.Kind = translator.KindCallout
		out.RichText = convertRichText(v.Callout.RichText)
		if v.Callout.Icon != nil && v.Callout.Icon.Emoji != nil {
			out.Icon = string(*v.Callout.Icon.Emoji)
		}
	case *notionapi.DividerBlock:
		out.Kind = translator.KindDivider
	case *notionapi.ToggleBlock:
		out.Kind = translator.KindToggle
		out.RichText = convertRichText(v.Toggle.RichText)
	case *notionapi.TableBlock:
		out.Kind = translator.KindTable
		out.ColumnHeader = v.Table.HasColumnHeader
	case *notionapi.TableRowBlock:
		out.Kind = translator.KindTableRow
		for _, cell := range v.TableRow.Cells {
			out.Cells = append(out.Cells, convertRichText(cell))
		}
	case *notionapi.BookmarkBlock:
		out.Kind = translator.KindBookmark
		out.URL = v.Bookmark.URL
		out.Caption = convertRichText(v.Bookmark.Caption)
	default:
		out.Kind = translator.KindUnsupported
		out.SourceType = string(b.GetType())
	}
	return out
}

// convertProperties keeps the property types the front matter can use.
func convertProperties(props notionapi.Properties) (title string, out map[string]translator.Property) {
	out = make(map[string]translator.Property, len(props))
	for name, p := range props {
		switch v := p.(type) {
		case *notionapi.TitleProperty:
			title = translator.PlainText(convertRichText(v.Title))
		case *notionapi.RichTextProperty:
			out[name] = translator.Property{Name: name, Kind: translator.PropertyText, Text: translator.PlainText(convertRichText(v.RichText))}
		case *notionapi.SelectProperty:
			out[name] = translator.Property{Name: name, Kind: translator.PropertySelect, Text: v.Select.Name}
		case *notionapi.StatusProperty:
			out[name] = translator.Property{Name: name, Kind: translator.PropertySelect, Text: v.Status.Name}
		case *notionapi.MultiSelectProperty:
			var options []string
			for _, o := range v.MultiSelect {
				options = append(options, o.Name)
			}
			out[name] = translator.Property{Name: name, Kind: translator.PropertyMultiSelect, Options: options}
		case *notionapi.CheckboxProperty:
			out[name] = translator.Property{Name: name, Kind: translator.PropertyCheckbox, Checked: v.Checkbox}
		}
	}
	return title, out
}
