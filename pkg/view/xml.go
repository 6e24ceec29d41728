package view

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/dukex/stepwise/pkg/models"
)

// Parse reads a layout fragment. A fragment may hold several top level
// elements; whitespace between elements is dropped.
func Parse(fragment string) ([]*models.ViewNode, error) {
	decoder := xml.NewDecoder(strings.NewReader("<fragment>" + fragment + "</fragment>"))

	root := &models.ViewNode{}
	stack := []*models.ViewNode{root}

	for {
		token, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return nil, fmt.Errorf("failed to parse view fragment: %w", err)
		}

		parent := stack[len(stack)-1]

		switch t := token.(type) {
		case xml.StartElement:
			node := &models.ViewNode{Tag: t.Name.Local}
			for _, attr := range t.Attr {
				node.Attrs = append(node.Attrs, models.ViewAttr{Name: attr.Name.Local, Value: attr.Value})
			}

			parent.Append(node)
			stack = append(stack, node)
		case xml.EndElement:
			stack = stack[:len(stack)-1]
		case xml.CharData:
			text := string(t)
			if strings.TrimSpace(text) == "" {
				continue
			}

			parent.Append(&models.ViewNode{Text: text})
		}
	}

	if len(root.Children) != 1 || root.Children[0].Tag != "fragment" {
		return nil, errors.New("failed to parse view fragment: unbalanced elements")
	}

	return root.Children[0].Children, nil
}

var (
	attrEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")
	textEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
)

// Render serializes node as compact markup.
func Render(node *models.ViewNode) string {
	var sb strings.Builder

	render(&sb, node)

	return sb.String()
}

func render(sb *strings.Builder, node *models.ViewNode) {
	if node.Tag == "" {
		sb.WriteString(textEscaper.Replace(node.Text))

		return
	}

	sb.WriteByte('<')
	sb.WriteString(node.Tag)

	for _, attr := range node.Attrs {
		sb.WriteByte(' ')
		sb.WriteString(attr.Name)
		sb.WriteString(`="`)
		sb.WriteString(attrEscaper.Replace(attr.Value))
		sb.WriteByte('"')
	}

	if len(node.Children) == 0 {
		sb.WriteString("/>")

		return
	}

	sb.WriteByte('>')

	for _, child := range node.Children {
		render(sb, child)
	}

	sb.WriteString("</")
	sb.WriteString(node.Tag)
	sb.WriteByte('>')
}
