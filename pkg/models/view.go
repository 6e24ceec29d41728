package models

// ViewNode is an element of a form layout tree. Text nodes have an empty Tag.
type ViewNode struct {
	Tag      string      `json:"tag,omitempty"`
	Attrs    []ViewAttr  `json:"attrs,omitempty"`
	Children []*ViewNode `json:"children,omitempty"`
	Text     string      `json:"text,omitempty"`
}

// ViewAttr is an ordered element attribute.
type ViewAttr struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Attr returns the value of an attribute.
func (n *ViewNode) Attr(name string) (string, bool) {
	for _, attr := range n.Attrs {
		if attr.Name == name {
			return attr.Value, true
		}
	}

	return "", false
}

// SetAttr sets or replaces an attribute, keeping the original position.
func (n *ViewNode) SetAttr(name, value string) {
	for i, attr := range n.Attrs {
		if attr.Name == name {
			n.Attrs[i].Value = value

			return
		}
	}

	n.Attrs = append(n.Attrs, ViewAttr{Name: name, Value: value})
}

// Append adds children at the end.
func (n *ViewNode) Append(children ...*ViewNode) *ViewNode {
	n.Children = append(n.Children, children...)

	return n
}

// Clone deep-copies the tree.
func (n *ViewNode) Clone() *ViewNode {
	if n == nil {
		return nil
	}

	clone := &ViewNode{
		Tag:  n.Tag,
		Text: n.Text,
	}

	if n.Attrs != nil {
		clone.Attrs = append([]ViewAttr(nil), n.Attrs...)
	}

	for _, child := range n.Children {
		clone.Children = append(clone.Children, child.Clone())
	}

	return clone
}

// MergeOp is how an override fragment is merged at its target.
type MergeOp string

const (
	MergeReplace      MergeOp = "replace"
	MergeInsertBefore MergeOp = "insert-before"
	MergeInsertAfter  MergeOp = "insert-after"
	MergeWrap         MergeOp = "wrap"
)

// ViewOverride is one declarative change applied to a composed view. Target is
// the id attribute of the node to change.
type ViewOverride struct {
	Target   string  `json:"target"   validate:"required"`
	Op       MergeOp `json:"op"       validate:"required,oneof=replace insert-before insert-after wrap"`
	Fragment string  `json:"fragment"`
}

// ViewDocument is the composed form of a process at a given step.
type ViewDocument struct {
	Model  string    `json:"model"`
	Field  string    `json:"field"`
	Step   string    `json:"step"`
	Steps  []string  `json:"steps"`
	Root   *ViewNode `json:"root"`
	Arch   string    `json:"arch"`
	Fields []string  `json:"fields"`
}
