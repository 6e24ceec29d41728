package view

import (
	"errors"
	"fmt"

	"github.com/dukex/stepwise/pkg/models"
)

var (
	// ErrTargetNotFound is returned when no node carries the override target id.
	ErrTargetNotFound = errors.New("override target not found")

	// ErrInvalidOverride is returned for unknown operations and unusable fragments.
	ErrInvalidOverride = errors.New("invalid view override")
)

// Merge applies override to the tree under root. The target is the node
// whose id attribute equals override.Target; root itself can only be
// wrapped or changed in place by its descendants.
func Merge(root *models.ViewNode, override models.ViewOverride) error {
	nodes, err := Parse(override.Fragment)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidOverride, err)
	}

	parent, index := find(root, override.Target)
	if parent == nil {
		return fmt.Errorf("%w: %s", ErrTargetNotFound, override.Target)
	}

	target := parent.Children[index]

	switch override.Op {
	case models.MergeReplace:
		parent.Children = splice(parent.Children, index, 1, nodes)
	case models.MergeInsertBefore:
		parent.Children = splice(parent.Children, index, 0, nodes)
	case models.MergeInsertAfter:
		parent.Children = splice(parent.Children, index+1, 0, nodes)
	case models.MergeWrap:
		if len(nodes) != 1 || nodes[0].Tag == "" {
			return fmt.Errorf("%w: wrap needs exactly one element", ErrInvalidOverride)
		}

		wrapper := nodes[0]
		wrapper.Append(target)
		parent.Children[index] = wrapper
	default:
		return fmt.Errorf("%w: unknown operation %q", ErrInvalidOverride, override.Op)
	}

	return nil
}

// find returns the parent of the node identified by id and its index.
func find(node *models.ViewNode, id string) (*models.ViewNode, int) {
	for i, child := range node.Children {
		if value, ok := child.Attr("id"); ok && value == id {
			return node, i
		}

		if parent, index := find(child, id); parent != nil {
			return parent, index
		}
	}

	return nil, -1
}

func splice(children []*models.ViewNode, at, remove int, insert []*models.ViewNode) []*models.ViewNode {
	result := make([]*models.ViewNode, 0, len(children)-remove+len(insert))
	result = append(result, children[:at]...)
	result = append(result, insert...)
	result = append(result, children[at+remove:]...)

	return result
}
