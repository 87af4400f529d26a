// Package folder models a mailbox folder hierarchy and resolves
// delimiter-flexible folder path strings against it.
package folder

import (
	"fmt"
	"strings"

	"github.com/pterm/pterm"
)

const delimiters = `/\>|`

// Folder is one node of a mailbox folder tree. Path is the store-native
// identifier for the node (for IMAP, the delimiter-joined mailbox name).
type Folder struct {
	Name     string
	Path     string
	Children []*Folder
}

// NotFoundError reports the first path segment that did not match any child,
// along with the sibling names available at that depth so a caller can point
// the user at the discovery mode.
type NotFoundError struct {
	Segment   string
	Available []string
}

func (e *NotFoundError) Error() string {
	if len(e.Available) == 0 {
		return fmt.Sprintf("folder %q not found (no subfolders at this depth)", e.Segment)
	}
	return fmt.Sprintf("folder %q not found; available: %s", e.Segment, strings.Join(e.Available, ", "))
}

// SplitPath splits a free-form folder path into its segments. Any run of the
// delimiters / \ > | counts as a single separator; segments are trimmed and
// empty segments discarded, so "Inbox//Policy " and `Inbox\Policy` are equal.
func SplitPath(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return strings.ContainsRune(delimiters, r)
	})
	segments := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			segments = append(segments, p)
		}
	}
	return segments
}

// Resolve walks the tree from root, matching one segment per level.
// Matching is case-insensitive on whitespace-trimmed display names; the
// original store behaviour is ambiguous here and the lenient reading avoids
// spurious misses on hand-typed paths.
func Resolve(root *Folder, segments []string) (*Folder, error) {
	node := root
	for _, seg := range segments {
		var next *Folder
		for _, child := range node.Children {
			if strings.EqualFold(strings.TrimSpace(child.Name), strings.TrimSpace(seg)) {
				next = child
				break
			}
		}
		if next == nil {
			return nil, &NotFoundError{Segment: seg, Available: childNames(node)}
		}
		node = next
	}
	return node, nil
}

func childNames(node *Folder) []string {
	names := make([]string, 0, len(node.Children))
	for _, child := range node.Children {
		names = append(names, child.Name)
	}
	return names
}

// RenderTree prints the folder tree to stdout down to maxDepth levels below
// the root. Discovery mode; independent of path resolution.
func RenderTree(root *Folder, maxDepth int) error {
	if maxDepth < 1 {
		maxDepth = 1
	}
	node := pterm.TreeNode{
		Text:     root.Name,
		Children: treeNodes(root.Children, 1, maxDepth),
	}
	return pterm.DefaultTree.WithRoot(node).Render()
}

func treeNodes(folders []*Folder, level, maxDepth int) []pterm.TreeNode {
	if level > maxDepth {
		return nil
	}
	nodes := make([]pterm.TreeNode, 0, len(folders))
	for _, f := range folders {
		nodes = append(nodes, pterm.TreeNode{
			Text:     f.Name,
			Children: treeNodes(f.Children, level+1, maxDepth),
		})
	}
	return nodes
}
