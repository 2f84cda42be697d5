package world

import (
	"sort"
	"strings"
)

// Tree connectors.
const (
	branchMid  = "├── "
	branchLast = "└── "
	indentMid  = "|   "
	indentLast = "    "
)

// treeNode is a directory in the rendered source tree.
type treeNode struct {
	files []string
	dirs  map[string]*treeNode
}

func newTreeNode() *treeNode {
	return &treeNode{dirs: make(map[string]*treeNode)}
}

func (n *treeNode) insert(parts []string) {
	cur := n
	for _, dir := range parts[:len(parts)-1] {
		next, ok := cur.dirs[dir]
		if !ok {
			next = newTreeNode()
			cur.dirs[dir] = next
		}
		cur = next
	}
	cur.files = append(cur.files, parts[len(parts)-1])
}

// String renders the tree. At every level files come first, then
// directories, each group sorted by name.
func (n *treeNode) String() string {
	var sb strings.Builder
	n.render(&sb, "")
	return sb.String()
}

func (n *treeNode) render(sb *strings.Builder, prefix string) {
	files := append([]string(nil), n.files...)
	sort.Strings(files)
	dirs := make([]string, 0, len(n.dirs))
	for d := range n.dirs {
		dirs = append(dirs, d)
	}
	sort.Strings(dirs)

	total := len(files) + len(dirs)
	for i, name := range files {
		sb.WriteString(prefix + connector(i == total-1) + name + "\n")
	}
	for j, name := range dirs {
		last := len(files)+j == total-1
		sb.WriteString(prefix + connector(last) + name + "\n")
		childPrefix := prefix + indentMid
		if last {
			childPrefix = prefix + indentLast
		}
		n.dirs[name].render(sb, childPrefix)
	}
}

func connector(last bool) string {
	if last {
		return branchLast
	}
	return branchMid
}
