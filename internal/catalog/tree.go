package catalog

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Node is one directory or file in the catalog tree. Directory nodes carry
// the aggregate size and file count of everything below them.
type Node struct {
	Name      string
	Path      string
	IsDir     bool
	Size      int64
	FileCount int
	Children  []*Node
}

func buildTree(root string, paths []string, records map[string]FileRecord) *Node {
	top := &Node{Name: root, IsDir: true}
	dirs := map[string]*Node{"": top}

	for _, p := range paths {
		parts := strings.Split(p, "/")
		parent := top
		for i := 0; i < len(parts)-1; i++ {
			dirPath := strings.Join(parts[:i+1], "/")
			dir, ok := dirs[dirPath]
			if !ok {
				dir = &Node{Name: parts[i], Path: dirPath, IsDir: true}
				dirs[dirPath] = dir
				parent.Children = append(parent.Children, dir)
			}
			parent = dir
		}
		parent.Children = append(parent.Children, &Node{
			Name: parts[len(parts)-1],
			Path: p,
			Size: records[p].Size,
		})
	}

	aggregate(top)
	return top
}

// aggregate fills directory sizes and counts bottom-up and orders children
// directories first, then by name.
func aggregate(n *Node) (int64, int) {
	if !n.IsDir {
		return n.Size, 1
	}
	sort.Slice(n.Children, func(i, j int) bool {
		a, b := n.Children[i], n.Children[j]
		if a.IsDir != b.IsDir {
			return a.IsDir
		}
		return a.Name < b.Name
	})
	var size int64
	count := 0
	for _, child := range n.Children {
		s, c := aggregate(child)
		size += s
		count += c
	}
	n.Size = size
	n.FileCount = count
	return size, count
}

// RenderTree returns a string representation of the directory tree.
func RenderTree(n *Node) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s (%s)\n", n.Name, dirSummary(n)))
	renderChildren(&sb, n, "")
	return sb.String()
}

func renderChildren(sb *strings.Builder, n *Node, prefix string) {
	for i, child := range n.Children {
		isLast := i == len(n.Children)-1
		marker := "├── "
		if isLast {
			marker = "└── "
		}
		if child.IsDir {
			sb.WriteString(fmt.Sprintf("%s%s%s/ (%s)\n", prefix, marker, child.Name, dirSummary(child)))
			newPrefix := prefix + "│   "
			if isLast {
				newPrefix = prefix + "    "
			}
			renderChildren(sb, child, newPrefix)
			continue
		}
		sb.WriteString(fmt.Sprintf("%s%s%s (%s)\n", prefix, marker, child.Name, FormatBytes(child.Size)))
	}
}

func dirSummary(n *Node) string {
	noun := "files"
	if n.FileCount == 1 {
		noun = "file"
	}
	return fmt.Sprintf("%d %s, %s", n.FileCount, noun, FormatBytes(n.Size))
}

// FormatBytes renders a byte count with a binary unit, e.g. "1.5 KB".
func FormatBytes(bytes int64) string {
	if bytes <= 0 {
		return "0 B"
	}
	sizes := []string{"B", "KB", "MB", "GB", "TB"}
	i := int(math.Floor(math.Log(float64(bytes)) / math.Log(1024)))
	if i >= len(sizes) {
		i = len(sizes) - 1
	}
	v := float64(bytes) / math.Pow(1024, float64(i))
	s := fmt.Sprintf("%.1f", v)
	s = strings.TrimSuffix(s, ".0")
	return s + " " + sizes[i]
}
