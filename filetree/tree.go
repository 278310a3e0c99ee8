// Package filetree is the reconciliation engine behind archive editing. It
// turns the flat subfile rows of an archive into a folder tree, merges staged
// additions into it, marks and unmarks subtrees for deletion, and flattens the
// result back into the add/delete instructions the assembler applies.
//
// Every function is pure: trees go in and come out by value (deep copy), no
// I/O, no shared state. A tree belongs to a single management session.
package filetree

import (
	"sort"
	"strings"
)

type Status string

const (
	StatusExisting Status = "existing"
	StatusToAdd    Status = "to-add"
	StatusToDelete Status = "to-delete"
)

// Node is one file or folder in the reconciliation tree. Path doubles as the
// node's identity and is unique within a tree.
type Node struct {
	Name     string `json:"name"`
	Path     string `json:"path"`
	IsFolder bool   `json:"isFolder"`
	Status   Status `json:"status"`

	// FileToken backs existing file nodes with their subfile row; Payload
	// backs to-add file nodes with their pending upload bytes.
	FileToken string `json:"fileToken,omitempty"`
	SizeBytes int64  `json:"sizeBytes,omitempty"`
	MimeType  string `json:"mimeType,omitempty"`
	Payload   []byte `json:"-"`

	Children []*Node `json:"children,omitempty"`
}

// Entry is a flat input to Build: one file under a slash-delimited relative
// path.
type Entry struct {
	Path      string
	FileToken string
	SizeBytes int64
	MimeType  string
	Payload   []byte
}

// Addition is one staged file Flatten hands back to the assembler.
type Addition struct {
	Path    string
	Payload []byte
}

// NewRoot returns an empty tree.
func NewRoot() *Node {
	return &Node{IsFolder: true, Status: StatusExisting}
}

// Build constructs a tree from flat entries. Each path segment becomes a
// node; intermediate segments are folders with status existing, the final
// segment is a file carrying the entry's metadata and the given status.
// A later entry at an already-built path overwrites the earlier one.
func Build(entries []Entry, status Status) *Node {
	root := NewRoot()
	for _, entry := range entries {
		segments := splitPath(entry.Path)
		if len(segments) == 0 {
			continue
		}
		parent := root
		for i := 0; i < len(segments)-1; i++ {
			parent = ensureFolder(parent, segments[i])
		}
		leaf := &Node{
			Name:      segments[len(segments)-1],
			Path:      strings.Join(segments, "/"),
			Status:    status,
			FileToken: entry.FileToken,
			SizeBytes: entry.SizeBytes,
			MimeType:  entry.MimeType,
			Payload:   entry.Payload,
		}
		replaceChild(parent, leaf)
	}
	return root
}

// Merge unions two trees by path and returns a fresh tree. Paths only in base
// are kept, paths only in incoming are added, and where both carry a file the
// incoming side wins wholesale. Folder-folder collisions merge recursively.
func Merge(base, incoming *Node) *Node {
	out := base.clone()
	mergeInto(out, incoming)
	return out
}

func mergeInto(base, incoming *Node) {
	for _, inc := range incoming.Children {
		existing := childByName(base, inc.Name)
		if existing == nil {
			base.Children = append(base.Children, inc.clone())
			continue
		}
		if existing.IsFolder && inc.IsFolder {
			mergeInto(existing, inc)
			continue
		}
		// Either side is a file: the incoming version replaces the node
		// and everything under it.
		replaceChild(base, inc.clone())
	}
	sortChildren(base)
}

// MarkForDelete flags the node at path, and every descendant, for deletion.
// A to-add node is not flagged but removed outright together with its
// subtree: staged-but-uncommitted content simply disappears. Unknown paths
// are a no-op. The input tree is not modified.
func MarkForDelete(root *Node, path string) *Node {
	out := root.clone()
	node, parent := findWithParent(out, path)
	if node == nil {
		return out
	}
	if node.Status == StatusToAdd {
		removeChild(parent, node.Name)
		return out
	}
	node.walk(func(n *Node) {
		n.Status = StatusToDelete
	})
	return out
}

// UnmarkDelete reverts the node at path and every descendant flagged
// to-delete back to existing. Nodes in other states are untouched. The input
// tree is not modified.
func UnmarkDelete(root *Node, path string) *Node {
	out := root.clone()
	node, _ := findWithParent(out, path)
	if node == nil {
		return out
	}
	node.walk(func(n *Node) {
		if n.Status == StatusToDelete {
			n.Status = StatusExisting
		}
	})
	return out
}

// RemoveStagedNode drops a to-add node and its subtree without touching any
// to-delete marks elsewhere. Nodes in any other state are left alone. The
// input tree is not modified.
func RemoveStagedNode(root *Node, path string) *Node {
	out := root.clone()
	node, parent := findWithParent(out, path)
	if node == nil || node.Status != StatusToAdd {
		return out
	}
	removeChild(parent, node.Name)
	return out
}

// Flatten walks the tree and collects the staged work: every to-add file with
// its payload, and the file token of every to-delete file. Folders contribute
// no tokens themselves, only their leaf descendants do.
func Flatten(root *Node) (adds []Addition, deleteTokens []string) {
	root.walk(func(n *Node) {
		if n.IsFolder {
			return
		}
		switch n.Status {
		case StatusToAdd:
			adds = append(adds, Addition{Path: n.Path, Payload: n.Payload})
		case StatusToDelete:
			if n.FileToken != "" {
				deleteTokens = append(deleteTokens, n.FileToken)
			}
		}
	})
	return adds, deleteTokens
}

// Find returns the node at path, or nil.
func Find(root *Node, path string) *Node {
	node, _ := findWithParent(root, path)
	return node
}

func (n *Node) clone() *Node {
	out := *n
	if n.Payload != nil {
		out.Payload = append([]byte(nil), n.Payload...)
	}
	out.Children = make([]*Node, 0, len(n.Children))
	for _, c := range n.Children {
		out.Children = append(out.Children, c.clone())
	}
	return &out
}

func (n *Node) walk(fn func(*Node)) {
	fn(n)
	for _, c := range n.Children {
		c.walk(fn)
	}
}

func splitPath(p string) []string {
	var segments []string
	for _, s := range strings.Split(p, "/") {
		if s == "" || s == "." {
			continue
		}
		segments = append(segments, s)
	}
	return segments
}

func childByName(parent *Node, name string) *Node {
	for _, c := range parent.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func ensureFolder(parent *Node, name string) *Node {
	if existing := childByName(parent, name); existing != nil && existing.IsFolder {
		return existing
	}
	folder := &Node{
		Name:     name,
		Path:     joinPath(parent.Path, name),
		IsFolder: true,
		// Folders synthesized purely for structure default to existing.
		Status: StatusExisting,
	}
	replaceChild(parent, folder)
	return folder
}

func replaceChild(parent *Node, child *Node) {
	removeChild(parent, child.Name)
	child.Path = joinPath(parent.Path, child.Name)
	rebasePaths(child)
	parent.Children = append(parent.Children, child)
	sortChildren(parent)
}

func removeChild(parent *Node, name string) {
	if parent == nil {
		return
	}
	for i, c := range parent.Children {
		if c.Name == name {
			parent.Children = append(parent.Children[:i], parent.Children[i+1:]...)
			return
		}
	}
}

func rebasePaths(n *Node) {
	for _, c := range n.Children {
		c.Path = joinPath(n.Path, c.Name)
		rebasePaths(c)
	}
}

func joinPath(base, name string) string {
	if base == "" {
		return name
	}
	return base + "/" + name
}

func sortChildren(parent *Node) {
	sort.SliceStable(parent.Children, func(i, j int) bool {
		a, b := parent.Children[i], parent.Children[j]
		if a.IsFolder != b.IsFolder {
			return a.IsFolder
		}
		return a.Name < b.Name
	})
}

func findWithParent(root *Node, path string) (node, parent *Node) {
	segments := splitPath(path)
	if len(segments) == 0 {
		return nil, nil
	}
	parent = nil
	node = root
	for _, s := range segments {
		next := childByName(node, s)
		if next == nil {
			return nil, nil
		}
		parent = node
		node = next
	}
	return node, parent
}
