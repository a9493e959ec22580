package access

import (
	"fmt"

	"trackline/api/internal/store"
)

// maxFolderDepth bounds every walk over the folder tree. A stored tree deeper
// than this is treated as corrupt rather than silently truncated: truncation
// would under-report accessible dashboards.
const maxFolderDepth = 1000

// ErrTreeIntegrity is returned when a traversal hits a cycle or exceeds the
// depth cap. Callers surface it as a data-integrity failure, never as an
// empty result.
type ErrTreeIntegrity struct {
	FolderID string
	Reason   string
}

func (e *ErrTreeIntegrity) Error() string {
	return fmt.Sprintf("folder tree integrity: %s at folder %s", e.Reason, e.FolderID)
}

// Tree is an in-memory snapshot of the folder table, indexed for traversal.
// It is built per request; folder mutations made after the snapshot are not
// visible to it.
type Tree struct {
	folders  map[string]store.Folder
	children map[string][]string
}

func NewTree(folders []store.Folder) *Tree {
	t := &Tree{
		folders:  make(map[string]store.Folder, len(folders)),
		children: make(map[string][]string),
	}
	for _, f := range folders {
		t.folders[f.ID] = f
		if f.ParentID != nil {
			t.children[*f.ParentID] = append(t.children[*f.ParentID], f.ID)
		}
	}
	return t
}

func (t *Tree) Folder(folderID string) (store.Folder, bool) {
	f, ok := t.folders[folderID]
	return f, ok
}

// Folders returns the snapshot's folders in unspecified order.
func (t *Tree) Folders() []store.Folder {
	all := make([]store.Folder, 0, len(t.folders))
	for _, f := range t.folders {
		all = append(all, f)
	}
	return all
}

// Expand returns folderID plus every transitive descendant, breadth-first.
func (t *Tree) Expand(folderID string) ([]string, error) {
	if _, ok := t.folders[folderID]; !ok {
		return nil, &ErrTreeIntegrity{FolderID: folderID, Reason: "unknown folder"}
	}

	visited := map[string]bool{folderID: true}
	result := []string{folderID}
	frontier := []string{folderID}

	for depth := 0; len(frontier) > 0; depth++ {
		if depth > maxFolderDepth {
			return nil, &ErrTreeIntegrity{FolderID: folderID, Reason: "depth cap exceeded"}
		}
		var next []string
		for _, id := range frontier {
			for _, child := range t.children[id] {
				if visited[child] {
					return nil, &ErrTreeIntegrity{FolderID: child, Reason: "cycle detected"}
				}
				visited[child] = true
				result = append(result, child)
				next = append(next, child)
			}
		}
		frontier = next
	}
	return result, nil
}

// Ancestry returns the chain from folderID up to its root, starting at
// folderID itself.
func (t *Tree) Ancestry(folderID string) ([]store.Folder, error) {
	var chain []store.Folder
	visited := make(map[string]bool)
	current := folderID

	for depth := 0; ; depth++ {
		if depth > maxFolderDepth {
			return nil, &ErrTreeIntegrity{FolderID: folderID, Reason: "depth cap exceeded"}
		}
		if visited[current] {
			return nil, &ErrTreeIntegrity{FolderID: current, Reason: "cycle detected"}
		}
		visited[current] = true

		f, ok := t.folders[current]
		if !ok {
			// Dangling parent link: stop at the last known folder.
			return chain, nil
		}
		chain = append(chain, f)
		if f.ParentID == nil {
			return chain, nil
		}
		current = *f.ParentID
	}
}

// WouldCycle reports whether re-parenting folderID under newParentID would
// create a cycle. Must run before the write: nothing in the storage layer
// prevents a folder from becoming its own descendant.
func (t *Tree) WouldCycle(folderID, newParentID string) (bool, error) {
	if folderID == newParentID {
		return true, nil
	}
	chain, err := t.Ancestry(newParentID)
	if err != nil {
		return false, err
	}
	for _, f := range chain {
		if f.ID == folderID {
			return true, nil
		}
	}
	return false, nil
}
