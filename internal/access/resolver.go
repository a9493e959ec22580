// Package access resolves which folders and dashboards a principal may see.
//
// Read and write are conflated: any access implies edit. The only asymmetry
// is the admin role, which bypasses every per-resource check. Inheritance
// flows strictly downward: a grant on a folder covers every descendant
// folder and every dashboard whose folder chain passes through it, but a
// grant on a child never reaches its parent or siblings.
package access

import "trackline/api/internal/store"

const (
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// Resolver answers access questions for one principal against a snapshot of
// the folder tree and the principal's direct grants. Build it per request.
type Resolver struct {
	principal    store.User
	tree         *Tree
	folderGrants map[string]struct{}
	dashGrants   map[string]struct{}
}

func NewResolver(principal store.User, tree *Tree, folderGrantIDs, dashboardGrantIDs []string) *Resolver {
	r := &Resolver{
		principal:    principal,
		tree:         tree,
		folderGrants: make(map[string]struct{}, len(folderGrantIDs)),
		dashGrants:   make(map[string]struct{}, len(dashboardGrantIDs)),
	}
	for _, id := range folderGrantIDs {
		r.folderGrants[id] = struct{}{}
	}
	for _, id := range dashboardGrantIDs {
		r.dashGrants[id] = struct{}{}
	}
	return r
}

func (r *Resolver) IsAdmin() bool {
	return r.principal.Role == RoleAdmin
}

// CanAccessDashboard applies the dashboard rule: owner, then direct grant,
// then the folder chain walking up from the dashboard's own folder.
func (r *Resolver) CanAccessDashboard(d store.Dashboard) (bool, error) {
	if r.IsAdmin() {
		return true, nil
	}
	if d.OwnerID == r.principal.ID {
		return true, nil
	}
	if _, ok := r.dashGrants[d.ID]; ok {
		return true, nil
	}
	if d.FolderID == nil {
		return false, nil
	}
	return r.CanAccessFolder(*d.FolderID)
}

// CanAccessFolder applies the folder rule: ownership or a grant on the folder
// itself or on any ancestor.
func (r *Resolver) CanAccessFolder(folderID string) (bool, error) {
	if r.IsAdmin() {
		return true, nil
	}
	chain, err := r.tree.Ancestry(folderID)
	if err != nil {
		return false, err
	}
	for _, f := range chain {
		if f.OwnerID != nil && *f.OwnerID == r.principal.ID {
			return true, nil
		}
		if _, ok := r.folderGrants[f.ID]; ok {
			return true, nil
		}
	}
	return false, nil
}

// AccessibleDashboards filters dashboards down to those the principal can
// reach by ownership, direct grant, or ancestor-folder grant.
func (r *Resolver) AccessibleDashboards(dashboards []store.Dashboard) ([]store.Dashboard, error) {
	accessible := make([]store.Dashboard, 0, len(dashboards))
	for _, d := range dashboards {
		ok, err := r.CanAccessDashboard(d)
		if err != nil {
			return nil, err
		}
		if ok {
			accessible = append(accessible, d)
		}
	}
	return accessible, nil
}

// AccessibleFolders filters folders to those the principal may list.
func (r *Resolver) AccessibleFolders(folders []store.Folder) ([]store.Folder, error) {
	accessible := make([]store.Folder, 0, len(folders))
	for _, f := range folders {
		ok, err := r.CanAccessFolder(f.ID)
		if err != nil {
			return nil, err
		}
		if ok {
			accessible = append(accessible, f)
		}
	}
	return accessible, nil
}
