package app

import (
	"context"
	"sort"
	"strings"

	"trackline/api/internal/access"
	"trackline/api/internal/status"
	"trackline/api/internal/store"
	"trackline/api/internal/util"
)

type FolderInput struct {
	Name     string  `json:"name"`
	Icon     string  `json:"icon"`
	Color    string  `json:"color"`
	ParentID *string `json:"parentId"`
}

func (s *Service) ListFolders(ctx context.Context, session Session) ([]map[string]any, error) {
	resolver, tree, err := s.resolverFor(ctx, session)
	if err != nil {
		return nil, err
	}

	accessible, err := resolver.AccessibleFolders(tree.Folders())
	if err != nil {
		return nil, err
	}

	sort.Slice(accessible, func(i, j int) bool { return accessible[i].Name < accessible[j].Name })

	items := make([]map[string]any, 0, len(accessible))
	for _, f := range accessible {
		items = append(items, folderPayload(f))
	}
	return items, nil
}

func (s *Service) GetFolder(ctx context.Context, session Session, folderID string) (map[string]any, error) {
	resolver, tree, err := s.resolverFor(ctx, session)
	if err != nil {
		return nil, err
	}
	folder, ok := tree.Folder(folderID)
	if !ok {
		return nil, denial(resolver)
	}
	allowed, err := resolver.CanAccessFolder(folderID)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, denial(resolver)
	}
	return folderPayload(folder), nil
}

func (s *Service) CreateFolder(ctx context.Context, session Session, input FolderInput) (map[string]any, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, validationError("name is required")
	}

	resolver, tree, err := s.resolverFor(ctx, session)
	if err != nil {
		return nil, err
	}

	if input.ParentID != nil {
		if _, ok := tree.Folder(*input.ParentID); !ok {
			return nil, denial(resolver)
		}
		allowed, err := resolver.CanAccessFolder(*input.ParentID)
		if err != nil {
			return nil, err
		}
		if !allowed {
			return nil, denial(resolver)
		}
	}

	ownerID := session.UserID
	folder := store.Folder{
		ID:       util.NewID("fld"),
		Name:     name,
		Icon:     input.Icon,
		Color:    input.Color,
		ParentID: input.ParentID,
		OwnerID:  &ownerID,
	}
	if err := s.store.InsertFolder(ctx, folder); err != nil {
		return nil, err
	}
	return folderPayload(folder), nil
}

func (s *Service) UpdateFolder(ctx context.Context, session Session, folderID string, input FolderInput) (map[string]any, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, validationError("name is required")
	}

	resolver, tree, err := s.resolverFor(ctx, session)
	if err != nil {
		return nil, err
	}
	folder, ok := tree.Folder(folderID)
	if !ok {
		return nil, denial(resolver)
	}
	allowed, err := resolver.CanAccessFolder(folderID)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, denial(resolver)
	}

	if input.ParentID != nil {
		if _, ok := tree.Folder(*input.ParentID); !ok {
			return nil, denial(resolver)
		}
		parentAllowed, err := resolver.CanAccessFolder(*input.ParentID)
		if err != nil {
			return nil, err
		}
		if !parentAllowed {
			return nil, denial(resolver)
		}
		cycles, err := tree.WouldCycle(folderID, *input.ParentID)
		if err != nil {
			return nil, err
		}
		if cycles {
			return nil, validationError("folder cannot be moved into its own subtree")
		}
	}

	folder.Name = name
	folder.Icon = input.Icon
	folder.Color = input.Color
	folder.ParentID = input.ParentID
	if err := s.store.UpdateFolder(ctx, folder); err != nil {
		return nil, err
	}
	return folderPayload(folder), nil
}

// DeleteFolder removes one folder. Children are re-parented to the workspace
// root by the storage layer, never cascaded.
func (s *Service) DeleteFolder(ctx context.Context, session Session, folderID string) error {
	resolver, tree, err := s.resolverFor(ctx, session)
	if err != nil {
		return err
	}
	if _, ok := tree.Folder(folderID); !ok {
		return denial(resolver)
	}
	allowed, err := resolver.CanAccessFolder(folderID)
	if err != nil {
		return err
	}
	if !allowed {
		return denial(resolver)
	}
	return s.store.DeleteFolder(ctx, folderID)
}

// SetFolderSharing toggles the anonymous share link. Enabling always mints a
// fresh token, so re-enabling after a disable invalidates previously shared
// URLs.
func (s *Service) SetFolderSharing(ctx context.Context, session Session, folderID string, isPublic bool) (map[string]any, error) {
	resolver, tree, err := s.resolverFor(ctx, session)
	if err != nil {
		return nil, err
	}
	folder, ok := tree.Folder(folderID)
	if !ok {
		return nil, denial(resolver)
	}
	allowed, err := resolver.CanAccessFolder(folderID)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, denial(resolver)
	}

	var token *string
	if isPublic {
		minted := util.NewToken()
		token = &minted
	}
	if err := s.store.SetFolderSharing(ctx, folderID, isPublic, token); err != nil {
		return nil, err
	}

	folder.IsPublic = isPublic
	folder.ShareToken = token
	return folderPayload(folder), nil
}

// FolderTree returns the subtree rooted at folderID in breadth-first order,
// the folder itself first.
func (s *Service) FolderTree(ctx context.Context, session Session, folderID string) ([]map[string]any, error) {
	resolver, tree, err := s.resolverFor(ctx, session)
	if err != nil {
		return nil, err
	}
	if _, ok := tree.Folder(folderID); !ok {
		return nil, denial(resolver)
	}
	allowed, err := resolver.CanAccessFolder(folderID)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, denial(resolver)
	}

	subtree, err := tree.Expand(folderID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(subtree))
	for _, id := range subtree {
		if f, ok := tree.Folder(id); ok {
			items = append(items, folderPayload(f))
		}
	}
	return items, nil
}

// FolderProgress aggregates completion over every task in the folder's
// subtree, using each task's own dashboard settings for normalization.
func (s *Service) FolderProgress(ctx context.Context, session Session, folderID string) (map[string]any, error) {
	resolver, tree, err := s.resolverFor(ctx, session)
	if err != nil {
		return nil, err
	}
	if _, ok := tree.Folder(folderID); !ok {
		return nil, denial(resolver)
	}
	allowed, err := resolver.CanAccessFolder(folderID)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, denial(resolver)
	}

	dashboards, err := s.subtreeDashboards(ctx, tree, folderID)
	if err != nil {
		return nil, err
	}
	settingsByDashboard := make(map[string][]store.StatusColumn, len(dashboards))
	ids := make([]string, 0, len(dashboards))
	for _, d := range dashboards {
		ids = append(ids, d.ID)
		settingsByDashboard[d.ID] = d.Settings.Statuses
	}

	tasks, err := s.store.ListTasksByDashboardIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	total := 0
	completed := 0
	percentSum := 0
	for _, t := range tasks {
		normalized := status.Normalize(t.StatusID, settingsByDashboard[t.DashboardID])
		total++
		percentSum += normalized.Percent
		if normalized.Percent == 100 {
			completed++
		}
	}

	progress := 0
	if total > 0 {
		progress = percentSum / total
	}
	return map[string]any{
		"folderId":       folderID,
		"taskCount":      total,
		"completedCount": completed,
		"progress":       progress,
		"dashboardCount": len(dashboards),
	}, nil
}

// subtreeDashboards returns every dashboard whose folder lies inside the
// subtree rooted at folderID.
func (s *Service) subtreeDashboards(ctx context.Context, tree *access.Tree, folderID string) ([]store.Dashboard, error) {
	subtree, err := tree.Expand(folderID)
	if err != nil {
		return nil, err
	}
	inSubtree := make(map[string]struct{}, len(subtree))
	for _, id := range subtree {
		inSubtree[id] = struct{}{}
	}

	dashboards, err := s.store.ListDashboards(ctx)
	if err != nil {
		return nil, err
	}
	matched := make([]store.Dashboard, 0, len(dashboards))
	for _, d := range dashboards {
		if d.FolderID == nil {
			continue
		}
		if _, ok := inSubtree[*d.FolderID]; ok {
			matched = append(matched, d)
		}
	}
	return matched, nil
}

func folderPayload(f store.Folder) map[string]any {
	payload := map[string]any{
		"id":       f.ID,
		"name":     f.Name,
		"icon":     f.Icon,
		"color":    f.Color,
		"parentId": f.ParentID,
		"ownerId":  f.OwnerID,
		"isPublic": f.IsPublic,
	}
	if f.IsPublic && f.ShareToken != nil {
		payload["shareToken"] = *f.ShareToken
	}
	return payload
}
