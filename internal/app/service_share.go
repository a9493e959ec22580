package app

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"

	"trackline/api/internal/access"
	"trackline/api/internal/status"
	"trackline/api/internal/store"
)

// ResolvePublicToken renders the anonymous view of a shared folder: the
// folder, every dashboard in its subtree, and their tasks with normalized
// status. The token is the only credential; unknown, disabled, and rotated
// tokens all produce the same 404 so a holder learns nothing about why a
// link died. No account identifiers leave this path.
func (s *Service) ResolvePublicToken(ctx context.Context, token string) (map[string]any, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}

	folder, err := s.store.GetFolderByShareToken(ctx, token)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		}
		return nil, err
	}

	folders, err := s.store.ListFolders(ctx)
	if err != nil {
		return nil, err
	}
	tree := access.NewTree(folders)

	dashboards, err := s.subtreeDashboards(ctx, tree, folder.ID)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(dashboards))
	for i, d := range dashboards {
		ids[i] = d.ID
	}
	tasks, err := s.store.ListTasksByDashboardIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	taskIDs := make([]int64, len(tasks))
	for i, t := range tasks {
		taskIDs[i] = t.ID
	}
	assignees, err := s.store.ListAssigneesByTaskIDs(ctx, taskIDs)
	if err != nil {
		return nil, err
	}
	assigneesByTask := make(map[int64][]string)
	for _, a := range assignees {
		assigneesByTask[a.TaskID] = append(assigneesByTask[a.TaskID], a.Name)
	}

	tasksByDashboard := make(map[string][]store.Task)
	for _, t := range tasks {
		tasksByDashboard[t.DashboardID] = append(tasksByDashboard[t.DashboardID], t)
	}

	dashboardItems := make([]map[string]any, 0, len(dashboards))
	for _, d := range dashboards {
		taskItems := make([]map[string]any, 0, len(tasksByDashboard[d.ID]))
		for _, t := range tasksByDashboard[d.ID] {
			taskItems = append(taskItems, publicTaskPayload(t, d.Settings.Statuses, assigneesByTask[t.ID]))
		}
		dashboardItems = append(dashboardItems, map[string]any{
			"id":          d.ID,
			"name":        d.Name,
			"description": d.Description,
			"folderId":    d.FolderID,
			"settings":    d.Settings,
			"tasks":       taskItems,
		})
	}

	return map[string]any{
		"folder": map[string]any{
			"id":    folder.ID,
			"name":  folder.Name,
			"icon":  folder.Icon,
			"color": folder.Color,
		},
		"dashboards": dashboardItems,
	}, nil
}

// publicTaskPayload matches the authenticated task shape minus anything that
// identifies accounts: assignees collapse to display names.
func publicTaskPayload(t store.Task, columns []store.StatusColumn, assigneeNames []string) map[string]any {
	if len(assigneeNames) == 0 && strings.TrimSpace(t.OwnerLabel) != "" {
		assigneeNames = []string{t.OwnerLabel}
	}
	if assigneeNames == nil {
		assigneeNames = []string{}
	}
	return map[string]any{
		"id":          t.ID,
		"dashboardId": t.DashboardID,
		"weekId":      t.WeekID,
		"name":        t.Name,
		"statusId":    t.StatusID,
		"status":      status.Normalize(t.StatusID, columns),
		"assignees":   assigneeNames,
		"type":        t.Type,
		"priority":    t.Priority,
		"gate":        t.Gate,
		"dueDate":     t.DueDate,
		"description": t.Description,
	}
}
