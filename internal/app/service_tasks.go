package app

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"trackline/api/internal/access"
	"trackline/api/internal/search"
	"trackline/api/internal/status"
	"trackline/api/internal/store"
	"trackline/api/internal/util"
)

type TaskInput struct {
	WeekID      string     `json:"weekId"`
	Name        string     `json:"name"`
	StatusID    string     `json:"statusId"`
	OwnerLabel  string     `json:"owner"`
	Type        string     `json:"type"`
	Priority    string     `json:"priority"`
	Gate        string     `json:"gate"`
	DueDate     *time.Time `json:"dueDate"`
	Description string     `json:"description"`
	Assignees   []string   `json:"assignees"`
}

var allowedPriorities = map[string]struct{}{
	"low":  {},
	"med":  {},
	"high": {},
}

// ListDashboardTasks returns one dashboard's tasks in creation order.
func (s *Service) ListDashboardTasks(ctx context.Context, session Session, dashboardID string) ([]map[string]any, error) {
	resolver, _, err := s.resolverFor(ctx, session)
	if err != nil {
		return nil, err
	}
	dashboard, err := s.accessibleDashboard(ctx, resolver, dashboardID)
	if err != nil {
		return nil, err
	}
	return s.collectTasks(ctx, []store.Dashboard{dashboard})
}

// ListFolderTasks consolidates every task under the folder's subtree into a
// single creation-ordered list. An inaccessible or missing folder is a
// denial, never an empty list; a subtree with no dashboards is an empty
// list, never an error.
func (s *Service) ListFolderTasks(ctx context.Context, session Session, folderID string) ([]map[string]any, error) {
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
	return s.collectTasks(ctx, dashboards)
}

// ListAllTasks consolidates across every dashboard the caller can reach.
func (s *Service) ListAllTasks(ctx context.Context, session Session) ([]map[string]any, error) {
	resolver, _, err := s.resolverFor(ctx, session)
	if err != nil {
		return nil, err
	}
	dashboards, err := s.store.ListDashboards(ctx)
	if err != nil {
		return nil, err
	}
	accessible, err := resolver.AccessibleDashboards(dashboards)
	if err != nil {
		return nil, err
	}
	return s.collectTasks(ctx, accessible)
}

// collectTasks loads tasks and assignees for the given dashboards and
// annotates each task with normalized status from its own dashboard's
// column configuration.
func (s *Service) collectTasks(ctx context.Context, dashboards []store.Dashboard) ([]map[string]any, error) {
	items := make([]map[string]any, 0)
	if len(dashboards) == 0 {
		return items, nil
	}

	ids := make([]string, len(dashboards))
	settingsByDashboard := make(map[string][]store.StatusColumn, len(dashboards))
	for i, d := range dashboards {
		ids[i] = d.ID
		settingsByDashboard[d.ID] = d.Settings.Statuses
	}

	tasks, err := s.store.ListTasksByDashboardIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return items, nil
	}

	taskIDs := make([]int64, len(tasks))
	for i, t := range tasks {
		taskIDs[i] = t.ID
	}
	assignees, err := s.store.ListAssigneesByTaskIDs(ctx, taskIDs)
	if err != nil {
		return nil, err
	}
	assigneesByTask := make(map[int64][]store.TaskAssignee)
	for _, a := range assignees {
		assigneesByTask[a.TaskID] = append(assigneesByTask[a.TaskID], a)
	}

	for _, t := range tasks {
		items = append(items, taskPayload(t, settingsByDashboard[t.DashboardID], assigneesByTask[t.ID]))
	}
	return items, nil
}

func (s *Service) CreateTask(ctx context.Context, session Session, dashboardID string, input TaskInput) (map[string]any, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, validationError("name is required")
	}

	resolver, _, err := s.resolverFor(ctx, session)
	if err != nil {
		return nil, err
	}
	dashboard, err := s.accessibleDashboard(ctx, resolver, dashboardID)
	if err != nil {
		return nil, err
	}

	priority, err := normalizePriority(input.Priority)
	if err != nil {
		return nil, err
	}
	statusID := strings.TrimSpace(input.StatusID)
	if statusID == "" && len(dashboard.Settings.Statuses) > 0 {
		statusID = dashboard.Settings.Statuses[0].ID
	}

	task := store.Task{
		DashboardID: dashboardID,
		WeekID:      strings.TrimSpace(input.WeekID),
		Name:        name,
		StatusID:    statusID,
		OwnerLabel:  strings.TrimSpace(input.OwnerLabel),
		Type:        strings.TrimSpace(input.Type),
		Priority:    priority,
		Gate:        strings.TrimSpace(input.Gate),
		DueDate:     input.DueDate,
		Description: input.Description,
	}
	taskID, err := s.store.InsertTask(ctx, task)
	if err != nil {
		return nil, err
	}
	task.ID = taskID

	taskAssignees := assigneesFromNames(taskID, input.Assignees)
	if len(taskAssignees) > 0 {
		if err := s.store.ReplaceTaskAssignees(ctx, taskID, taskAssignees); err != nil {
			return nil, err
		}
	}

	if s.searcher != nil {
		s.searcher.IndexTask(task)
	}
	return taskPayload(task, dashboard.Settings.Statuses, taskAssignees), nil
}

func (s *Service) GetTask(ctx context.Context, session Session, taskID int64) (map[string]any, error) {
	resolver, _, err := s.resolverFor(ctx, session)
	if err != nil {
		return nil, err
	}
	task, dashboard, err := s.accessibleTask(ctx, resolver, taskID)
	if err != nil {
		return nil, err
	}
	assignees, err := s.store.ListAssigneesByTaskIDs(ctx, []int64{taskID})
	if err != nil {
		return nil, err
	}
	return taskPayload(task, dashboard.Settings.Statuses, assignees), nil
}

func (s *Service) UpdateTask(ctx context.Context, session Session, taskID int64, input TaskInput) (map[string]any, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, validationError("name is required")
	}

	resolver, _, err := s.resolverFor(ctx, session)
	if err != nil {
		return nil, err
	}
	task, dashboard, err := s.accessibleTask(ctx, resolver, taskID)
	if err != nil {
		return nil, err
	}

	priority, err := normalizePriority(input.Priority)
	if err != nil {
		return nil, err
	}

	task.WeekID = strings.TrimSpace(input.WeekID)
	task.Name = name
	task.StatusID = strings.TrimSpace(input.StatusID)
	task.OwnerLabel = strings.TrimSpace(input.OwnerLabel)
	task.Type = strings.TrimSpace(input.Type)
	task.Priority = priority
	task.Gate = strings.TrimSpace(input.Gate)
	task.DueDate = input.DueDate
	task.Description = input.Description
	if err := s.store.UpdateTask(ctx, task); err != nil {
		return nil, err
	}

	if s.searcher != nil {
		s.searcher.IndexTask(task)
	}

	assignees, err := s.store.ListAssigneesByTaskIDs(ctx, []int64{taskID})
	if err != nil {
		return nil, err
	}
	return taskPayload(task, dashboard.Settings.Statuses, assignees), nil
}

func (s *Service) DeleteTask(ctx context.Context, session Session, taskID int64) error {
	resolver, _, err := s.resolverFor(ctx, session)
	if err != nil {
		return err
	}
	if _, _, err := s.accessibleTask(ctx, resolver, taskID); err != nil {
		return err
	}
	if err := s.store.DeleteTask(ctx, taskID); err != nil {
		return err
	}
	if s.searcher != nil {
		s.searcher.RemoveTask(taskID)
	}
	return nil
}

// ReplaceTaskAssignees swaps the full assignee list in one transaction.
func (s *Service) ReplaceTaskAssignees(ctx context.Context, session Session, taskID int64, names []string) ([]map[string]any, error) {
	resolver, _, err := s.resolverFor(ctx, session)
	if err != nil {
		return nil, err
	}
	if _, _, err := s.accessibleTask(ctx, resolver, taskID); err != nil {
		return nil, err
	}

	assignees := assigneesFromNames(taskID, names)
	if err := s.store.ReplaceTaskAssignees(ctx, taskID, assignees); err != nil {
		return nil, err
	}
	return assigneePayloads(assignees), nil
}

// SearchTasks queries the search backend scoped to accessible dashboards.
func (s *Service) SearchTasks(ctx context.Context, session Session, query string, limit, offset int) (search.Response, error) {
	empty := search.Response{Results: []search.Result{}, Query: query}
	if s.searcher == nil {
		return empty, nil
	}

	resolver, _, err := s.resolverFor(ctx, session)
	if err != nil {
		return empty, err
	}
	dashboards, err := s.store.ListDashboards(ctx)
	if err != nil {
		return empty, err
	}
	accessible, err := resolver.AccessibleDashboards(dashboards)
	if err != nil {
		return empty, err
	}
	ids := make([]string, len(accessible))
	for i, d := range accessible {
		ids[i] = d.ID
	}

	return s.searcher.Search(ctx, search.Query{
		Text:         query,
		DashboardIDs: ids,
		Limit:        limit,
		Offset:       offset,
	})
}

// ReindexAllTasks mirrors the whole task table into the search index. Run at
// startup so the index recovers from Meilisearch data loss.
func (s *Service) ReindexAllTasks(ctx context.Context) error {
	if s.searcher == nil {
		return nil
	}
	dashboards, err := s.store.ListDashboards(ctx)
	if err != nil {
		return err
	}
	ids := make([]string, len(dashboards))
	for i, d := range dashboards {
		ids[i] = d.ID
	}
	tasks, err := s.store.ListTasksByDashboardIDs(ctx, ids)
	if err != nil {
		return err
	}
	s.searcher.IndexTasks(tasks)
	return nil
}

// accessibleTask resolves a task through its dashboard's access check.
func (s *Service) accessibleTask(ctx context.Context, resolver *access.Resolver, taskID int64) (store.Task, store.Dashboard, error) {
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Task{}, store.Dashboard{}, denial(resolver)
		}
		return store.Task{}, store.Dashboard{}, err
	}
	dashboard, err := s.accessibleDashboard(ctx, resolver, task.DashboardID)
	if err != nil {
		return store.Task{}, store.Dashboard{}, err
	}
	return task, dashboard, nil
}

func normalizePriority(priority string) (string, error) {
	trimmed := strings.TrimSpace(strings.ToLower(priority))
	if trimmed == "" {
		return "med", nil
	}
	if _, ok := allowedPriorities[trimmed]; !ok {
		return "", validationError("priority must be low, med, or high")
	}
	return trimmed, nil
}

func assigneesFromNames(taskID int64, names []string) []store.TaskAssignee {
	assignees := make([]store.TaskAssignee, 0, len(names))
	for _, name := range names {
		trimmed := strings.TrimSpace(name)
		if trimmed == "" {
			continue
		}
		assignees = append(assignees, store.TaskAssignee{
			ID:     util.NewID("asg"),
			TaskID: taskID,
			Name:   trimmed,
		})
	}
	return assignees
}

// taskPayload renders one task with status normalized against the owning
// dashboard's columns. Tasks with no assignee rows fall back to the free-text
// owner label so rows created before multi-assignee support still show a
// responsible person.
func taskPayload(t store.Task, columns []store.StatusColumn, assignees []store.TaskAssignee) map[string]any {
	if len(assignees) == 0 && strings.TrimSpace(t.OwnerLabel) != "" {
		assignees = []store.TaskAssignee{{TaskID: t.ID, Name: t.OwnerLabel}}
	}
	return map[string]any{
		"id":          t.ID,
		"dashboardId": t.DashboardID,
		"weekId":      t.WeekID,
		"name":        t.Name,
		"statusId":    t.StatusID,
		"status":      status.Normalize(t.StatusID, columns),
		"assignees":   assigneePayloads(assignees),
		"type":        t.Type,
		"priority":    t.Priority,
		"gate":        t.Gate,
		"dueDate":     t.DueDate,
		"description": t.Description,
		"createdAt":   t.CreatedAt,
	}
}

func assigneePayloads(assignees []store.TaskAssignee) []map[string]any {
	items := make([]map[string]any, 0, len(assignees))
	for _, a := range assignees {
		items = append(items, map[string]any{
			"name":   a.Name,
			"userId": a.UserID,
		})
	}
	return items
}
