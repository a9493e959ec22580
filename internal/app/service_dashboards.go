package app

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"strings"

	"trackline/api/internal/access"
	"trackline/api/internal/store"
	"trackline/api/internal/util"
)

type DashboardInput struct {
	Name        string                  `json:"name"`
	Description string                  `json:"description"`
	FolderID    *string                 `json:"folderId"`
	Settings    store.DashboardSettings `json:"settings"`
}

func (s *Service) ListDashboards(ctx context.Context, session Session) ([]map[string]any, error) {
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

	sort.Slice(accessible, func(i, j int) bool { return accessible[i].Name < accessible[j].Name })

	items := make([]map[string]any, 0, len(accessible))
	for _, d := range accessible {
		items = append(items, dashboardPayload(d))
	}
	return items, nil
}

func (s *Service) GetDashboard(ctx context.Context, session Session, dashboardID string) (map[string]any, error) {
	resolver, _, err := s.resolverFor(ctx, session)
	if err != nil {
		return nil, err
	}
	dashboard, err := s.accessibleDashboard(ctx, resolver, dashboardID)
	if err != nil {
		return nil, err
	}
	return dashboardPayload(dashboard), nil
}

func (s *Service) CreateDashboard(ctx context.Context, session Session, input DashboardInput) (map[string]any, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, validationError("name is required")
	}
	settings, err := normalizeSettings(input.Settings)
	if err != nil {
		return nil, err
	}

	resolver, tree, err := s.resolverFor(ctx, session)
	if err != nil {
		return nil, err
	}
	if input.FolderID != nil {
		if _, ok := tree.Folder(*input.FolderID); !ok {
			return nil, denial(resolver)
		}
		allowed, err := resolver.CanAccessFolder(*input.FolderID)
		if err != nil {
			return nil, err
		}
		if !allowed {
			return nil, denial(resolver)
		}
	}

	dashboard := store.Dashboard{
		ID:          util.NewID("dsh"),
		Name:        name,
		Description: input.Description,
		FolderID:    input.FolderID,
		OwnerID:     session.UserID,
		Settings:    settings,
	}
	if err := s.store.InsertDashboard(ctx, dashboard); err != nil {
		return nil, err
	}
	return dashboardPayload(dashboard), nil
}

func (s *Service) UpdateDashboard(ctx context.Context, session Session, dashboardID string, input DashboardInput) (map[string]any, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, validationError("name is required")
	}
	settings, err := normalizeSettings(input.Settings)
	if err != nil {
		return nil, err
	}

	resolver, tree, err := s.resolverFor(ctx, session)
	if err != nil {
		return nil, err
	}
	dashboard, err := s.accessibleDashboard(ctx, resolver, dashboardID)
	if err != nil {
		return nil, err
	}

	if input.FolderID != nil {
		if _, ok := tree.Folder(*input.FolderID); !ok {
			return nil, denial(resolver)
		}
		allowed, err := resolver.CanAccessFolder(*input.FolderID)
		if err != nil {
			return nil, err
		}
		if !allowed {
			return nil, denial(resolver)
		}
	}

	dashboard.Name = name
	dashboard.Description = input.Description
	dashboard.FolderID = input.FolderID
	dashboard.Settings = settings
	if err := s.store.UpdateDashboard(ctx, dashboard); err != nil {
		return nil, err
	}
	return dashboardPayload(dashboard), nil
}

func (s *Service) DeleteDashboard(ctx context.Context, session Session, dashboardID string) error {
	resolver, _, err := s.resolverFor(ctx, session)
	if err != nil {
		return err
	}
	if _, err := s.accessibleDashboard(ctx, resolver, dashboardID); err != nil {
		return err
	}

	tasks, err := s.store.ListTasksByDashboardIDs(ctx, []string{dashboardID})
	if err != nil {
		return err
	}
	if err := s.store.DeleteDashboard(ctx, dashboardID); err != nil {
		return err
	}
	if s.searcher != nil {
		for _, t := range tasks {
			s.searcher.RemoveTask(t.ID)
		}
	}
	return nil
}

// accessibleDashboard loads a dashboard behind the access check. Missing and
// inaccessible are indistinguishable for non-admins.
func (s *Service) accessibleDashboard(ctx context.Context, resolver *access.Resolver, dashboardID string) (store.Dashboard, error) {
	dashboard, err := s.store.GetDashboard(ctx, dashboardID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Dashboard{}, denial(resolver)
		}
		return store.Dashboard{}, err
	}
	allowed, err := resolver.CanAccessDashboard(dashboard)
	if err != nil {
		return store.Dashboard{}, err
	}
	if !allowed {
		return store.Dashboard{}, denial(resolver)
	}
	return dashboard, nil
}

// normalizeSettings validates the settings document. Column order is kept
// exactly as submitted because it drives positional progress.
func normalizeSettings(settings store.DashboardSettings) (store.DashboardSettings, error) {
	if len(settings.Statuses) == 0 {
		settings.Statuses = defaultStatuses()
	}
	seen := make(map[string]struct{}, len(settings.Statuses))
	for _, col := range settings.Statuses {
		id := strings.TrimSpace(col.ID)
		if id == "" {
			return settings, validationError("status columns need an id")
		}
		if _, dup := seen[id]; dup {
			return settings, validationError("duplicate status column id: " + id)
		}
		seen[id] = struct{}{}
	}
	weekSeen := make(map[string]struct{}, len(settings.Weeks))
	for _, week := range settings.Weeks {
		if strings.TrimSpace(week.ID) == "" {
			return settings, validationError("week buckets need an id")
		}
		if _, dup := weekSeen[week.ID]; dup {
			return settings, validationError("duplicate week bucket id: " + week.ID)
		}
		weekSeen[week.ID] = struct{}{}
	}
	return settings, nil
}

func defaultStatuses() []store.StatusColumn {
	return []store.StatusColumn{
		{ID: "todo", Label: "To do", Color: "#9ca3af"},
		{ID: "in-progress", Label: "In progress", Color: "#3b82f6"},
		{ID: "done", Label: "Done", Color: "#22c55e"},
	}
}

func dashboardPayload(d store.Dashboard) map[string]any {
	return map[string]any{
		"id":          d.ID,
		"name":        d.Name,
		"description": d.Description,
		"folderId":    d.FolderID,
		"ownerId":     d.OwnerID,
		"settings":    d.Settings,
	}
}
