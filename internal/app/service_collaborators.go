package app

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"strings"

	"trackline/api/internal/store"
)

func (s *Service) ListFolderCollaborators(ctx context.Context, session Session, folderID string) ([]map[string]any, error) {
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
	collaborators, err := s.store.ListFolderCollaborators(ctx, folderID)
	if err != nil {
		return nil, err
	}
	return collaboratorPayloads(collaborators), nil
}

func (s *Service) AddFolderCollaborator(ctx context.Context, session Session, folderID, email string) (map[string]any, error) {
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

	user, err := s.collaboratorByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if err := s.store.AddFolderCollaborator(ctx, folderID, user.ID); err != nil {
		return nil, err
	}
	s.notifyInvite(user.Email, session.UserName, "folder", folder.Name)
	return map[string]any{
		"userId":      user.ID,
		"displayName": user.DisplayName,
		"email":       user.Email,
	}, nil
}

func (s *Service) RemoveFolderCollaborator(ctx context.Context, session Session, folderID, userID string) error {
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
	return s.store.RemoveFolderCollaborator(ctx, folderID, userID)
}

func (s *Service) ListDashboardCollaborators(ctx context.Context, session Session, dashboardID string) ([]map[string]any, error) {
	resolver, _, err := s.resolverFor(ctx, session)
	if err != nil {
		return nil, err
	}
	if _, err := s.accessibleDashboard(ctx, resolver, dashboardID); err != nil {
		return nil, err
	}
	collaborators, err := s.store.ListDashboardCollaborators(ctx, dashboardID)
	if err != nil {
		return nil, err
	}
	return collaboratorPayloads(collaborators), nil
}

func (s *Service) AddDashboardCollaborator(ctx context.Context, session Session, dashboardID, email string) (map[string]any, error) {
	resolver, _, err := s.resolverFor(ctx, session)
	if err != nil {
		return nil, err
	}
	dashboard, err := s.accessibleDashboard(ctx, resolver, dashboardID)
	if err != nil {
		return nil, err
	}

	user, err := s.collaboratorByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if err := s.store.AddDashboardCollaborator(ctx, dashboardID, user.ID); err != nil {
		return nil, err
	}
	s.notifyInvite(user.Email, session.UserName, "dashboard", dashboard.Name)
	return map[string]any{
		"userId":      user.ID,
		"displayName": user.DisplayName,
		"email":       user.Email,
	}, nil
}

func (s *Service) RemoveDashboardCollaborator(ctx context.Context, session Session, dashboardID, userID string) error {
	resolver, _, err := s.resolverFor(ctx, session)
	if err != nil {
		return err
	}
	if _, err := s.accessibleDashboard(ctx, resolver, dashboardID); err != nil {
		return err
	}
	return s.store.RemoveDashboardCollaborator(ctx, dashboardID, userID)
}

func (s *Service) collaboratorByEmail(ctx context.Context, email string) (store.User, error) {
	trimmed := strings.TrimSpace(strings.ToLower(email))
	if trimmed == "" {
		return store.User{}, validationError("email is required")
	}
	user, err := s.store.GetUserByEmail(ctx, trimmed)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.User{}, validationError("no user with that email")
		}
		return store.User{}, err
	}
	if user.DeactivatedAt != nil {
		return store.User{}, validationError("no user with that email")
	}
	return user, nil
}

// notifyInvite sends the collaborator email best effort; grant writes never
// fail on mail problems.
func (s *Service) notifyInvite(to, inviterName, resourceKind, resourceName string) {
	if !s.SMTPConfigured() {
		return
	}
	if err := s.mailer.SendCollaboratorInvite(to, inviterName, resourceKind, resourceName); err != nil {
		log.Printf("email: collaborator invite to %s: %v", to, err)
	}
}

func collaboratorPayloads(collaborators []store.Collaborator) []map[string]any {
	items := make([]map[string]any, 0, len(collaborators))
	for _, c := range collaborators {
		items = append(items, map[string]any{
			"userId":      c.UserID,
			"displayName": c.DisplayName,
			"email":       c.Email,
			"grantedAt":   c.GrantedAt,
		})
	}
	return items
}
