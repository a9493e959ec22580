package app

import (
	"context"

	"trackline/api/internal/access"
)

func (s *Service) Me(ctx context.Context, session Session) map[string]any {
	return map[string]any{
		"id":    session.UserID,
		"name":  session.UserName,
		"email": session.Email,
		"role":  session.Role,
	}
}

// ListUsers is admin-only user directory lookup with optional name/email
// filtering.
func (s *Service) ListUsers(ctx context.Context, session Session, query string) ([]map[string]any, error) {
	if session.Role != access.RoleAdmin {
		return nil, forbidden()
	}
	users, err := s.store.ListUsers(ctx, query)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(users))
	for _, u := range users {
		items = append(items, map[string]any{
			"id":          u.ID,
			"displayName": u.DisplayName,
			"email":       u.Email,
			"role":        u.Role,
			"verified":    u.IsEmailVerified,
			"createdAt":   u.CreatedAt,
		})
	}
	return items, nil
}

func (s *Service) UpdateUserRole(ctx context.Context, session Session, userID, role string) error {
	if session.Role != access.RoleAdmin {
		return forbidden()
	}
	if role != access.RoleAdmin && role != access.RoleMember {
		return validationError("role must be admin or member")
	}
	if userID == session.UserID && role != access.RoleAdmin {
		return validationError("cannot remove your own admin role")
	}
	return s.store.UpdateUserRole(ctx, userID, role)
}
