package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ---------------------------------------------------------------------------
// Users
// ---------------------------------------------------------------------------

const userColumns = `id, display_name, email, password_hash, role, is_email_verified,
	verification_token, verification_expires_at, deactivated_at, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.DisplayName, &u.Email, &u.PasswordHash, &u.Role,
		&u.IsEmailVerified, &u.VerificationToken, &u.VerificationExpiresAt,
		&u.DeactivatedAt, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id=$1`, userID))
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE LOWER(email)=LOWER($1)`, email))
}

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, display_name, email, password_hash, role, is_email_verified, verification_token, verification_expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, user.ID, user.DisplayName, user.Email, user.PasswordHash, user.Role,
		user.IsEmailVerified, user.VerificationToken, user.VerificationExpiresAt)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListUsers(ctx context.Context, search string) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE ($1 = '' OR display_name ILIKE '%' || $1 || '%' OR email ILIKE '%' || $1 || '%')
		ORDER BY created_at ASC
	`, search)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	items := make([]User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		items = append(items, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) UpdateUserRole(ctx context.Context, userID, role string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET role=$2, updated_at=NOW() WHERE id=$1`, userID, role)
	if err != nil {
		return fmt.Errorf("update user role: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateUserVerificationToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET verification_token=$2, verification_expires_at=$3, updated_at=NOW()
		WHERE id=$1
	`, userID, token, expiresAt)
	if err != nil {
		return fmt.Errorf("update verification token: %w", err)
	}
	return nil
}

func (s *PostgresStore) VerifyUserEmail(ctx context.Context, token string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET is_email_verified=TRUE, verification_token='', verification_expires_at=NULL, updated_at=NOW()
		WHERE verification_token=$1
			AND verification_token <> ''
			AND (verification_expires_at IS NULL OR verification_expires_at > NOW())
	`, token)
	if err != nil {
		return fmt.Errorf("verify email: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("verify email rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) UpdateUserPassword(ctx context.Context, userID, passwordHash string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET password_hash=$2, updated_at=NOW() WHERE id=$1`, userID, passwordHash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreatePasswordReset(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO password_resets (token, user_id, expires_at)
		VALUES ($1, $2, $3)
	`, token, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("create password reset: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPasswordReset(ctx context.Context, token string) (string, error) {
	var userID string
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id FROM password_resets
		WHERE token=$1 AND used_at IS NULL AND expires_at > NOW()
	`, token).Scan(&userID)
	if err != nil {
		return "", err
	}
	return userID, nil
}

func (s *PostgresStore) MarkPasswordResetUsed(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE password_resets SET used_at=NOW() WHERE token=$1`, token)
	if err != nil {
		return fmt.Errorf("mark password reset used: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Sessions
// ---------------------------------------------------------------------------

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_id=EXCLUDED.user_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (User, error) {
	const query = `
		SELECT u.id, u.display_name, u.email, u.role
		FROM refresh_sessions rs
		JOIN users u ON u.id = rs.user_id
		WHERE rs.token_hash = $1
			AND rs.revoked_at IS NULL
			AND rs.expires_at > NOW()
			AND u.deactivated_at IS NULL
	`
	var user User
	err := s.db.QueryRowContext(ctx, query, tokenHash).Scan(&user.ID, &user.DisplayName, &user.Email, &user.Role)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revoked_access_tokens (jti, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING
	`, jti, exp)
	if err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM revoked_access_tokens WHERE jti=$1)`, jti).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return revoked, nil
}

// ---------------------------------------------------------------------------
// Folders
// ---------------------------------------------------------------------------

const folderColumns = `id, name, icon, color, parent_id, owner_id, is_public, share_token, created_at, updated_at`

func scanFolder(row interface{ Scan(...any) error }) (Folder, error) {
	var f Folder
	err := row.Scan(&f.ID, &f.Name, &f.Icon, &f.Color, &f.ParentID, &f.OwnerID,
		&f.IsPublic, &f.ShareToken, &f.CreatedAt, &f.UpdatedAt)
	return f, err
}

func (s *PostgresStore) ListFolders(ctx context.Context) ([]Folder, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+folderColumns+` FROM folders ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list folders: %w", err)
	}
	defer rows.Close()

	items := make([]Folder, 0)
	for rows.Next() {
		f, err := scanFolder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan folder: %w", err)
		}
		items = append(items, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate folders: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetFolder(ctx context.Context, folderID string) (Folder, error) {
	return scanFolder(s.db.QueryRowContext(ctx,
		`SELECT `+folderColumns+` FROM folders WHERE id=$1`, folderID))
}

func (s *PostgresStore) GetFolderByShareToken(ctx context.Context, token string) (Folder, error) {
	return scanFolder(s.db.QueryRowContext(ctx,
		`SELECT `+folderColumns+` FROM folders WHERE share_token=$1 AND is_public=TRUE`, token))
}

func (s *PostgresStore) InsertFolder(ctx context.Context, folder Folder) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO folders (id, name, icon, color, parent_id, owner_id)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, folder.ID, folder.Name, folder.Icon, folder.Color, folder.ParentID, folder.OwnerID)
	if err != nil {
		return fmt.Errorf("insert folder: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateFolder(ctx context.Context, folder Folder) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE folders SET name=$2, icon=$3, color=$4, parent_id=$5, updated_at=NOW()
		WHERE id=$1
	`, folder.ID, folder.Name, folder.Icon, folder.Color, folder.ParentID)
	if err != nil {
		return fmt.Errorf("update folder: %w", err)
	}
	return nil
}

// DeleteFolder removes the folder and re-parents its children to the
// workspace root, atomically.
func (s *PostgresStore) DeleteFolder(ctx context.Context, folderID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete folder: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`UPDATE folders SET parent_id=NULL, updated_at=NOW() WHERE parent_id=$1`, folderID); err != nil {
		return fmt.Errorf("reparent children: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM folders WHERE id=$1`, folderID); err != nil {
		return fmt.Errorf("delete folder: %w", err)
	}
	return tx.Commit()
}

// SetFolderSharing flips the public flag and the token in one statement so a
// folder is never public with a stale or absent token.
func (s *PostgresStore) SetFolderSharing(ctx context.Context, folderID string, isPublic bool, token *string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE folders SET is_public=$2, share_token=$3, updated_at=NOW() WHERE id=$1
	`, folderID, isPublic, token)
	if err != nil {
		return fmt.Errorf("set folder sharing: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("set folder sharing rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ---------------------------------------------------------------------------
// Dashboards
// ---------------------------------------------------------------------------

const dashboardColumns = `id, name, description, folder_id, owner_id, settings, created_at, updated_at`

func scanDashboard(row interface{ Scan(...any) error }) (Dashboard, error) {
	var d Dashboard
	var settings []byte
	err := row.Scan(&d.ID, &d.Name, &d.Description, &d.FolderID, &d.OwnerID,
		&settings, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return Dashboard{}, err
	}
	if len(settings) > 0 {
		if err := json.Unmarshal(settings, &d.Settings); err != nil {
			return Dashboard{}, fmt.Errorf("decode dashboard settings: %w", err)
		}
	}
	return d, nil
}

func (s *PostgresStore) ListDashboards(ctx context.Context) ([]Dashboard, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+dashboardColumns+` FROM dashboards ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list dashboards: %w", err)
	}
	defer rows.Close()

	items := make([]Dashboard, 0)
	for rows.Next() {
		d, err := scanDashboard(rows)
		if err != nil {
			return nil, fmt.Errorf("scan dashboard: %w", err)
		}
		items = append(items, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dashboards: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetDashboard(ctx context.Context, dashboardID string) (Dashboard, error) {
	return scanDashboard(s.db.QueryRowContext(ctx,
		`SELECT `+dashboardColumns+` FROM dashboards WHERE id=$1`, dashboardID))
}

func (s *PostgresStore) InsertDashboard(ctx context.Context, dashboard Dashboard) error {
	settings, err := json.Marshal(dashboard.Settings)
	if err != nil {
		return fmt.Errorf("encode dashboard settings: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO dashboards (id, name, description, folder_id, owner_id, settings)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, dashboard.ID, dashboard.Name, dashboard.Description, dashboard.FolderID, dashboard.OwnerID, settings)
	if err != nil {
		return fmt.Errorf("insert dashboard: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateDashboard(ctx context.Context, dashboard Dashboard) error {
	settings, err := json.Marshal(dashboard.Settings)
	if err != nil {
		return fmt.Errorf("encode dashboard settings: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE dashboards SET name=$2, description=$3, folder_id=$4, settings=$5, updated_at=NOW()
		WHERE id=$1
	`, dashboard.ID, dashboard.Name, dashboard.Description, dashboard.FolderID, settings)
	if err != nil {
		return fmt.Errorf("update dashboard: %w", err)
	}
	return nil
}

// DeleteDashboard removes the dashboard; its tasks, assignees, attachments
// and collaborator rows go with it via ON DELETE CASCADE.
func (s *PostgresStore) DeleteDashboard(ctx context.Context, dashboardID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM dashboards WHERE id=$1`, dashboardID)
	if err != nil {
		return fmt.Errorf("delete dashboard: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Collaborator grants
// ---------------------------------------------------------------------------

func (s *PostgresStore) AddFolderCollaborator(ctx context.Context, folderID, userID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO folder_collaborators (folder_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT (folder_id, user_id) DO NOTHING
	`, folderID, userID)
	if err != nil {
		return fmt.Errorf("add folder collaborator: %w", err)
	}
	return nil
}

func (s *PostgresStore) RemoveFolderCollaborator(ctx context.Context, folderID, userID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM folder_collaborators WHERE folder_id=$1 AND user_id=$2`, folderID, userID)
	if err != nil {
		return fmt.Errorf("remove folder collaborator: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListFolderCollaborators(ctx context.Context, folderID string) ([]Collaborator, error) {
	return s.listCollaborators(ctx, `
		SELECT u.id, u.display_name, u.email, fc.created_at
		FROM folder_collaborators fc
		JOIN users u ON u.id = fc.user_id
		WHERE fc.folder_id = $1
		ORDER BY fc.created_at ASC
	`, folderID)
}

func (s *PostgresStore) AddDashboardCollaborator(ctx context.Context, dashboardID, userID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO dashboard_collaborators (dashboard_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT (dashboard_id, user_id) DO NOTHING
	`, dashboardID, userID)
	if err != nil {
		return fmt.Errorf("add dashboard collaborator: %w", err)
	}
	return nil
}

func (s *PostgresStore) RemoveDashboardCollaborator(ctx context.Context, dashboardID, userID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM dashboard_collaborators WHERE dashboard_id=$1 AND user_id=$2`, dashboardID, userID)
	if err != nil {
		return fmt.Errorf("remove dashboard collaborator: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListDashboardCollaborators(ctx context.Context, dashboardID string) ([]Collaborator, error) {
	return s.listCollaborators(ctx, `
		SELECT u.id, u.display_name, u.email, dc.created_at
		FROM dashboard_collaborators dc
		JOIN users u ON u.id = dc.user_id
		WHERE dc.dashboard_id = $1
		ORDER BY dc.created_at ASC
	`, dashboardID)
}

func (s *PostgresStore) listCollaborators(ctx context.Context, query, resourceID string) ([]Collaborator, error) {
	rows, err := s.db.QueryContext(ctx, query, resourceID)
	if err != nil {
		return nil, fmt.Errorf("list collaborators: %w", err)
	}
	defer rows.Close()

	items := make([]Collaborator, 0)
	for rows.Next() {
		var c Collaborator
		if err := rows.Scan(&c.UserID, &c.DisplayName, &c.Email, &c.GrantedAt); err != nil {
			return nil, fmt.Errorf("scan collaborator: %w", err)
		}
		items = append(items, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate collaborators: %w", err)
	}
	return items, nil
}

// ListFolderGrants returns the ids of folders on which the user holds a
// direct collaborator grant.
func (s *PostgresStore) ListFolderGrants(ctx context.Context, userID string) ([]string, error) {
	return s.listGrantIDs(ctx,
		`SELECT folder_id FROM folder_collaborators WHERE user_id=$1`, userID)
}

// ListDashboardGrants returns the ids of dashboards on which the user holds a
// direct collaborator grant.
func (s *PostgresStore) ListDashboardGrants(ctx context.Context, userID string) ([]string, error) {
	return s.listGrantIDs(ctx,
		`SELECT dashboard_id FROM dashboard_collaborators WHERE user_id=$1`, userID)
}

func (s *PostgresStore) listGrantIDs(ctx context.Context, query, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list grants: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan grant: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate grants: %w", err)
	}
	return ids, nil
}

// ---------------------------------------------------------------------------
// Tasks
// ---------------------------------------------------------------------------

const taskColumns = `id, dashboard_id, week_id, name, status_id, owner_label, task_type,
	priority, gate, due_date, description, created_at, updated_at`

func scanTask(row interface{ Scan(...any) error }) (Task, error) {
	var t Task
	err := row.Scan(&t.ID, &t.DashboardID, &t.WeekID, &t.Name, &t.StatusID,
		&t.OwnerLabel, &t.Type, &t.Priority, &t.Gate, &t.DueDate, &t.Description,
		&t.CreatedAt, &t.UpdatedAt)
	return t, err
}

// ListTasksByDashboardIDs returns tasks for every given dashboard, in stable
// ascending id order (creation order). Callers sort further client-side.
func (s *PostgresStore) ListTasksByDashboardIDs(ctx context.Context, dashboardIDs []string) ([]Task, error) {
	if len(dashboardIDs) == 0 {
		return []Task{}, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE dashboard_id = ANY($1) ORDER BY id ASC`,
		dashboardIDs)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	items := make([]Task, 0)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		items = append(items, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetTask(ctx context.Context, taskID int64) (Task, error) {
	return scanTask(s.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id=$1`, taskID))
}

func (s *PostgresStore) InsertTask(ctx context.Context, task Task) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO tasks (dashboard_id, week_id, name, status_id, owner_label, task_type, priority, gate, due_date, description)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`, task.DashboardID, task.WeekID, task.Name, task.StatusID, task.OwnerLabel,
		task.Type, task.Priority, task.Gate, task.DueDate, task.Description).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert task: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) UpdateTask(ctx context.Context, task Task) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE tasks
		SET week_id=$2, name=$3, status_id=$4, owner_label=$5, task_type=$6,
			priority=$7, gate=$8, due_date=$9, description=$10, updated_at=NOW()
		WHERE id=$1
	`, task.ID, task.WeekID, task.Name, task.StatusID, task.OwnerLabel, task.Type,
		task.Priority, task.Gate, task.DueDate, task.Description)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteTask(ctx context.Context, taskID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id=$1`, taskID)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAssigneesByTaskIDs(ctx context.Context, taskIDs []int64) ([]TaskAssignee, error) {
	if len(taskIDs) == 0 {
		return []TaskAssignee{}, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, task_id, name, user_id
		FROM task_assignees
		WHERE task_id = ANY($1)
		ORDER BY id ASC
	`, taskIDs)
	if err != nil {
		return nil, fmt.Errorf("list assignees: %w", err)
	}
	defer rows.Close()

	items := make([]TaskAssignee, 0)
	for rows.Next() {
		var a TaskAssignee
		if err := rows.Scan(&a.ID, &a.TaskID, &a.Name, &a.UserID); err != nil {
			return nil, fmt.Errorf("scan assignee: %w", err)
		}
		items = append(items, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate assignees: %w", err)
	}
	return items, nil
}

// ReplaceTaskAssignees swaps the full assignee list in one transaction so the
// task never observably has a partial list.
func (s *PostgresStore) ReplaceTaskAssignees(ctx context.Context, taskID int64, assignees []TaskAssignee) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace assignees: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM task_assignees WHERE task_id=$1`, taskID); err != nil {
		return fmt.Errorf("clear assignees: %w", err)
	}
	for _, a := range assignees {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO task_assignees (id, task_id, name, user_id)
			VALUES ($1, $2, $3, $4)
		`, a.ID, taskID, a.Name, a.UserID); err != nil {
			return fmt.Errorf("insert assignee: %w", err)
		}
	}
	return tx.Commit()
}

// ---------------------------------------------------------------------------
// Attachments
// ---------------------------------------------------------------------------

func (s *PostgresStore) InsertTaskAttachment(ctx context.Context, a TaskAttachment) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO task_attachments (id, task_id, file_name, content_type, size_bytes, object_key)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, a.ID, a.TaskID, a.FileName, a.ContentType, a.SizeBytes, a.ObjectKey)
	if err != nil {
		return fmt.Errorf("insert attachment: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetTaskAttachment(ctx context.Context, attachmentID string) (TaskAttachment, error) {
	var a TaskAttachment
	err := s.db.QueryRowContext(ctx, `
		SELECT id, task_id, file_name, content_type, size_bytes, object_key, created_at
		FROM task_attachments WHERE id=$1
	`, attachmentID).Scan(&a.ID, &a.TaskID, &a.FileName, &a.ContentType, &a.SizeBytes, &a.ObjectKey, &a.CreatedAt)
	if err != nil {
		return TaskAttachment{}, err
	}
	return a, nil
}

func (s *PostgresStore) ListTaskAttachments(ctx context.Context, taskID int64) ([]TaskAttachment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, task_id, file_name, content_type, size_bytes, object_key, created_at
		FROM task_attachments WHERE task_id=$1 ORDER BY created_at ASC
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list attachments: %w", err)
	}
	defer rows.Close()

	items := make([]TaskAttachment, 0)
	for rows.Next() {
		var a TaskAttachment
		if err := rows.Scan(&a.ID, &a.TaskID, &a.FileName, &a.ContentType, &a.SizeBytes, &a.ObjectKey, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan attachment: %w", err)
		}
		items = append(items, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attachments: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) DeleteTaskAttachment(ctx context.Context, attachmentID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM task_attachments WHERE id=$1`, attachmentID)
	if err != nil {
		return fmt.Errorf("delete attachment: %w", err)
	}
	return nil
}
