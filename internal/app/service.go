package app

import (
	"context"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"trackline/api/internal/access"
	"trackline/api/internal/auth"
	"trackline/api/internal/authpw"
	"trackline/api/internal/blob"
	"trackline/api/internal/config"
	"trackline/api/internal/email"
	"trackline/api/internal/search"
	"trackline/api/internal/store"
	"trackline/api/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	Email        string
	Role         string
	JTI          string
	ExpiresAt    time.Time
}

type dataStore interface {
	GetUserByID(context.Context, string) (store.User, error)
	GetUserByEmail(context.Context, string) (store.User, error)
	ListUsers(context.Context, string) ([]store.User, error)
	UpdateUserRole(context.Context, string, string) error

	SaveRefreshSession(context.Context, string, string, time.Time) error
	LookupRefreshSession(context.Context, string) (store.User, error)
	RevokeRefreshSession(context.Context, string) error
	RevokeAccessToken(context.Context, string, time.Time) error
	IsAccessTokenRevoked(context.Context, string) (bool, error)

	ListFolders(context.Context) ([]store.Folder, error)
	GetFolder(context.Context, string) (store.Folder, error)
	GetFolderByShareToken(context.Context, string) (store.Folder, error)
	InsertFolder(context.Context, store.Folder) error
	UpdateFolder(context.Context, store.Folder) error
	DeleteFolder(context.Context, string) error
	SetFolderSharing(context.Context, string, bool, *string) error

	ListDashboards(context.Context) ([]store.Dashboard, error)
	GetDashboard(context.Context, string) (store.Dashboard, error)
	InsertDashboard(context.Context, store.Dashboard) error
	UpdateDashboard(context.Context, store.Dashboard) error
	DeleteDashboard(context.Context, string) error

	AddFolderCollaborator(context.Context, string, string) error
	RemoveFolderCollaborator(context.Context, string, string) error
	ListFolderCollaborators(context.Context, string) ([]store.Collaborator, error)
	AddDashboardCollaborator(context.Context, string, string) error
	RemoveDashboardCollaborator(context.Context, string, string) error
	ListDashboardCollaborators(context.Context, string) ([]store.Collaborator, error)
	ListFolderGrants(context.Context, string) ([]string, error)
	ListDashboardGrants(context.Context, string) ([]string, error)

	ListTasksByDashboardIDs(context.Context, []string) ([]store.Task, error)
	GetTask(context.Context, int64) (store.Task, error)
	InsertTask(context.Context, store.Task) (int64, error)
	UpdateTask(context.Context, store.Task) error
	DeleteTask(context.Context, int64) error
	ListAssigneesByTaskIDs(context.Context, []int64) ([]store.TaskAssignee, error)
	ReplaceTaskAssignees(context.Context, int64, []store.TaskAssignee) error

	InsertTaskAttachment(context.Context, store.TaskAttachment) error
	GetTaskAttachment(context.Context, string) (store.TaskAttachment, error)
	ListTaskAttachments(context.Context, int64) ([]store.TaskAttachment, error)
	DeleteTaskAttachment(context.Context, string) error

	Ping(ctx context.Context) error
}

// sessionStore is the refresh-token backend. Redis serves it natively; when
// Redis is not configured, pgSessions adapts the Postgres rows to the same
// shape.
type sessionStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash string, user store.User, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

type pgSessions struct {
	store dataStore
}

func (p pgSessions) SaveRefreshSession(ctx context.Context, tokenHash string, user store.User, expiresAt time.Time) error {
	return p.store.SaveRefreshSession(ctx, tokenHash, user.ID, expiresAt)
}

func (p pgSessions) LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error) {
	return p.store.LookupRefreshSession(ctx, tokenHash)
}

func (p pgSessions) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	return p.store.RevokeRefreshSession(ctx, tokenHash)
}

type Service struct {
	cfg      config.Config
	store    dataStore
	sessions sessionStore
	searcher *search.Service
	blobs    *blob.Store
	mailer   *email.Service
	authpw   *authpw.Service
}

// New wires the service. sessions may be nil (Postgres fallback); searcher,
// blobs, and mailer may be nil when their backends are not configured, and
// the routes that need them degrade.
func New(cfg config.Config, dataStore *store.PostgresStore, sessions sessionStore, searcher *search.Service, blobs *blob.Store, mailer *email.Service) *Service {
	svc := &Service{
		cfg:      cfg,
		store:    dataStore,
		sessions: sessions,
		searcher: searcher,
		blobs:    blobs,
		mailer:   mailer,
		authpw:   authpw.NewService(dataStore),
	}
	if svc.sessions == nil {
		svc.sessions = pgSessions{store: svc.store}
	}
	return svc
}

func (s *Service) AuthPasswordService() *authpw.Service {
	return s.authpw
}

func (s *Service) SMTPConfigured() bool {
	return s.mailer != nil && s.mailer.IsConfigured()
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// SendVerificationMail delivers the signup verification link best effort.
func (s *Service) SendVerificationMail(to, token string) {
	if !s.SMTPConfigured() {
		return
	}
	verifyURL := strings.TrimRight(s.cfg.PublicBaseURL, "/") + "/verify-email?token=" + url.QueryEscape(token)
	if err := s.mailer.SendVerification(to, verifyURL); err != nil {
		log.Printf("email: verification to %s: %v", to, err)
	}
}

func (s *Service) CreateSession(ctx context.Context, userID string) (Session, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	user, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:   user.ID,
		Name:  user.DisplayName,
		Email: user.Email,
		Role:  user.Role,
		JTI:   jti,
		Exp:   expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewToken()
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.DisplayName,
		Email:        user.Email,
		Role:         user.Role,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.store.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.DisplayName,
		Email:     user.Email,
		Role:      user.Role,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		_ = s.store.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt)
	}
	if refreshToken != "" {
		_ = s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	return nil
}

// resolverFor builds the per-request access view: a snapshot of the folder
// tree plus the caller's direct grants.
func (s *Service) resolverFor(ctx context.Context, session Session) (*access.Resolver, *access.Tree, error) {
	folders, err := s.store.ListFolders(ctx)
	if err != nil {
		return nil, nil, err
	}
	tree := access.NewTree(folders)

	folderGrants, err := s.store.ListFolderGrants(ctx, session.UserID)
	if err != nil {
		return nil, nil, err
	}
	dashGrants, err := s.store.ListDashboardGrants(ctx, session.UserID)
	if err != nil {
		return nil, nil, err
	}

	principal := store.User{
		ID:          session.UserID,
		DisplayName: session.UserName,
		Email:       session.Email,
		Role:        session.Role,
	}
	return access.NewResolver(principal, tree, folderGrants, dashGrants), tree, nil
}

// denial hides resource existence from non-admins: they get the same 403
// whether the resource is missing or merely inaccessible. Admins bypass all
// access checks, so for them a denial can only mean the resource is gone.
func denial(resolver *access.Resolver) error {
	if resolver.IsAdmin() {
		return domainError(http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
	return domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
}

func forbidden() error {
	return domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
}

func validationError(message string) error {
	return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", message, nil)
}
