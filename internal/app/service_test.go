package app

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"testing"
	"time"

	"trackline/api/internal/config"
	"trackline/api/internal/status"
	"trackline/api/internal/store"
)

// fakeStore serves the dataStore interface from in-memory slices. Mutating
// methods can be overridden per test through the fn fields; everything else
// reads the seeded data.
type fakeStore struct {
	users      []store.User
	folders    []store.Folder
	dashboards []store.Dashboard
	tasks      []store.Task
	assignees  []store.TaskAssignee

	folderGrants map[string][]string
	dashGrants   map[string][]string

	insertFolderFn      func(context.Context, store.Folder) error
	updateFolderFn      func(context.Context, store.Folder) error
	deleteFolderFn      func(context.Context, string) error
	setFolderSharingFn  func(context.Context, string, bool, *string) error
	insertDashboardFn   func(context.Context, store.Dashboard) error
	updateDashboardFn   func(context.Context, store.Dashboard) error
	deleteDashboardFn   func(context.Context, string) error
	insertTaskFn        func(context.Context, store.Task) (int64, error)
	updateTaskFn        func(context.Context, store.Task) error
	deleteTaskFn        func(context.Context, int64) error
	replaceAssigneesFn  func(context.Context, int64, []store.TaskAssignee) error
	addFolderCollabFn   func(context.Context, string, string) error
	addDashCollabFn     func(context.Context, string, string) error
	updateUserRoleFn    func(context.Context, string, string) error
	listTasksFn         func(context.Context, []string) ([]store.Task, error)
	pingFn              func(context.Context) error
	isTokenRevokedFn    func(context.Context, string) (bool, error)
	saveRefreshFn       func(context.Context, string, string, time.Time) error
	lookupRefreshFn     func(context.Context, string) (store.User, error)
	revokeRefreshFn     func(context.Context, string) error
}

func (f *fakeStore) GetUserByID(_ context.Context, userID string) (store.User, error) {
	for _, u := range f.users {
		if u.ID == userID {
			return u, nil
		}
	}
	return store.User{}, sql.ErrNoRows
}

func (f *fakeStore) GetUserByEmail(_ context.Context, email string) (store.User, error) {
	for _, u := range f.users {
		if u.Email == email {
			return u, nil
		}
	}
	return store.User{}, sql.ErrNoRows
}

func (f *fakeStore) ListUsers(context.Context, string) ([]store.User, error) {
	return f.users, nil
}

func (f *fakeStore) UpdateUserRole(ctx context.Context, userID, role string) error {
	if f.updateUserRoleFn != nil {
		return f.updateUserRoleFn(ctx, userID, role)
	}
	return nil
}

func (f *fakeStore) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	if f.saveRefreshFn != nil {
		return f.saveRefreshFn(ctx, tokenHash, userID, expiresAt)
	}
	return nil
}

func (f *fakeStore) LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error) {
	if f.lookupRefreshFn != nil {
		return f.lookupRefreshFn(ctx, tokenHash)
	}
	return store.User{}, sql.ErrNoRows
}

func (f *fakeStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	if f.revokeRefreshFn != nil {
		return f.revokeRefreshFn(ctx, tokenHash)
	}
	return nil
}

func (f *fakeStore) RevokeAccessToken(context.Context, string, time.Time) error { return nil }

func (f *fakeStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	if f.isTokenRevokedFn != nil {
		return f.isTokenRevokedFn(ctx, jti)
	}
	return false, nil
}

func (f *fakeStore) ListFolders(context.Context) ([]store.Folder, error) { return f.folders, nil }

func (f *fakeStore) GetFolder(_ context.Context, folderID string) (store.Folder, error) {
	for _, folder := range f.folders {
		if folder.ID == folderID {
			return folder, nil
		}
	}
	return store.Folder{}, sql.ErrNoRows
}

func (f *fakeStore) GetFolderByShareToken(_ context.Context, token string) (store.Folder, error) {
	for _, folder := range f.folders {
		if folder.IsPublic && folder.ShareToken != nil && *folder.ShareToken == token {
			return folder, nil
		}
	}
	return store.Folder{}, sql.ErrNoRows
}

func (f *fakeStore) InsertFolder(ctx context.Context, folder store.Folder) error {
	if f.insertFolderFn != nil {
		return f.insertFolderFn(ctx, folder)
	}
	f.folders = append(f.folders, folder)
	return nil
}

func (f *fakeStore) UpdateFolder(ctx context.Context, folder store.Folder) error {
	if f.updateFolderFn != nil {
		return f.updateFolderFn(ctx, folder)
	}
	return nil
}

func (f *fakeStore) DeleteFolder(ctx context.Context, folderID string) error {
	if f.deleteFolderFn != nil {
		return f.deleteFolderFn(ctx, folderID)
	}
	return nil
}

func (f *fakeStore) SetFolderSharing(ctx context.Context, folderID string, isPublic bool, token *string) error {
	if f.setFolderSharingFn != nil {
		return f.setFolderSharingFn(ctx, folderID, isPublic, token)
	}
	return nil
}

func (f *fakeStore) ListDashboards(context.Context) ([]store.Dashboard, error) {
	return f.dashboards, nil
}

func (f *fakeStore) GetDashboard(_ context.Context, dashboardID string) (store.Dashboard, error) {
	for _, d := range f.dashboards {
		if d.ID == dashboardID {
			return d, nil
		}
	}
	return store.Dashboard{}, sql.ErrNoRows
}

func (f *fakeStore) InsertDashboard(ctx context.Context, dashboard store.Dashboard) error {
	if f.insertDashboardFn != nil {
		return f.insertDashboardFn(ctx, dashboard)
	}
	f.dashboards = append(f.dashboards, dashboard)
	return nil
}

func (f *fakeStore) UpdateDashboard(ctx context.Context, dashboard store.Dashboard) error {
	if f.updateDashboardFn != nil {
		return f.updateDashboardFn(ctx, dashboard)
	}
	return nil
}

func (f *fakeStore) DeleteDashboard(ctx context.Context, dashboardID string) error {
	if f.deleteDashboardFn != nil {
		return f.deleteDashboardFn(ctx, dashboardID)
	}
	return nil
}

func (f *fakeStore) AddFolderCollaborator(ctx context.Context, folderID, userID string) error {
	if f.addFolderCollabFn != nil {
		return f.addFolderCollabFn(ctx, folderID, userID)
	}
	return nil
}

func (f *fakeStore) RemoveFolderCollaborator(context.Context, string, string) error { return nil }

func (f *fakeStore) ListFolderCollaborators(context.Context, string) ([]store.Collaborator, error) {
	return nil, nil
}

func (f *fakeStore) AddDashboardCollaborator(ctx context.Context, dashboardID, userID string) error {
	if f.addDashCollabFn != nil {
		return f.addDashCollabFn(ctx, dashboardID, userID)
	}
	return nil
}

func (f *fakeStore) RemoveDashboardCollaborator(context.Context, string, string) error { return nil }

func (f *fakeStore) ListDashboardCollaborators(context.Context, string) ([]store.Collaborator, error) {
	return nil, nil
}

func (f *fakeStore) ListFolderGrants(_ context.Context, userID string) ([]string, error) {
	return f.folderGrants[userID], nil
}

func (f *fakeStore) ListDashboardGrants(_ context.Context, userID string) ([]string, error) {
	return f.dashGrants[userID], nil
}

func (f *fakeStore) ListTasksByDashboardIDs(ctx context.Context, dashboardIDs []string) ([]store.Task, error) {
	if f.listTasksFn != nil {
		return f.listTasksFn(ctx, dashboardIDs)
	}
	wanted := make(map[string]struct{}, len(dashboardIDs))
	for _, id := range dashboardIDs {
		wanted[id] = struct{}{}
	}
	matched := make([]store.Task, 0)
	for _, t := range f.tasks {
		if _, ok := wanted[t.DashboardID]; ok {
			matched = append(matched, t)
		}
	}
	return matched, nil
}

func (f *fakeStore) GetTask(_ context.Context, taskID int64) (store.Task, error) {
	for _, t := range f.tasks {
		if t.ID == taskID {
			return t, nil
		}
	}
	return store.Task{}, sql.ErrNoRows
}

func (f *fakeStore) InsertTask(ctx context.Context, task store.Task) (int64, error) {
	if f.insertTaskFn != nil {
		return f.insertTaskFn(ctx, task)
	}
	id := int64(len(f.tasks) + 1)
	task.ID = id
	f.tasks = append(f.tasks, task)
	return id, nil
}

func (f *fakeStore) UpdateTask(ctx context.Context, task store.Task) error {
	if f.updateTaskFn != nil {
		return f.updateTaskFn(ctx, task)
	}
	return nil
}

func (f *fakeStore) DeleteTask(ctx context.Context, taskID int64) error {
	if f.deleteTaskFn != nil {
		return f.deleteTaskFn(ctx, taskID)
	}
	return nil
}

func (f *fakeStore) ListAssigneesByTaskIDs(_ context.Context, taskIDs []int64) ([]store.TaskAssignee, error) {
	wanted := make(map[int64]struct{}, len(taskIDs))
	for _, id := range taskIDs {
		wanted[id] = struct{}{}
	}
	matched := make([]store.TaskAssignee, 0)
	for _, a := range f.assignees {
		if _, ok := wanted[a.TaskID]; ok {
			matched = append(matched, a)
		}
	}
	return matched, nil
}

func (f *fakeStore) ReplaceTaskAssignees(ctx context.Context, taskID int64, assignees []store.TaskAssignee) error {
	if f.replaceAssigneesFn != nil {
		return f.replaceAssigneesFn(ctx, taskID, assignees)
	}
	return nil
}

func (f *fakeStore) InsertTaskAttachment(context.Context, store.TaskAttachment) error { return nil }

func (f *fakeStore) GetTaskAttachment(context.Context, string) (store.TaskAttachment, error) {
	return store.TaskAttachment{}, sql.ErrNoRows
}

func (f *fakeStore) ListTaskAttachments(context.Context, int64) ([]store.TaskAttachment, error) {
	return nil, nil
}

func (f *fakeStore) DeleteTaskAttachment(context.Context, string) error { return nil }

func (f *fakeStore) Ping(ctx context.Context) error {
	if f.pingFn != nil {
		return f.pingFn(ctx)
	}
	return nil
}

func newTestService(fs *fakeStore) *Service {
	return &Service{
		cfg: config.Config{
			JWTSecret:  "test-secret",
			AccessTTL:  time.Hour,
			RefreshTTL: 24 * time.Hour,
		},
		store:    fs,
		sessions: pgSessions{store: fs},
	}
}

func strPtr(s string) *string { return &s }

// scenarioStore builds the recurring fixture: Root > Q1 > Launch plus a
// sibling Q2. A dashboard sits in Q1 and another in Launch, each with its own
// status columns; Q2 holds a dashboard the test users cannot reach.
func scenarioStore() *fakeStore {
	alice := "alice"
	return &fakeStore{
		users: []store.User{
			{ID: "alice", DisplayName: "Alice", Email: "alice@example.com", Role: "member", IsEmailVerified: true},
			{ID: "bob", DisplayName: "Bob", Email: "bob@example.com", Role: "member", IsEmailVerified: true},
			{ID: "zed", DisplayName: "Zed", Email: "zed@example.com", Role: "admin", IsEmailVerified: true},
		},
		folders: []store.Folder{
			{ID: "root", Name: "Root", OwnerID: &alice},
			{ID: "q1", Name: "Q1", ParentID: strPtr("root")},
			{ID: "q2", Name: "Q2", ParentID: strPtr("root")},
			{ID: "launch", Name: "Launch", ParentID: strPtr("q1")},
		},
		dashboards: []store.Dashboard{
			{
				ID: "dash-q1", Name: "Q1 Board", FolderID: strPtr("q1"), OwnerID: "alice",
				Settings: store.DashboardSettings{Statuses: []store.StatusColumn{
					{ID: "todo", Label: "To do", Color: "#9ca3af"},
					{ID: "done", Label: "Done", Color: "#22c55e"},
				}},
			},
			{
				ID: "dash-launch", Name: "Launch Board", FolderID: strPtr("launch"), OwnerID: "alice",
				Settings: store.DashboardSettings{Statuses: []store.StatusColumn{
					{ID: "open", Label: "Open", Color: "#9ca3af"},
					{ID: "mid", Label: "Mid", Color: "#3b82f6"},
					{ID: "shipped", Label: "Shipped", Color: "#22c55e"},
				}},
			},
			{
				ID: "dash-q2", Name: "Q2 Board", FolderID: strPtr("q2"), OwnerID: "alice",
				Settings: store.DashboardSettings{Statuses: []store.StatusColumn{
					{ID: "todo", Label: "To do", Color: "#9ca3af"},
				}},
			},
		},
		tasks: []store.Task{
			{ID: 1, DashboardID: "dash-q1", Name: "Plan", StatusID: "todo"},
			{ID: 2, DashboardID: "dash-launch", Name: "Ship", StatusID: "shipped"},
			{ID: 3, DashboardID: "dash-q1", Name: "Review", StatusID: "done", OwnerLabel: "Dana"},
			{ID: 4, DashboardID: "dash-q2", Name: "Hidden", StatusID: "todo"},
		},
		assignees: []store.TaskAssignee{
			{ID: "asg-1", TaskID: 1, Name: "Alice"},
		},
		folderGrants: map[string][]string{"bob": {"q1"}},
		dashGrants:   map[string][]string{},
	}
}

func sessionFor(id, role string) Session {
	return Session{UserID: id, UserName: id, Role: role}
}

func TestListFolderTasksConsolidatesSubtree(t *testing.T) {
	svc := newTestService(scenarioStore())

	items, err := svc.ListFolderTasks(context.Background(), sessionFor("bob", "member"), "q1")
	if err != nil {
		t.Fatalf("ListFolderTasks() error = %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("expected 3 tasks across q1+launch, got %d", len(items))
	}
	for _, item := range items {
		if item["dashboardId"] == "dash-q2" {
			t.Fatal("consolidation leaked a task from outside the subtree")
		}
	}
	// Creation order is preserved across dashboards.
	if items[0]["id"].(int64) != 1 || items[1]["id"].(int64) != 2 || items[2]["id"].(int64) != 3 {
		t.Fatalf("expected creation order 1,2,3, got %v %v %v", items[0]["id"], items[1]["id"], items[2]["id"])
	}
}

func TestTasksNormalizedAgainstOwnDashboardSettings(t *testing.T) {
	svc := newTestService(scenarioStore())

	items, err := svc.ListFolderTasks(context.Background(), sessionFor("bob", "member"), "q1")
	if err != nil {
		t.Fatalf("ListFolderTasks() error = %v", err)
	}

	byName := make(map[string]map[string]any)
	for _, item := range items {
		byName[item["name"].(string)] = item
	}

	// "Plan" is the first of two columns on dash-q1; "Ship" the last of
	// three on dash-launch; "Review" the last of two on dash-q1.
	checkProgress(t, byName["Plan"], 0)
	checkProgress(t, byName["Ship"], 100)
	checkProgress(t, byName["Review"], 100)
}

func checkProgress(t *testing.T, item map[string]any, want int) {
	t.Helper()
	normalized, ok := item["status"].(status.Normalized)
	if !ok {
		t.Fatalf("unexpected status type %T", item["status"])
	}
	if normalized.Percent != want {
		t.Fatalf("task %v progress = %d, want %d", item["name"], normalized.Percent, want)
	}
}

func TestMissingFolderDenialDependsOnRole(t *testing.T) {
	svc := newTestService(scenarioStore())

	_, err := svc.ListFolderTasks(context.Background(), sessionFor("bob", "member"), "ghost")
	assertDomainError(t, err, http.StatusForbidden, "FORBIDDEN")

	_, err = svc.ListFolderTasks(context.Background(), sessionFor("zed", "admin"), "ghost")
	assertDomainError(t, err, http.StatusNotFound, "NOT_FOUND")
}

func TestInaccessibleFolderIsDenialNotEmptyList(t *testing.T) {
	svc := newTestService(scenarioStore())

	_, err := svc.ListFolderTasks(context.Background(), sessionFor("bob", "member"), "q2")
	assertDomainError(t, err, http.StatusForbidden, "FORBIDDEN")
}

func TestEmptySubtreeIsEmptyListNotError(t *testing.T) {
	fs := scenarioStore()
	fs.dashboards = fs.dashboards[:0]
	fs.tasks = fs.tasks[:0]
	svc := newTestService(fs)

	items, err := svc.ListFolderTasks(context.Background(), sessionFor("bob", "member"), "q1")
	if err != nil {
		t.Fatalf("ListFolderTasks() error = %v", err)
	}
	if items == nil || len(items) != 0 {
		t.Fatalf("expected empty non-nil list, got %v", items)
	}
}

func TestOwnerLabelFallbackWhenNoAssignees(t *testing.T) {
	svc := newTestService(scenarioStore())

	items, err := svc.ListDashboardTasks(context.Background(), sessionFor("alice", "member"), "dash-q1")
	if err != nil {
		t.Fatalf("ListDashboardTasks() error = %v", err)
	}

	for _, item := range items {
		assignees := item["assignees"].([]map[string]any)
		switch item["name"] {
		case "Plan":
			if len(assignees) != 1 || assignees[0]["name"] != "Alice" {
				t.Fatalf("expected real assignee row, got %v", assignees)
			}
		case "Review":
			if len(assignees) != 1 || assignees[0]["name"] != "Dana" {
				t.Fatalf("expected owner label fallback, got %v", assignees)
			}
		}
	}
}

func TestListAllTasksScopesToAccessibleDashboards(t *testing.T) {
	svc := newTestService(scenarioStore())

	items, err := svc.ListAllTasks(context.Background(), sessionFor("bob", "member"))
	if err != nil {
		t.Fatalf("ListAllTasks() error = %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("bob should see 3 tasks, got %d", len(items))
	}

	items, err = svc.ListAllTasks(context.Background(), sessionFor("zed", "admin"))
	if err != nil {
		t.Fatalf("ListAllTasks() error = %v", err)
	}
	if len(items) != 4 {
		t.Fatalf("admin should see every task, got %d", len(items))
	}
}

func TestGrantMovementKeepsDashboardTasksButClosesSiblings(t *testing.T) {
	fs := scenarioStore()
	fs.users = append(fs.users, store.User{ID: "carol", DisplayName: "Carol", Email: "carol@example.com", Role: "member", IsEmailVerified: true})
	fs.folderGrants["carol"] = []string{"root"}
	svc := newTestService(fs)
	carol := sessionFor("carol", "member")

	items, err := svc.ListAllTasks(context.Background(), carol)
	if err != nil {
		t.Fatalf("ListAllTasks() error = %v", err)
	}
	if len(items) != 4 {
		t.Fatalf("root grant should reach every task, got %d", len(items))
	}

	before, err := svc.ListDashboardTasks(context.Background(), carol, "dash-launch")
	if err != nil {
		t.Fatalf("ListDashboardTasks() error = %v", err)
	}

	// Swap the inherited grant for a direct one on the launch dashboard.
	delete(fs.folderGrants, "carol")
	fs.dashGrants["carol"] = []string{"dash-launch"}

	after, err := svc.ListDashboardTasks(context.Background(), carol, "dash-launch")
	if err != nil {
		t.Fatalf("ListDashboardTasks() after grant move error = %v", err)
	}
	if len(after) != len(before) {
		t.Fatalf("direct grant changed the task list: %d vs %d", len(after), len(before))
	}
	for i := range after {
		if after[i]["id"] != before[i]["id"] {
			t.Fatalf("task %d differs after grant move: %v vs %v", i, after[i]["id"], before[i]["id"])
		}
	}

	// The sibling dashboard under q1 is closed now.
	_, err = svc.ListDashboardTasks(context.Background(), carol, "dash-q1")
	assertDomainError(t, err, http.StatusForbidden, "FORBIDDEN")
}

func TestCreateTaskDefaultsStatusToFirstColumn(t *testing.T) {
	fs := scenarioStore()
	svc := newTestService(fs)

	payload, err := svc.CreateTask(context.Background(), sessionFor("alice", "member"), "dash-q1", TaskInput{Name: "New work"})
	if err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}
	if payload["statusId"] != "todo" {
		t.Fatalf("expected default status todo, got %v", payload["statusId"])
	}
	if payload["priority"] != "med" {
		t.Fatalf("expected default priority med, got %v", payload["priority"])
	}
}

func TestCreateTaskRejectsBadPriority(t *testing.T) {
	svc := newTestService(scenarioStore())
	_, err := svc.CreateTask(context.Background(), sessionFor("alice", "member"), "dash-q1", TaskInput{Name: "X", Priority: "urgent"})
	assertDomainError(t, err, http.StatusUnprocessableEntity, "VALIDATION_ERROR")
}

func TestUpdateTaskDeniedThroughDashboard(t *testing.T) {
	svc := newTestService(scenarioStore())

	// Task 4 lives on dash-q2, which bob cannot reach.
	_, err := svc.UpdateTask(context.Background(), sessionFor("bob", "member"), 4, TaskInput{Name: "Renamed"})
	assertDomainError(t, err, http.StatusForbidden, "FORBIDDEN")
}

func TestFolderReparentCycleRejected(t *testing.T) {
	svc := newTestService(scenarioStore())

	_, err := svc.UpdateFolder(context.Background(), sessionFor("alice", "member"), "q1", FolderInput{
		Name:     "Q1",
		ParentID: strPtr("launch"),
	})
	assertDomainError(t, err, http.StatusUnprocessableEntity, "VALIDATION_ERROR")
}

func TestSetFolderSharingMintsAndClearsToken(t *testing.T) {
	fs := scenarioStore()
	var savedPublic bool
	var savedToken *string
	fs.setFolderSharingFn = func(_ context.Context, folderID string, isPublic bool, token *string) error {
		savedPublic = isPublic
		savedToken = token
		return nil
	}
	svc := newTestService(fs)
	session := sessionFor("alice", "member")

	payload, err := svc.SetFolderSharing(context.Background(), session, "q1", true)
	if err != nil {
		t.Fatalf("SetFolderSharing(enable) error = %v", err)
	}
	if !savedPublic || savedToken == nil || *savedToken == "" {
		t.Fatal("enabling must persist a fresh token")
	}
	first := *savedToken
	if payload["shareToken"] != first {
		t.Fatalf("payload should echo the minted token, got %v", payload["shareToken"])
	}

	if _, err := svc.SetFolderSharing(context.Background(), session, "q1", false); err != nil {
		t.Fatalf("SetFolderSharing(disable) error = %v", err)
	}
	if savedPublic || savedToken != nil {
		t.Fatal("disabling must clear the token")
	}

	if _, err := svc.SetFolderSharing(context.Background(), session, "q1", true); err != nil {
		t.Fatalf("SetFolderSharing(re-enable) error = %v", err)
	}
	if savedToken == nil || *savedToken == first {
		t.Fatal("re-enabling must mint a different token")
	}
}

func TestFolderProgressAggregatesSubtree(t *testing.T) {
	svc := newTestService(scenarioStore())

	payload, err := svc.FolderProgress(context.Background(), sessionFor("alice", "member"), "q1")
	if err != nil {
		t.Fatalf("FolderProgress() error = %v", err)
	}
	// Tasks: Plan 0%, Ship 100%, Review 100% -> 66% mean, 2 complete of 3.
	if payload["taskCount"] != 3 {
		t.Fatalf("taskCount = %v, want 3", payload["taskCount"])
	}
	if payload["completedCount"] != 2 {
		t.Fatalf("completedCount = %v, want 2", payload["completedCount"])
	}
	if payload["progress"] != 66 {
		t.Fatalf("progress = %v, want 66", payload["progress"])
	}
}

func TestCollaboratorAddRequiresKnownEmail(t *testing.T) {
	svc := newTestService(scenarioStore())

	_, err := svc.AddFolderCollaborator(context.Background(), sessionFor("alice", "member"), "q1", "stranger@example.com")
	assertDomainError(t, err, http.StatusUnprocessableEntity, "VALIDATION_ERROR")
}

func TestUpdateUserRoleAdminOnly(t *testing.T) {
	svc := newTestService(scenarioStore())

	err := svc.UpdateUserRole(context.Background(), sessionFor("bob", "member"), "alice", "admin")
	assertDomainError(t, err, http.StatusForbidden, "FORBIDDEN")

	if err := svc.UpdateUserRole(context.Background(), sessionFor("zed", "admin"), "alice", "admin"); err != nil {
		t.Fatalf("admin role update failed: %v", err)
	}

	err = svc.UpdateUserRole(context.Background(), sessionFor("zed", "admin"), "zed", "member")
	assertDomainError(t, err, http.StatusUnprocessableEntity, "VALIDATION_ERROR")
}

func TestSessionRoundTrip(t *testing.T) {
	fs := scenarioStore()
	saved := map[string]string{}
	fs.saveRefreshFn = func(_ context.Context, hash, userID string, _ time.Time) error {
		saved[hash] = userID
		return nil
	}
	svc := newTestService(fs)

	session, err := svc.CreateSession(context.Background(), "alice")
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	if session.Token == "" || session.RefreshToken == "" {
		t.Fatal("expected both tokens")
	}

	parsed, err := svc.SessionFromToken(context.Background(), session.Token)
	if err != nil {
		t.Fatalf("SessionFromToken() error = %v", err)
	}
	if parsed.UserID != "alice" || parsed.Role != "member" {
		t.Fatalf("unexpected session: %+v", parsed)
	}
	if len(saved) != 1 {
		t.Fatalf("expected one persisted refresh session, got %d", len(saved))
	}
}

func TestRevokedTokenRejected(t *testing.T) {
	fs := scenarioStore()
	fs.isTokenRevokedFn = func(context.Context, string) (bool, error) { return true, nil }
	svc := newTestService(fs)

	session, err := svc.CreateSession(context.Background(), "alice")
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	if _, err := svc.SessionFromToken(context.Background(), session.Token); err == nil {
		t.Fatal("expected revoked token to be rejected")
	}
}

func assertDomainError(t *testing.T, err error, wantStatus int, wantCode string) {
	t.Helper()
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		t.Fatalf("expected DomainError, got %v", err)
	}
	if domainErr.Status != wantStatus || domainErr.Code != wantCode {
		t.Fatalf("got %d %s, want %d %s", domainErr.Status, domainErr.Code, wantStatus, wantCode)
	}
}
