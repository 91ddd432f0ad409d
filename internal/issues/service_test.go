package issues

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/issuedesk/backend/internal/models"
	"github.com/issuedesk/backend/pkg/apperr"
)

// fakeIssues is an in-memory IssueStore. Mutating calls are recorded in the
// shared ops slice so tests can assert ordering against activity appends.
type fakeIssues struct {
	byID map[uuid.UUID]*models.Issue
	ops  *[]string
}

func (f *fakeIssues) Insert(_ context.Context, issue *models.Issue) error {
	issue.ID = uuid.New()
	issue.CreatedAt = time.Now()
	issue.UpdatedAt = issue.CreatedAt
	cp := *issue
	f.byID[issue.ID] = &cp
	*f.ops = append(*f.ops, "insert")
	return nil
}

func (f *fakeIssues) GetByID(_ context.Context, id, orgID uuid.UUID) (*models.Issue, error) {
	issue, ok := f.byID[id]
	if !ok || issue.OrganizationID != orgID {
		return nil, ErrIssueNotFound
	}
	cp := *issue
	return &cp, nil
}

func (f *fakeIssues) List(_ context.Context, orgID uuid.UUID, filter ListFilter) ([]models.Issue, error) {
	list := make([]models.Issue, 0)
	for _, issue := range f.byID {
		if issue.OrganizationID != orgID {
			continue
		}
		if filter.Status != "" && issue.Status != filter.Status {
			continue
		}
		if filter.Assignee != nil && !sameAssignee(issue.AssigneeID, filter.Assignee) {
			continue
		}
		list = append(list, *issue)
	}
	return list, nil
}

func (f *fakeIssues) Update(_ context.Context, issue *models.Issue) error {
	existing, ok := f.byID[issue.ID]
	if !ok || existing.OrganizationID != issue.OrganizationID {
		return ErrIssueNotFound
	}
	issue.UpdatedAt = time.Now()
	cp := *issue
	f.byID[issue.ID] = &cp
	*f.ops = append(*f.ops, "update")
	return nil
}

func (f *fakeIssues) Delete(_ context.Context, id, orgID uuid.UUID) error {
	existing, ok := f.byID[id]
	if !ok || existing.OrganizationID != orgID {
		return ErrIssueNotFound
	}
	delete(f.byID, id)
	*f.ops = append(*f.ops, "delete")
	return nil
}

func (f *fakeIssues) Stats(_ context.Context, orgID uuid.UUID) (*IssueStats, error) {
	stats := &IssueStats{
		ByStatus:   make(map[models.IssueStatus]int64),
		ByPriority: make(map[models.IssuePriority]int64),
	}
	for _, issue := range f.byID {
		if issue.OrganizationID != orgID {
			continue
		}
		stats.Total++
		stats.ByStatus[issue.Status]++
		if issue.Priority != "" {
			stats.ByPriority[issue.Priority]++
		}
		if issue.AssigneeID == nil && issue.Status == models.StatusOpen {
			stats.UnassignedOpen++
		}
	}
	return stats, nil
}

type fakeUsers struct {
	byID map[uuid.UUID]*models.User
}

func (f *fakeUsers) GetByID(_ context.Context, id, orgID uuid.UUID) (*models.User, error) {
	u, ok := f.byID[id]
	if !ok || u.OrganizationID != orgID {
		return nil, apperr.NotFound("user not found")
	}
	cp := *u
	return &cp, nil
}

type fakeActivity struct {
	entries []models.ActivityEntry
	ops     *[]string
	err     error
}

func (f *fakeActivity) Append(_ context.Context, e *models.ActivityEntry) error {
	if f.err != nil {
		return f.err
	}
	e.ID = uuid.New()
	e.CreatedAt = time.Now()
	f.entries = append(f.entries, *e)
	*f.ops = append(*f.ops, "append:"+string(e.Action))
	return nil
}

func (f *fakeActivity) ListByIssue(_ context.Context, issueID uuid.UUID) ([]models.ActivityEntry, error) {
	list := make([]models.ActivityEntry, 0)
	for i := len(f.entries) - 1; i >= 0; i-- {
		if f.entries[i].IssueID == issueID {
			list = append(list, f.entries[i])
		}
	}
	return list, nil
}

func (f *fakeActivity) forIssue(issueID uuid.UUID) []models.ActivityEntry {
	list, _ := f.ListByIssue(context.Background(), issueID)
	return list
}

type publishedEvent struct {
	orgID   uuid.UUID
	event   string
	payload any
}

type fakeEvents struct {
	published []publishedEvent
}

func (f *fakeEvents) IssueEvent(orgID uuid.UUID, event string, payload any) {
	f.published = append(f.published, publishedEvent{orgID: orgID, event: event, payload: payload})
}

// fixture wires a Service over in-memory stores.
type fixture struct {
	issues   *fakeIssues
	users    *fakeUsers
	activity *fakeActivity
	events   *fakeEvents
	svc      *Service
	ops      []string
}

func newFixture() *fixture {
	f := &fixture{}
	f.issues = &fakeIssues{byID: make(map[uuid.UUID]*models.Issue), ops: &f.ops}
	f.users = &fakeUsers{byID: make(map[uuid.UUID]*models.User)}
	f.activity = &fakeActivity{ops: &f.ops}
	f.events = &fakeEvents{}
	f.svc = NewService(f.issues, f.users, f.activity, f.events, zap.NewNop())
	return f
}

func (f *fixture) addUser(orgID uuid.UUID, role models.Role) *models.User {
	u := &models.User{
		ID:             uuid.New(),
		OrganizationID: orgID,
		Name:           "user " + uuid.NewString()[:8],
		Email:          uuid.NewString()[:8] + "@example.com",
		Role:           role,
	}
	f.users.byID[u.ID] = u
	return u
}

func identityFor(u *models.User) models.Identity {
	return models.Identity{
		UserID:         u.ID,
		OrganizationID: u.OrganizationID,
		Role:           u.Role,
	}
}

func TestCreate_StatusOpenWithCreatedEntry(t *testing.T) {
	f := newFixture()
	member := f.addUser(uuid.New(), models.RoleMember)

	issue, err := f.svc.Create(context.Background(), identityFor(member), CreateInput{
		Title:    "Bug",
		Priority: models.PriorityHigh,
	})
	require.NoError(t, err)

	assert.Equal(t, models.StatusOpen, issue.Status)
	assert.Equal(t, member.OrganizationID, issue.OrganizationID)
	assert.Equal(t, member.ID, issue.CreatedBy)
	assert.Nil(t, issue.AssigneeID)

	entries := f.activity.forIssue(issue.ID)
	require.Len(t, entries, 1)
	assert.Equal(t, models.ActionCreated, entries[0].Action)
	assert.Equal(t, member.ID, entries[0].PerformedBy)
	assert.Nil(t, entries[0].OldValue)
	assert.Nil(t, entries[0].NewValue)
}

func TestCreate_AssigneeInOrg(t *testing.T) {
	f := newFixture()
	orgID := uuid.New()
	creator := f.addUser(orgID, models.RoleMember)
	assignee := f.addUser(orgID, models.RoleMember)

	issue, err := f.svc.Create(context.Background(), identityFor(creator), CreateInput{
		Title:      "Bug",
		AssigneeID: &assignee.ID,
	})
	require.NoError(t, err)
	require.NotNil(t, issue.AssigneeID)
	assert.Equal(t, assignee.ID, *issue.AssigneeID)
}

func TestCreate_AssigneeOutsideOrgRejected(t *testing.T) {
	f := newFixture()
	creator := f.addUser(uuid.New(), models.RoleMember)
	outsider := f.addUser(uuid.New(), models.RoleMember)

	_, err := f.svc.Create(context.Background(), identityFor(creator), CreateInput{
		Title:      "Bug",
		AssigneeID: &outsider.ID,
	})
	require.ErrorIs(t, err, ErrAssigneeNotInOrg)
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))

	assert.Empty(t, f.issues.byID, "no issue may be persisted")
	assert.Empty(t, f.activity.entries, "no activity may be recorded")
}

func TestGet_CrossTenantIndistinguishableFromAbsent(t *testing.T) {
	f := newFixture()
	owner := f.addUser(uuid.New(), models.RoleMember)
	stranger := f.addUser(uuid.New(), models.RoleAdmin)

	issue, err := f.svc.Create(context.Background(), identityFor(owner), CreateInput{Title: "Bug"})
	require.NoError(t, err)

	_, crossErr := f.svc.Get(context.Background(), identityFor(stranger), issue.ID)
	_, absentErr := f.svc.Get(context.Background(), identityFor(stranger), uuid.New())
	require.ErrorIs(t, crossErr, ErrIssueNotFound)
	require.ErrorIs(t, absentErr, ErrIssueNotFound)
	assert.Equal(t, crossErr.Error(), absentErr.Error())
}

func TestGet_IncludesActivityNewestFirst(t *testing.T) {
	f := newFixture()
	admin := f.addUser(uuid.New(), models.RoleAdmin)
	ctx := context.Background()

	issue, err := f.svc.Create(ctx, identityFor(admin), CreateInput{Title: "Bug"})
	require.NoError(t, err)

	status := models.StatusInProgress
	_, err = f.svc.Update(ctx, identityFor(admin), issue.ID, UpdateInput{Status: &status})
	require.NoError(t, err)

	detail, err := f.svc.Get(ctx, identityFor(admin), issue.ID)
	require.NoError(t, err)
	require.Len(t, detail.Activity, 2)
	assert.Equal(t, models.ActionStatusChanged, detail.Activity[0].Action)
	assert.Equal(t, models.ActionCreated, detail.Activity[1].Action)
}

func TestUpdate_UntrackedFieldsYieldSingleUpdatedEntry(t *testing.T) {
	f := newFixture()
	admin := f.addUser(uuid.New(), models.RoleAdmin)
	ctx := context.Background()

	issue, err := f.svc.Create(ctx, identityFor(admin), CreateInput{Title: "Bug"})
	require.NoError(t, err)

	desc := "now with details"
	updated, err := f.svc.Update(ctx, identityFor(admin), issue.ID, UpdateInput{Description: &desc})
	require.NoError(t, err)
	assert.Equal(t, desc, updated.Description)

	entries := f.activity.forIssue(issue.ID)
	require.Len(t, entries, 2)
	assert.Equal(t, models.ActionUpdated, entries[0].Action)
	assert.Nil(t, entries[0].OldValue)
	assert.Nil(t, entries[0].NewValue)
}

func TestUpdate_StatusAndAssigneeYieldOneEntryEach(t *testing.T) {
	f := newFixture()
	orgID := uuid.New()
	admin := f.addUser(orgID, models.RoleAdmin)
	assignee := f.addUser(orgID, models.RoleMember)
	ctx := context.Background()

	issue, err := f.svc.Create(ctx, identityFor(admin), CreateInput{Title: "Bug"})
	require.NoError(t, err)

	status := models.StatusInProgress
	_, err = f.svc.Update(ctx, identityFor(admin), issue.ID, UpdateInput{
		Status:   &status,
		Assignee: models.NullableUUID{Set: true, Valid: true, Value: assignee.ID},
	})
	require.NoError(t, err)

	entries := f.activity.forIssue(issue.ID)
	require.Len(t, entries, 3)

	byAction := make(map[models.ActivityAction]models.ActivityEntry)
	for _, e := range entries {
		byAction[e.Action] = e
	}
	sc, ok := byAction[models.ActionStatusChanged]
	require.True(t, ok)
	require.NotNil(t, sc.OldValue)
	require.NotNil(t, sc.NewValue)
	assert.Equal(t, "OPEN", *sc.OldValue)
	assert.Equal(t, "IN_PROGRESS", *sc.NewValue)

	ac, ok := byAction[models.ActionAssigneeChanged]
	require.True(t, ok)
	require.NotNil(t, ac.OldValue)
	require.NotNil(t, ac.NewValue)
	assert.Equal(t, models.Unassigned, *ac.OldValue)
	assert.Equal(t, assignee.ID.String(), *ac.NewValue)

	_, generic := byAction[models.ActionUpdated]
	assert.False(t, generic, "no generic UPDATED entry when tracked fields changed")
}

func TestUpdate_ClearingAssigneeUsesSentinel(t *testing.T) {
	f := newFixture()
	orgID := uuid.New()
	admin := f.addUser(orgID, models.RoleAdmin)
	assignee := f.addUser(orgID, models.RoleMember)
	ctx := context.Background()

	issue, err := f.svc.Create(ctx, identityFor(admin), CreateInput{
		Title:      "Bug",
		AssigneeID: &assignee.ID,
	})
	require.NoError(t, err)

	updated, err := f.svc.Update(ctx, identityFor(admin), issue.ID, UpdateInput{
		Assignee: models.NullableUUID{Set: true, Valid: false},
	})
	require.NoError(t, err)
	assert.Nil(t, updated.AssigneeID)

	entries := f.activity.forIssue(issue.ID)
	require.Len(t, entries, 2)
	assert.Equal(t, models.ActionAssigneeChanged, entries[0].Action)
	assert.Equal(t, assignee.ID.String(), *entries[0].OldValue)
	assert.Equal(t, models.Unassigned, *entries[0].NewValue)
}

func TestUpdate_SameStatusCountsAsUntracked(t *testing.T) {
	f := newFixture()
	admin := f.addUser(uuid.New(), models.RoleAdmin)
	ctx := context.Background()

	issue, err := f.svc.Create(ctx, identityFor(admin), CreateInput{Title: "Bug"})
	require.NoError(t, err)

	status := models.StatusOpen
	_, err = f.svc.Update(ctx, identityFor(admin), issue.ID, UpdateInput{Status: &status})
	require.NoError(t, err)

	entries := f.activity.forIssue(issue.ID)
	require.Len(t, entries, 2)
	assert.Equal(t, models.ActionUpdated, entries[0].Action)
}

func TestUpdate_AssigneeOutsideOrgRejected(t *testing.T) {
	f := newFixture()
	admin := f.addUser(uuid.New(), models.RoleAdmin)
	outsider := f.addUser(uuid.New(), models.RoleMember)
	ctx := context.Background()

	issue, err := f.svc.Create(ctx, identityFor(admin), CreateInput{Title: "Bug"})
	require.NoError(t, err)

	_, err = f.svc.Update(ctx, identityFor(admin), issue.ID, UpdateInput{
		Assignee: models.NullableUUID{Set: true, Valid: true, Value: outsider.ID},
	})
	require.ErrorIs(t, err, ErrAssigneeNotInOrg)

	entries := f.activity.forIssue(issue.ID)
	require.Len(t, entries, 1, "only the CREATED entry may exist")
	current, err := f.svc.Get(ctx, identityFor(admin), issue.ID)
	require.NoError(t, err)
	assert.Nil(t, current.AssigneeID, "rejected update must not be applied")
}

func TestUpdate_CrossTenantNotFound(t *testing.T) {
	f := newFixture()
	owner := f.addUser(uuid.New(), models.RoleAdmin)
	stranger := f.addUser(uuid.New(), models.RoleAdmin)
	ctx := context.Background()

	issue, err := f.svc.Create(ctx, identityFor(owner), CreateInput{Title: "Bug"})
	require.NoError(t, err)

	title := "hijack"
	_, err = f.svc.Update(ctx, identityFor(stranger), issue.ID, UpdateInput{Title: &title})
	require.ErrorIs(t, err, ErrIssueNotFound)
}

func TestDelete_AppendsDeletedEntryBeforeRemoval(t *testing.T) {
	f := newFixture()
	admin := f.addUser(uuid.New(), models.RoleAdmin)
	ctx := context.Background()

	issue, err := f.svc.Create(ctx, identityFor(admin), CreateInput{Title: "Bug"})
	require.NoError(t, err)

	f.ops = f.ops[:0]
	require.NoError(t, f.svc.Delete(ctx, identityFor(admin), issue.ID))
	require.Equal(t, []string{"append:DELETED", "delete"}, f.ops,
		"DELETED entry must precede the row removal")

	_, err = f.svc.Get(ctx, identityFor(admin), issue.ID)
	require.ErrorIs(t, err, ErrIssueNotFound)
}

func TestDelete_CrossTenantNotFound(t *testing.T) {
	f := newFixture()
	owner := f.addUser(uuid.New(), models.RoleAdmin)
	stranger := f.addUser(uuid.New(), models.RoleAdmin)
	ctx := context.Background()

	issue, err := f.svc.Create(ctx, identityFor(owner), CreateInput{Title: "Bug"})
	require.NoError(t, err)

	err = f.svc.Delete(ctx, identityFor(stranger), issue.ID)
	require.ErrorIs(t, err, ErrIssueNotFound)

	_, err = f.svc.Get(ctx, identityFor(owner), issue.ID)
	assert.NoError(t, err, "issue must survive a cross-tenant delete attempt")
}

func TestActivityAppendFailureDoesNotFailMutation(t *testing.T) {
	f := newFixture()
	f.activity.err = fmt.Errorf("log store down")
	admin := f.addUser(uuid.New(), models.RoleAdmin)

	issue, err := f.svc.Create(context.Background(), identityFor(admin), CreateInput{Title: "Bug"})
	require.NoError(t, err)
	assert.Len(t, f.issues.byID, 1)
	assert.Empty(t, f.activity.entries)

	desc := "still works"
	_, err = f.svc.Update(context.Background(), identityFor(admin), issue.ID, UpdateInput{Description: &desc})
	require.NoError(t, err)
}

func TestLifecycleEventsPublished(t *testing.T) {
	f := newFixture()
	admin := f.addUser(uuid.New(), models.RoleAdmin)
	ctx := context.Background()

	issue, err := f.svc.Create(ctx, identityFor(admin), CreateInput{Title: "Bug"})
	require.NoError(t, err)

	status := models.StatusClosed
	_, err = f.svc.Update(ctx, identityFor(admin), issue.ID, UpdateInput{Status: &status})
	require.NoError(t, err)
	require.NoError(t, f.svc.Delete(ctx, identityFor(admin), issue.ID))

	require.Len(t, f.events.published, 3)
	assert.Equal(t, models.EventIssueCreated, f.events.published[0].event)
	assert.Equal(t, models.EventIssueUpdated, f.events.published[1].event)
	assert.Equal(t, models.EventIssueDeleted, f.events.published[2].event)
	for _, e := range f.events.published {
		assert.Equal(t, admin.OrganizationID, e.orgID)
	}
}

func TestScenario_MemberCreatesAdminMovesToInProgress(t *testing.T) {
	f := newFixture()
	orgID := uuid.New()
	member := f.addUser(orgID, models.RoleMember)
	admin := f.addUser(orgID, models.RoleAdmin)
	ctx := context.Background()

	issue, err := f.svc.Create(ctx, identityFor(member), CreateInput{
		Title:    "Bug",
		Priority: models.PriorityHigh,
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusOpen, issue.Status)
	require.Len(t, f.activity.forIssue(issue.ID), 1)

	status := models.StatusInProgress
	updated, err := f.svc.Update(ctx, identityFor(admin), issue.ID, UpdateInput{Status: &status})
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, updated.Status)

	entries := f.activity.forIssue(issue.ID)
	require.Len(t, entries, 2)
	assert.Equal(t, models.ActionStatusChanged, entries[0].Action)
	assert.Equal(t, "OPEN", *entries[0].OldValue)
	assert.Equal(t, "IN_PROGRESS", *entries[0].NewValue)
	assert.Equal(t, admin.ID, entries[0].PerformedBy)
}

func TestStats_CountsByStatusAndPriority(t *testing.T) {
	f := newFixture()
	orgID := uuid.New()
	admin := f.addUser(orgID, models.RoleAdmin)
	other := f.addUser(uuid.New(), models.RoleAdmin)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, identityFor(admin), CreateInput{Title: "a", Priority: models.PriorityHigh})
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, identityFor(admin), CreateInput{Title: "b", Priority: models.PriorityHigh})
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, identityFor(other), CreateInput{Title: "elsewhere"})
	require.NoError(t, err)

	stats, err := f.svc.Stats(ctx, identityFor(admin))
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Total)
	assert.Equal(t, int64(2), stats.ByStatus[models.StatusOpen])
	assert.Equal(t, int64(2), stats.ByPriority[models.PriorityHigh])
	assert.Equal(t, int64(2), stats.UnassignedOpen)
}
