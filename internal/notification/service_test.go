package notification

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stanstork/franchise-hub/internal/models"
	"github.com/stanstork/franchise-hub/internal/repository/repositorytest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(store *repositorytest.Store, opts ...Option) Service {
	return NewService(store.NotificationRepository(), store.UserRepository(), zerolog.Nop(), opts...)
}

func recipients(notifications []models.Notification) []string {
	ids := make([]string, 0, len(notifications))
	for _, n := range notifications {
		ids = append(ids, n.RecipientUserID)
	}
	return ids
}

func TestCreateRejectsBlankTarget(t *testing.T) {
	store := repositorytest.NewStore()
	svc := newTestService(store)
	ctx := context.Background()

	for _, target := range []string{"", "   ", "\t\n"} {
		_, err := svc.Create(ctx, CreateParams{
			RecipientUserID: "u1", TenantID: "t1", Type: models.NotificationDocumentUploaded, TargetID: target, Message: "msg",
		})
		assert.ErrorIs(t, err, ErrInvalidArgument, "target %q", target)
	}
	assert.Empty(t, store.Notifications())

	notif, err := svc.Create(ctx, CreateParams{
		RecipientUserID: "u1", TenantID: "t1", Type: models.NotificationDocumentUploaded, TargetID: " doc-1 ", Message: "msg",
	})
	require.NoError(t, err)
	assert.Equal(t, "doc-1", notif.TargetID)
	assert.False(t, notif.IsRead)
}

func TestCreateRejectsUnknownType(t *testing.T) {
	svc := newTestService(repositorytest.NewStore())
	_, err := svc.Create(context.Background(), CreateParams{
		RecipientUserID: "u1", TenantID: "t1", Type: "invoice_paid", TargetID: "x",
	})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestFanOutAudiences(t *testing.T) {
	store := repositorytest.NewStore()
	viewerA := store.AddUser("t1", "a@example.com")
	viewerB := store.AddUser("t1", "b@example.com")
	manager := store.AddUser("t1", "m@example.com", models.RoleManager)
	store.AddUser("t2", "elsewhere@example.com")
	inactive := store.AddUser("t1", "gone@example.com")
	store.Deactivate(inactive.ID)
	svc := newTestService(store)
	ctx := context.Background()

	t.Run("viewers only", func(t *testing.T) {
		created, err := svc.FanOut(ctx, FanOutParams{
			TenantID: "t1", Audience: models.AudienceViewersOnly, Type: models.NotificationAnnouncementPosted, TargetID: "a1", Message: "msg",
		})
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{viewerA.ID, viewerB.ID}, recipients(created))
	})

	t.Run("managers only", func(t *testing.T) {
		created, err := svc.FanOut(ctx, FanOutParams{
			TenantID: "t1", Audience: models.AudienceManagersOnly, Type: models.NotificationTicketCreated, TargetID: "t1", Message: "msg",
		})
		require.NoError(t, err)
		assert.Equal(t, []string{manager.ID}, recipients(created))
	})

	t.Run("all with exclusion", func(t *testing.T) {
		created, err := svc.FanOut(ctx, FanOutParams{
			TenantID: "t1", Audience: models.AudienceAllInTenant, Type: models.NotificationDocumentUploaded, TargetID: "d1", Message: "msg", ExcludeUserID: viewerA.ID,
		})
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{viewerB.ID, manager.ID}, recipients(created))
	})

	t.Run("empty audience", func(t *testing.T) {
		created, err := svc.FanOut(ctx, FanOutParams{
			TenantID: "t-empty", Audience: models.AudienceViewersOnly, Type: models.NotificationAnnouncementPosted, TargetID: "a1",
		})
		require.NoError(t, err)
		assert.NotNil(t, created)
		assert.Empty(t, created)
	})
}

func TestFanOutValidationHappensBeforeWrites(t *testing.T) {
	store := repositorytest.NewStore()
	store.AddUser("t1", "a@example.com")
	svc := newTestService(store)

	_, err := svc.FanOut(context.Background(), FanOutParams{
		TenantID: "t1", Audience: models.AudienceAllInTenant, Type: models.NotificationDocumentUploaded, TargetID: " ",
	})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = svc.FanOut(context.Background(), FanOutParams{
		TenantID: "t1", Audience: "EVERYONE", Type: models.NotificationDocumentUploaded, TargetID: "d1",
	})
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.Empty(t, store.Notifications())
}

func TestFanOutDirectoryFailureAborts(t *testing.T) {
	store := repositorytest.NewStore()
	store.AddUser("t1", "a@example.com")
	store.DirectoryErr = errors.New("directory down")
	svc := newTestService(store)

	created, err := svc.FanOut(context.Background(), FanOutParams{
		TenantID: "t1", Audience: models.AudienceAllInTenant, Type: models.NotificationDocumentUploaded, TargetID: "d1",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, store.DirectoryErr)
	assert.Nil(t, created)
	assert.Empty(t, store.Notifications())
}

func TestFanOutPolicies(t *testing.T) {
	setup := func() (*repositorytest.Store, models.User) {
		store := repositorytest.NewStore()
		store.AddUser("t1", "a@example.com")
		bad := store.AddUser("t1", "b@example.com")
		store.AddUser("t1", "c@example.com")
		store.CreateErrFor[bad.ID] = errors.New("insert failed")
		return store, bad
	}
	params := FanOutParams{
		TenantID: "t1", Audience: models.AudienceAllInTenant, Type: models.NotificationDocumentUploaded, TargetID: "d1",
	}

	t.Run("fail fast stops at first failure", func(t *testing.T) {
		store, _ := setup()
		created, err := newTestService(store).FanOut(context.Background(), params)
		require.Error(t, err)
		assert.Len(t, created, 1)
		assert.Len(t, store.Notifications(), 1)
	})

	t.Run("best effort continues", func(t *testing.T) {
		store, bad := setup()
		created, err := newTestService(store, WithFanOutPolicy(BestEffort)).FanOut(context.Background(), params)
		require.Error(t, err)
		assert.Contains(t, err.Error(), bad.ID)
		assert.Len(t, created, 2)
		assert.Len(t, store.Notifications(), 2)
	})
}

func TestListForUserPagesNewestFirst(t *testing.T) {
	store := repositorytest.NewStore()
	svc := newTestService(store)
	ctx := context.Background()
	for _, target := range []string{"d1", "d2", "d3"} {
		_, err := svc.Create(ctx, CreateParams{RecipientUserID: "u1", TenantID: "t1", Type: models.NotificationDocumentUploaded, TargetID: target})
		require.NoError(t, err)
	}
	_, err := svc.Create(ctx, CreateParams{RecipientUserID: "u2", TenantID: "t1", Type: models.NotificationDocumentUploaded, TargetID: "d9"})
	require.NoError(t, err)

	page, err := svc.ListForUser(ctx, "u1", 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, 2, page.TotalPages)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "d3", page.Items[0].TargetID)
	assert.Equal(t, "d2", page.Items[1].TargetID)

	page, err = svc.ListForUser(ctx, "u1", 2, 2)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "d1", page.Items[0].TargetID)

	page, err = svc.ListForUser(ctx, "u1", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultPageSize, page.PageSize)
	assert.Equal(t, 1, page.Page)
}

func TestListForUserBoundsPaging(t *testing.T) {
	store := repositorytest.NewStore()
	svc := newTestService(store)
	ctx := context.Background()

	page, err := svc.ListForUser(ctx, "u1", 1, 100000)
	require.NoError(t, err)
	assert.Equal(t, models.MaxPageSize, page.PageSize)

	_, err = svc.ListForUser(ctx, "u1", math.MaxInt, 100000)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestUnreadCountsByCategory(t *testing.T) {
	store := repositorytest.NewStore()
	svc := newTestService(store)
	ctx := context.Background()
	seed := func(notifType models.NotificationType, n int) {
		for i := 0; i < n; i++ {
			_, err := svc.Create(ctx, CreateParams{RecipientUserID: "u1", TenantID: "t1", Type: notifType, TargetID: "x"})
			require.NoError(t, err)
		}
	}
	seed(models.NotificationDocumentUploaded, 5)
	seed(models.NotificationAnnouncementPosted, 3)
	seed(models.NotificationTicketCreated, 2)

	counts, err := svc.UnreadCountsByCategory(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, models.UnreadCounts{Documents: 5, Announcements: 3, Tickets: 2}, counts)

	require.NoError(t, svc.MarkAllReadByType(ctx, "u1", models.NotificationDocumentUploaded))
	counts, err = svc.UnreadCountsByCategory(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, models.UnreadCounts{Documents: 0, Announcements: 3, Tickets: 2}, counts)

	seed(models.NotificationRestaurantJoined, 1)
	counts, err = svc.UnreadCountsByCategory(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 4, counts.Announcements)
}

func TestMarkReadIsIdempotent(t *testing.T) {
	store := repositorytest.NewStore()
	svc := newTestService(store)
	ctx := context.Background()
	_, err := svc.Create(ctx, CreateParams{RecipientUserID: "u1", TenantID: "t1", Type: models.NotificationTicketCommented, TargetID: "tk1"})
	require.NoError(t, err)

	require.NoError(t, svc.MarkRead(ctx, "u1", models.NotificationTicketCommented, "tk1"))
	require.NoError(t, svc.MarkRead(ctx, "u1", models.NotificationTicketCommented, "tk1"))
	require.NoError(t, svc.MarkCategoryRead(ctx, "u1", models.CategoryTickets))
	require.NoError(t, svc.MarkCategoryRead(ctx, "u1", models.CategoryTickets))

	assert.ErrorIs(t, svc.MarkCategoryRead(ctx, "u1", "invoices"), ErrInvalidArgument)
	assert.ErrorIs(t, svc.MarkReadByTypes(ctx, "u1", []models.NotificationType{"nope"}), ErrInvalidArgument)

	counts, err := svc.UnreadCountsByCategory(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, counts.Tickets)
}

func TestMarkCategoryReadExpandsTypes(t *testing.T) {
	store := repositorytest.NewStore()
	svc := newTestService(store)
	ctx := context.Background()
	for _, nt := range []models.NotificationType{
		models.NotificationTicketCreated,
		models.NotificationTicketCommented,
		models.NotificationTicketStatusUpdated,
		models.NotificationDocumentUploaded,
	} {
		_, err := svc.Create(ctx, CreateParams{RecipientUserID: "u1", TenantID: "t1", Type: nt, TargetID: "x"})
		require.NoError(t, err)
	}

	require.NoError(t, svc.MarkCategoryRead(ctx, "u1", models.CategoryTickets))
	counts, err := svc.UnreadCountsByCategory(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, models.UnreadCounts{Documents: 1}, counts)
}

func TestCleanupManagerAnnouncements(t *testing.T) {
	store := repositorytest.NewStore()
	viewer := store.AddUser("t1", "v@example.com")
	manager := store.AddUser("t1", "m@example.com", models.RoleManager)
	otherManager := store.AddUser("t2", "m2@example.com", models.RoleAdmin)
	svc := newTestService(store)
	ctx := context.Background()

	for _, u := range []models.User{viewer, manager, otherManager} {
		for _, nt := range []models.NotificationType{
			models.NotificationAnnouncementPosted,
			models.NotificationRestaurantJoined,
			models.NotificationDocumentUploaded,
		} {
			_, err := svc.Create(ctx, CreateParams{RecipientUserID: u.ID, TenantID: u.TenantID, Type: nt, TargetID: "x"})
			require.NoError(t, err)
		}
	}

	deleted, err := svc.CleanupManagerAnnouncements(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	deleted, err = svc.CleanupManagerAnnouncements(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	remaining := store.Notifications()
	assert.Len(t, remaining, 5)
	for _, n := range remaining {
		if n.RecipientUserID != viewer.ID {
			assert.Equal(t, models.NotificationDocumentUploaded, n.Type)
		}
	}
}
