// Package repositorytest provides in-memory implementations of the repository
// interfaces. They keep the ordering and uniqueness guarantees of the Postgres
// schema so services and handlers can be tested without a database.
package repositorytest

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stanstork/franchise-hub/internal/models"
	"github.com/stanstork/franchise-hub/internal/repository"
	"golang.org/x/crypto/bcrypt"
)

// Store backs all fakes. Zero value is not usable; call NewStore.
type Store struct {
	mu            sync.Mutex
	clock         time.Time
	users         map[string]models.User
	notifications []models.Notification
	views         []models.View
	subscriptions []models.PushSubscription

	// DirectoryErr, when set, is returned by every audience lookup.
	DirectoryErr error
	// CreateErrFor makes notification inserts fail for the listed recipients.
	CreateErrFor map[string]error
}

func NewStore() *Store {
	return &Store{
		clock:        time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
		users:        make(map[string]models.User),
		CreateErrFor: make(map[string]error),
	}
}

// tick returns a strictly increasing timestamp so newest-first ordering is stable.
func (s *Store) tick() time.Time {
	s.clock = s.clock.Add(time.Millisecond)
	return s.clock
}

// AddUser seeds an active user and returns it.
func (s *Store) AddUser(tenantID, email string, roles ...models.UserRole) models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(roles) == 0 {
		roles = []models.UserRole{models.RoleViewer}
	}
	user := models.User{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		Email:     strings.ToLower(email),
		FirstName: strings.Split(email, "@")[0],
		IsActive:  true,
		Roles:     models.EnsureDefaultRole(models.NormalizeRoles(roles)),
	}
	s.users[user.ID] = user
	return user
}

// Deactivate flags a seeded user inactive.
func (s *Store) Deactivate(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[userID]; ok {
		u.IsActive = false
		s.users[userID] = u
	}
}

// Notifications returns a snapshot of every stored notification in insertion order.
func (s *Store) Notifications() []models.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Notification(nil), s.notifications...)
}

// Subscriptions returns a snapshot of every stored push subscription.
func (s *Store) Subscriptions() []models.PushSubscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.PushSubscription(nil), s.subscriptions...)
}

func (s *Store) UserRepository() repository.UserRepository {
	return &userRepo{s: s}
}

func (s *Store) NotificationRepository() repository.NotificationRepository {
	return &notificationRepo{s: s}
}

func (s *Store) ViewRepository() repository.ViewRepository {
	return &viewRepo{s: s}
}

func (s *Store) PushSubscriptionRepository() repository.PushSubscriptionRepository {
	return &pushRepo{s: s}
}

type userRepo struct{ s *Store }

func (r *userRepo) CreateUser(_ context.Context, params repository.CreateUserParams) (models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(params.Password), bcrypt.MinCost)
	if err != nil {
		return models.User{}, err
	}
	user := r.s.AddUser(params.TenantID, params.Email, params.Roles...)
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	user.FirstName = params.FirstName
	user.LastName = params.LastName
	user.RestaurantID = params.RestaurantID
	user.PasswordHash = string(hash)
	r.s.users[user.ID] = user
	return user, nil
}

func (r *userRepo) AuthenticateUser(_ context.Context, email, password string) (models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.Email != strings.ToLower(strings.TrimSpace(email)) {
			continue
		}
		if !u.IsActive || bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
			return models.User{}, repository.ErrInvalidCredentials
		}
		return u, nil
	}
	return models.User{}, repository.ErrInvalidCredentials
}

func (r *userRepo) GetUserByID(_ context.Context, userID string) (models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[userID]
	if !ok {
		return models.User{}, repository.ErrNotFound
	}
	return u, nil
}

func (r *userRepo) ListByAudience(_ context.Context, tenantID string, audience models.Audience) ([]models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.DirectoryErr != nil {
		return nil, r.s.DirectoryErr
	}
	var users []models.User
	for _, u := range r.s.users {
		if u.TenantID != tenantID || !u.IsActive {
			continue
		}
		if audience.Matches(u.Roles) {
			users = append(users, u)
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Email < users[j].Email })
	return users, nil
}

type notificationRepo struct{ s *Store }

func (r *notificationRepo) Create(_ context.Context, params repository.CreateNotificationParams) (models.Notification, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.CreateErrFor[params.RecipientUserID]; err != nil {
		return models.Notification{}, err
	}
	notif := models.Notification{
		ID:              uuid.NewString(),
		RecipientUserID: params.RecipientUserID,
		TenantID:        params.TenantID,
		Type:            params.Type,
		TargetID:        params.TargetID,
		Message:         params.Message,
		CreatedAt:       r.s.tick(),
	}
	r.s.notifications = append(r.s.notifications, notif)
	return notif, nil
}

func (r *notificationRepo) ListForUser(_ context.Context, userID string, limit, offset int) ([]models.Notification, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var mine []models.Notification
	for _, n := range r.s.notifications {
		if n.RecipientUserID == userID {
			mine = append(mine, n)
		}
	}
	sort.SliceStable(mine, func(i, j int) bool { return mine[i].CreatedAt.After(mine[j].CreatedAt) })
	total := len(mine)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return mine[offset:end], total, nil
}

func (r *notificationRepo) MarkRead(_ context.Context, userID string, notifType models.NotificationType, targetID string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for i := range r.s.notifications {
		row := &r.s.notifications[i]
		if row.RecipientUserID == userID && row.Type == notifType && row.TargetID == targetID && !row.IsRead {
			row.IsRead = true
			n++
		}
	}
	return n, nil
}

func (r *notificationRepo) MarkReadByTypes(_ context.Context, userID string, types []models.NotificationType) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for i := range r.s.notifications {
		row := &r.s.notifications[i]
		if row.RecipientUserID == userID && !row.IsRead && containsType(types, row.Type) {
			row.IsRead = true
			n++
		}
	}
	return n, nil
}

func (r *notificationRepo) UnreadCountsByType(_ context.Context, userID string) (map[models.NotificationType]int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	counts := make(map[models.NotificationType]int)
	for _, row := range r.s.notifications {
		if row.RecipientUserID == userID && !row.IsRead {
			counts[row.Type]++
		}
	}
	return counts, nil
}

func (r *notificationRepo) DeleteForRolesByTypes(_ context.Context, params repository.CleanupParams) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var (
		kept    []models.Notification
		deleted int64
	)
	for _, row := range r.s.notifications {
		user, ok := r.s.users[row.RecipientUserID]
		match := ok &&
			containsType(params.Types, row.Type) &&
			rolesOverlap(user.Roles, params.Roles) &&
			(params.TenantID == "" || row.TenantID == params.TenantID)
		if match {
			deleted++
			continue
		}
		kept = append(kept, row)
	}
	r.s.notifications = kept
	return deleted, nil
}

type viewRepo struct{ s *Store }

func (r *viewRepo) Find(_ context.Context, userID string, targetType models.TargetType, targetID string) (models.View, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if v, ok := r.s.findView(userID, targetType, targetID); ok {
		return v, nil
	}
	return models.View{}, repository.ErrNotFound
}

func (r *viewRepo) Insert(_ context.Context, userID string, targetType models.TargetType, targetID string) (models.View, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.findView(userID, targetType, targetID); ok {
		return models.View{}, repository.ErrNotFound
	}
	view := models.View{
		ID:         uuid.NewString(),
		UserID:     userID,
		TargetType: targetType,
		TargetID:   targetID,
		ViewedAt:   r.s.tick(),
	}
	r.s.views = append(r.s.views, view)
	return view, nil
}

func (r *viewRepo) ListViewers(_ context.Context, params repository.ListViewersParams) ([]models.Viewer, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var viewers []models.Viewer
	for _, v := range r.s.views {
		if v.TargetType != params.TargetType || v.TargetID != params.TargetID {
			continue
		}
		user, ok := r.s.users[v.UserID]
		if !ok || user.TenantID != params.TenantID {
			continue
		}
		viewers = append(viewers, models.Viewer{View: v, User: user.Summary()})
	}
	sort.SliceStable(viewers, func(i, j int) bool { return viewers[i].ViewedAt.After(viewers[j].ViewedAt) })
	total := len(viewers)
	if params.Offset >= total {
		return nil, total, nil
	}
	end := params.Offset + params.Limit
	if end > total {
		end = total
	}
	return viewers[params.Offset:end], total, nil
}

func (s *Store) findView(userID string, targetType models.TargetType, targetID string) (models.View, bool) {
	for _, v := range s.views {
		if v.UserID == userID && v.TargetType == targetType && v.TargetID == targetID {
			return v, true
		}
	}
	return models.View{}, false
}

type pushRepo struct{ s *Store }

func (r *pushRepo) Upsert(_ context.Context, params repository.UpsertPushSubscriptionParams) (models.PushSubscription, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := r.s.tick()
	for i := range r.s.subscriptions {
		sub := &r.s.subscriptions[i]
		if sub.UserID != params.UserID || sub.Endpoint != params.Endpoint {
			continue
		}
		sub.P256dhKey = params.P256dhKey
		sub.AuthKey = params.AuthKey
		sub.ExpirationTime = params.ExpirationTime
		if params.UserAgent != nil {
			sub.UserAgent = params.UserAgent
		}
		if params.Platform != nil {
			sub.Platform = params.Platform
		}
		sub.UpdatedAt = now
		return *sub, nil
	}
	sub := models.PushSubscription{
		ID:             uuid.NewString(),
		UserID:         params.UserID,
		Endpoint:       params.Endpoint,
		P256dhKey:      params.P256dhKey,
		AuthKey:        params.AuthKey,
		ExpirationTime: params.ExpirationTime,
		UserAgent:      params.UserAgent,
		Platform:       params.Platform,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	r.s.subscriptions = append(r.s.subscriptions, sub)
	return sub, nil
}

func (r *pushRepo) ListByUser(_ context.Context, userID string) ([]models.PushSubscription, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var subs []models.PushSubscription
	for _, sub := range r.s.subscriptions {
		if sub.UserID == userID {
			subs = append(subs, sub)
		}
	}
	sort.SliceStable(subs, func(i, j int) bool { return subs[i].UpdatedAt.After(subs[j].UpdatedAt) })
	return subs, nil
}

func (r *pushRepo) DeleteByUser(_ context.Context, userID string) (int64, error) {
	return r.deleteWhere(func(sub models.PushSubscription) bool { return sub.UserID == userID }), nil
}

func (r *pushRepo) DeleteByEndpoint(_ context.Context, userID, endpoint string) (int64, error) {
	return r.deleteWhere(func(sub models.PushSubscription) bool {
		return sub.UserID == userID && sub.Endpoint == endpoint
	}), nil
}

func (r *pushRepo) deleteWhere(match func(models.PushSubscription) bool) int64 {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var (
		kept    []models.PushSubscription
		deleted int64
	)
	for _, sub := range r.s.subscriptions {
		if match(sub) {
			deleted++
			continue
		}
		kept = append(kept, sub)
	}
	r.s.subscriptions = kept
	return deleted
}

func containsType(types []models.NotificationType, t models.NotificationType) bool {
	for _, candidate := range types {
		if candidate == t {
			return true
		}
	}
	return false
}

func rolesOverlap(a, b []models.UserRole) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}
