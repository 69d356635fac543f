package usersync

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"testing"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/systemsaholic/clerk-sync/internal/events"
	"github.com/systemsaholic/clerk-sync/internal/logging"
	"github.com/systemsaholic/clerk-sync/internal/models"
	"github.com/systemsaholic/clerk-sync/internal/repository"
)

type notifyCall struct {
	clerkID  string
	metadata map[string]any
}

type fakeNotifier struct {
	calls []notifyCall
	ok    bool
}

func (f *fakeNotifier) UpdateUserMetadata(ctx context.Context, clerkID string, metadata map[string]any) bool {
	f.calls = append(f.calls, notifyCall{clerkID: clerkID, metadata: metadata})
	return f.ok
}

type capturePublisher struct {
	events []events.SyncEvent
}

func (p *capturePublisher) Publish(ctx context.Context, event events.SyncEvent) error {
	p.events = append(p.events, event)
	return nil
}

func (p *capturePublisher) Close() {}

type testEnv struct {
	svc       *Service
	repo      *repository.InMemoryRepository
	notifier  *fakeNotifier
	publisher *capturePublisher
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	repo := repository.NewInMemoryRepository()
	notifier := &fakeNotifier{ok: true}
	publisher := &capturePublisher{}
	svc := NewService(repo, repo, StaticSettings{
		DefaultRole:    "subscriber",
		DeletionPolicy: PolicyDelete,
	}, notifier, publisher, logging.New(slog.LevelError, "text"))
	return &testEnv{svc: svc, repo: repo, notifier: notifier, publisher: publisher}
}

func userPayload(clerkID, email string) *models.EventPayload {
	data := &models.UserData{
		ID:        clerkID,
		FirstName: "Jordan",
		LastName:  "Doe",
		CreatedAt: 1700000000000,
		UpdatedAt: 1700000000000,
	}
	if email != "" {
		data.EmailAddresses = json.RawMessage(fmt.Sprintf(
			`[{"id":"idn_1","email_address":"%s"}]`, email))
	}
	return &models.EventPayload{Data: data, Object: "event", Type: models.EventUserCreated}
}

func TestHandleUserCreated(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	result, err := env.svc.Dispatch(ctx, models.EventUserCreated, userPayload("user_abc", "jdoe@example.com"))
	require.NoError(t, err)
	assert.Equal(t, "user created", result.Message)
	require.NotEmpty(t, result.UserID)

	user, err := env.repo.GetUserByClerkID(ctx, "user_abc")
	require.NoError(t, err)
	assert.Equal(t, result.UserID, user.ID)
	assert.Equal(t, "jdoe@example.com", user.Email)
	assert.Equal(t, "jdoe@example.com", user.Username, "username defaults to email")
	assert.Equal(t, "Jordan", user.FirstName)
	assert.Equal(t, "subscriber", user.Role)
	assert.Equal(t, "user_abc", user.Metadata.GetString("clerk_id"))

	// The stored credential is a real bcrypt hash that matches nothing
	// an attacker could know.
	require.NotEmpty(t, user.PasswordHash)
	assert.Error(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("")))

	// Fallback role was provisioned.
	role, err := env.repo.GetRole(ctx, "subscriber")
	require.NoError(t, err)
	assert.Equal(t, []string{"read", "edit_own", "delete_own"}, role.Capabilities)

	// Local reference pushed back to Clerk.
	require.Len(t, env.notifier.calls, 1)
	assert.Equal(t, "user_abc", env.notifier.calls[0].clerkID)
	assert.Equal(t, user.ID, env.notifier.calls[0].metadata["local_user_id"])

	require.Len(t, env.publisher.events, 1)
	assert.Equal(t, models.EventUserCreated, env.publisher.events[0].EventType)
	assert.Equal(t, "created", env.publisher.events[0].Action)
}

func TestHandleUserCreatedUsesPayloadUsername(t *testing.T) {
	env := newTestEnv(t)
	payload := userPayload("user_abc", "jdoe@example.com")
	payload.Data.Username = "jdoe"

	result, err := env.svc.Dispatch(context.Background(), models.EventUserCreated, payload)
	require.NoError(t, err)

	user, err := env.repo.GetUserByID(context.Background(), result.UserID)
	require.NoError(t, err)
	assert.Equal(t, "jdoe", user.Username)
}

func TestHandleUserCreatedLinksExistingEmail(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	existing := &models.User{
		ID:       "local-1",
		Username: "pre-existing",
		Email:    "jdoe@example.com",
		Role:     "editor",
	}
	require.NoError(t, env.repo.CreateUser(ctx, existing))

	result, err := env.svc.Dispatch(ctx, models.EventUserCreated, userPayload("user_abc", "jdoe@example.com"))
	require.NoError(t, err)
	assert.Equal(t, "local-1", result.UserID, "existing record is linked, not duplicated")
	assert.Equal(t, 1, env.repo.UserCount())

	user, err := env.repo.GetUserByID(ctx, "local-1")
	require.NoError(t, err)
	assert.Equal(t, "user_abc", user.ClerkID)
	assert.Equal(t, "editor", user.Role, "role of a linked user is untouched")
	assert.Equal(t, "user_abc", user.Metadata.GetString("clerk_id"))

	require.Len(t, env.publisher.events, 1)
	assert.Equal(t, "linked", env.publisher.events[0].Action)
}

func TestHandleUserCreatedIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	payload := userPayload("user_abc", "jdoe@example.com")

	first, err := env.svc.Dispatch(ctx, models.EventUserCreated, payload)
	require.NoError(t, err)

	second, err := env.svc.Dispatch(ctx, models.EventUserCreated, payload)
	require.NoError(t, err)

	assert.Equal(t, first.UserID, second.UserID)
	assert.Equal(t, 1, env.repo.UserCount())
}

func TestHandleUserCreatedWithoutEmail(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.Dispatch(context.Background(), models.EventUserCreated, userPayload("user_abc", ""))
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, 0, env.repo.UserCount())
	assert.Empty(t, env.publisher.events)
}

func TestHandleUserCreatedNotifierFailure(t *testing.T) {
	env := newTestEnv(t)
	env.notifier.ok = false

	result, err := env.svc.Dispatch(context.Background(), models.EventUserCreated, userPayload("user_abc", "jdoe@example.com"))
	require.NoError(t, err, "push-back failure never fails the sync")
	assert.NotEmpty(t, result.UserID)
	assert.Equal(t, 1, env.repo.UserCount())
}

func TestHandleUserUpdated(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	created, err := env.svc.Dispatch(ctx, models.EventUserCreated, userPayload("user_abc", "jdoe@example.com"))
	require.NoError(t, err)

	payload := userPayload("user_abc", "jordan@example.com")
	payload.Data.FirstName = "Jordy"
	payload.Data.UpdatedAt = 1700000005000

	result, err := env.svc.Dispatch(ctx, models.EventUserUpdated, payload)
	require.NoError(t, err)
	assert.Equal(t, "user updated", result.Message)
	assert.Equal(t, created.UserID, result.UserID)

	user, err := env.repo.GetUserByID(ctx, created.UserID)
	require.NoError(t, err)
	assert.Equal(t, "jordan@example.com", user.Email)
	assert.Equal(t, "Jordy", user.FirstName)
	assert.Equal(t, int64(1700000005000), user.Metadata.GetInt64("clerk_updated_at"))
}

func TestHandleUserUpdatedUnknownIdentity(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// A record with the same email exists but was never linked; updates
	// must not adopt it.
	require.NoError(t, env.repo.CreateUser(ctx, &models.User{
		ID:    "local-1",
		Email: "jdoe@example.com",
	}))

	_, err := env.svc.Dispatch(ctx, models.EventUserUpdated, userPayload("user_ghost", "jdoe@example.com"))
	assert.ErrorIs(t, err, ErrNotFound)

	user, err := env.repo.GetUserByID(ctx, "local-1")
	require.NoError(t, err)
	assert.Empty(t, user.ClerkID, "unlinked record stays untouched")
}

func TestHandleUserUpdatedEmailCollision(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.Dispatch(ctx, models.EventUserCreated, userPayload("user_a", "a@example.com"))
	require.NoError(t, err)
	_, err = env.svc.Dispatch(ctx, models.EventUserCreated, userPayload("user_b", "b@example.com"))
	require.NoError(t, err)

	// user_b tries to take user_a's email.
	_, err = env.svc.Dispatch(ctx, models.EventUserUpdated, userPayload("user_b", "a@example.com"))
	assert.ErrorIs(t, err, ErrEmailCollision)

	userB, err := env.repo.GetUserByClerkID(ctx, "user_b")
	require.NoError(t, err)
	assert.Equal(t, "b@example.com", userB.Email, "collision leaves the record unchanged")
}

func TestHandleUserDeleted(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	created, err := env.svc.Dispatch(ctx, models.EventUserCreated, userPayload("user_abc", "jdoe@example.com"))
	require.NoError(t, err)

	result, err := env.svc.Dispatch(ctx, models.EventUserDeleted, userPayload("user_abc", ""))
	require.NoError(t, err)
	assert.Equal(t, "user deleted", result.Message)
	assert.Equal(t, created.UserID, result.UserID)
	assert.Equal(t, PolicyDelete, result.Action)

	_, err = env.repo.GetUserByID(ctx, created.UserID)
	assert.ErrorIs(t, err, repository.ErrUserNotFound)

	last := env.publisher.events[len(env.publisher.events)-1]
	assert.Equal(t, models.EventUserDeleted, last.EventType)
}

func TestHandleUserDeletedReassignsContent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.repo.CreateUser(ctx, &models.User{
		ID: "archive", Email: "archive@example.com",
	}))

	svc := NewService(env.repo, env.repo, StaticSettings{
		DefaultRole:    "subscriber",
		DeletionPolicy: PolicyDelete,
		ReassignUserID: "archive",
	}, env.notifier, env.publisher, logging.New(slog.LevelError, "text"))

	created, err := svc.Dispatch(ctx, models.EventUserCreated, userPayload("user_abc", "jdoe@example.com"))
	require.NoError(t, err)

	_, err = env.repo.AddContent(ctx, created.UserID, "first post")
	require.NoError(t, err)
	_, err = env.repo.AddContent(ctx, created.UserID, "second post")
	require.NoError(t, err)

	_, err = svc.Dispatch(ctx, models.EventUserDeleted, userPayload("user_abc", ""))
	require.NoError(t, err)

	count, err := env.repo.CountContentByOwner(ctx, "archive")
	require.NoError(t, err)
	assert.Equal(t, 2, count, "content moves to the reassignment target")
}

func TestHandleUserDeletedUnlinkPolicy(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	svc := NewService(env.repo, env.repo, StaticSettings{
		DefaultRole:    "subscriber",
		DeletionPolicy: PolicyUnlink,
	}, env.notifier, env.publisher, logging.New(slog.LevelError, "text"))

	created, err := svc.Dispatch(ctx, models.EventUserCreated, userPayload("user_abc", "jdoe@example.com"))
	require.NoError(t, err)

	result, err := svc.Dispatch(ctx, models.EventUserDeleted, userPayload("user_abc", ""))
	require.NoError(t, err)
	assert.Equal(t, PolicyUnlink, result.Action)

	user, err := env.repo.GetUserByID(ctx, created.UserID)
	require.NoError(t, err, "unlink keeps the local record")
	assert.Empty(t, user.ClerkID)
}

func TestHandleUserDeletedUnknownIdentity(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.Dispatch(context.Background(), models.EventUserDeleted, userPayload("user_ghost", ""))
	assert.ErrorIs(t, err, ErrNotFound)
}

// mismatchStore wraps the in-memory store and reports a different clerk_id
// on the primary-key re-read, simulating a concurrent relink between the
// lookup and the destructive step.
type mismatchStore struct {
	*repository.InMemoryRepository
}

func (s *mismatchStore) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	user, err := s.InMemoryRepository.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	user.ClerkID = "user_relinked"
	return user, nil
}

func TestHandleUserDeletedIdentityMismatch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	created, err := env.svc.Dispatch(ctx, models.EventUserCreated, userPayload("user_abc", "jdoe@example.com"))
	require.NoError(t, err)

	svc := NewService(&mismatchStore{env.repo}, env.repo, StaticSettings{
		DefaultRole:    "subscriber",
		DeletionPolicy: PolicyDelete,
	}, env.notifier, env.publisher, logging.New(slog.LevelError, "text"))

	_, err = svc.Dispatch(ctx, models.EventUserDeleted, userPayload("user_abc", ""))
	assert.ErrorIs(t, err, ErrIdentityMismatch)

	_, err = env.repo.GetUserByID(ctx, created.UserID)
	assert.NoError(t, err, "nothing destructive happened")
}

func TestDispatchUnsupportedEvent(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.Dispatch(context.Background(), "organization.created", userPayload("org_1", ""))
	assert.ErrorIs(t, err, ErrUnsupportedEvent)

	// Shape of an unhandled event does not matter.
	_, err = env.svc.Dispatch(context.Background(), "session.removed", nil)
	assert.ErrorIs(t, err, ErrUnsupportedEvent)
}

func TestDispatchMissingData(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.Dispatch(ctx, models.EventUserCreated, nil)
	assert.ErrorIs(t, err, ErrMalformedRequest)

	_, err = env.svc.Dispatch(ctx, models.EventUserCreated, &models.EventPayload{})
	assert.ErrorIs(t, err, ErrMalformedRequest)

	_, err = env.svc.Dispatch(ctx, models.EventUserCreated, &models.EventPayload{Data: &models.UserData{}})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestResolveEventType(t *testing.T) {
	payload := &models.EventPayload{Type: models.EventUserUpdated}

	assert.Equal(t, models.EventUserCreated, ResolveEventType(models.EventUserCreated, payload),
		"header wins over payload")
	assert.Equal(t, models.EventUserUpdated, ResolveEventType("", payload))
	assert.Equal(t, "", ResolveEventType("", nil))
}

func TestSyncManyUsers(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	gofakeit.Seed(11)

	for i := 0; i < 25; i++ {
		clerkID := fmt.Sprintf("user_%03d", i)
		email := fmt.Sprintf("%s.%03d@example.com", gofakeit.Username(), i)
		_, err := env.svc.Dispatch(ctx, models.EventUserCreated, userPayload(clerkID, email))
		require.NoError(t, err)
	}
	assert.Equal(t, 25, env.repo.UserCount())

	for i := 0; i < 25; i++ {
		clerkID := fmt.Sprintf("user_%03d", i)
		user, err := env.repo.GetUserByClerkID(ctx, clerkID)
		require.NoError(t, err)
		assert.Equal(t, clerkID, user.Metadata.GetString("clerk_id"))
	}
}
