// Package usersync reconciles identity events from Clerk into the local
// user store. Every handler is idempotent: at-least-once delivery means
// any event can arrive twice, and a replayed event must converge on the
// same local state.
package usersync

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/systemsaholic/clerk-sync/internal/events"
	"github.com/systemsaholic/clerk-sync/internal/logging"
	"github.com/systemsaholic/clerk-sync/internal/metrics"
	"github.com/systemsaholic/clerk-sync/internal/models"
	"github.com/systemsaholic/clerk-sync/internal/repository"
)

// Deletion policies for user.deleted events.
const (
	PolicyDelete = "delete"
	PolicyUnlink = "unlink"
)

// localUserIDKey is the metadata key pushed back onto the Clerk user so
// the external identity carries a reference to its local record.
const localUserIDKey = "local_user_id"

// Settings are the sync knobs read per event, so an operator change takes
// effect without a restart when the provider is dynamic.
type Settings struct {
	DefaultRole    string
	DeletionPolicy string
	ReassignUserID string
}

// SettingsProvider supplies the current sync settings.
type SettingsProvider interface {
	Current() Settings
}

// StaticSettings is a fixed-value SettingsProvider.
type StaticSettings Settings

func (s StaticSettings) Current() Settings { return Settings(s) }

// Notifier pushes the local record reference back to the external
// identity provider. Implementations report success as a bool and never
// return an error: push-back is best effort and must not roll back a
// committed local mutation.
type Notifier interface {
	UpdateUserMetadata(ctx context.Context, clerkID string, metadata map[string]any) bool
}

// Result is the outcome of a successfully applied event.
type Result struct {
	Message string `json:"message"`
	UserID  string `json:"user_id"`
	Action  string `json:"action,omitempty"`
}

// Service applies Clerk identity events to the local store.
type Service struct {
	repo      repository.IdentityStore
	roles     repository.RoleRegistry
	settings  SettingsProvider
	notifier  Notifier
	publisher events.Publisher
	logger    *logging.Logger
}

func NewService(
	repo repository.IdentityStore,
	roles repository.RoleRegistry,
	settings SettingsProvider,
	notifier Notifier,
	publisher events.Publisher,
	logger *logging.Logger,
) *Service {
	return &Service{
		repo:      repo,
		roles:     roles,
		settings:  settings,
		notifier:  notifier,
		publisher: publisher,
		logger:    logger.With(logging.Service("usersync")),
	}
}

// ResolveEventType returns the event type for a delivery: the transport
// header when present, otherwise the type field inside the payload.
func ResolveEventType(headerType string, payload *models.EventPayload) string {
	if headerType != "" {
		return headerType
	}
	if payload != nil {
		return payload.Type
	}
	return ""
}

// Dispatch routes an event to its handler. Unsupported event types return
// ErrUnsupportedEvent, which callers acknowledge rather than reject so
// Clerk does not retry events this service never handles.
func (s *Service) Dispatch(ctx context.Context, eventType string, payload *models.EventPayload) (*Result, error) {
	start := time.Now()
	defer func() {
		metrics.SyncDuration.Observe(time.Since(start).Seconds())
	}()

	// Unsupported types are decided before payload validation: an event
	// this service does not handle should be acknowledged regardless of
	// its shape.
	switch eventType {
	case models.EventUserCreated, models.EventUserUpdated, models.EventUserDeleted:
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedEvent, eventType)
	}

	if payload == nil || payload.Data == nil {
		return nil, ErrMalformedRequest
	}
	if payload.Data.ID == "" {
		return nil, ErrValidation
	}

	if eventType == models.EventUserUpdated {
		return s.handleUserUpdated(ctx, payload.Data)
	}
	if eventType == models.EventUserDeleted {
		return s.handleUserDeleted(ctx, payload.Data)
	}
	return s.handleUserCreated(ctx, payload.Data)
}

// handleUserCreated provisions a local user for a new Clerk identity. If
// a local record already holds the payload email, the identity is linked
// to it instead; a replayed create therefore converges on the linked
// record rather than failing.
func (s *Service) handleUserCreated(ctx context.Context, data *models.UserData) (*Result, error) {
	email := data.PrimaryEmail()
	if email == "" {
		return nil, fmt.Errorf("%w: no email address", ErrValidation)
	}

	existing, err := s.repo.GetUserByEmail(ctx, email)
	if err == nil {
		return s.linkUser(ctx, existing, data)
	}
	if !errors.Is(err, repository.ErrUserNotFound) {
		return nil, fmt.Errorf("failed to look up user by email: %w", err)
	}

	settings := s.settings.Current()
	if err := s.ensureRole(ctx, settings.DefaultRole); err != nil {
		return nil, err
	}

	hash, err := unusableCredential()
	if err != nil {
		return nil, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate user ID: %w", err)
	}

	username := data.Username
	if username == "" {
		username = email
	}

	now := time.Now()
	user := &models.User{
		ID:           id.String(),
		ClerkID:      data.ID,
		Username:     username,
		Email:        email,
		FirstName:    data.FirstName,
		LastName:     data.LastName,
		Role:         settings.DefaultRole,
		PasswordHash: hash,
		Metadata:     MapMetadata(data),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.repo.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			// Lost a race with a concurrent delivery; link to whoever won.
			winner, lookupErr := s.repo.GetUserByEmail(ctx, email)
			if lookupErr != nil {
				return nil, fmt.Errorf("%w: %s", ErrEmailCollision, email)
			}
			return s.linkUser(ctx, winner, data)
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.logger.InfoContext(ctx, "User created",
		logging.UserID(user.ID), logging.ClerkID(data.ID), logging.Email(email))

	s.notify(ctx, data.ID, user.ID)
	s.publish(ctx, models.EventUserCreated, user.ID, data.ID, "created")

	return &Result{Message: "user created", UserID: user.ID}, nil
}

// linkUser attaches a Clerk identity to an existing local record that
// shares its email, syncing profile fields and metadata.
func (s *Service) linkUser(ctx context.Context, user *models.User, data *models.UserData) (*Result, error) {
	user.ClerkID = data.ID
	applyProfile(user, data)

	if err := s.repo.UpdateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return nil, fmt.Errorf("%w: %s", ErrEmailCollision, user.Email)
		}
		return nil, fmt.Errorf("failed to link user: %w", err)
	}

	s.logger.InfoContext(ctx, "User linked to existing record",
		logging.UserID(user.ID), logging.ClerkID(data.ID), logging.Email(user.Email))

	s.notify(ctx, data.ID, user.ID)
	s.publish(ctx, models.EventUserCreated, user.ID, data.ID, "linked")

	return &Result{Message: "user created", UserID: user.ID}, nil
}

// handleUserUpdated syncs profile fields and metadata onto the linked
// local record. Only the clerk_id association locates the record; email
// is never used for lookup here, so an update for an unknown identity is
// a hard miss.
func (s *Service) handleUserUpdated(ctx context.Context, data *models.UserData) (*Result, error) {
	user, err := s.repo.GetUserByClerkID(ctx, data.ID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, fmt.Errorf("%w: clerk id %s", ErrNotFound, data.ID)
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if email := data.PrimaryEmail(); email != "" && email != user.Email {
		other, lookupErr := s.repo.GetUserByEmail(ctx, email)
		if lookupErr == nil && other.ID != user.ID {
			return nil, fmt.Errorf("%w: %s", ErrEmailCollision, email)
		}
		if lookupErr != nil && !errors.Is(lookupErr, repository.ErrUserNotFound) {
			return nil, fmt.Errorf("failed to look up user by email: %w", lookupErr)
		}
		user.Email = email
	}

	applyProfile(user, data)

	if err := s.repo.UpdateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return nil, fmt.Errorf("%w: %s", ErrEmailCollision, user.Email)
		}
		return nil, fmt.Errorf("failed to update user: %w", err)
	}

	s.logger.InfoContext(ctx, "User updated",
		logging.UserID(user.ID), logging.ClerkID(data.ID))

	s.notify(ctx, data.ID, user.ID)
	s.publish(ctx, models.EventUserUpdated, user.ID, data.ID, "updated")

	return &Result{Message: "user updated", UserID: user.ID}, nil
}

// handleUserDeleted removes or unlinks the local record per the deletion
// policy. The record is re-read by primary key and its stored clerk_id
// compared against the event before anything destructive happens; a
// mismatch means the association changed underneath us.
func (s *Service) handleUserDeleted(ctx context.Context, data *models.UserData) (*Result, error) {
	user, err := s.repo.GetUserByClerkID(ctx, data.ID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, fmt.Errorf("%w: clerk id %s", ErrNotFound, data.ID)
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	fresh, err := s.repo.GetUserByID(ctx, user.ID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, fmt.Errorf("%w: clerk id %s", ErrNotFound, data.ID)
		}
		return nil, fmt.Errorf("failed to re-read user: %w", err)
	}
	if fresh.ClerkID != data.ID {
		return nil, fmt.Errorf("%w: user %s now linked to %q", ErrIdentityMismatch, fresh.ID, fresh.ClerkID)
	}

	// The response carries the policy that was applied.
	settings := s.settings.Current()
	action := PolicyDelete

	switch settings.DeletionPolicy {
	case PolicyUnlink:
		action = PolicyUnlink
		if err := s.repo.UnlinkUser(ctx, fresh.ID); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDeletionFailed, err)
		}
	default:
		if err := s.repo.DeleteUser(ctx, fresh.ID, settings.ReassignUserID); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDeletionFailed, err)
		}
	}

	s.logger.InfoContext(ctx, "User removed",
		logging.UserID(fresh.ID), logging.ClerkID(data.ID),
		slog.String("action", action))

	s.publish(ctx, models.EventUserDeleted, fresh.ID, data.ID, action)

	return &Result{Message: "user deleted", UserID: fresh.ID, Action: action}, nil
}

// applyProfile overwrites the syncable profile fields from the payload.
// Metadata is replaced wholesale; a field cleared upstream disappears
// locally on the next event.
func applyProfile(user *models.User, data *models.UserData) {
	if data.Username != "" {
		user.Username = data.Username
	}
	user.FirstName = data.FirstName
	user.LastName = data.LastName
	user.Metadata = MapMetadata(data)
	user.UpdatedAt = time.Now()
}

// ensureRole makes sure the default role exists, creating a minimal
// fallback when the registry has never seen it.
func (s *Service) ensureRole(ctx context.Context, name string) error {
	_, err := s.roles.GetRole(ctx, name)
	if err == nil {
		return nil
	}
	if !errors.Is(err, repository.ErrRoleNotFound) {
		return fmt.Errorf("failed to look up role %s: %w", name, err)
	}

	role := &models.Role{
		Name:         name,
		DisplayName:  name,
		Capabilities: []string{"read", "edit_own", "delete_own"},
	}
	if err := s.roles.CreateRole(ctx, role); err != nil {
		return fmt.Errorf("failed to create role %s: %w", name, err)
	}

	s.logger.InfoContext(ctx, "Created fallback role", slog.String("role", name))
	return nil
}

// notify pushes the local user ID back onto the Clerk identity. Failures
// are logged by the notifier and never affect the sync outcome.
func (s *Service) notify(ctx context.Context, clerkID, userID string) {
	if s.notifier == nil {
		return
	}
	if !s.notifier.UpdateUserMetadata(ctx, clerkID, map[string]any{localUserIDKey: userID}) {
		s.logger.WarnContext(ctx, "Metadata push-back did not complete",
			logging.ClerkID(clerkID), logging.UserID(userID))
	}
}

func (s *Service) publish(ctx context.Context, eventType, userID, clerkID, action string) {
	if s.publisher == nil {
		return
	}
	event := events.SyncEvent{
		EventType:  eventType,
		UserID:     userID,
		ClerkID:    clerkID,
		Action:     action,
		OccurredAt: time.Now().UTC(),
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		metrics.PublishFailures.Inc()
		s.logger.WarnContext(ctx, "Failed to publish sync event",
			logging.EventType(eventType), logging.Error(err))
	}
}

// unusableCredential returns a bcrypt hash of random bytes. Synced users
// authenticate through the identity provider; the local credential only
// exists to satisfy the schema and can never be guessed or used.
func unusableCredential() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to generate credential: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(hex.EncodeToString(raw)), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash credential: %w", err)
	}
	return string(hash), nil
}
