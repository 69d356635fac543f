package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/systemsaholic/clerk-sync/internal/models"
)

// InMemoryRepository implements IdentityStore and RoleRegistry for
// development and tests.
type InMemoryRepository struct {
	users        map[string]*models.User
	usersByEmail map[string]*models.User
	roles        map[string]*models.Role
	content      []*models.ContentItem
	mu           sync.RWMutex
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		users:        make(map[string]*models.User),
		usersByEmail: make(map[string]*models.User),
		roles:        make(map[string]*models.Role),
	}
}

func (r *InMemoryRepository) CreateUser(ctx context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.usersByEmail[user.Email]; exists {
		return ErrEmailExists
	}

	u := *user
	r.users[u.ID] = &u
	r.usersByEmail[u.Email] = &u
	return nil
}

func (r *InMemoryRepository) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, exists := r.users[id]
	if !exists {
		return nil, ErrUserNotFound
	}
	u := *user
	return &u, nil
}

func (r *InMemoryRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, exists := r.usersByEmail[email]
	if !exists {
		return nil, ErrUserNotFound
	}
	u := *user
	return &u, nil
}

func (r *InMemoryRepository) GetUserByClerkID(ctx context.Context, clerkID string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, user := range r.users {
		if user.ClerkID != "" && user.ClerkID == clerkID {
			u := *user
			return &u, nil
		}
	}
	return nil, ErrUserNotFound
}

func (r *InMemoryRepository) UpdateUser(ctx context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, exists := r.users[user.ID]
	if !exists {
		return ErrUserNotFound
	}

	if other, ok := r.usersByEmail[user.Email]; ok && other.ID != user.ID {
		return ErrEmailExists
	}

	delete(r.usersByEmail, existing.Email)
	u := *user
	r.users[u.ID] = &u
	r.usersByEmail[u.Email] = &u
	return nil
}

func (r *InMemoryRepository) UnlinkUser(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, exists := r.users[id]
	if !exists {
		return ErrUserNotFound
	}
	user.ClerkID = ""
	return nil
}

func (r *InMemoryRepository) DeleteUser(ctx context.Context, id string, reassignTo string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, exists := r.users[id]
	if !exists {
		return ErrUserNotFound
	}

	for _, item := range r.content {
		if item.OwnerID == id {
			item.OwnerID = reassignTo
		}
	}

	delete(r.usersByEmail, user.Email)
	delete(r.users, id)
	return nil
}

func (r *InMemoryRepository) GetRole(ctx context.Context, name string) (*models.Role, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	role, exists := r.roles[name]
	if !exists {
		return nil, ErrRoleNotFound
	}
	ro := *role
	return &ro, nil
}

func (r *InMemoryRepository) CreateRole(ctx context.Context, role *models.Role) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ro := *role
	r.roles[ro.Name] = &ro
	return nil
}

// AddContent records a content item owned by ownerID and returns its ID.
// Used by tests exercising the delete reassignment path.
func (r *InMemoryRepository) AddContent(ctx context.Context, ownerID, title string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, _ := uuid.NewV7()
	r.content = append(r.content, &models.ContentItem{
		ID:        id.String(),
		OwnerID:   ownerID,
		Title:     title,
		CreatedAt: time.Now(),
	})
	return id.String(), nil
}

// CountContentByOwner returns the number of content items owned by ownerID.
func (r *InMemoryRepository) CountContentByOwner(ctx context.Context, ownerID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, item := range r.content {
		if item.OwnerID == ownerID {
			count++
		}
	}
	return count, nil
}

// UserCount returns the number of user records in the store.
func (r *InMemoryRepository) UserCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users)
}
