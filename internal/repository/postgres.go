package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/systemsaholic/clerk-sync/internal/models"
)

// PostgresRepository implements IdentityStore and RoleRegistry backed by
// PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(ctx context.Context, connString string) (*PostgresRepository, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	config.MaxConns = 25
	config.MinConns = 5
	config.MaxConnLifetime = 5 * time.Minute
	config.MaxConnIdleTime = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresRepository{pool: pool}, nil
}

func (r *PostgresRepository) Close() {
	r.pool.Close()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (r *PostgresRepository) CreateUser(ctx context.Context, user *models.User) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	meta, err := json.Marshal(user.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
		INSERT INTO users (id, clerk_id, username, email, first_name, last_name, role, password_hash, metadata, created_at, updated_at)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err = r.pool.Exec(ctx, query,
		user.ID, user.ClerkID, user.Username, user.Email,
		user.FirstName, user.LastName, user.Role, user.PasswordHash,
		meta, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrEmailExists
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

const userColumns = `id, COALESCE(clerk_id, ''), username, email, first_name, last_name, role, password_hash, metadata, created_at, updated_at`

func (r *PostgresRepository) scanUser(row pgx.Row) (*models.User, error) {
	var user models.User
	var meta []byte
	err := row.Scan(
		&user.ID, &user.ClerkID, &user.Username, &user.Email,
		&user.FirstName, &user.LastName, &user.Role, &user.PasswordHash,
		&meta, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &user.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	return &user, nil
}

func (r *PostgresRepository) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.scanUser(r.pool.QueryRow(ctx, query, id))
}

func (r *PostgresRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return r.scanUser(r.pool.QueryRow(ctx, query, email))
}

func (r *PostgresRepository) GetUserByClerkID(ctx context.Context, clerkID string) (*models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	// clerk_id has no unique constraint; take the oldest match so repeat
	// deliveries resolve to a stable record.
	query := `SELECT ` + userColumns + ` FROM users WHERE clerk_id = $1 ORDER BY created_at LIMIT 1`
	return r.scanUser(r.pool.QueryRow(ctx, query, clerkID))
}

func (r *PostgresRepository) UpdateUser(ctx context.Context, user *models.User) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	meta, err := json.Marshal(user.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
		UPDATE users
		SET clerk_id = NULLIF($2, ''), username = $3, email = $4, first_name = $5,
		    last_name = $6, role = $7, metadata = $8, updated_at = $9
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query,
		user.ID, user.ClerkID, user.Username, user.Email,
		user.FirstName, user.LastName, user.Role, meta, user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrEmailExists
		}
		return fmt.Errorf("failed to update user: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}

	return nil
}

func (r *PostgresRepository) UnlinkUser(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	result, err := r.pool.Exec(ctx, `UPDATE users SET clerk_id = NULL WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to unlink user: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}

	return nil
}

func (r *PostgresRepository) DeleteUser(ctx context.Context, id string, reassignTo string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if reassignTo != "" {
		if _, err := tx.Exec(ctx, `UPDATE content SET owner_id = $2 WHERE owner_id = $1`, id, reassignTo); err != nil {
			return fmt.Errorf("failed to reassign content: %w", err)
		}
	} else {
		if _, err := tx.Exec(ctx, `UPDATE content SET owner_id = NULL WHERE owner_id = $1`, id); err != nil {
			return fmt.Errorf("failed to orphan content: %w", err)
		}
	}

	result, err := tx.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit delete: %w", err)
	}

	return nil
}

func (r *PostgresRepository) GetRole(ctx context.Context, name string) (*models.Role, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	query := `SELECT name, display_name, capabilities FROM roles WHERE name = $1`

	var role models.Role
	err := r.pool.QueryRow(ctx, query, name).Scan(&role.Name, &role.DisplayName, &role.Capabilities)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRoleNotFound
		}
		return nil, fmt.Errorf("failed to get role: %w", err)
	}

	return &role, nil
}

func (r *PostgresRepository) CreateRole(ctx context.Context, role *models.Role) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	query := `
		INSERT INTO roles (name, display_name, capabilities)
		VALUES ($1, $2, $3)
		ON CONFLICT (name) DO NOTHING
	`

	if _, err := r.pool.Exec(ctx, query, role.Name, role.DisplayName, role.Capabilities); err != nil {
		return fmt.Errorf("failed to create role: %w", err)
	}

	return nil
}

// AddContent records a content item owned by ownerID and returns its ID.
func (r *PostgresRepository) AddContent(ctx context.Context, ownerID, title string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var id string
	query := `
		INSERT INTO content (owner_id, title)
		VALUES ($1, $2)
		RETURNING id
	`
	if err := r.pool.QueryRow(ctx, query, ownerID, title).Scan(&id); err != nil {
		return "", fmt.Errorf("failed to add content: %w", err)
	}

	return id, nil
}

// CountContentByOwner returns the number of content items owned by ownerID.
func (r *PostgresRepository) CountContentByOwner(ctx context.Context, ownerID string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM content WHERE owner_id = $1`, ownerID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count content: %w", err)
	}

	return count, nil
}
