package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/filevault/internal/database"
	"github.com/filevault/internal/models"
)

var userColumns = []string{"id", "name", "email", "password_hash", "created_at", "updated_at"}

type UserRepository struct {
	db database.Runner
}

func NewUserRepository(db database.Runner) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts a user. A taken email yields ErrDuplicate.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	stmt := database.NewInsertBuilder("users").
		Columns(userColumns...).
		Values(user.ID, user.Name, user.Email, user.PasswordHash, user.CreatedAt, user.UpdatedAt)

	if _, err := r.db.Exec(ctx, stmt); err != nil {
		if database.IsUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	stmt := database.NewSelectBuilder("users", userColumns...).Where("email = ?", email)
	return r.scanOne(r.db.QueryRow(ctx, stmt))
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	stmt := database.NewSelectBuilder("users", userColumns...).Where("id = ?", id)
	return r.scanOne(r.db.QueryRow(ctx, stmt))
}

func (r *UserRepository) scanOne(row *sql.Row) (*models.User, error) {
	user := &models.User{}
	err := row.Scan(&user.ID, &user.Name, &user.Email, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return user, nil
}
