package users

import (
	"context"
	"fmt"
	"strings"

	"github.com/ariefcatur/go-marketplace/internal/apperr"
	"github.com/ariefcatur/go-marketplace/internal/postgres"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repo struct{ DB *pgxpool.Pool }

const userColumns = `id, first_name, last_name, email, country, COALESCE(password_hash, ''), role, is_temp, created_at, updated_at`

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.FirstName, &u.LastName, &u.Email, &u.Country, &u.PasswordHash,
		&u.Role, &u.IsTemp, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

func normalizeEmail(e string) string { return strings.ToLower(strings.TrimSpace(e)) }

// CreateTemp returns the id of the user holding the email, creating a temp user
// if there is none. Concurrent calls with one email end up on one row.
func (r *Repo) CreateTemp(ctx context.Context, in TempInput) (string, error) {
	email := normalizeEmail(in.Email)
	var id string
	err := r.DB.QueryRow(ctx, `
		INSERT INTO users (id, first_name, last_name, email, role, is_temp)
		VALUES ($1,$2,$3,$4,$5,TRUE)
		ON CONFLICT (email) DO NOTHING
		RETURNING id`,
		uuid.NewString(), in.FirstName, in.LastName, email, string(RoleBuyer)).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !postgres.IsNoRows(err) {
		return "", fmt.Errorf("insert temp user: %w", err)
	}
	// sudah ada: pakai id yang lama
	if err := r.DB.QueryRow(ctx, `SELECT id FROM users WHERE email=$1`, email).Scan(&id); err != nil {
		return "", fmt.Errorf("lookup user by email: %w", err)
	}
	return id, nil
}

func (r *Repo) GetByEmail(ctx context.Context, email string) (User, error) {
	u, err := scanUser(r.DB.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email=$1`, normalizeEmail(email)))
	if postgres.IsNoRows(err) {
		return User{}, apperr.NotFound("User not found")
	}
	if err != nil {
		return User{}, fmt.Errorf("get user by email: %w", err)
	}
	return u, nil
}

func (r *Repo) GetByID(ctx context.Context, id string) (User, error) {
	if uuid.Validate(id) != nil {
		return User{}, apperr.NotFound("User not found")
	}
	u, err := scanUser(r.DB.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, id))
	if postgres.IsNoRows(err) {
		return User{}, apperr.NotFound("User not found")
	}
	if err != nil {
		return User{}, fmt.Errorf("get user %s: %w", id, err)
	}
	return u, nil
}

func (r *Repo) GetMany(ctx context.Context, ids []string) ([]User, error) {
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if uuid.Validate(id) == nil {
			valid = append(valid, id)
		}
	}
	if len(valid) == 0 {
		return []User{}, nil
	}
	rows, err := r.DB.Query(ctx, `SELECT `+userColumns+` FROM users WHERE id = ANY($1)`, valid)
	if err != nil {
		return nil, fmt.Errorf("bulk users: %w", err)
	}
	defer rows.Close()
	out := []User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (r *Repo) Insert(ctx context.Context, in RegisterInput, hash string) (User, error) {
	u, err := scanUser(r.DB.QueryRow(ctx, `
		INSERT INTO users (id, first_name, last_name, email, country, password_hash, role)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING `+userColumns,
		uuid.NewString(), in.FirstName, in.LastName, normalizeEmail(in.Email), in.Country, hash, string(in.Role)))
	if postgres.IsUniqueViolation(err) {
		return User{}, apperr.Conflict("Email already registered")
	}
	if err != nil {
		return User{}, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

// Upgrade turns a temp user into a full account. It only matches while the row is still temp.
func (r *Repo) Upgrade(ctx context.Context, id string, in RegisterInput, hash string) (User, error) {
	u, err := scanUser(r.DB.QueryRow(ctx, `
		UPDATE users
		SET first_name=$2, last_name=$3, country=$4, password_hash=$5, role=$6, is_temp=FALSE, updated_at=now()
		WHERE id=$1 AND is_temp
		RETURNING `+userColumns,
		id, in.FirstName, in.LastName, in.Country, hash, string(in.Role)))
	if postgres.IsNoRows(err) {
		return User{}, apperr.BadRequest("Email already registered")
	}
	if err != nil {
		return User{}, fmt.Errorf("upgrade user %s: %w", id, err)
	}
	return u, nil
}
