package auth

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"geometa.org/internal/ids"
)

var _ Store = (*PGStore)(nil)

const pgUniqueViolation = "23505"

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Users() UserStore             { return &userStore{db: s.db} }
func (s *PGStore) ResetTokens() ResetTokenStore { return &resetTokenStore{db: s.db} }

type userStore struct{ db *sql.DB }

func (s *userStore) Create(ctx context.Context, u *User) error {
	if u.ID == "" {
		u.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx, `
		insert into users(id, email, name, password_hash, role, organization_id, email_verified)
		values($1,$2,$3,$4,$5,nullif($6,''),$7)
	`, u.ID, u.Email, u.Name, u.PasswordHash, string(u.Role), u.OrganizationID, u.EmailVerified)
	if isUniqueViolation(err) {
		return ErrDuplicateEmail
	}
	return err
}

const userColumns = `id, email, name, password_hash, role, coalesce(organization_id,''), email_verified, created_at, updated_at`

func (s *userStore) Find(ctx context.Context, id string) (*User, error) {
	row := s.db.QueryRowContext(ctx, `select `+userColumns+` from users where id=$1`, id)
	return scanUser(row)
}

func (s *userStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	row := s.db.QueryRowContext(ctx, `select `+userColumns+` from users where email=$1`, email)
	return scanUser(row)
}

func (s *userStore) List(ctx context.Context) ([]*User, error) {
	rows, err := s.db.QueryContext(ctx, `select `+userColumns+` from users order by created_at asc`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []*User
	for rows.Next() {
		u, err := scanUserRows(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, u)
	}
	return res, rows.Err()
}

func (s *userStore) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	return s.exec(ctx, `update users set password_hash=$2, updated_at=now() where id=$1`, userID, passwordHash)
}

func (s *userStore) UpdateRole(ctx context.Context, userID string, role Role) error {
	return s.exec(ctx, `update users set role=$2, updated_at=now() where id=$1`, userID, string(role))
}

func (s *userStore) MarkEmailVerified(ctx context.Context, userID string) error {
	return s.exec(ctx, `update users set email_verified=true, updated_at=now() where id=$1`, userID)
}

func (s *userStore) exec(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row *sql.Row) (*User, error) {
	u, err := scanUserRows(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return u, err
}

func scanUserRows(row rowScanner) (*User, error) {
	var (
		u    User
		role string
	)
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &role, &u.OrganizationID, &u.EmailVerified, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	parsed, ok := ParseRole(role)
	if !ok {
		// Fail closed on corrupted role values: zero permissions.
		parsed = Role(role)
	}
	u.Role = parsed
	return &u, nil
}

type resetTokenStore struct{ db *sql.DB }

func (s *resetTokenStore) Create(ctx context.Context, tok *ResetToken) error {
	if tok.ID == "" {
		tok.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx, `
		insert into reset_tokens(id, user_id, token_hash, purpose, expires_at)
		values($1,$2,$3,$4,$5)
	`, tok.ID, tok.UserID, tok.TokenHash, tok.Purpose, tok.ExpiresAt)
	return err
}

// Consume deletes the row and returns it in one statement, so a token
// can be spent exactly once even under concurrent submissions.
func (s *resetTokenStore) Consume(ctx context.Context, id, purpose string) (*ResetToken, error) {
	row := s.db.QueryRowContext(ctx, `
		delete from reset_tokens
		where id=$1 and purpose=$2
		returning id, user_id, token_hash, purpose, expires_at, created_at
	`, id, purpose)

	var tok ResetToken
	err := row.Scan(&tok.ID, &tok.UserID, &tok.TokenHash, &tok.Purpose, &tok.ExpiresAt, &tok.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvalidResetToken
	}
	if err != nil {
		return nil, err
	}
	return &tok, nil
}

func (s *resetTokenStore) DeleteForUser(ctx context.Context, userID, purpose string) error {
	_, err := s.db.ExecContext(ctx, `delete from reset_tokens where user_id=$1 and purpose=$2`, userID, purpose)
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	return false
}
