package sqlxrepos

import (
	"context"
	"time"

	"github.com/trezcool/escola/core"
	"github.com/trezcool/escola/core/auth"
)

type authRepository struct {
	db core.DBExecutor
}

var _ auth.Repository = (*authRepository)(nil)

func NewAuthRepository(db core.DBExecutor) auth.Repository {
	return &authRepository{db: db}
}

func (repo *authRepository) QueryAccounts(ctx context.Context) ([]auth.Account, error) {
	rows := make([]auth.Account, 0)
	err := repo.db.SelectContext(ctx, &rows, "SELECT * FROM accounts ORDER BY email")
	return rows, wrap("query accounts", err)
}

func (repo *authRepository) GetAccount(ctx context.Context, id string) (auth.Account, error) {
	var a auth.Account
	err := get(ctx, repo.db, &a, "account", id, "SELECT * FROM accounts WHERE id = ?", id)
	return a, err
}

func (repo *authRepository) GetAccountByEmail(ctx context.Context, email string) (auth.Account, error) {
	var a auth.Account
	err := get(ctx, repo.db, &a, "account", email, "SELECT * FROM accounts WHERE email = ?", email)
	return a, err
}

func (repo *authRepository) CreateAccount(ctx context.Context, a auth.Account) (auth.Account, error) {
	_, err := repo.db.NamedExecContext(ctx, `
		INSERT INTO accounts (id, email, role, password_hash, is_active, created_at, updated_at, last_login)
		VALUES (:id, :email, :role, :password_hash, :is_active, :created_at, :updated_at, :last_login)`, a)
	if err != nil {
		return auth.Account{}, wrap("insert account", err)
	}
	return a, nil
}

func (repo *authRepository) UpdateAccount(ctx context.Context, a auth.Account) (auth.Account, error) {
	err := namedExecOne(ctx, repo.db, "account", a.ID, `
		UPDATE accounts
		SET email = :email, password_hash = :password_hash, is_active = :is_active,
			updated_at = :updated_at, last_login = :last_login
		WHERE id = :id`, a)
	if err != nil {
		return auth.Account{}, err
	}
	return a, nil
}

// DeleteAccount deletes an account; its sessions go with it.
func (repo *authRepository) DeleteAccount(ctx context.Context, id string) error {
	return execOne(ctx, repo.db, "account", id, "DELETE FROM accounts WHERE id = ?", id)
}

func (repo *authRepository) CreateSession(ctx context.Context, s auth.SessionRecord) error {
	_, err := repo.db.NamedExecContext(ctx, `
		INSERT INTO sessions (id, account_id, created_at, expires_at, refresh_until, revoked_at)
		VALUES (:id, :account_id, :created_at, :expires_at, :refresh_until, :revoked_at)`, s)
	return wrap("insert session", err)
}

func (repo *authRepository) GetSession(ctx context.Context, id string) (auth.SessionRecord, error) {
	var s auth.SessionRecord
	err := get(ctx, repo.db, &s, "session", id, "SELECT * FROM sessions WHERE id = ?", id)
	return s, err
}

func (repo *authRepository) RevokeSession(ctx context.Context, id string, at time.Time) error {
	return execOne(ctx, repo.db, "session", id,
		"UPDATE sessions SET revoked_at = COALESCE(revoked_at, ?) WHERE id = ?", at, id)
}

func (repo *authRepository) RevokeAccountSessions(ctx context.Context, accountID string, at time.Time) error {
	_, err := repo.db.ExecContext(ctx, repo.db.Rebind(
		"UPDATE sessions SET revoked_at = ? WHERE account_id = ? AND revoked_at IS NULL"), at, accountID)
	return wrap("revoke sessions", err)
}
