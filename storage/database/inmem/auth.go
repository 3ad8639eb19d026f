package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/trezcool/escola/core"
	"github.com/trezcool/escola/core/auth"
)

type authRepository struct {
	db *DB
}

var _ auth.Repository = (*authRepository)(nil)

func NewAuthRepository(db *DB) auth.Repository {
	return &authRepository{db: db}
}

func copyAccount(a auth.Account) auth.Account {
	a.PasswordHash = append([]byte(nil), a.PasswordHash...)
	return a
}

func (repo *authRepository) QueryAccounts(_ context.Context) ([]auth.Account, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	rows := make([]auth.Account, 0, len(repo.db.accounts))
	for _, a := range repo.db.accounts {
		rows = append(rows, copyAccount(a))
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Email < rows[j].Email })
	return rows, nil
}

func (repo *authRepository) GetAccount(_ context.Context, id string) (auth.Account, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	a, ok := repo.db.accounts[id]
	if !ok {
		return auth.Account{}, core.NewNotFoundError("account", id)
	}
	return copyAccount(a), nil
}

func (repo *authRepository) GetAccountByEmail(_ context.Context, email string) (auth.Account, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	for _, a := range repo.db.accounts {
		if a.Email == email {
			return copyAccount(a), nil
		}
	}
	return auth.Account{}, core.NewNotFoundError("account", email)
}

func (repo *authRepository) CreateAccount(_ context.Context, a auth.Account) (auth.Account, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()
	for _, other := range repo.db.accounts {
		if other.Email == a.Email {
			return auth.Account{}, auth.ErrEmailExists
		}
	}
	repo.db.accounts[a.ID] = copyAccount(a)
	return a, nil
}

func (repo *authRepository) UpdateAccount(_ context.Context, a auth.Account) (auth.Account, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()
	if _, ok := repo.db.accounts[a.ID]; !ok {
		return auth.Account{}, core.NewNotFoundError("account", a.ID)
	}
	for _, other := range repo.db.accounts {
		if other.Email == a.Email && other.ID != a.ID {
			return auth.Account{}, auth.ErrEmailExists
		}
	}
	repo.db.accounts[a.ID] = copyAccount(a)
	return a, nil
}

func (repo *authRepository) DeleteAccount(_ context.Context, id string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()
	if _, ok := repo.db.accounts[id]; !ok {
		return core.NewNotFoundError("account", id)
	}
	delete(repo.db.accounts, id)
	for sid, s := range repo.db.sessions {
		if s.AccountID == id {
			delete(repo.db.sessions, sid)
		}
	}
	return nil
}

func (repo *authRepository) CreateSession(_ context.Context, s auth.SessionRecord) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()
	if _, ok := repo.db.accounts[s.AccountID]; !ok {
		return core.NewNotFoundError("account", s.AccountID)
	}
	repo.db.sessions[s.ID] = s
	return nil
}

func (repo *authRepository) GetSession(_ context.Context, id string) (auth.SessionRecord, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	s, ok := repo.db.sessions[id]
	if !ok {
		return auth.SessionRecord{}, core.NewNotFoundError("session", id)
	}
	return s, nil
}

func (repo *authRepository) RevokeSession(_ context.Context, id string, at time.Time) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()
	s, ok := repo.db.sessions[id]
	if !ok {
		return core.NewNotFoundError("session", id)
	}
	if !s.Revoked() {
		s.RevokedAt.SetValid(at)
		repo.db.sessions[id] = s
	}
	return nil
}

func (repo *authRepository) RevokeAccountSessions(_ context.Context, accountID string, at time.Time) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()
	for id, s := range repo.db.sessions {
		if s.AccountID == accountID && !s.Revoked() {
			s.RevokedAt.SetValid(at)
			repo.db.sessions[id] = s
		}
	}
	return nil
}
