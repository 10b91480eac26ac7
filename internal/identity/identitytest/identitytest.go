// Package identitytest provides an in-memory account repository and a ready LocalProvider
// built on it, for tests that need real sign-up, sign-in and token checks without
// PostgreSQL.
package identitytest

import (
	"context"
	"sync"
	"time"

	"github.com/anonto42/lovesignal/backend/internal/identity"
	"github.com/anonto42/lovesignal/backend/internal/models"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Secret signs the tokens of providers built by NewProvider.
const Secret = "identitytest-secret"

// Accounts is a concurrency-safe AccountRepository that reports errors the way gorm does.
type Accounts struct {
	mu       sync.Mutex
	byID     map[string]models.Account
	nextID   uint
	deleted  []string
	failNext error
}

func NewAccounts() *Accounts {
	return &Accounts{byID: make(map[string]models.Account)}
}

// FailNext makes the next call fail with err.
func (a *Accounts) FailNext(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failNext = err
}

func (a *Accounts) takeFailure() error {
	err := a.failNext
	a.failNext = nil
	return err
}

func (a *Accounts) CreateAccount(_ context.Context, account *models.Account) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.takeFailure(); err != nil {
		return err
	}
	if _, ok := a.byID[account.IdentityID]; ok {
		return gorm.ErrDuplicatedKey
	}
	if account.Email != nil {
		for _, existing := range a.byID {
			if existing.Email != nil && *existing.Email == *account.Email {
				return gorm.ErrDuplicatedKey
			}
		}
	}
	a.nextID++
	account.ID = a.nextID
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now()
	}
	a.byID[account.IdentityID] = *account
	return nil
}

func (a *Accounts) GetAccountByEmail(_ context.Context, email string) (*models.Account, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.takeFailure(); err != nil {
		return nil, err
	}
	for _, account := range a.byID {
		if account.Email != nil && *account.Email == email {
			return &account, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (a *Accounts) GetAccountByIdentityID(_ context.Context, identityID string) (*models.Account, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.takeFailure(); err != nil {
		return nil, err
	}
	account, ok := a.byID[identityID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &account, nil
}

func (a *Accounts) DeleteAccount(_ context.Context, identityID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.takeFailure(); err != nil {
		return err
	}
	if _, ok := a.byID[identityID]; ok {
		a.deleted = append(a.deleted, identityID)
	}
	delete(a.byID, identityID)
	return nil
}

func (a *Accounts) RevokeTokens(_ context.Context, identityID string, at time.Time) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.takeFailure(); err != nil {
		return err
	}
	account, ok := a.byID[identityID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	account.TokensValidAfter = at
	a.byID[identityID] = account
	return nil
}

// Len returns the number of live accounts.
func (a *Accounts) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.byID)
}

// Deleted returns the identity ids removed through DeleteAccount, in order.
func (a *Accounts) Deleted() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.deleted...)
}

// NewProvider returns a LocalProvider over fresh in-memory accounts. Passwords are hashed
// at the minimum bcrypt cost to keep tests fast.
func NewProvider(opts ...identity.LocalOption) (*identity.LocalProvider, *Accounts) {
	accounts := NewAccounts()
	opts = append([]identity.LocalOption{identity.WithHashCost(bcrypt.MinCost)}, opts...)
	return identity.NewLocalProvider(accounts, Secret, time.Hour, opts...), accounts
}
