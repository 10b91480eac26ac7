package repositories

import (
	"context"
	"time"

	"github.com/anonto42/lovesignal/backend/internal/models"
	"gorm.io/gorm"
)

// AccountRepository defines the interface for locally managed identities
type AccountRepository interface {
	CreateAccount(ctx context.Context, account *models.Account) error
	GetAccountByEmail(ctx context.Context, email string) (*models.Account, error)
	GetAccountByIdentityID(ctx context.Context, identityID string) (*models.Account, error)
	DeleteAccount(ctx context.Context, identityID string) error
	RevokeTokens(ctx context.Context, identityID string, at time.Time) error
}

// PostgresAccountRepository implements AccountRepository for PostgreSQL
type PostgresAccountRepository struct {
	db *gorm.DB
}

// NewPostgresAccountRepository creates a new PostgresAccountRepository
func NewPostgresAccountRepository(db *gorm.DB) *PostgresAccountRepository {
	return &PostgresAccountRepository{db: db}
}

// CreateAccount creates a new account in PostgreSQL
func (r *PostgresAccountRepository) CreateAccount(ctx context.Context, account *models.Account) error {
	return r.db.WithContext(ctx).Create(account).Error
}

// GetAccountByEmail retrieves an account by email
func (r *PostgresAccountRepository) GetAccountByEmail(ctx context.Context, email string) (*models.Account, error) {
	var account models.Account
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&account).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

// GetAccountByIdentityID retrieves an account by its identity id
func (r *PostgresAccountRepository) GetAccountByIdentityID(ctx context.Context, identityID string) (*models.Account, error) {
	var account models.Account
	if err := r.db.WithContext(ctx).Where("identity_id = ?", identityID).First(&account).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

// DeleteAccount deletes an account by identity id
func (r *PostgresAccountRepository) DeleteAccount(ctx context.Context, identityID string) error {
	return r.db.WithContext(ctx).Where("identity_id = ?", identityID).Delete(&models.Account{}).Error
}

// RevokeTokens invalidates every token issued to the account before at
func (r *PostgresAccountRepository) RevokeTokens(ctx context.Context, identityID string, at time.Time) error {
	result := r.db.WithContext(ctx).Model(&models.Account{}).
		Where("identity_id = ?", identityID).
		Update("tokens_valid_after", at)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
