package loyalty

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/restaurant-backend/pkg/db/models"
	"github.com/angelmondragon/restaurant-backend/pkg/enums"
	"github.com/angelmondragon/restaurant-backend/pkg/pagination"
)

// Repository manages point balances and the loyalty ledger.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindUser(ctx context.Context, userID uuid.UUID) (*models.User, error)
	Credit(ctx context.Context, userID uuid.UUID, points int) error
	Debit(ctx context.Context, userID uuid.UUID, points int) (bool, error)
	SetLevel(ctx context.Context, userID uuid.UUID, level enums.MembershipLevel) error
	InsertEntry(ctx context.Context, entry *models.LoyaltyEntry) error
	ListEntries(ctx context.Context, userID uuid.UUID, page pagination.Params) ([]models.LoyaltyEntry, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository binds the loyalty repository to db.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindUser(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).
		Select("id", "loyalty_points", "total_points_earned", "membership_level").
		Where("id = ?", userID).
		First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Credit raises both the spendable and the lifetime balance in one statement.
func (r *repository) Credit(ctx context.Context, userID uuid.UUID, points int) error {
	result := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		UpdateColumns(map[string]any{
			"loyalty_points":      gorm.Expr("loyalty_points + ?", points),
			"total_points_earned": gorm.Expr("total_points_earned + ?", points),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Debit only succeeds while the balance covers points; false means it did not.
func (r *repository) Debit(ctx context.Context, userID uuid.UUID, points int) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ? AND loyalty_points >= ?", userID, points).
		UpdateColumn("loyalty_points", gorm.Expr("loyalty_points - ?", points))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) SetLevel(ctx context.Context, userID uuid.UUID, level enums.MembershipLevel) error {
	return r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		UpdateColumn("membership_level", level).Error
}

func (r *repository) InsertEntry(ctx context.Context, entry *models.LoyaltyEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) ListEntries(ctx context.Context, userID uuid.UUID, page pagination.Params) ([]models.LoyaltyEntry, error) {
	query, err := pagination.Apply(r.db.WithContext(ctx).Model(&models.LoyaltyEntry{}).Where("user_id = ?", userID), page)
	if err != nil {
		return nil, err
	}
	var entries []models.LoyaltyEntry
	if err := query.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
