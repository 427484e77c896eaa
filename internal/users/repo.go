package users

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/restaurant-backend/pkg/db/models"
	"github.com/angelmondragon/restaurant-backend/pkg/enums"
	"github.com/angelmondragon/restaurant-backend/pkg/pagination"
	"github.com/angelmondragon/restaurant-backend/pkg/types"
)

var completedStatuses = []enums.OrderStatus{enums.OrderStatusDelivered, enums.OrderStatusPickedUp}

// Repository exposes user persistence.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

func (r *Repository) Create(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *Repository) FindByTelegramID(ctx context.Context, telegramID string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("telegram_id = ?", telegramID).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByLogin matches either the username or the e-mail address.
func (r *Repository) FindByLogin(ctx context.Context, login string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).
		Where("username = ? OR email = ?", login, login).
		First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *Repository) UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", id).
		UpdateColumn("last_login_at", at).Error
}

func (r *Repository) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	updates["updated_at"] = time.Now().UTC()
	res := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).UpdateColumns(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// SaveAddresses overwrites the address book.
func (r *Repository) SaveAddresses(ctx context.Context, id uuid.UUID, addresses []types.SavedAddress) error {
	return r.db.WithContext(ctx).
		Model(&models.User{ID: id}).
		Select("addresses", "updated_at").
		Updates(&models.User{Addresses: addresses, UpdatedAt: time.Now().UTC()}).Error
}

func (r *Repository) List(ctx context.Context, filter ListFilter) ([]models.User, error) {
	q := r.db.WithContext(ctx).Model(&models.User{})
	if filter.Role != nil {
		q = q.Where("role = ?", *filter.Role)
	}
	q, err := pagination.Apply(q, filter.Page)
	if err != nil {
		return nil, err
	}
	var rows []models.User
	err = q.Find(&rows).Error
	return rows, err
}

type orderCounts struct {
	Status enums.OrderStatus
	Count  int
	Total  decimal.Decimal
}

func (r *Repository) OrderCounts(ctx context.Context, userID uuid.UUID) ([]orderCounts, error) {
	var rows []orderCounts
	err := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Select("status, COUNT(*) AS count, COALESCE(SUM(total_price), 0) AS total").
		Where("user_id = ?", userID).
		Group("status").
		Scan(&rows).Error
	return rows, err
}

// FavoriteItems ranks the menu items of completed orders by quantity.
func (r *Repository) FavoriteItems(ctx context.Context, userID uuid.UUID, limit int) ([]FavoriteItem, error) {
	var rows []FavoriteItem
	err := r.db.WithContext(ctx).
		Table("order_items").
		Select("order_items.menu_item_id AS menu_item_id, MAX(order_items.name) AS name, SUM(order_items.quantity) AS quantity").
		Joins("JOIN orders ON orders.id = order_items.order_id").
		Where("orders.user_id = ? AND orders.status IN ?", userID, completedStatuses).
		Group("order_items.menu_item_id").
		Order("quantity DESC").
		Limit(limit).
		Scan(&rows).Error
	return rows, err
}
