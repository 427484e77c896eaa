package users

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/restaurant-backend/internal/address"
	"github.com/angelmondragon/restaurant-backend/pkg/db/dbtest"
	"github.com/angelmondragon/restaurant-backend/pkg/db/models"
	"github.com/angelmondragon/restaurant-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/restaurant-backend/pkg/errors"
	"github.com/angelmondragon/restaurant-backend/pkg/pagination"
	"github.com/angelmondragon/restaurant-backend/pkg/types"
)

type stubLocator struct {
	calls int
	err   error
}

func (s *stubLocator) Locate(ctx context.Context, text string) (address.Location, error) {
	s.calls++
	if s.err != nil {
		return address.Location{}, s.err
	}
	return address.Location{FormattedAddress: text, Coordinates: types.LatLng{Lat: 24.7, Lng: 46.6}}, nil
}

func newService(t *testing.T, conn *gorm.DB, locator address.Service) Service {
	t.Helper()
	svc, err := NewService(ServiceParams{Repository: NewRepository(conn), Locator: locator})
	require.NoError(t, err)
	return svc
}

func seedUser(t *testing.T, conn *gorm.DB, name string, role enums.UserRole) models.User {
	t.Helper()
	user := models.User{
		ID:              uuid.New(),
		Name:            name,
		Role:            role,
		IsActive:        true,
		MembershipLevel: enums.MembershipBronze,
		NotifyChat:      true,
	}
	require.NoError(t, conn.Create(&user).Error)
	return user
}

func seedOrder(t *testing.T, conn *gorm.DB, userID uuid.UUID, status enums.OrderStatus, total int64, items map[string]int) {
	t.Helper()
	order := models.Order{
		ID:             uuid.New(),
		UserID:         userID,
		DeliveryMethod: enums.DeliveryMethodPickup,
		PaymentMethod:  enums.PaymentMethodCash,
		PaymentStatus:  enums.OrderPaymentPending,
		Subtotal:       decimal.NewFromInt(total),
		Discount:       decimal.Zero,
		DeliveryFee:    decimal.Zero,
		TotalPrice:     decimal.NewFromInt(total),
		Status:         status,
		Version:        1,
	}
	pos := 0
	for name, qty := range items {
		order.Items = append(order.Items, models.OrderItem{
			ID:         uuid.New(),
			Position:   pos,
			MenuItemID: menuIDs[name],
			Name:       name,
			Quantity:   qty,
			UnitPrice:  decimal.NewFromInt(10),
			TotalPrice: decimal.NewFromInt(int64(10 * qty)),
		})
		pos++
	}
	require.NoError(t, conn.Create(&order).Error)
}

var menuIDs = map[string]uuid.UUID{
	"Kabsa":    uuid.New(),
	"Shawarma": uuid.New(),
	"Tea":      uuid.New(),
}

func TestUpdateProfile(t *testing.T) {
	conn := dbtest.Open(t)
	svc := newService(t, conn, nil)
	user := seedUser(t, conn, "Sara", enums.RoleCustomer)
	other := seedUser(t, conn, "Omar", enums.RoleCustomer)
	ctx := context.Background()

	name, phone, email := " Sara A. ", "0500000000", "Sara@Example.com"
	dto, err := svc.UpdateProfile(ctx, user.ID, UpdateProfileInput{Name: &name, Phone: &phone, Email: &email})
	require.NoError(t, err)
	require.Equal(t, "Sara A.", dto.Name)
	require.Equal(t, "0500000000", *dto.Phone)
	require.Equal(t, "sara@example.com", *dto.Email)

	_, err = svc.UpdateProfile(ctx, other.ID, UpdateProfileInput{Email: &email})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeConflict), "got %v", err)

	blank := "  "
	_, err = svc.UpdateProfile(ctx, user.ID, UpdateProfileInput{Name: &blank})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))

	_, err = svc.UpdateProfile(ctx, uuid.New(), UpdateProfileInput{Name: &name})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))
}

func TestAddressBook(t *testing.T) {
	conn := dbtest.Open(t)
	locator := &stubLocator{}
	svc := newService(t, conn, locator)
	user := seedUser(t, conn, "Sara", enums.RoleCustomer)
	ctx := context.Background()

	addresses, err := svc.AddAddress(ctx, user.ID, AddressInput{Label: "home", Address: "King Fahd Rd"})
	require.NoError(t, err)
	require.Len(t, addresses, 1)
	require.True(t, addresses[0].IsDefault, "first address becomes the default")
	require.NotNil(t, addresses[0].Coordinates)
	require.Equal(t, 1, locator.calls)

	coords := &types.LatLng{Lat: 21.5, Lng: 39.2}
	addresses, err = svc.AddAddress(ctx, user.ID, AddressInput{Label: "work", Address: "Tahlia St", Coordinates: coords})
	require.NoError(t, err)
	require.Len(t, addresses, 2)
	require.False(t, addresses[1].IsDefault)
	require.Equal(t, 1, locator.calls, "supplied coordinates skip geocoding")

	work := addresses[1].ID
	addresses, err = svc.SetDefaultAddress(ctx, user.ID, work)
	require.NoError(t, err)
	require.False(t, addresses[0].IsDefault)
	require.True(t, addresses[1].IsDefault)

	addresses, err = svc.RemoveAddress(ctx, user.ID, work)
	require.NoError(t, err)
	require.Len(t, addresses, 1)
	require.True(t, addresses[0].IsDefault, "default moves to the remaining address")

	dto, err := svc.Get(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, dto.Addresses, 1)
	require.Equal(t, "home", dto.Addresses[0].Label)

	_, err = svc.RemoveAddress(ctx, user.ID, uuid.New())
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))

	_, err = svc.AddAddress(ctx, user.ID, AddressInput{Label: "", Address: "x"})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
}

func TestAddAddressKeepsEntryWhenGeocodingFails(t *testing.T) {
	conn := dbtest.Open(t)
	svc := newService(t, conn, &stubLocator{err: pkgerrors.New(pkgerrors.CodeNotFound, "no results")})
	user := seedUser(t, conn, "Sara", enums.RoleCustomer)

	addresses, err := svc.AddAddress(context.Background(), user.ID, AddressInput{Label: "home", Address: "somewhere"})
	require.NoError(t, err)
	require.Len(t, addresses, 1)
	require.Nil(t, addresses[0].Coordinates)
}

func TestUpdatePreferences(t *testing.T) {
	conn := dbtest.Open(t)
	svc := newService(t, conn, nil)
	user := seedUser(t, conn, "Sara", enums.RoleCustomer)

	off, on := false, true
	dto, err := svc.UpdatePreferences(context.Background(), user.ID, PreferencesInput{NotifyChat: &off, NotifyEmail: &on})
	require.NoError(t, err)
	require.False(t, dto.NotifyChat)
	require.True(t, dto.NotifyEmail)
}

func TestStats(t *testing.T) {
	conn := dbtest.Open(t)
	svc := newService(t, conn, nil)
	user := seedUser(t, conn, "Sara", enums.RoleCustomer)
	other := seedUser(t, conn, "Omar", enums.RoleCustomer)

	seedOrder(t, conn, user.ID, enums.OrderStatusDelivered, 50, map[string]int{"Kabsa": 2, "Tea": 1})
	seedOrder(t, conn, user.ID, enums.OrderStatusPickedUp, 30, map[string]int{"Kabsa": 1, "Shawarma": 2})
	seedOrder(t, conn, user.ID, enums.OrderStatusCancelled, 99, map[string]int{"Tea": 9})
	seedOrder(t, conn, user.ID, enums.OrderStatusPending, 20, map[string]int{"Tea": 2})
	seedOrder(t, conn, other.ID, enums.OrderStatusDelivered, 70, map[string]int{"Tea": 7})

	stats, err := svc.Stats(context.Background(), user.ID)
	require.NoError(t, err)
	require.Equal(t, 4, stats.TotalOrders)
	require.Equal(t, 2, stats.CompletedOrders)
	require.Equal(t, 1, stats.CancelledOrders)
	require.True(t, stats.TotalSpent.Equal(decimal.NewFromInt(80)), "total spent %s", stats.TotalSpent)

	require.Len(t, stats.FavoriteItems, 3)
	require.Equal(t, "Kabsa", stats.FavoriteItems[0].Name)
	require.Equal(t, 3, stats.FavoriteItems[0].Quantity)
	require.Equal(t, "Shawarma", stats.FavoriteItems[1].Name)
	require.Equal(t, "Tea", stats.FavoriteItems[2].Name)
	require.Equal(t, 1, stats.FavoriteItems[2].Quantity)
}

func TestListFiltersByRole(t *testing.T) {
	conn := dbtest.Open(t)
	svc := newService(t, conn, nil)
	seedUser(t, conn, "Sara", enums.RoleCustomer)
	seedUser(t, conn, "Omar", enums.RoleCustomer)
	seedUser(t, conn, "Chef", enums.RoleKitchen)

	role := enums.RoleCustomer
	page, err := svc.List(context.Background(), ListFilter{Role: &role, Page: pagination.Params{Limit: 1}})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	require.NotEmpty(t, page.NextCursor)

	next, err := svc.List(context.Background(), ListFilter{Role: &role, Page: pagination.Params{Limit: 1, Cursor: page.NextCursor}})
	require.NoError(t, err)
	require.Len(t, next.Items, 1)
	require.Empty(t, next.NextCursor)
	require.NotEqual(t, page.Items[0].ID, next.Items[0].ID)

	bad := enums.UserRole("chef")
	_, err = svc.List(context.Background(), ListFilter{Role: &bad})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))

	_, err = svc.List(context.Background(), ListFilter{Page: pagination.Params{Cursor: "%%%"}})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
}
