package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	pkgAuth "github.com/angelmondragon/restaurant-backend/pkg/auth"
	"github.com/angelmondragon/restaurant-backend/pkg/config"
	"github.com/angelmondragon/restaurant-backend/pkg/db/models"
	"github.com/angelmondragon/restaurant-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/restaurant-backend/pkg/errors"
	"github.com/angelmondragon/restaurant-backend/pkg/security"
)

const botToken = "123456:test-bot-token"

var (
	testNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	jwtCfg  = config.JWTConfig{Secret: "secret", Issuer: "restaurant", ExpirationMinutes: 30}
)

func TestTelegramLoginCreatesCustomer(t *testing.T) {
	repo := newStubUserRepo()
	svc := buildTestService(t, repo, stubAgents{})

	req := signedTelegramRequest(TelegramLoginRequest{
		ID:        4242,
		FirstName: "Sara",
		LastName:  "Ali",
		Username:  "sara",
		AuthDate:  testNow.Add(-time.Minute).Unix(),
	})
	resp, err := svc.TelegramLogin(context.Background(), req)
	if err != nil {
		t.Fatalf("telegram login: %v", err)
	}
	if resp.User.Name != "Sara Ali" || resp.User.Role != enums.RoleCustomer {
		t.Fatalf("unexpected user %+v", resp.User)
	}
	if !resp.User.TelegramLinked || resp.User.LastLoginAt == nil {
		t.Fatalf("expected linked account with login time")
	}
	if len(repo.created) != 1 {
		t.Fatalf("expected one created user, got %d", len(repo.created))
	}

	claims, err := pkgAuth.ParseAccessTokenAt(jwtCfg, resp.AccessToken, testNow)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if claims.Role != enums.RoleCustomer || claims.AgentID != nil {
		t.Fatalf("unexpected claims %+v", claims)
	}

	// second login reuses the account and refreshes the name
	req = signedTelegramRequest(TelegramLoginRequest{ID: 4242, FirstName: "Sarah", AuthDate: testNow.Unix()})
	resp, err = svc.TelegramLogin(context.Background(), req)
	if err != nil {
		t.Fatalf("second login: %v", err)
	}
	if len(repo.created) != 1 || resp.User.Name != "Sarah" {
		t.Fatalf("expected existing user refreshed, got %d creates and name %q", len(repo.created), resp.User.Name)
	}
}

func TestTelegramLoginRejectsBadHashAndStaleData(t *testing.T) {
	svc := buildTestService(t, newStubUserRepo(), stubAgents{})

	req := signedTelegramRequest(TelegramLoginRequest{ID: 1, FirstName: "Eve", AuthDate: testNow.Unix()})
	req.FirstName = "Mallory"
	if _, err := svc.TelegramLogin(context.Background(), req); !pkgerrors.Is(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected unauthorized for tampered payload, got %v", err)
	}

	stale := signedTelegramRequest(TelegramLoginRequest{ID: 1, FirstName: "Eve", AuthDate: testNow.Add(-48 * time.Hour).Unix()})
	if _, err := svc.TelegramLogin(context.Background(), stale); !pkgerrors.Is(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected unauthorized for stale payload, got %v", err)
	}
}

func TestLoginDeliveryStaffCarriesAgentID(t *testing.T) {
	repo := newStubUserRepo()
	user := repo.add(staffUser(t, "driver", "driver-secret", enums.RoleDelivery))
	agentID := uuid.New()
	svc := buildTestService(t, repo, stubAgents{user.ID: agentID})

	resp, err := svc.Login(context.Background(), LoginRequest{Login: "Driver", Password: "driver-secret"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	claims, err := pkgAuth.ParseAccessTokenAt(jwtCfg, resp.AccessToken, testNow)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if claims.Role != enums.RoleDelivery || claims.AgentID == nil || *claims.AgentID != agentID {
		t.Fatalf("expected agent id claim, got %+v", claims)
	}
	if !resp.ExpiresAt.Equal(testNow.Add(30 * time.Minute)) {
		t.Fatalf("unexpected expiry %s", resp.ExpiresAt)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	repo := newStubUserRepo()
	repo.add(staffUser(t, "chef", "kitchen-secret", enums.RoleKitchen))
	inactive := staffUser(t, "former", "former-secret", enums.RoleKitchen)
	inactive.IsActive = false
	repo.add(inactive)
	customer := &models.User{ID: uuid.New(), Name: "Tg", Username: strPtr("tg"), Role: enums.RoleCustomer, IsActive: true}
	repo.add(customer)
	svc := buildTestService(t, repo, stubAgents{})

	cases := []LoginRequest{
		{Login: "chef", Password: "wrong-password"},
		{Login: "nobody", Password: "kitchen-secret"},
		{Login: "former", Password: "former-secret"},
		{Login: "tg", Password: "anything"},
		{Login: " ", Password: "x"},
	}
	for _, req := range cases {
		if _, err := svc.Login(context.Background(), req); !pkgerrors.Is(err, pkgerrors.CodeUnauthorized) {
			t.Fatalf("login %q: expected unauthorized, got %v", req.Login, err)
		}
	}
}

func TestMe(t *testing.T) {
	repo := newStubUserRepo()
	user := repo.add(staffUser(t, "chef", "kitchen-secret", enums.RoleKitchen))
	svc := buildTestService(t, repo, stubAgents{})

	dto, err := svc.Me(context.Background(), pkgAuth.Actor{UserID: user.ID, Role: user.Role})
	if err != nil {
		t.Fatalf("me: %v", err)
	}
	if dto.ID != user.ID {
		t.Fatalf("unexpected user %s", dto.ID)
	}
	if _, err := svc.Me(context.Background(), pkgAuth.Actor{UserID: uuid.New()}); !pkgerrors.Is(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRegisterStaff(t *testing.T) {
	repo := newStubUserRepo()
	svc, err := NewStaffService(StaffServiceParams{UserRepo: repo})
	if err != nil {
		t.Fatalf("new staff service: %v", err)
	}

	dto, err := svc.Register(context.Background(), RegisterStaffRequest{
		Name: "Head Chef", Username: "Chef", Password: "kitchen-secret", Role: enums.RoleKitchen,
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if dto.Username == nil || *dto.Username != "chef" || dto.Role != enums.RoleKitchen {
		t.Fatalf("unexpected dto %+v", dto)
	}
	stored := repo.byID[dto.ID]
	ok, err := security.VerifyPassword("kitchen-secret", *stored.PasswordHash)
	if err != nil || !ok {
		t.Fatalf("stored hash does not verify: %v", err)
	}

	_, err = svc.Register(context.Background(), RegisterStaffRequest{
		Name: "Someone", Username: "someone", Password: "long-enough", Role: enums.RoleCustomer,
	})
	if !pkgerrors.Is(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation for customer role, got %v", err)
	}
	_, err = svc.Register(context.Background(), RegisterStaffRequest{
		Name: "Someone", Username: "someone", Password: "short", Role: enums.RoleAdmin,
	})
	if !pkgerrors.Is(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation for short password, got %v", err)
	}
}

func TestLoginUpgradesOutdatedHash(t *testing.T) {
	repo := newStubUserRepo()
	admin := repo.add(staffUser(t, "owner", "owner-password", enums.RoleAdmin))
	svc := buildTestService(t, repo, stubAgents{})
	svc.(*service).password = config.PasswordConfig{ArgonTime: 2}

	if _, err := svc.Login(context.Background(), LoginRequest{Login: "owner", Password: "owner-password"}); err != nil {
		t.Fatalf("login: %v", err)
	}
	if len(repo.rehashed) != 1 || repo.rehashed[0] != admin.ID {
		t.Fatalf("expected one rehash for the admin, got %v", repo.rehashed)
	}
	if !strings.Contains(*admin.PasswordHash, ",t=2,") {
		t.Fatalf("hash not upgraded: %s", *admin.PasswordHash)
	}
	if ok, _ := security.VerifyPassword("owner-password", *admin.PasswordHash); !ok {
		t.Fatal("upgraded hash must still verify")
	}

	if _, err := svc.Login(context.Background(), LoginRequest{Login: "owner", Password: "owner-password"}); err != nil {
		t.Fatalf("second login: %v", err)
	}
	if len(repo.rehashed) != 1 {
		t.Fatal("an up to date hash must not be rewritten")
	}
}

func buildTestService(t *testing.T, repo *stubUserRepo, agents stubAgents) Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		UserRepo:       repo,
		Agents:         agents,
		JWTConfig:      jwtCfg,
		TelegramConfig: config.TelegramConfig{BotToken: botToken, LoginMaxAge: 24 * time.Hour},
	})
	if err != nil {
		t.Fatalf("build service: %v", err)
	}
	svc.(*service).now = func() time.Time { return testNow }
	return svc
}

func signedTelegramRequest(req TelegramLoginRequest) TelegramLoginRequest {
	fields := req.Fields()
	delete(fields, "hash")
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, k+"="+fields[k])
	}
	secret := sha256.Sum256([]byte(botToken))
	mac := hmac.New(sha256.New, secret[:])
	mac.Write([]byte(strings.Join(lines, "\n")))
	req.Hash = hex.EncodeToString(mac.Sum(nil))
	return req
}

func staffUser(t *testing.T, username, password string, role enums.UserRole) *models.User {
	t.Helper()
	hash, err := security.HashPassword(password, config.PasswordConfig{})
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	return &models.User{
		ID:           uuid.New(),
		Name:         username,
		Username:     strPtr(username),
		PasswordHash: &hash,
		Role:         role,
		IsActive:     true,
	}
}

func strPtr(value string) *string {
	return &value
}

type stubUserRepo struct {
	byID     map[uuid.UUID]*models.User
	created  []uuid.UUID
	rehashed []uuid.UUID
}

func newStubUserRepo() *stubUserRepo {
	return &stubUserRepo{byID: map[uuid.UUID]*models.User{}}
}

func (s *stubUserRepo) add(user *models.User) *models.User {
	s.byID[user.ID] = user
	return user
}

func (s *stubUserRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	if user, ok := s.byID[id]; ok {
		return user, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubUserRepo) FindByTelegramID(ctx context.Context, telegramID string) (*models.User, error) {
	for _, user := range s.byID {
		if user.TelegramID != nil && *user.TelegramID == telegramID {
			return user, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubUserRepo) FindByLogin(ctx context.Context, login string) (*models.User, error) {
	for _, user := range s.byID {
		if (user.Username != nil && *user.Username == login) || (user.Email != nil && *user.Email == login) {
			return user, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubUserRepo) Create(ctx context.Context, user *models.User) error {
	s.byID[user.ID] = user
	s.created = append(s.created, user.ID)
	return nil
}

func (s *stubUserRepo) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	user, ok := s.byID[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	if name, ok := updates["name"].(string); ok {
		user.Name = name
	}
	if hash, ok := updates["password_hash"].(string); ok {
		s.rehashed = append(s.rehashed, id)
		user.PasswordHash = &hash
	}
	return nil
}

func (s *stubUserRepo) UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	if user, ok := s.byID[id]; ok {
		user.LastLoginAt = &at
	}
	return nil
}

type stubAgents map[uuid.UUID]uuid.UUID

func (s stubAgents) FindAgentByUser(ctx context.Context, userID uuid.UUID) (*models.DeliveryAgent, error) {
	if id, ok := s[userID]; ok {
		return &models.DeliveryAgent{ID: id, UserID: userID}, nil
	}
	return nil, gorm.ErrRecordNotFound
}
