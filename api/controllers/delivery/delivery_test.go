package delivery

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/angelmondragon/restaurant-backend/api/middleware"
	internaldelivery "github.com/angelmondragon/restaurant-backend/internal/delivery"
	"github.com/angelmondragon/restaurant-backend/pkg/auth"
	"github.com/angelmondragon/restaurant-backend/pkg/db/models"
	"github.com/angelmondragon/restaurant-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/restaurant-backend/pkg/errors"
	"github.com/angelmondragon/restaurant-backend/pkg/logger"
)

type stubDelivery struct {
	internaldelivery.Service
	agentOrders func(ctx context.Context, agentID uuid.UUID, actor auth.Actor) ([]models.Order, error)
	assign      func(ctx context.Context, input internaldelivery.AssignInput) (*models.Order, error)
}

func (s stubDelivery) ListAgentOrders(ctx context.Context, agentID uuid.UUID, actor auth.Actor) ([]models.Order, error) {
	return s.agentOrders(ctx, agentID, actor)
}

func (s stubDelivery) AssignAgent(ctx context.Context, input internaldelivery.AssignInput) (*models.Order, error) {
	return s.assign(ctx, input)
}

func TestAgentOrdersDefaultsToCaller(t *testing.T) {
	own := uuid.New()
	actor := auth.Actor{UserID: uuid.New(), Role: enums.RoleDelivery, AgentID: &own}
	var requested uuid.UUID
	svc := stubDelivery{
		agentOrders: func(ctx context.Context, agentID uuid.UUID, a auth.Actor) ([]models.Order, error) {
			requested = agentID
			return []models.Order{}, nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/delivery/agent/orders", nil)
	req = req.WithContext(middleware.WithActor(req.Context(), actor))
	rec := httptest.NewRecorder()
	AgentOrders(svc, logger.Nop())(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if requested != uuid.Nil {
		t.Fatalf("expected service to resolve the caller, got %s", requested)
	}

	other := uuid.New()
	req = httptest.NewRequest(http.MethodGet, "/api/delivery/agent/orders?agent="+other.String(), nil)
	req = req.WithContext(middleware.WithActor(req.Context(), actor))
	rec = httptest.NewRecorder()
	AgentOrders(svc, logger.Nop())(rec, req)
	if requested != other {
		t.Fatalf("expected explicit agent %s, got %s", other, requested)
	}
}

func TestAssignNotEligible(t *testing.T) {
	orderID, agentID := uuid.New(), uuid.New()
	var got internaldelivery.AssignInput
	svc := stubDelivery{
		assign: func(ctx context.Context, input internaldelivery.AssignInput) (*models.Order, error) {
			got = input
			return nil, pkgerrors.New(pkgerrors.CodeNotEligible, "order is not ready for delivery")
		},
	}

	body := `{"order_id":"` + orderID.String() + `","agent_id":"` + agentID.String() + `"}`
	req := httptest.NewRequest(http.MethodPost, "/api/delivery/assign", strings.NewReader(body))
	req = req.WithContext(middleware.WithActor(req.Context(), auth.Actor{UserID: uuid.New(), Role: enums.RoleAdmin}))
	rec := httptest.NewRecorder()
	Assign(svc, logger.Nop())(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if got.OrderID != orderID || got.AgentID != agentID {
		t.Fatalf("unexpected assign input %+v", got)
	}
	if !strings.Contains(rec.Body.String(), string(pkgerrors.CodeNotEligible)) {
		t.Fatalf("expected NOT_ELIGIBLE in %s", rec.Body.String())
	}
}
