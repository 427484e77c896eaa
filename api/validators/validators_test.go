package validators

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/restaurant-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/restaurant-backend/pkg/errors"
)

type agentBody struct {
	Name  string     `json:"name" validate:"required,max=60"`
	Phone string     `json:"phone" validate:"required,phone"`
	Items []lineBody `json:"items" validate:"omitempty,dive"`
}

type lineBody struct {
	Quantity int `json:"quantity" validate:"gte=1,lte=50"`
}

func post(body string) *http.Request {
	return httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
}

func details(t *testing.T, err error) map[string]string {
	t.Helper()
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, pkgerrors.CodeValidation, typed.Code())
	d, _ := typed.Details().(map[string]string)
	return d
}

func TestDecodeJSONBody(t *testing.T) {
	var ok agentBody
	require.NoError(t, DecodeJSONBody(post(`{"name":"Rosa","phone":"+52 55 1234 5678"}`), &ok))
	require.Equal(t, "Rosa", ok.Name)

	var bad agentBody
	err := DecodeJSONBody(post(`{"name":"","phone":"call me","items":[{"quantity":0}]}`), &bad)
	require.Equal(t, map[string]string{
		"name":              "is required",
		"phone":             "must be a phone number",
		"items[0].quantity": "must be at least 1",
	}, details(t, err))
}

func TestDecodeJSONBodyRejectsMalformedInput(t *testing.T) {
	cases := map[string]string{
		"":                                  "request body is required",
		`{"name":`:                          "request body is not valid JSON",
		`{"name":"a","phone":"5551234"} {}`: "request body must be a single JSON object",
	}
	for body, want := range cases {
		var dest agentBody
		err := DecodeJSONBody(post(body), &dest)
		require.Error(t, err, body)
		require.Equal(t, want, pkgerrors.As(err).Message(), body)
	}

	var dest agentBody
	err := DecodeJSONBody(post(`{"name":"a","phone":"5551234","vip":true}`), &dest)
	require.Equal(t, map[string]string{"vip": "is not a recognised field"}, details(t, err))

	err = DecodeJSONBody(post(`{"name":7,"phone":"5551234"}`), &dest)
	require.Equal(t, map[string]string{"name": "must be a string"}, details(t, err))
}

func TestSanitizeString(t *testing.T) {
	require.Equal(t, "sin cebolla", SanitizeString("  sin cebolla \x00 ", 0))
	require.Equal(t, "línea 1\nlínea 2", SanitizeString("línea 1\nlínea 2", 0))
	require.Equal(t, "jalapeño", SanitizeString("jalapeño", 0))
	require.Equal(t, "crème", SanitizeString("crème brûlée", 5))
}

func TestQueryParsers(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?limit=500&active=yes&from=2025-03-01&to=2025-03-02T10:00:00-06:00&status=pending,%20ready&agent=nope", nil)

	_, err := ParseQueryInt(req, "limit", 20, 1, 100)
	require.Error(t, err)

	active, err := ParseQueryBool(req, "active")
	require.NoError(t, err)
	require.True(t, active)

	from, err := ParseQueryTime(req, "from")
	require.NoError(t, err)
	require.Equal(t, "2025-03-01T00:00:00Z", from.Format("2006-01-02T15:04:05Z07:00"))
	to, err := ParseQueryTime(req, "to")
	require.NoError(t, err)
	require.Equal(t, 16, to.Hour())

	statuses, err := ParseQueryList(req, "status", enums.ParseOrderStatus)
	require.NoError(t, err)
	require.Equal(t, []enums.OrderStatus{enums.OrderStatusPending, enums.OrderStatusReady}, statuses)

	_, err = ParseQueryUUID(req, "agent")
	require.Error(t, err)

	missing, err := ParseQueryTime(req, "until")
	require.NoError(t, err)
	require.Nil(t, missing)
}
