package email

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/angelmondragon/restaurant-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/restaurant-backend/pkg/errors"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func testConfig() config.EmailConfig {
	return config.EmailConfig{
		SendgridAPIKey: "SG.key",
		BaseURL:        "http://sg.test",
		FromAddress:    "orders@example.com",
		FromName:       "Kitchen",
	}
}

func TestSendEmail(t *testing.T) {
	var captured mailSend
	var auth, path string
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		auth = req.Header.Get("Authorization")
		path = req.URL.Path
		raw, _ := io.ReadAll(req.Body)
		if err := json.Unmarshal(raw, &captured); err != nil {
			t.Fatalf("decode: %v", err)
		}
		header := http.Header{}
		header.Set("X-Message-Id", "msg-77")
		return &http.Response{StatusCode: http.StatusAccepted, Body: io.NopCloser(strings.NewReader("")), Header: header}, nil
	})

	client, err := NewClient(testConfig(), WithHTTPClient(&http.Client{Transport: rt}))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	id, err := client.SendEmail(context.Background(), "kitchen@example.com", "طلب جديد: #abc123", "<h2>x</h2>")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if id != "msg-77" || auth != "Bearer SG.key" || path != "/v3/mail/send" {
		t.Fatalf("unexpected request id=%q auth=%q path=%q", id, auth, path)
	}
	if captured.Personalizations[0].To[0].Email != "kitchen@example.com" || captured.Content[0].Type != "text/html" {
		t.Fatalf("unexpected payload %+v", captured)
	}
}

func TestSendEmailFailure(t *testing.T) {
	rt := roundTripFunc(func(*http.Request) (*http.Response, error) {
		return &http.Response{StatusCode: http.StatusUnauthorized, Body: io.NopCloser(strings.NewReader(`{"errors":[{"message":"bad key"}]}`)), Header: http.Header{}}, nil
	})
	client, _ := NewClient(testConfig(), WithHTTPClient(&http.Client{Transport: rt}))
	if _, err := client.SendEmail(context.Background(), "a@b.c", "s", "b"); !pkgerrors.Is(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency error, got %v", err)
	}
	if _, err := client.SendEmail(context.Background(), " ", "s", "b"); !pkgerrors.Is(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestNewClientRequiresKey(t *testing.T) {
	if _, err := NewClient(config.EmailConfig{}); err == nil {
		t.Fatal("expected error")
	}
}
