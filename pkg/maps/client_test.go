package maps

import (
	"context"
	"io"
	"math"
	"net/http"
	"strings"
	"testing"

	pkgerrors "github.com/angelmondragon/restaurant-backend/pkg/errors"
	"github.com/angelmondragon/restaurant-backend/pkg/types"
)

func TestClientGeocodeRequest(t *testing.T) {
	respBody := `{"status":"OK","results":[{"place_id":"place_123","formatted_address":"حي العليا، الرياض","geometry":{"location":{"lat":24.69,"lng":46.68}}}]}`

	var capturedURL *http.Request
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		capturedURL = req
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(strings.NewReader(respBody)),
			Header:     http.Header{},
		}, nil
	})

	client, err := NewClient("test-key", WithBaseURL("http://maps.test/api"), WithHTTPClient(&http.Client{Transport: rt}))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	result, err := client.Geocode(context.Background(), "  Olaya St, Riyadh ")
	if err != nil {
		t.Fatalf("geocode: %v", err)
	}
	if capturedURL.URL.Path != "/api/geocode/json" {
		t.Fatalf("unexpected path %q", capturedURL.URL.Path)
	}
	q := capturedURL.URL.Query()
	if q.Get("key") != "test-key" || q.Get("address") != "Olaya St, Riyadh" || q.Get("region") != "sa" {
		t.Fatalf("unexpected query %v", q)
	}
	if result.PlaceID != "place_123" || result.Location.Lat != 24.69 || result.Location.Lng != 46.68 {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestClientGeocodeZeroResults(t *testing.T) {
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(strings.NewReader(`{"status":"ZERO_RESULTS","results":[]}`)),
			Header:     http.Header{},
		}, nil
	})
	client, _ := NewClient("k", WithHTTPClient(&http.Client{Transport: rt}))

	_, err := client.Geocode(context.Background(), "nowhere")
	if !pkgerrors.Is(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestClientGeocodeRejectsBlankAddress(t *testing.T) {
	client, _ := NewClient("k")
	if _, err := client.Geocode(context.Background(), " "); !pkgerrors.Is(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestNewClientRequiresKey(t *testing.T) {
	if _, err := NewClient(""); err == nil {
		t.Fatal("expected error for missing key")
	}
}

func TestDistanceKm(t *testing.T) {
	riyadh := types.LatLng{Lat: 24.7136, Lng: 46.6753}
	if d := DistanceKm(riyadh, riyadh); d != 0 {
		t.Fatalf("same point should be 0, got %f", d)
	}
	jeddah := types.LatLng{Lat: 21.4858, Lng: 39.1925}
	d := DistanceKm(riyadh, jeddah)
	if math.Abs(d-849) > 10 {
		t.Fatalf("riyadh-jeddah should be about 849km, got %f", d)
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}
