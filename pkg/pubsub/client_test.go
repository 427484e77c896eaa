package pubsub

import (
	"testing"
)

func TestResourceNames(t *testing.T) {
	c := &Client{projectID: "rest-prod"}

	if got := c.topicResourceName("restaurant-order-events"); got != "projects/rest-prod/topics/restaurant-order-events" {
		t.Fatalf("unexpected topic name %q", got)
	}
	full := "projects/other/subscriptions/analytics"
	if got := c.subscriptionResourceName(full); got != full {
		t.Fatalf("full resource names should pass through, got %q", got)
	}
	if got := c.topicResourceName("  "); got != "" {
		t.Fatalf("blank names resolve to empty, got %q", got)
	}
	if got := (&Client{}).topicResourceName("orders"); got != "" {
		t.Fatalf("missing project resolves to empty, got %q", got)
	}
}

func TestTrimNamesDropsBlanks(t *testing.T) {
	names := trimNames([]string{" analytics ", "", "  "})
	if len(names) != 1 || names[0] != "analytics" {
		t.Fatalf("unexpected names %v", names)
	}
}
