package env

import "testing"

func TestGetBool(t *testing.T) {
	t.Setenv("RESTAURANT_TEST_FLAG", "true")
	if !GetBool("RESTAURANT_TEST_FLAG", false) {
		t.Fatal("expected true")
	}
	t.Setenv("RESTAURANT_TEST_FLAG", "nope")
	if GetBool("RESTAURANT_TEST_FLAG", false) {
		t.Fatal("malformed value should fall back")
	}
	if Get("RESTAURANT_TEST_MISSING", "x") != "x" {
		t.Fatal("expected fallback")
	}
}
