package env

import "testing"

func TestGetFallsBackOnBlank(t *testing.T) {
	t.Setenv("STOREFRONT_TEST_VALUE", "  ")
	if got := Get("STOREFRONT_TEST_VALUE", "fallback"); got != "fallback" {
		t.Fatalf("expected fallback, got %q", got)
	}
	t.Setenv("STOREFRONT_TEST_VALUE", "set")
	if got := Get("STOREFRONT_TEST_VALUE", "fallback"); got != "set" {
		t.Fatalf("expected set, got %q", got)
	}
}

func TestFirstPicksEarliestKey(t *testing.T) {
	t.Setenv("STOREFRONT_TEST_A", "")
	t.Setenv("STOREFRONT_TEST_B", "b")
	if got := First("none", "STOREFRONT_TEST_A", "STOREFRONT_TEST_B"); got != "b" {
		t.Fatalf("expected b, got %q", got)
	}
	if got := First("none"); got != "none" {
		t.Fatalf("expected fallback, got %q", got)
	}
}
