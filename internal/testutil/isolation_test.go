package testutil

import (
	"os"
	"testing"
)

func TestWithIsolatedGlobals_RestoresEnv(t *testing.T) {
	os.Setenv("WAKU_ENV", "orig")
	os.Unsetenv("APP_ENV")

	WithIsolatedGlobals(func() {
		os.Setenv("WAKU_ENV", "changed")
		os.Setenv("APP_ENV", "added")
		if v := os.Getenv("WAKU_ENV"); v != "changed" {
			t.Fatalf("expected changed inside, got %s", v)
		}
		if v := os.Getenv("APP_ENV"); v != "added" {
			t.Fatalf("expected added inside, got %s", v)
		}
	})

	if v := os.Getenv("WAKU_ENV"); v != "orig" {
		t.Fatalf("expected WAKU_ENV=orig after restore, got %s", v)
	}
	if _, ok := os.LookupEnv("APP_ENV"); ok {
		t.Fatalf("APP_ENV should be unset after restore")
	}
}

func TestIsolate_RestoresEnvAndLIFO(t *testing.T) {
	os.Setenv("WAKU_ENV", "base")
	os.Unsetenv("APP_ENV")

	// Register assertion first so it runs last (cleanup order is LIFO).
	t.Cleanup(func() {
		if v := os.Getenv("WAKU_ENV"); v != "base" {
			t.Fatalf("expected WAKU_ENV=base after cleanup, got %s", v)
		}
		if _, ok := os.LookupEnv("APP_ENV"); ok {
			t.Fatalf("APP_ENV should be unset after cleanup")
		}
	})

	Isolate(t)
	os.Setenv("WAKU_ENV", "layer1")
	os.Setenv("APP_ENV", "val1")

	Isolate(t)
	os.Setenv("WAKU_ENV", "layer2")
	os.Setenv("APP_ENV", "val2")
}
