package config

import (
	"testing"
	"time"
)

func TestGetEnvString(t *testing.T) {
	if got := GetEnvString("LEDGERLINK_TEST_UNSET", "fallback"); got != "fallback" {
		t.Errorf("expected fallback, got %q", got)
	}

	t.Setenv("LEDGERLINK_TEST_STR", "/v2/transactions")
	if got := GetEnvString("LEDGERLINK_TEST_STR", "fallback"); got != "/v2/transactions" {
		t.Errorf("expected /v2/transactions, got %q", got)
	}
}

func TestGetEnvInt(t *testing.T) {
	t.Setenv("LEDGERLINK_TEST_INT", "42")
	if got := GetEnvInt("LEDGERLINK_TEST_INT", 3); got != 42 {
		t.Errorf("expected 42, got %d", got)
	}

	t.Setenv("LEDGERLINK_TEST_INT", "not-a-number")
	if got := GetEnvInt("LEDGERLINK_TEST_INT", 3); got != 3 {
		t.Errorf("expected default 3 for invalid value, got %d", got)
	}
}

func TestGetEnvFloat(t *testing.T) {
	t.Setenv("LEDGERLINK_TEST_FLOAT", "2.5")
	if got := GetEnvFloat("LEDGERLINK_TEST_FLOAT", 1.0); got != 2.5 {
		t.Errorf("expected 2.5, got %f", got)
	}

	t.Setenv("LEDGERLINK_TEST_FLOAT", "nope")
	if got := GetEnvFloat("LEDGERLINK_TEST_FLOAT", 1.0); got != 1.0 {
		t.Errorf("expected default 1.0 for invalid value, got %f", got)
	}
}

func TestGetEnvBool(t *testing.T) {
	cases := map[string]bool{
		"1": true, "true": true, "True": true,
		"0": false, "false": false, "F": false,
	}
	for value, want := range cases {
		t.Setenv("LEDGERLINK_TEST_BOOL", value)
		if got := GetEnvBool("LEDGERLINK_TEST_BOOL", !want); got != want {
			t.Errorf("value %q: expected %v, got %v", value, want, got)
		}
	}

	t.Setenv("LEDGERLINK_TEST_BOOL", "maybe")
	if got := GetEnvBool("LEDGERLINK_TEST_BOOL", true); !got {
		t.Error("expected default true for invalid value")
	}
}

func TestGetEnvDuration(t *testing.T) {
	t.Setenv("LEDGERLINK_TEST_DUR", "90s")
	if got := GetEnvDuration("LEDGERLINK_TEST_DUR", time.Minute); got != 90*time.Second {
		t.Errorf("expected 90s, got %v", got)
	}

	t.Setenv("LEDGERLINK_TEST_DUR", "soon")
	if got := GetEnvDuration("LEDGERLINK_TEST_DUR", time.Minute); got != time.Minute {
		t.Errorf("expected default 1m for invalid value, got %v", got)
	}
}

func TestValidatePositiveDuration(t *testing.T) {
	if err := ValidatePositiveDuration(time.Second); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidatePositiveDuration(0); err == nil {
		t.Error("expected error for zero duration")
	}
	if err := ValidatePositiveDuration(-time.Second); err == nil {
		t.Error("expected error for negative duration")
	}
}

func TestValidateDurationRange(t *testing.T) {
	if err := ValidateDurationRange(30*time.Second, time.Second, time.Minute); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidateDurationRange(2*time.Minute, time.Second, time.Minute); err == nil {
		t.Error("expected error above maximum")
	}
	if err := ValidateDurationRange(time.Second, time.Minute, time.Second); err == nil {
		t.Error("expected error for inverted range")
	}
}
