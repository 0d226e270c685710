package httpapi

import (
	"reflect"
	"testing"
)

func TestConfigValidateDefaults(test *testing.T) {
	test.Parallel()
	cfg := Config{SessionSigningKey: "secret-key"}
	if err := cfg.Validate(); err != nil {
		test.Fatalf("validate: %v", err)
	}
	if cfg.ListenAddr != ":9090" {
		test.Fatalf("unexpected listen addr %q", cfg.ListenAddr)
	}
	if !reflect.DeepEqual(cfg.AllowedOrigins, []string{"http://localhost:8000"}) {
		test.Fatalf("unexpected origins %v", cfg.AllowedOrigins)
	}
	if cfg.SessionIssuer != "tauth" || cfg.SessionCookieName != "app_session" {
		test.Fatalf("unexpected session defaults %q %q", cfg.SessionIssuer, cfg.SessionCookieName)
	}
	if cfg.ReviewerRole != "gamemaster" {
		test.Fatalf("unexpected reviewer role %q", cfg.ReviewerRole)
	}
	if cfg.LedgerLimit != 50 {
		test.Fatalf("unexpected ledger limit %d", cfg.LedgerLimit)
	}
}

func TestConfigValidateRequiresSigningKey(test *testing.T) {
	test.Parallel()
	cfg := Config{}
	if err := cfg.Validate(); err == nil {
		test.Fatalf("expected error for missing signing key")
	}
}

func TestParseAllowedOrigins(test *testing.T) {
	test.Parallel()
	cases := []struct {
		name string
		raw  string
		want []string
	}{
		{name: "empty", raw: "  ", want: []string{}},
		{name: "single", raw: "http://localhost:8000", want: []string{"http://localhost:8000"}},
		{name: "multiple with spaces", raw: "http://a.test, http://b.test ,", want: []string{"http://a.test", "http://b.test"}},
	}
	for _, tc := range cases {
		tc := tc
		test.Run(tc.name, func(test *testing.T) {
			test.Parallel()
			if got := ParseAllowedOrigins(tc.raw); !reflect.DeepEqual(got, tc.want) {
				test.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}
