package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/crmarques/remotable/config"
	"github.com/crmarques/remotable/faults"
	"github.com/google/go-cmp/cmp"
)

const validConfigYAML = `
remote:
  base-url: http://example.com/api/
  timeout: 5s
  rate-limit: 10
  default-headers:
    X-Client: remotable
  auth:
    bearer-token:
      token: secret
store:
  sqlite:
    dsn: ":memory:"
records:
  - name: tenant
    table: tenants
    endpoint: /accounts/
    ttl: 1m
    attributes:
      - slug
      - remote: church_name
        local: name
    identity:
      remote: id
      local: remote_id
    fetch-with:
      - attribute: name
        path: by_nombre/:name
      - attribute: slug
    list-jq: .items
`

func TestDecodeConfigSuccess(t *testing.T) {
	t.Parallel()

	cfg, err := decodeConfig([]byte(validConfigYAML))
	if err != nil {
		t.Fatalf("decodeConfig returned error: %v", err)
	}
	cfg = applyConfigDefaults(cfg)
	if err := validateConfig(cfg); err != nil {
		t.Fatalf("validateConfig returned error: %v", err)
	}

	if cfg.Remote.Format != config.FormatJSON || cfg.Remote.Timeout != 5*time.Second || cfg.Remote.Burst != 1 {
		t.Fatalf("unexpected remote defaults: %+v", cfg.Remote)
	}
	if len(cfg.Records) != 1 {
		t.Fatalf("expected 1 record type, got %d", len(cfg.Records))
	}

	tenant := cfg.Records[0]
	if tenant.Endpoint != "accounts" || tenant.TTL != time.Minute {
		t.Fatalf("unexpected record type: %+v", tenant)
	}
	wantAttributes := []config.Attribute{{Remote: "slug", Local: "slug"}, {Remote: "church_name", Local: "name"}}
	if diff := cmp.Diff(wantAttributes, tenant.Attributes); diff != "" {
		t.Fatalf("unexpected attributes (-want +got):\n%s", diff)
	}
	wantFetch := []config.FetchPath{{Attribute: "name", Path: "by_nombre/:name"}, {Attribute: "slug"}}
	if diff := cmp.Diff(wantFetch, tenant.FetchWith); diff != "" {
		t.Fatalf("unexpected fetch-with (-want +got):\n%s", diff)
	}
}

func TestDecodeConfigRejectsUnknownField(t *testing.T) {
	t.Parallel()

	invalidYAML := `
remote:
  base-url: http://example.com
  unknown-key: true
`
	_, err := decodeConfig([]byte(invalidYAML))
	if !faults.IsCategory(err, faults.ValidationError) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestValidateConfigRules(t *testing.T) {
	t.Parallel()

	base := func() config.Config {
		cfg, err := decodeConfig([]byte(validConfigYAML))
		if err != nil {
			t.Fatalf("decodeConfig returned error: %v", err)
		}
		return cfg
	}

	testCases := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{name: "missing base url", mutate: func(cfg *config.Config) { cfg.Remote.BaseURL = "" }},
		{name: "non http base url", mutate: func(cfg *config.Config) { cfg.Remote.BaseURL = "ftp://example.com" }},
		{name: "two auth modes", mutate: func(cfg *config.Config) {
			cfg.Remote.Auth.BasicAuth = &config.BasicAuth{Username: "u", Password: "p"}
		}},
		{name: "incomplete basic auth", mutate: func(cfg *config.Config) {
			cfg.Remote.Auth = &config.HTTPAuth{BasicAuth: &config.BasicAuth{Username: "u"}}
		}},
		{name: "incomplete tls pair", mutate: func(cfg *config.Config) {
			cfg.Remote.TLS = &config.TLS{ClientCertFile: "/tmp/cert.pem"}
		}},
		{name: "negative rate limit", mutate: func(cfg *config.Config) { cfg.Remote.RateLimit = -1 }},
		{name: "missing store", mutate: func(cfg *config.Config) { cfg.Store.SQLite = nil }},
		{name: "missing dsn", mutate: func(cfg *config.Config) { cfg.Store.SQLite.DSN = " " }},
		{name: "no records", mutate: func(cfg *config.Config) { cfg.Records = nil }},
		{name: "duplicate record names", mutate: func(cfg *config.Config) {
			duplicate := cfg.Records[0]
			duplicate.Table = "other"
			cfg.Records = append(cfg.Records, duplicate)
		}},
		{name: "shared table", mutate: func(cfg *config.Config) {
			other := cfg.Records[0]
			other.Name = "other"
			cfg.Records = append(cfg.Records, other)
		}},
		{name: "missing endpoint", mutate: func(cfg *config.Config) { cfg.Records[0].Endpoint = "" }},
		{name: "no identity or key", mutate: func(cfg *config.Config) { cfg.Records[0].Identity = nil }},
		{name: "empty remote key", mutate: func(cfg *config.Config) { cfg.Records[0].RemoteKey = &config.RemoteKey{} }},
		{name: "fetch without attribute", mutate: func(cfg *config.Config) {
			cfg.Records[0].FetchWith = []config.FetchPath{{Path: "x"}}
		}},
	}

	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			cfg := base()
			testCase.mutate(&cfg)
			err := validateConfig(applyConfigDefaults(cfg))
			if !faults.IsCategory(err, faults.ValidationError) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestDecodeConfigExpandsEnvPlaceholders(t *testing.T) {
	t.Setenv("REMOTABLE_TEST_TOKEN", "from-env")

	cfg, err := decodeConfig([]byte(`
remote:
  base-url: http://example.com
  auth:
    bearer-token:
      token: ${REMOTABLE_TEST_TOKEN}
`))
	if err != nil {
		t.Fatalf("decodeConfig returned error: %v", err)
	}
	if cfg.Remote.Auth.BearerToken.Token != "from-env" {
		t.Fatalf("expected token from env, got %q", cfg.Remote.Auth.BearerToken.Token)
	}

	_, err = decodeConfig([]byte("remote:\n  base-url: ${REMOTABLE_TEST_UNSET_VARIABLE}\n"))
	if !faults.IsCategory(err, faults.ValidationError) {
		t.Fatalf("expected validation error for unset variable, got %v", err)
	}
}

func TestResolveConfigPathDefaultAndEnv(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Fatalf("failed to resolve home dir: %v", err)
	}
	t.Setenv(config.ConfigFileEnvVar, "")

	resolvedDefault, err := resolveConfigPath("")
	if err != nil {
		t.Fatalf("resolveConfigPath default failed: %v", err)
	}
	expectedDefault := filepath.Join(home, ".remotable/config.yaml")
	if resolvedDefault != expectedDefault {
		t.Fatalf("expected %q, got %q", expectedDefault, resolvedDefault)
	}

	envPath := filepath.Join(t.TempDir(), "config.yaml")
	t.Setenv(config.ConfigFileEnvVar, envPath)
	resolvedFromEnv, err := resolveConfigPath("")
	if err != nil {
		t.Fatalf("resolveConfigPath env failed: %v", err)
	}
	if resolvedFromEnv != envPath {
		t.Fatalf("expected env path %q, got %q", envPath, resolvedFromEnv)
	}

	explicit := filepath.Join(t.TempDir(), "explicit.yaml")
	resolvedExplicit, err := resolveConfigPath(explicit)
	if err != nil || resolvedExplicit != explicit {
		t.Fatalf("expected explicit path to win, got %q %v", resolvedExplicit, err)
	}
}

func TestFileLoaderLoad(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(validConfigYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	loader := NewFileLoader()
	cfg, err := loader.Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if _, found := cfg.Record("tenant"); !found {
		t.Fatalf("expected tenant record type, got %v", cfg.RecordNames())
	}

	_, err = loader.Load(context.Background(), filepath.Join(dir, "missing.yaml"))
	if !faults.IsCategory(err, faults.NotFoundError) {
		t.Fatalf("expected not found error, got %v", err)
	}
}
