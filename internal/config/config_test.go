package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadWithFileOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
db:
  dsn: postgres://scraper@localhost/catalog
  max_conns: 8
crawler:
  concurrency: 2
  min_delay_ms: 500
  max_delay_ms: 8000
  user_agent: real-agent
http:
  timeout_seconds: 20
  max_retries: 4
  retry_status_codes: [429, 503]
pipeline:
  dedup_enabled: false
  update_existing: false
state:
  dir: /tmp/state
logging:
  level: debug
sites:
  tienda:
    platform: generic
    store_id: 42
    seeds: ["https://www.tienda.test/"]
    load_more_clicks: 5
    per_category_item_cap: 10
    selectors:
      name: ["h1.product-name"]
      price: [".price-now"]
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.DB.DSN != "postgres://scraper@localhost/catalog" || cfg.DB.MaxConns != 8 {
		t.Fatalf("expected db overrides to apply: %+v", cfg.DB)
	}
	if cfg.Crawler.Concurrency != 2 || cfg.Crawler.UserAgent != "real-agent" {
		t.Fatalf("expected crawler overrides to apply: %+v", cfg.Crawler)
	}
	if cfg.Pipeline.DedupEnabled || cfg.Pipeline.UpdateExisting {
		t.Fatalf("expected pipeline flags to be disabled: %+v", cfg.Pipeline)
	}
	if len(cfg.HTTP.RetryStatusCodes) != 2 || cfg.HTTP.RetryStatusCodes[1] != 503 {
		t.Fatalf("expected retry codes override, got %v", cfg.HTTP.RetryStatusCodes)
	}
	if got := cfg.FetchTimeout(); got != 20*time.Second {
		t.Fatalf("expected fetch timeout 20s, got %v", got)
	}

	site, err := cfg.Site("tienda")
	if err != nil {
		t.Fatalf("Site() error = %v", err)
	}
	if site.StoreID != 42 || site.Selectors.Name[0] != "h1.product-name" {
		t.Fatalf("expected site to be loaded: %+v", site)
	}
	if _, err := cfg.Site("northwind"); err != nil {
		t.Fatalf("reference sites should survive a config file: %v", err)
	}

	target, err := cfg.Target("tienda")
	if err != nil {
		t.Fatalf("Target() error = %v", err)
	}
	if target.StoreID != 42 || target.LoadMoreClicks != 5 || target.PerCategoryItemCap != 10 {
		t.Fatalf("unexpected target: %+v", target)
	}
	if len(target.AllowedDomains) != 1 || target.AllowedDomains[0] != "tienda.test" {
		t.Fatalf("expected allowed domains derived from seeds, got %v", target.AllowedDomains)
	}
	if target.MinDelay != 500*time.Millisecond || target.MaxDelay != 8*time.Second {
		t.Fatalf("unexpected delays: %v %v", target.MinDelay, target.MaxDelay)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("SCRAPER_DB_DSN", "postgres://env@localhost/catalog")
	t.Setenv("SCRAPER_PIPELINE_UPDATE_EXISTING", "false")
	t.Setenv("SCRAPER_SITES_FABRIKAM_STORE_ID", "77")
	t.Setenv("SCRAPER_LOGGING_LEVEL", "warn")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.DB.DSN != "postgres://env@localhost/catalog" {
		t.Fatalf("expected DSN from env, got %q", cfg.DB.DSN)
	}
	if !cfg.Pipeline.DedupEnabled || cfg.Pipeline.UpdateExisting {
		t.Fatalf("unexpected pipeline flags: %+v", cfg.Pipeline)
	}
	if cfg.Logging.Level != "warn" {
		t.Fatalf("expected log level from env, got %q", cfg.Logging.Level)
	}
	site, err := cfg.Site("fabrikam")
	if err != nil {
		t.Fatalf("Site() error = %v", err)
	}
	if site.StoreID != 77 {
		t.Fatalf("expected store id override, got %d", site.StoreID)
	}
	if names := cfg.SiteNames(); strings.Join(names, ",") != "contoso,fabrikam,northwind" {
		t.Fatalf("unexpected site names %v", names)
	}
}

func TestLoadWithoutDSNIsFatal(t *testing.T) {
	t.Setenv("SCRAPER_DB_DSN", "")

	_, err := Load("")
	if !errors.Is(err, ErrMissingDSN) {
		t.Fatalf("expected ErrMissingDSN, got %v", err)
	}
}

func TestUnknownSite(t *testing.T) {
	t.Parallel()

	cfg := Config{Sites: map[string]SiteConfig{}}
	if _, err := cfg.Target("nope"); !errors.Is(err, ErrUnknownSite) {
		t.Fatalf("expected ErrUnknownSite, got %v", err)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	if err := LoadDotEnv(filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("missing .env should be ignored: %v", err)
	}

	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("SCRAPER_TEST_DOTENV_VALUE=from-file\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Cleanup(func() { _ = os.Unsetenv("SCRAPER_TEST_DOTENV_VALUE") })
	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("LoadDotEnv() error = %v", err)
	}
	if got := os.Getenv("SCRAPER_TEST_DOTENV_VALUE"); got != "from-file" {
		t.Fatalf("expected value from .env, got %q", got)
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		DB:      DBConfig{DSN: "postgres://localhost/catalog"},
		Crawler: CrawlerConfig{Concurrency: 1, MinDelayMs: 10, MaxDelayMs: 100},
		HTTP:    HTTPConfig{TimeoutSeconds: 10},
		State:   StateConfig{Dir: "state"},
	}

	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{
			name: "missing dsn",
			cfg: func() Config {
				c := base
				c.DB.DSN = " "
				return c
			}(),
			want: "db.dsn",
		},
		{
			name: "invalid concurrency",
			cfg: func() Config {
				c := base
				c.Crawler.Concurrency = 0
				return c
			}(),
			want: "crawler.concurrency",
		},
		{
			name: "delay bounds",
			cfg: func() Config {
				c := base
				c.Crawler.MaxDelayMs = 1
				return c
			}(),
			want: "crawler.max_delay_ms",
		},
		{
			name: "invalid timeout",
			cfg: func() Config {
				c := base
				c.HTTP.TimeoutSeconds = 0
				return c
			}(),
			want: "http.timeout_seconds",
		},
		{
			name: "headless missing max parallel",
			cfg: func() Config {
				c := base
				c.Headless.Enabled = true
				return c
			}(),
			want: "headless.max_parallel",
		},
		{
			name: "site without store",
			cfg: func() Config {
				c := base
				c.Sites = map[string]SiteConfig{"x": {Seeds: []string{"https://x.test"}}}
				return c
			}(),
			want: "sites.x.store_id",
		},
		{
			name: "site without seeds",
			cfg: func() Config {
				c := base
				c.Sites = map[string]SiteConfig{"x": {StoreID: 1}}
				return c
			}(),
			want: "sites.x.seeds",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestSiteTargetDerivesDomainsFromSeeds(t *testing.T) {
	target := SiteTarget(" Fabrikam ", SiteConfig{
		StoreID: 3,
		Seeds:   []string{"https://WWW.Fabrikam.test/electro", "https://outlet.fabrikam.test/"},
	})
	if target.Site != "fabrikam" || target.StoreID != 3 {
		t.Fatalf("unexpected target: %+v", target)
	}
	want := []string{"fabrikam.test", "outlet.fabrikam.test"}
	if strings.Join(target.AllowedDomains, ",") != strings.Join(want, ",") {
		t.Fatalf("AllowedDomains = %v, want %v", target.AllowedDomains, want)
	}

	target = SiteTarget("fabrikam", SiteConfig{
		Seeds:          []string{"https://www.fabrikam.test/"},
		AllowedDomains: []string{"cdn.fabrikam.test"},
	})
	if len(target.AllowedDomains) != 1 || target.AllowedDomains[0] != "cdn.fabrikam.test" {
		t.Fatalf("configured domains should win, got %v", target.AllowedDomains)
	}
}
