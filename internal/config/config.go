// Package config loads and validates scraper configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/JakeFAU/catalog-scraper/internal/crawler"
)

// EnvPrefix prefixes every environment override, e.g. SCRAPER_DB_DSN.
const EnvPrefix = "SCRAPER"

var (
	// ErrMissingDSN is returned when no database location can be resolved.
	ErrMissingDSN = errors.New("db.dsn is required (set SCRAPER_DB_DSN)")
	// ErrUnknownSite is returned for a site name with no configuration.
	ErrUnknownSite = errors.New("unknown site")
)

// Config captures all scraper configuration knobs loaded via Viper.
type Config struct {
	DB       DBConfig              `mapstructure:"db"`
	Crawler  CrawlerConfig         `mapstructure:"crawler"`
	HTTP     HTTPConfig            `mapstructure:"http"`
	Headless HeadlessConfig        `mapstructure:"headless"`
	Pipeline PipelineConfig        `mapstructure:"pipeline"`
	State    StateConfig           `mapstructure:"state"`
	Logging  LoggingConfig         `mapstructure:"logging"`
	Metrics  MetricsConfig         `mapstructure:"metrics"`
	Sites    map[string]SiteConfig `mapstructure:"sites"`
}

// DBConfig controls access to the catalog database.
type DBConfig struct {
	DSN                    string `mapstructure:"dsn"`
	MaxConns               int32  `mapstructure:"max_conns"`
	MinConns               int32  `mapstructure:"min_conns"`
	MaxConnLifetimeSeconds int    `mapstructure:"max_conn_lifetime_seconds"`
	ProductsTable          string `mapstructure:"products_table"`
	StoresTable            string `mapstructure:"stores_table"`
}

// CrawlerConfig governs scheduling and politeness.
type CrawlerConfig struct {
	UserAgent     string `mapstructure:"user_agent"`
	Concurrency   int    `mapstructure:"concurrency"`
	MinDelayMs    int    `mapstructure:"min_delay_ms"`
	MaxDelayMs    int    `mapstructure:"max_delay_ms"`
	RespectRobots bool   `mapstructure:"respect_robots"`
	MaxItems      int    `mapstructure:"max_items"`
}

// HTTPConfig configures fetch timeouts and retry behavior.
type HTTPConfig struct {
	TimeoutSeconds   int   `mapstructure:"timeout_seconds"`
	MaxRetries       int   `mapstructure:"max_retries"`
	BackoffInitialMs int   `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int   `mapstructure:"backoff_max_ms"`
	RetryStatusCodes []int `mapstructure:"retry_status_codes"`
}

// HeadlessConfig configures the headless rendering subsystem.
type HeadlessConfig struct {
	Enabled         bool `mapstructure:"enabled"`
	MaxParallel     int  `mapstructure:"max_parallel"`
	NavTimeoutSec   int  `mapstructure:"nav_timeout_seconds"`
	PromotionThresh int  `mapstructure:"promotion_threshold"`
	ClickWaitMs     int  `mapstructure:"click_wait_ms"`
}

// PipelineConfig holds the duplicate-filter and update-on-match flags.
type PipelineConfig struct {
	DedupEnabled   bool `mapstructure:"dedup_enabled"`
	UpdateExisting bool `mapstructure:"update_existing"`
}

// StateConfig controls resumable crawl state on local disk.
type StateConfig struct {
	Dir             string `mapstructure:"dir"`
	Resume          bool   `mapstructure:"resume"`
	CheckpointEvery int    `mapstructure:"checkpoint_every"`
	KeepOnComplete  bool   `mapstructure:"keep_on_complete"`
}

// LoggingConfig toggles zap development features and verbosity.
type LoggingConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// MetricsConfig exposes Prometheus metrics while a run is in progress.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// SiteConfig binds a retailer to a platform adapter and its destination store.
type SiteConfig struct {
	Platform           string          `mapstructure:"platform"`
	StoreID            int64           `mapstructure:"store_id"`
	Seeds              []string        `mapstructure:"seeds"`
	AllowedDomains     []string        `mapstructure:"allowed_domains"`
	CategoryPaths      []string        `mapstructure:"category_paths"`
	LoadMoreSelector   string          `mapstructure:"load_more_selector"`
	LoadMoreClicks     int             `mapstructure:"load_more_clicks"`
	PerCategoryItemCap int             `mapstructure:"per_category_item_cap"`
	ListingPatterns    []string        `mapstructure:"listing_patterns"`
	ItemPatterns       []string        `mapstructure:"item_patterns"`
	Selectors          SelectorsConfig `mapstructure:"selectors"`
}

// SelectorsConfig overrides or extends an adapter's CSS selectors.
type SelectorsConfig struct {
	Root          string   `mapstructure:"root"`
	CategoryLinks []string `mapstructure:"category_links"`
	ItemLinks     []string `mapstructure:"item_links"`
	NextPage      []string `mapstructure:"next_page"`
	Name          []string `mapstructure:"name"`
	Price         []string `mapstructure:"price"`
	Description   []string `mapstructure:"description"`
	Image         []string `mapstructure:"image"`
}

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment.
// A missing file is not an error; existing variables are never overridden.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.min_conns", 0)
	v.SetDefault("db.max_conn_lifetime_seconds", 1800)
	v.SetDefault("db.products_table", "products")
	v.SetDefault("db.stores_table", "stores")
	v.SetDefault("crawler.user_agent", "catalog-scraper/1.0 (+https://github.com/JakeFAU/catalog-scraper)")
	v.SetDefault("crawler.concurrency", 1)
	v.SetDefault("crawler.min_delay_ms", 2000)
	v.SetDefault("crawler.max_delay_ms", 60000)
	v.SetDefault("crawler.respect_robots", true)
	v.SetDefault("crawler.max_items", 0)
	v.SetDefault("http.timeout_seconds", 30)
	v.SetDefault("http.max_retries", 3)
	v.SetDefault("http.backoff_initial_ms", 1000)
	v.SetDefault("http.backoff_max_ms", 30000)
	v.SetDefault("http.retry_status_codes", crawler.DefaultRetryStatuses)
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout_seconds", 45)
	v.SetDefault("headless.promotion_threshold", 2048)
	v.SetDefault("headless.click_wait_ms", 1500)
	v.SetDefault("pipeline.dedup_enabled", true)
	v.SetDefault("pipeline.update_existing", true)
	v.SetDefault("state.dir", ".crawl-state")
	v.SetDefault("state.resume", true)
	v.SetDefault("state.checkpoint_every", 25)
	v.SetDefault("state.keep_on_complete", false)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.development", false)
	v.SetDefault("metrics.addr", "")

	for name, site := range referenceSites {
		prefix := "sites." + name + "."
		v.SetDefault(prefix+"platform", site.Platform)
		v.SetDefault(prefix+"store_id", site.StoreID)
		v.SetDefault(prefix+"seeds", site.Seeds)
		v.SetDefault(prefix+"allowed_domains", site.AllowedDomains)
		v.SetDefault(prefix+"category_paths", site.CategoryPaths)
		v.SetDefault(prefix+"load_more_selector", site.LoadMoreSelector)
		v.SetDefault(prefix+"load_more_clicks", site.LoadMoreClicks)
		v.SetDefault(prefix+"per_category_item_cap", site.PerCategoryItemCap)
	}
}

// referenceSites ship as defaults so a bare environment can run them; a
// config file may add more or override any field.
var referenceSites = map[string]SiteConfig{
	"northwind": {
		Platform:           "shopify",
		StoreID:            1,
		Seeds:              []string{"https://northwind-outfitters.com/"},
		AllowedDomains:     []string{"northwind-outfitters.com"},
		CategoryPaths:      []string{"/collections/all", "/collections/new-arrivals"},
		LoadMoreClicks:     3,
		PerCategoryItemCap: 40,
	},
	"contoso": {
		Platform:           "woocommerce",
		StoreID:            2,
		Seeds:              []string{"https://contoso-home.com/shop/"},
		AllowedDomains:     []string{"contoso-home.com"},
		CategoryPaths:      []string{"/shop/", "/product-category/ofertas/"},
		LoadMoreClicks:     3,
		PerCategoryItemCap: 40,
	},
	"fabrikam": {
		Platform:           "vtex",
		StoreID:            3,
		Seeds:              []string{"https://www.fabrikam-market.com/"},
		AllowedDomains:     []string{"fabrikam-market.com"},
		CategoryPaths:      []string{"/electro", "/hogar", "/tecnologia"},
		LoadMoreSelector:   ".vtex-search-result-3-x-buttonShowMore button",
		LoadMoreClicks:     3,
		PerCategoryItemCap: 40,
	},
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if strings.TrimSpace(c.DB.DSN) == "" {
		return ErrMissingDSN
	}
	if c.Crawler.Concurrency <= 0 {
		return fmt.Errorf("crawler.concurrency must be > 0")
	}
	if c.Crawler.MinDelayMs < 0 {
		return fmt.Errorf("crawler.min_delay_ms must be >= 0")
	}
	if c.Crawler.MaxDelayMs < c.Crawler.MinDelayMs {
		return fmt.Errorf("crawler.max_delay_ms must be >= crawler.min_delay_ms")
	}
	if c.Crawler.MaxItems < 0 {
		return fmt.Errorf("crawler.max_items must be >= 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.MaxRetries < 0 {
		return fmt.Errorf("http.max_retries must be >= 0")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	if c.State.Dir == "" {
		return fmt.Errorf("state.dir must be set")
	}
	for name, site := range c.Sites {
		if err := site.validate(name); err != nil {
			return err
		}
	}
	return nil
}

func (s SiteConfig) validate(name string) error {
	if s.StoreID <= 0 {
		return fmt.Errorf("sites.%s.store_id must be > 0", name)
	}
	if len(s.Seeds) == 0 {
		return fmt.Errorf("sites.%s.seeds must include at least one URL", name)
	}
	if s.LoadMoreClicks < 0 {
		return fmt.Errorf("sites.%s.load_more_clicks must be >= 0", name)
	}
	if s.PerCategoryItemCap < 0 {
		return fmt.Errorf("sites.%s.per_category_item_cap must be >= 0", name)
	}
	return nil
}

// SiteNames lists configured sites in a stable order.
func (c Config) SiteNames() []string {
	names := make([]string, 0, len(c.Sites))
	for name := range c.Sites {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Site looks up a site by name.
func (c Config) Site(name string) (SiteConfig, error) {
	site, ok := c.Sites[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return SiteConfig{}, fmt.Errorf("%w: %q", ErrUnknownSite, name)
	}
	return site, nil
}

// Target builds the immutable CrawlTarget for one run of the named site.
func (c Config) Target(name string) (crawler.CrawlTarget, error) {
	site, err := c.Site(name)
	if err != nil {
		return crawler.CrawlTarget{}, err
	}
	target := SiteTarget(name, site)
	target.Resume = c.State.Resume
	target.Concurrency = c.Crawler.Concurrency
	target.MinDelay = time.Duration(c.Crawler.MinDelayMs) * time.Millisecond
	target.MaxDelay = time.Duration(c.Crawler.MaxDelayMs) * time.Millisecond
	target.MaxItems = c.Crawler.MaxItems
	return target, nil
}

// SiteTarget fills the site-scoped fields of a CrawlTarget. Allowed domains
// default to the seed hosts without a leading "www.".
func SiteTarget(name string, site SiteConfig) crawler.CrawlTarget {
	allowed := site.AllowedDomains
	if len(allowed) == 0 {
		allowed = hostsOf(site.Seeds)
	}
	return crawler.CrawlTarget{
		Site:               strings.ToLower(strings.TrimSpace(name)),
		Seeds:              append([]string(nil), site.Seeds...),
		AllowedDomains:     append([]string(nil), allowed...),
		StoreID:            site.StoreID,
		LoadMoreClicks:     site.LoadMoreClicks,
		PerCategoryItemCap: site.PerCategoryItemCap,
	}
}

// FetchTimeout is the per-request budget.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// RetryConfig converts the HTTP section into a crawler.RetryConfig.
func (c Config) RetryConfig() crawler.RetryConfig {
	return crawler.RetryConfig{
		MaxRetries:    c.HTTP.MaxRetries,
		BaseDelay:     time.Duration(c.HTTP.BackoffInitialMs) * time.Millisecond,
		MaxDelay:      time.Duration(c.HTTP.BackoffMaxMs) * time.Millisecond,
		RetryStatuses: c.HTTP.RetryStatusCodes,
	}
}

func hostsOf(seeds []string) []string {
	hosts := make([]string, 0, len(seeds))
	for _, seed := range seeds {
		u, err := url.Parse(seed)
		if err != nil || u.Hostname() == "" {
			continue
		}
		hosts = append(hosts, strings.TrimPrefix(strings.ToLower(u.Hostname()), "www."))
	}
	return hosts
}
