package config

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/spf13/viper"
)

type Config struct {
	Running struct {
		Port  int  `mapstructure:"port"`
		Debug bool `mapstructure:"debug"`
	} `mapstructure:"running"`
	Redis struct {
		Addrs    []string `mapstructure:"addrs"`
		Password string   `mapstructure:"password"`
	} `mapstructure:"redis"`
	Mysql struct {
		DSN string `mapstructure:"dsn"`
	} `mapstructure:"mysql"`
	Kafka struct {
		Brokers []string `mapstructure:"brokers"`
		Topic   string   `mapstructure:"topic"`
		Group   string   `mapstructure:"group"`
	} `mapstructure:"kafka"`
	Auth struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"auth"`
	Storage struct {
		Dir string `mapstructure:"dir"`
	} `mapstructure:"storage"`
	Sites    []Site                   `mapstructure:"sites"`
	Sitemap  Sitemap                  `mapstructure:"sitemap"`
	Sitemaps map[string]SitemapConfig `mapstructure:"sitemaps"`
}

// Site binds a request host to the site whose pages are published.
type Site struct {
	ID      uint64 `mapstructure:"id"`
	Host    string `mapstructure:"host"`
	BaseURL string `mapstructure:"base_url"`
}

type Sitemap struct {
	Limits struct {
		NumLocPerPage int `mapstructure:"num_loc_per_page"`
	} `mapstructure:"limits"`
	ChangeFreq   string        `mapstructure:"change_freq"`
	CacheTTL     time.Duration `mapstructure:"cache_ttl"`
	IndexPattern string        `mapstructure:"index_pattern"`
}

// SitemapConfig describes one registered sitemap route.
// IteratorStep overrides sitemap.limits.num_loc_per_page for this route.
type SitemapConfig struct {
	ID           string   `mapstructure:"-"`
	Pattern      string   `mapstructure:"pattern"`
	Accepts      []string `mapstructure:"accepts"`
	IteratorStep int      `mapstructure:"iterator-step"`
	Decorator    string   `mapstructure:"decorator"`
}

const (
	DecoratorURLSet = "urlset"
	DecoratorIndex  = "index"
)

// Load reads sitemapConfig.yaml from the usual locations. SITEMAP_* env
// variables override file values (SITEMAP_RUNNING_PORT, ...).
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("sitemapConfig")
	v.SetConfigType("yaml")
	// 兼容从项目根目录或 backend 目录启动
	if len(paths) == 0 {
		paths = []string{"./backend/config", "./config", "."}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	v.SetEnvPrefix("SITEMAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("running.port", 8080)
	v.SetDefault("storage.dir", "./var/sitemaps")
	v.SetDefault("kafka.group", "sitemap-invalidation")
	v.SetDefault("sitemap.limits.num_loc_per_page", 50000)
	v.SetDefault("sitemap.change_freq", "weekly")
	v.SetDefault("sitemap.cache_ttl", time.Hour)
	v.SetDefault("sitemap.index_pattern", "sitemap_index.xml")
}

func (c *Config) normalize() error {
	if c.Mysql.DSN != "" {
		dsn, err := mysql.ParseDSN(c.Mysql.DSN)
		if err != nil {
			return fmt.Errorf("mysql.dsn: %w", err)
		}
		// Page.UpdatedAt 需要 time.Time 扫描
		dsn.ParseTime = true
		c.Mysql.DSN = dsn.FormatDSN()
	}
	for id, sm := range c.Sitemaps {
		sm.ID = id
		if sm.Pattern == "" {
			return fmt.Errorf("sitemaps.%s.pattern is empty", id)
		}
		if sm.Decorator == "" {
			sm.Decorator = DecoratorURLSet
		}
		if sm.Decorator != DecoratorURLSet && sm.Decorator != DecoratorIndex {
			return fmt.Errorf("sitemaps.%s.decorator: unknown %q", id, sm.Decorator)
		}
		c.Sitemaps[id] = sm
	}
	if len(c.Sites) == 0 {
		return fmt.Errorf("sites: at least one site is required")
	}
	return nil
}

// OrderedSitemaps returns the configured sitemaps in registration order
// (ascending id).
func (c *Config) OrderedSitemaps() []SitemapConfig {
	out := make([]SitemapConfig, 0, len(c.Sitemaps))
	for _, sm := range c.Sitemaps {
		out = append(out, sm)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Limit returns num_loc_per_page for a sitemap route.
func (c *Config) Limit(sm SitemapConfig) int {
	if sm.IteratorStep > 0 {
		return sm.IteratorStep
	}
	return c.Sitemap.Limits.NumLocPerPage
}

// SiteByHost resolves the site for a request host; the first site is the
// fallback.
func (c *Config) SiteByHost(host string) Site {
	if i := strings.IndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}
	for _, s := range c.Sites {
		if strings.EqualFold(s.Host, host) {
			return s
		}
	}
	return c.Sites[0]
}

// SiteByID returns the configured site with the given id.
func (c *Config) SiteByID(id uint64) (Site, bool) {
	for _, s := range c.Sites {
		if s.ID == id {
			return s, true
		}
	}
	return Site{}, false
}
