package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	log "github.com/sirupsen/logrus"
)

// APIKeyPlaceholder 在数据源 API 地址中由 NEWSAPI_API_KEY 替换
const APIKeyPlaceholder = "{apiKey}"

// DataSource 一组 RSS + 新闻 API，两者的文章链接合并后作为图片来源
type DataSource struct {
	Name    string `toml:"name"`
	FeedURL string `toml:"feed_url"`
	APIURL  string `toml:"api_url"`
}

type Config struct {
	AppPort string

	PostgresDSN string
	RedisAddr   string

	CronSpec string

	NewsAPIKey  string
	SourcesFile string
	Sources     []DataSource

	HTTPTimeout      time.Duration
	FetchConcurrency int
	CacheTTL         time.Duration
	LogLevel         string

	BasicAuthUser string
	BasicAuthPass string
}

// DefaultSources CommitStrip 漫画 RSS + NewsAPI 美国头条
func DefaultSources() []DataSource {
	return []DataSource{
		{
			Name:    "commitstrip",
			FeedURL: "https://www.commitstrip.com/fr/feed/",
			APIURL:  "https://newsapi.org/v2/top-headlines?country=us&apiKey=" + APIKeyPlaceholder,
		},
	}
}

func Load() *Config {
	cfg := &Config{
		AppPort:          getEnv("APP_PORT", "9000"),
		PostgresDSN:      getEnv("POSTGRES_DSN", ""),
		RedisAddr:        getEnv("REDIS_ADDR", ""),
		CronSpec:         getEnv("CRON_SPEC", "*/30 * * * *"),
		NewsAPIKey:       getEnv("NEWSAPI_API_KEY", ""),
		SourcesFile:      getEnv("SOURCES_FILE", ""),
		HTTPTimeout:      getEnvDuration("HTTP_TIMEOUT", 10*time.Second),
		FetchConcurrency: getEnvInt("FETCH_CONCURRENCY", 4),
		CacheTTL:         getEnvDuration("CACHE_TTL", time.Hour),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		BasicAuthUser:    getEnv("APP_BASIC_USER", ""),
		BasicAuthPass:    getEnv("APP_BASIC_PASS", ""),
	}
	SetupLogging(cfg.LogLevel)

	sources := DefaultSources()
	if cfg.SourcesFile != "" {
		loaded, err := LoadSources(cfg.SourcesFile)
		if err != nil {
			log.Warnf("config: %v, falling back to default sources", err)
		} else if len(loaded) > 0 {
			sources = loaded
		}
	}
	cfg.Sources = ResolveSources(sources, cfg.NewsAPIKey)

	if cfg.NewsAPIKey == "" {
		log.Warn("config: NEWSAPI_API_KEY is not set, API requests will be rejected")
	}
	log.Printf("config loaded: port=%s cron=%s sources=%d", cfg.AppPort, cfg.CronSpec, len(cfg.Sources))
	return cfg
}

type sourcesFile struct {
	Sources []DataSource `toml:"sources"`
}

// LoadSources 读取 TOML 数据源文件，格式为若干 [[sources]] 表
func LoadSources(path string) ([]DataSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sources file: %w", err)
	}

	var f sourcesFile
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse sources file: %w", err)
	}

	for i, s := range f.Sources {
		if s.FeedURL == "" && s.APIURL == "" {
			return nil, fmt.Errorf("source #%d (%s) has neither feed_url nor api_url", i, s.Name)
		}
		if s.Name == "" {
			f.Sources[i].Name = fmt.Sprintf("source-%d", i+1)
		}
	}
	return f.Sources, nil
}

// ResolveSources 把 API 地址中的 {apiKey} 占位符替换为真实密钥，返回新切片
func ResolveSources(sources []DataSource, apiKey string) []DataSource {
	out := make([]DataSource, 0, len(sources))
	for _, s := range sources {
		s.APIURL = strings.ReplaceAll(s.APIURL, APIKeyPlaceholder, apiKey)
		out = append(out, s)
	}
	return out
}

// SetupLogging 按 LOG_LEVEL 设置 logrus 级别，非法值退回 info
func SetupLogging(level string) {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		lvl = log.InfoLevel
	}
	log.SetLevel(lvl)
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		log.Warnf("config: invalid %s=%q, using %d", key, v, def)
		return def
	}
	return n
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Warnf("config: invalid %s=%q, using %s", key, v, def)
		return def
	}
	return d
}
