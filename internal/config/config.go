package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	OpenAI     OpenAIConfig     `yaml:"openai" mapstructure:"openai"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	GoogleAds  GoogleAdsConfig  `yaml:"google_ads" mapstructure:"google_ads"`
	Zoho       ZohoConfig       `yaml:"zoho" mapstructure:"zoho"`
	Salesforce SalesforceConfig `yaml:"salesforce" mapstructure:"salesforce"`
	CRM        CRMConfig        `yaml:"crm" mapstructure:"crm"`
	Notion     NotionConfig     `yaml:"notion" mapstructure:"notion"`
	SMTP       SMTPConfig       `yaml:"smtp" mapstructure:"smtp"`
	Brief      BriefConfig      `yaml:"brief" mapstructure:"brief"`
	Policy     PolicyConfig     `yaml:"policy" mapstructure:"policy"`
	Redis      RedisConfig      `yaml:"redis" mapstructure:"redis"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the persistence backend.
//
// Driver "rest" talks to a PostgREST endpoint (Supabase) with URL and Key.
// Drivers "postgres" and "sqlite" use DatabaseURL directly.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	URL         string `yaml:"url" mapstructure:"url"`
	Key         string `yaml:"key" mapstructure:"key"`
	Schema      string `yaml:"schema" mapstructure:"schema"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	ChunkSize   int    `yaml:"chunk_size" mapstructure:"chunk_size"`
	Retries     int    `yaml:"retries" mapstructure:"retries"`
}

// OpenAIConfig holds settings for the decision model endpoint.
type OpenAIConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// AnthropicConfig holds settings for the daily brief model.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// GoogleAdsConfig holds Google Ads API credentials.
type GoogleAdsConfig struct {
	ClientID        string   `yaml:"client_id" mapstructure:"client_id"`
	ClientSecret    string   `yaml:"client_secret" mapstructure:"client_secret"`
	DeveloperToken  string   `yaml:"developer_token" mapstructure:"developer_token"`
	RefreshToken    string   `yaml:"refresh_token" mapstructure:"refresh_token"`
	LoginCustomerID string   `yaml:"login_customer_id" mapstructure:"login_customer_id"`
	CustomerIDs     []string `yaml:"customer_ids" mapstructure:"customer_ids"`
	BaseURL         string   `yaml:"base_url" mapstructure:"base_url"`
	TokenURL        string   `yaml:"token_url" mapstructure:"token_url"`
	RateLimit       float64  `yaml:"rate_limit" mapstructure:"rate_limit"`
	Concurrency     int      `yaml:"concurrency" mapstructure:"concurrency"`
}

// ZohoConfig holds Zoho CRM OAuth and write-back settings.
type ZohoConfig struct {
	AccountsURL  string `yaml:"accounts_url" mapstructure:"accounts_url"`
	BaseURL      string `yaml:"base_url" mapstructure:"base_url"`
	ClientID     string `yaml:"client_id" mapstructure:"client_id"`
	ClientSecret string `yaml:"client_secret" mapstructure:"client_secret"`
	RefreshToken string `yaml:"refresh_token" mapstructure:"refresh_token"`
	Writeback    bool   `yaml:"writeback" mapstructure:"writeback"`
}

// SalesforceConfig holds Salesforce JWT auth settings.
type SalesforceConfig struct {
	ClientID string `yaml:"client_id" mapstructure:"client_id"`
	Username string `yaml:"username" mapstructure:"username"`
	KeyPath  string `yaml:"key_path" mapstructure:"key_path"`
	LoginURL string `yaml:"login_url" mapstructure:"login_url"`
}

// CRMConfig selects the write-back provider.
type CRMConfig struct {
	Provider string `yaml:"provider" mapstructure:"provider"`
}

// NotionConfig holds Notion credentials for the brief archive.
type NotionConfig struct {
	Token   string `yaml:"token" mapstructure:"token"`
	BriefDB string `yaml:"brief_db" mapstructure:"brief_db"`
}

// SMTPConfig holds mail submission settings.
type SMTPConfig struct {
	Host string `yaml:"host" mapstructure:"host"`
	Port int    `yaml:"port" mapstructure:"port"`
	User string `yaml:"user" mapstructure:"user"`
	Pass string `yaml:"pass" mapstructure:"pass"`
	From string `yaml:"from" mapstructure:"from"`
	To   string `yaml:"to" mapstructure:"to"`
}

// BriefConfig toggles the daily brief delivery channels.
type BriefConfig struct {
	SendEmail     bool   `yaml:"send_email" mapstructure:"send_email"`
	PublishNotion bool   `yaml:"publish_notion" mapstructure:"publish_notion"`
	Company       string `yaml:"company" mapstructure:"company"`
}

// PolicyConfig bounds what the decision model may recommend.
type PolicyConfig struct {
	MaxBudgetChangePct float64  `yaml:"max_budget_change_pct" mapstructure:"max_budget_change_pct"`
	AllowedActions     []string `yaml:"allowed_actions" mapstructure:"allowed_actions"`
}

// RedisConfig configures the optional identity lock backend.
type RedisConfig struct {
	Addr        string `yaml:"addr" mapstructure:"addr"`
	Password    string `yaml:"password" mapstructure:"password"`
	DB          int    `yaml:"db" mapstructure:"db"`
	LockTTLSecs int    `yaml:"lock_ttl_secs" mapstructure:"lock_ttl_secs"`
}

// ServerConfig configures the webhook server.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
	DebugRoutes bool     `yaml:"debug_routes" mapstructure:"debug_routes"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("GROWTH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	for _, key := range envOnlyKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, eris.Wrapf(err, "config: bind env %s", key)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// envOnlyKeys have no default, so viper only sees them from the
// environment when they are bound explicitly.
var envOnlyKeys = []string{
	"store.url", "store.key", "store.schema", "store.database_url",
	"openai.key", "anthropic.key",
	"google_ads.client_id", "google_ads.client_secret", "google_ads.developer_token",
	"google_ads.refresh_token", "google_ads.login_customer_id", "google_ads.customer_ids",
	"zoho.client_id", "zoho.client_secret", "zoho.refresh_token",
	"salesforce.client_id", "salesforce.username", "salesforce.key_path",
	"notion.token", "notion.brief_db",
	"smtp.host", "smtp.user", "smtp.pass", "smtp.from", "smtp.to",
	"brief.send_email", "brief.publish_notion",
	"redis.addr", "redis.password", "redis.db",
	"server.cors_origins", "server.debug_routes",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.driver", "rest")
	v.SetDefault("store.chunk_size", 1000)
	v.SetDefault("store.retries", 3)
	v.SetDefault("openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("openai.model", "gpt-4.1-mini")
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 1024)
	v.SetDefault("google_ads.base_url", "https://googleads.googleapis.com/v17")
	v.SetDefault("google_ads.token_url", "https://oauth2.googleapis.com/token")
	v.SetDefault("google_ads.rate_limit", 5)
	v.SetDefault("google_ads.concurrency", 4)
	v.SetDefault("zoho.accounts_url", "https://accounts.zoho.com")
	v.SetDefault("zoho.base_url", "https://www.zohoapis.com")
	v.SetDefault("zoho.writeback", false)
	v.SetDefault("salesforce.login_url", "https://login.salesforce.com")
	v.SetDefault("crm.provider", "zoho")
	v.SetDefault("smtp.port", 587)
	v.SetDefault("brief.company", "Lixo Healthcare Equipment")
	v.SetDefault("policy.max_budget_change_pct", 15)
	v.SetDefault("policy.allowed_actions", []string{"increase_budget", "decrease_budget", "no_change"})
	v.SetDefault("redis.lock_ttl_secs", 10)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Require returns an error naming every key whose value is empty. Batch jobs
// call it before doing any work so missing configuration is fatal up front.
func Require(pairs ...string) error {
	if len(pairs)%2 != 0 {
		return eris.New("config: require needs key/value pairs")
	}
	var missing []string
	for i := 0; i < len(pairs); i += 2 {
		if strings.TrimSpace(pairs[i+1]) == "" {
			missing = append(missing, pairs[i])
		}
	}
	if len(missing) > 0 {
		return eris.New(fmt.Sprintf("config: missing %s", strings.Join(missing, ", ")))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
