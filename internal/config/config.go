package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App     AppConfig     `mapstructure:"app"`
	Server  ServerConfig  `mapstructure:"server"`
	Log     LogConfig     `mapstructure:"log"`
	DB      DBConfig      `mapstructure:"db"`
	Cron    CronConfig    `mapstructure:"cron"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Source  SourceConfig  `mapstructure:"source"`
	Ledger  LedgerConfig  `mapstructure:"ledger"`
	Waiter  WaiterConfig  `mapstructure:"waiter"`
	Sheets  SheetsConfig  `mapstructure:"sheets"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

type AppConfig struct {
	Env      string `mapstructure:"env"`
	Timezone string `mapstructure:"timezone"`
}

type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
	// StreamOrigins are browser origins allowed to open the websocket stream.
	StreamOrigins []string `mapstructure:"stream_origins"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type DBConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone        string        `mapstructure:"timezone"`
}

type CronConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Refresh runs the cheap load; Sync, when set, forces a full sync.
	Refresh string        `mapstructure:"refresh"`
	Sync    string        `mapstructure:"sync"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type CacheConfig struct {
	Backend   string      `mapstructure:"backend"`
	KeyPrefix string      `mapstructure:"key_prefix"`
	Redis     RedisConfig `mapstructure:"redis"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type SourceConfig struct {
	// Kind selects the event source: "ledger" or "sheets".
	Kind  string `mapstructure:"kind"`
	Scope string `mapstructure:"scope"`
	// SyncCooldown is the minimum gap before an empty read may sync again.
	SyncCooldown time.Duration `mapstructure:"sync_cooldown"`
	SyncTimeout  time.Duration `mapstructure:"sync_timeout"`
}

type LedgerConfig struct {
	RPCURL          string        `mapstructure:"rpc_url"`
	ChainID         int64         `mapstructure:"chain_id"`
	ContractAddress string        `mapstructure:"contract_address"`
	PrivateKey      string        `mapstructure:"private_key"`
	ReadFunction    string        `mapstructure:"read_function"`
	SyncFunction    string        `mapstructure:"sync_function"`
	SyncValue       string        `mapstructure:"sync_value"`
	Timeout         time.Duration `mapstructure:"timeout"`
	RequestsPerSec  float64       `mapstructure:"requests_per_sec"`
	Burst           int           `mapstructure:"burst"`
}

type WaiterConfig struct {
	PollInterval       time.Duration `mapstructure:"poll_interval"`
	Retries            int           `mapstructure:"retries"`
	AppealPollInterval time.Duration `mapstructure:"appeal_poll_interval"`
	AppealRetries      int           `mapstructure:"appeal_retries"`
}

type SheetsConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	SheetID   string        `mapstructure:"sheet_id"`
	SheetName string        `mapstructure:"sheet_name"`
	APIKey    string        `mapstructure:"api_key"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	Issuer    string        `mapstructure:"issuer"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("EVS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	setDefaults(v)

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "dev")
	v.SetDefault("app.timezone", "UTC")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("server.stream_origins", []string{})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("db.driver", "sqlite")
	v.SetDefault("db.dsn", "eventsync.db")
	v.SetDefault("db.max_open_conns", 10)
	v.SetDefault("db.max_idle_conns", 2)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("cron.enabled", true)
	v.SetDefault("cron.refresh", "@every 5m")
	v.SetDefault("cron.sync", "")
	v.SetDefault("cron.timeout", "15m")
	v.SetDefault("cache.backend", "db")
	v.SetDefault("cache.key_prefix", "eventsync_")
	v.SetDefault("cache.redis.addr", "127.0.0.1:6379")
	v.SetDefault("cache.redis.password", "")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("source.kind", "ledger")
	v.SetDefault("source.scope", "events")
	v.SetDefault("source.sync_cooldown", "30m")
	v.SetDefault("source.sync_timeout", "15m")

	// Studionet finality can take several minutes.
	v.SetDefault("ledger.rpc_url", "https://studio.genlayer.com/api")
	v.SetDefault("ledger.chain_id", 61999)
	v.SetDefault("ledger.contract_address", "0xA9485ec8a442189F25D70399f12dF370b23408fb")
	v.SetDefault("ledger.private_key", "")
	v.SetDefault("ledger.read_function", "read_events")
	v.SetDefault("ledger.sync_function", "sync_events")
	v.SetDefault("ledger.sync_value", "0")
	v.SetDefault("ledger.timeout", "30s")
	v.SetDefault("ledger.requests_per_sec", 2.0)
	v.SetDefault("ledger.burst", 4)
	v.SetDefault("waiter.poll_interval", "5s")
	v.SetDefault("waiter.retries", 100)
	v.SetDefault("waiter.appeal_poll_interval", "5s")
	v.SetDefault("waiter.appeal_retries", 60)

	v.SetDefault("sheets.base_url", "https://sheets.googleapis.com")
	v.SetDefault("sheets.sheet_id", "")
	v.SetDefault("sheets.sheet_name", "Genlayer events")
	v.SetDefault("sheets.api_key", "")
	v.SetDefault("sheets.timeout", "15s")

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "eventsync")
	v.SetDefault("auth.token_ttl", "24h")
	v.SetDefault("metrics.enabled", true)
}
