package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Security SecurityConfig `mapstructure:"security"`
	Guild    GuildConfig    `mapstructure:"guild"`
}

type ServerConfig struct {
	Port     int    `mapstructure:"port"`
	Debug    bool   `mapstructure:"debug"`
	AdminKey string `mapstructure:"admin_key"`
	// AdminIPs restricts admin endpoints to these client IPs.
	// An empty list allows any IP (the X-Admin-Key check still applies).
	AdminIPs []string `mapstructure:"admin_ips"`
}

type DatabaseConfig struct {
	Mode        string        `mapstructure:"mode"` // sqlite_memory | sqlite | mysql | postgres
	SQLitePath  string        `mapstructure:"sqlite_path"`
	MySQLDSN    string        `mapstructure:"mysql_dsn"`
	PostgresDSN string        `mapstructure:"postgres_dsn"`
	MaxOpen     int           `mapstructure:"max_open"`
	MaxIdle     int           `mapstructure:"max_idle"`
	MaxLife     time.Duration `mapstructure:"max_life"`
}

type CacheConfig struct {
	RedisAddr       string        `mapstructure:"redis_addr"`
	RedisPassword   string        `mapstructure:"redis_password"`
	RedisDB         int           `mapstructure:"redis_db"`
	LocalGCInterval time.Duration `mapstructure:"local_gc_interval"`
	LocalPubSubBuf  int           `mapstructure:"local_pubsub_buf"`
}

type SecurityConfig struct {
	JWTSecret      string        `mapstructure:"jwt_secret"`
	JWTTTLH        time.Duration `mapstructure:"jwt_ttl_h"`
	RateLimitRPS   float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst"`
	RateLimitSweep time.Duration `mapstructure:"rate_limit_sweep"`
}

// GuildConfig is the single home of every guild tunable. The member
// capacity in particular drifted across the original migration history
// (5 → 1 → 2 → 5), so nothing outside this struct may restate it.
type GuildConfig struct {
	MemberCapacity  int      `mapstructure:"member_capacity"`
	QuestThreshold  int64    `mapstructure:"quest_threshold_xp"`
	EligibleRanks   []string `mapstructure:"eligible_ranks"`
	NameMinLen      int      `mapstructure:"name_min_len"`
	NameMaxLen      int      `mapstructure:"name_max_len"`
	RankingPageSize int      `mapstructure:"ranking_page_size"`
}

// EligibleRank reports whether the given plan rank may use guild features.
func (g GuildConfig) EligibleRank(rank string) bool {
	for _, r := range g.EligibleRanks {
		if r == rank {
			return true
		}
	}
	return false
}

// Load reads config from the given YAML file path.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.debug", false)
	v.SetDefault("database.mode", "sqlite")
	v.SetDefault("database.sqlite_path", "./data/jazzify.db")
	v.SetDefault("database.max_open", 50)
	v.SetDefault("database.max_idle", 10)
	v.SetDefault("database.max_life", "1h")
	v.SetDefault("cache.local_gc_interval", "30s")
	v.SetDefault("cache.local_pubsub_buf", 256)
	v.SetDefault("security.jwt_ttl_h", "72h")
	v.SetDefault("security.rate_limit_rps", 100)
	v.SetDefault("security.rate_limit_burst", 200)
	v.SetDefault("security.rate_limit_sweep", "5m")
	v.SetDefault("guild.member_capacity", 5)
	v.SetDefault("guild.quest_threshold_xp", 1000)
	v.SetDefault("guild.eligible_ranks", []string{"standard", "premium", "platinum"})
	v.SetDefault("guild.name_min_len", 2)
	v.SetDefault("guild.name_max_len", 50)
	v.SetDefault("guild.ranking_page_size", 20)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
