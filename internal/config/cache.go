package config

// CacheConfig selects and configures the snapshot store.
type CacheConfig struct {
	Backend        string      `mapstructure:"BACKEND"        json:"backend"        validate:"required,cache_backend"`
	Dir            string      `mapstructure:"DIR"            json:"dir"`
	SQLitePath     string      `mapstructure:"SQLITE_PATH"    json:"sqlite_path"`
	PostgresURL    string      `mapstructure:"POSTGRES_URL"   json:"-"`
	Redis          RedisConfig `mapstructure:"REDIS"          json:"redis"`
	ConnectRetries int         `mapstructure:"CONNECT_RETRIES" json:"connect_retries" validate:"min=0,max=20"`
}

// RedisConfig holds the redis backend connection settings.
type RedisConfig struct {
	Addr     string `mapstructure:"ADDR"     json:"addr"`
	Password string `mapstructure:"PASSWORD" json:"-"`
	DB       int    `mapstructure:"DB"       json:"db" validate:"min=0,max=15"`
}
