package config

type DatabaseConfig struct {
	Host            string `toml:"host" env:"CARDCORE_DB_HOST"`
	Port            string `toml:"port" env:"CARDCORE_DB_PORT" env-default:"5432"`
	User            string `toml:"user" env:"CARDCORE_DB_USER"`
	Password        string `toml:"password" env:"CARDCORE_DB_PASSWORD"`
	DB              string `toml:"db" env:"CARDCORE_DB_NAME"`
	SslMode         string `toml:"ssl_mode" env:"CARDCORE_DB_SSL_MODE" env-default:"disable"`
	MaxConns        int    `toml:"max_conns" env:"CARDCORE_DB_MAX_CONNS" env-default:"25"`
	MinConns        int    `toml:"min_conns" env:"CARDCORE_DB_MIN_CONNS" env-default:"5"`
	MaxConnLifetime int    `toml:"max_conn_lifetime" env:"CARDCORE_DB_MAX_CONN_LIFETIME" env-default:"5"`
	MaxConnIdleTime int    `toml:"max_conn_idle_time" env:"CARDCORE_DB_MAX_CONN_IDLE_TIME" env-default:"1"`
}

type RedisConfig struct {
	Host     string `toml:"host" env:"CARDCORE_REDIS_HOST"`
	Port     string `toml:"port" env:"CARDCORE_REDIS_PORT" env-default:"6379"`
	Password string `toml:"password" env:"CARDCORE_REDIS_PASSWORD"`
	DB       int    `toml:"db" env:"CARDCORE_REDIS_DB" env-default:"0"`
}

// RulesConfig seeds the default policy rule set the api builds its
// rules.Engine from at startup.
type RulesConfig struct {
	TransactionLimitDefault string `toml:"transaction_limit_default" env:"CARDCORE_RULES_TRANSACTION_LIMIT_DEFAULT" env-default:"1000.00"`
	DailyLimitDefault       string `toml:"daily_limit_default" env:"CARDCORE_RULES_DAILY_LIMIT_DEFAULT" env-default:"5000.00"`
	VelocityMaxPerMinute    int    `toml:"velocity_max_per_minute" env:"CARDCORE_RULES_VELOCITY_MAX_PER_MINUTE" env-default:"5"`
	BlockedMCCs             string `toml:"blocked_mccs" env:"CARDCORE_RULES_BLOCKED_MCCS" env-default:"7995,6211"`
}

// BankConfig selects and configures the active bankcore.BankAccountAdapter.
type BankConfig struct {
	Adapter        string `toml:"adapter" env:"CARDCORE_BANK_ADAPTER" env-default:"shadow"`
	BaseURL        string `toml:"base_url" env:"CARDCORE_BANK_BASE_URL"`
	APIKey         string `toml:"api_key" env:"CARDCORE_BANK_API_KEY"`
	TenantID       string `toml:"tenant_id" env:"CARDCORE_BANK_TENANT_ID"`
	HoldsGLAccount string `toml:"holds_gl_account" env:"CARDCORE_BANK_HOLDS_GL_ACCOUNT" env-default:"holds-gl"`
	TimeoutMS      int    `toml:"timeout_ms" env:"CARDCORE_BANK_TIMEOUT_MS" env-default:"2000"`

	GRPCHost        string `toml:"grpc_host" env:"CARDCORE_BANK_GRPC_HOST"`
	GRPCPort        string `toml:"grpc_port" env:"CARDCORE_BANK_GRPC_PORT" env-default:"9443"`
	GRPCTLSCertPath string `toml:"grpc_tls_cert_path" env:"CARDCORE_BANK_GRPC_TLS_CERT_PATH"`
}

type ProcessorConfig struct {
	Active string `toml:"active" env:"CARDCORE_PROCESSOR_ACTIVE" env-default:"generic"`
}

type ApiConfig struct {
	Database  DatabaseConfig  `toml:"database"`
	Redis     RedisConfig     `toml:"redis"`
	Rules     RulesConfig     `toml:"rules"`
	Bank      BankConfig      `toml:"bank"`
	Processor ProcessorConfig `toml:"processor"`
}
