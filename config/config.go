package config

import (
	"fmt"
	"time"

	"github.com/Gobusters/ectoenv"
	"github.com/joho/godotenv"
)

type Config struct {
	AppName                       string   `env:"APP_NAME" env-default:"willow-api"`
	Port                          int      `env:"PORT" env-default:"3004"`
	LogLevel                      string   `env:"LOG_LEVEL" env-default:"info"`
	PrettyLogs                    bool     `env:"PRETTY_LOGS" env-default:"false"`
	HttpServerWriteTimeoutSeconds int      `env:"HTTP_SERVER_WRITE_TIMEOUT_SECONDS" env-default:"10"`
	HttpServerReadTimeoutSeconds  int      `env:"HTTP_SERVER_READ_TIMEOUT_SECONDS" env-default:"10"`
	HttpServerIdleTimeoutSeconds  int      `env:"HTTP_SERVER_IDLE_TIMEOUT_SECONDS" env-default:"10"`
	AllowOrigins                  []string `env:"HTTP_SERVER_ALLOW_ORIGINS" env-default:"*"`
	AllowMethods                  []string `env:"HTTP_SERVER_ALLOW_METHODS" env-default:"GET,POST,PUT,DELETE"`

	// PostgreSQL (canonical store)
	DatabaseHost                string        `env:"DB_HOST" env-default:"localhost"`
	DatabasePort                int           `env:"DB_PORT" env-default:"5432"`
	DatabaseUserName            string        `env:"DB_USER_NAME" env-default:""`
	DatabasePassword            string        `env:"DB_PASSWORD" env-default:""`
	DatabaseName                string        `env:"DB_NAME" env-default:"willow"`
	DatabaseSSLMode             string        `env:"DB_SSL_MODE" env-default:"disable"`
	DatabaseMaxOpenConns        int           `env:"DB_MAX_OPEN_CONNS" env-default:"25"`
	DatabaseMaxIdleConns        int           `env:"DB_MAX_IDLE_CONNS" env-default:"10"`
	DatabaseConnMaxLifetime     time.Duration `env:"DB_CONN_MAX_LIFETIME" env-default:"10s"`
	DatabaseMigrationFolderPath string        `env:"DB_MIGRATION_FOLDER_PATH" env-default:"db/pg"`
	DatabaseMigrationVersion    int           `env:"DB_MIGRATION_VERSION" env-default:"0"`
	DatabaseMigrationForce      int           `env:"DB_MIGRATION_FORCE" env-default:"0"`

	// Graph database (Neo4j compatible)
	GraphDBHost     string `env:"GRAPH_DB_HOST" env-default:"localhost"`
	GraphDBPort     int    `env:"GRAPH_DB_PORT" env-default:"7687"`
	GraphDBUser     string `env:"GRAPH_DB_USER" env-default:""`
	GraphDBPassword string `env:"GRAPH_DB_PASSWORD" env-default:""`

	// Kafka (canonical fact events out, incremental graph sync in)
	KafkaBrokers       []string `env:"KAFKA_BROKERS" env-default:"localhost:9092"`
	KafkaOutputTopic   string   `env:"KAFKA_OUTPUT_TOPIC" env-default:"fact-events"`
	KafkaConsumerGroup string   `env:"KAFKA_CONSUMER_GROUP" env-default:"willow-graph-sync"`
	KafkaBatchSize     int      `env:"KAFKA_BATCH_SIZE" env-default:"100"`
	KafkaBatchTimeout  int      `env:"KAFKA_BATCH_TIMEOUT_MS" env-default:"100"`
	KafkaRequiredAcks  int      `env:"KAFKA_REQUIRED_ACKS" env-default:"1"`
	KafkaCompression   string   `env:"KAFKA_COMPRESSION" env-default:"snappy"`
	KafkaEnabled       bool     `env:"KAFKA_ENABLED" env-default:"true"`
	GraphSyncConsumer  bool     `env:"GRAPH_SYNC_CONSUMER" env-default:"false"`

	// Pipeline
	GraphSyncBatchSize    int     `env:"GRAPH_SYNC_BATCH_SIZE" env-default:"500"`
	NormalizeMinConfidence float64 `env:"NORMALIZE_MIN_CONFIDENCE" env-default:"0.5"`
	NormalizeMaxConfidence float64 `env:"NORMALIZE_MAX_CONFIDENCE" env-default:"0.95"`

	// Enrichment providers
	NoradAPIBase        string        `env:"NORAD_API_BASE" env-default:"https://apim-br-online-prod.azure-api.net/resultatportal-prod-api-dotnet"`
	NoradAPIKey         string        `env:"NORAD_API_KEY" env-default:""`
	OECDAPIBase         string        `env:"OECD_API_BASE" env-default:"https://sdmx.oecd.org/public/rest"`
	EnrichMaxAttempts   int           `env:"ENRICH_MAX_ATTEMPTS" env-default:"4"`
	EnrichInitialDelay  time.Duration `env:"ENRICH_INITIAL_DELAY" env-default:"500ms"`
	EnrichMaxDelay      time.Duration `env:"ENRICH_MAX_DELAY" env-default:"15s"`
	EnrichAcceptScore   float64       `env:"ENRICH_ACCEPT_SCORE" env-default:"0.78"`
	EnrichHintScore     float64       `env:"ENRICH_HINT_SCORE" env-default:"0.72"`
}

// Load reads the configuration from the environment. A .env file in the
// working directory is applied first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := ectoenv.BindEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to bind environment config: %w", err)
	}

	return &cfg, nil
}

// PostgresDSN builds the connection string for the canonical store.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DatabaseHost, c.DatabasePort, c.DatabaseUserName, c.DatabasePassword, c.DatabaseName, c.DatabaseSSLMode)
}

// GraphDBURI builds the bolt URI for the graph read model.
func (c *Config) GraphDBURI() string {
	return fmt.Sprintf("bolt://%s:%d", c.GraphDBHost, c.GraphDBPort)
}
