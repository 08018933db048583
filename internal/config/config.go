package config

import (
	"fmt"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	App       App       `yaml:"app"`
	HTTP      HTTP      `yaml:"http"`
	Log       Log       `yaml:"log"`
	Postgres  Postgres  `yaml:"postgres"`
	Redis     Redis     `yaml:"redis"`
	Kafka     Kafka     `yaml:"kafka"`
	Scheduler Scheduler `yaml:"scheduler"`
	Consumer  Consumer  `yaml:"consumer"`
}

type App struct {
	Name    string `yaml:"name" env:"APP_NAME" env-default:"kafka-correlation-monitor"`
	Version string `yaml:"version" env:"APP_VERSION" env-default:"1.0.0"`
}

type HTTP struct {
	Port string `yaml:"port" env:"HTTP_PORT" env-default:"8080"`
}

type Log struct {
	Level string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
}

type Postgres struct {
	Host     string `yaml:"host" env:"POSTGRES_HOST" env-default:"localhost"`
	Port     string `yaml:"port" env:"POSTGRES_PORT" env-default:"5432"`
	User     string `yaml:"user" env:"POSTGRES_USER" env-default:"user"`
	Password string `yaml:"password" env:"POSTGRES_PASSWORD" env-default:"password"`
	DBName   string `yaml:"dbname" env:"POSTGRES_DB" env-default:"correlation_db"`
}

type Redis struct {
	Addr     string `yaml:"addr" env:"REDIS_ADDR" env-default:"localhost:6379"`
	Password string `yaml:"password" env:"REDIS_PASSWORD" env-default:""`
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

type Kafka struct {
	Brokers []string `yaml:"brokers" env:"KAFKA_BROKERS" env-default:"localhost:9092"`
	// AckOnFailure commits a message even when processing failed, so one bad
	// message never blocks the partition. Disabling it holds the partition
	// instead: the failed message is retried until it succeeds and nothing
	// newer is fetched or committed past it.
	AckOnFailure bool        `yaml:"ack_on_failure" env:"KAFKA_ACK_ON_FAILURE" env-default:"true"`
	Pairs        []TopicPair `yaml:"pairs"`
}

// TopicPair binds a primary topic to its correlated topic. The correlated
// side consumes with ConsumerGroup + "-correlated" so multiple pairs can
// share topics without stepping on each other's offsets.
type TopicPair struct {
	Name                    string `yaml:"name"`
	CorrelatedTopic         string `yaml:"correlated_topic"`
	ConsumerGroup           string `yaml:"consumer_group"`
	KeyOfInterest           string `yaml:"key_of_interest"`
	CorrelatedKeyOfInterest string `yaml:"correlated_key_of_interest"`
}

func (p TopicPair) CorrelatedConsumerGroup() string {
	return p.ConsumerGroup + "-correlated"
}

type Scheduler struct {
	CleanupIntervalSeconds     int `yaml:"cleanup_interval_seconds" env:"SCHEDULER_CLEANUP_INTERVAL_SECONDS" env-default:"60"`
	MonitorIntervalSeconds     int `yaml:"monitor_interval_seconds" env:"SCHEDULER_MONITOR_INTERVAL_SECONDS" env-default:"30"`
	MonitorAgeThresholdSeconds int `yaml:"monitor_age_threshold_seconds" env:"SCHEDULER_MONITOR_AGE_THRESHOLD_SECONDS" env-default:"300"`
}

type Consumer struct {
	StatusPort string `yaml:"status_port" env:"CONSUMER_STATUS_PORT" env-default:"9091"`
}

func New() (*Config, error) {
	cfg := &Config{}

	if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
		// fallback to env vars if file not found
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("config error: %w", err)
		}
	} else {
		// Allow env vars to override config file
		cleanenv.ReadEnv(cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects partially configured topic pairs. A pair missing any of
// name, correlated_topic or consumer_group is fatal at startup.
func (c *Config) Validate() error {
	for i, p := range c.Kafka.Pairs {
		if p.Name == "" {
			return fmt.Errorf("kafka pair %d: missing name", i)
		}
		if p.CorrelatedTopic == "" {
			return fmt.Errorf("kafka pair %q: missing correlated_topic", p.Name)
		}
		if p.ConsumerGroup == "" {
			return fmt.Errorf("kafka pair %q: missing consumer_group", p.Name)
		}
	}
	return nil
}
