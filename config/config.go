package config

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v4"
)

type Config struct {
	Database       DatabaseConfig       `yaml:"database"`
	Kafka          KafkaConfig          `yaml:"kafka"`
	Redis          RedisConfig          `yaml:"redis"`
	Firebase       FirebaseConfig       `yaml:"firebase"`
	SeventeenTrack SeventeenTrackConfig `yaml:"seventeentrack"`
	WooCommerce    WooCommerceConfig    `yaml:"woocommerce"`
	Slack          SlackConfig          `yaml:"slack"`
	TrackFaro      TrackFaroConfig      `yaml:"trackfaro"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DBName   string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

type KafkaConfig struct {
	Host                     string `yaml:"host"`
	Port                     int    `yaml:"port"`
	ShipmentUpdatedTopicName string `yaml:"shipment_updated_topic_name"`
}

type RedisConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type FirebaseConfig struct {
	DatabaseURL string `yaml:"database_url"`
	Secret      string `yaml:"secret"`
}

type SeventeenTrackConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
}

type WooCommerceConfig struct {
	BaseURL        string `yaml:"base_url"`
	ConsumerKey    string `yaml:"consumer_key"`
	ConsumerSecret string `yaml:"consumer_secret"`
}

type SlackConfig struct {
	WebhookURL string `yaml:"webhook_url"`
}

// MessageTemplate — шаблон фиктивного сообщения.
// Days отсчитывается от якорной даты отгрузки; Hour "HH:MM" или пусто
// (пусто/00:00 = сохранить исходное время якоря).
// AppliesTo: "both" | "with_tracking" | "without_tracking".
type MessageTemplate struct {
	Message   string `yaml:"message"`
	Days      int    `yaml:"days"`
	Hour      string `yaml:"hour"`
	AppliesTo string `yaml:"applies_to"`
}

type TrackFaroConfig struct {
	HTTPAddr           string `yaml:"http_addr"`
	APIKey             string `yaml:"api_key"`
	KafkaConsumerGroup string `yaml:"kafka_consumer_group"`

	Timezone string `yaml:"timezone"` // default America/Sao_Paulo

	// "firebase" | "postgres"
	StateBackend string `yaml:"state_backend"`

	ResultCacheTTLSeconds int `yaml:"result_cache_ttl_seconds"`

	SweeperHTTPAddr         string `yaml:"sweeper_http_addr"`
	SweepIntervalSeconds    int    `yaml:"sweep_interval_seconds"`
	SweepOrderLimit         int    `yaml:"sweep_order_limit"`
	SweepLookbackDays       int    `yaml:"sweep_lookback_days"`
	SweepBatchSize          int    `yaml:"sweep_batch_size"`
	SweepBatchPauseSeconds  int    `yaml:"sweep_batch_pause_seconds"`
	SweepRateLimitPerMinute int    `yaml:"sweep_rate_limit_per_minute"`

	// Переопределение шаблонов Cainiao-кодов (regexp). Пусто = дефолтные.
	CainiaoPatterns []string `yaml:"cainiao_patterns"`

	FictitiousMessages []MessageTemplate `yaml:"fictitious_messages"`
}

func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}

	return &config, nil
}
