package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	BackendSQS      = "sqs"
	BackendRabbitMQ = "rabbitmq"
)

type APIConfig struct {
	Port         string
	MaxBodyBytes int64

	Backend          string
	QueueURL         string
	Region           string
	ConfigurationSet string
	SQSEndpoint      string
	AccessKey        string
	SecretKey        string

	RMQURL string
	Queue  string

	DBDSN         string
	RenderWorkers int
}

// Error reports required configuration that is missing or malformed.
type Error struct {
	Missing []string
}

func (e *Error) Error() string {
	return "configuration error: missing " + strings.Join(e.Missing, ", ")
}

var API APIConfig

// fileValues holds CONFIG_PATH entries; environment variables take precedence.
var fileValues map[string]string

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	if v := fileValues[k]; v != "" {
		return v
	}
	return def
}

func getenvInt(k string, def int) int {
	if v := getenv(k, ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// loadFile reads a flat KEY: value YAML file and expands ${VAR} references.
func loadFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}
	var raw map[string]string
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &raw); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return raw, nil
}

// LoadAPI reads the notify-api configuration. Missing required keys are
// reported together in a *Error.
func LoadAPI() (APIConfig, error) {
	fileValues = nil
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		vals, err := loadFile(path)
		if err != nil {
			return APIConfig{}, err
		}
		fileValues = vals
	}

	cfg := APIConfig{
		Port:             getenv("PORT", "8080"),
		MaxBodyBytes:     int64(getenvInt("MAX_BODY_BYTES", 10<<20)),
		Backend:          strings.ToLower(getenv("QUEUE_BACKEND", BackendSQS)),
		QueueURL:         getenv("SQS_QUEUE_URL", ""),
		Region:           getenv("AWS_REGION", ""),
		ConfigurationSet: getenv("SES_CONFIGURATION_SET", ""),
		SQSEndpoint:      getenv("SQS_ENDPOINT", ""),
		AccessKey:        getenv("AWS_ACCESS_KEY_ID", ""),
		SecretKey:        getenv("AWS_SECRET_ACCESS_KEY", ""),
		RMQURL:           getenv("RMQ_URL", ""),
		Queue:            getenv("QUEUE", "send_email"),
		DBDSN:            getenv("DB_DSN", ""),
		RenderWorkers:    getenvInt("RENDER_WORKERS", 1),
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks the keys the selected queue backend needs.
func (c APIConfig) Validate() error {
	var missing []string
	switch c.Backend {
	case BackendSQS:
		if c.QueueURL == "" {
			missing = append(missing, "SQS_QUEUE_URL")
		}
		if c.Region == "" {
			missing = append(missing, "AWS_REGION")
		}
	case BackendRabbitMQ:
		if c.RMQURL == "" {
			missing = append(missing, "RMQ_URL")
		}
		if c.Queue == "" {
			missing = append(missing, "QUEUE")
		}
	default:
		missing = append(missing, "QUEUE_BACKEND (sqs|rabbitmq)")
	}
	if len(missing) > 0 {
		return &Error{Missing: missing}
	}
	return nil
}

func MustLoadAPI() {
	cfg, err := LoadAPI()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	API = cfg
}
