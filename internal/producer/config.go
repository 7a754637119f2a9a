package producer

import (
	"flag"
	"time"

	"github.com/arnabghosh/blazingmq-session/internal/config"
)

// Config holds the configuration for the producer
type Config struct {
	ConfigPath   string
	InstanceID   string
	QueueURI     string
	FilePath     string
	Count        int
	PayloadSize  int
	PostInterval time.Duration
	LoopMode     bool
	LoopDelay    time.Duration
	LockRedisURL string
	JournalAddr  string
}

// LoadConfig loads configuration from environment variables and command-line flags
func LoadConfig() *Config {
	cfg := &Config{}

	flag.StringVar(&cfg.ConfigPath, "config", config.GetEnv("BMQ_CONFIG", ""), "Path to a YAML or TOML config file")
	flag.StringVar(&cfg.InstanceID, "instance-id", config.GetEnv("INSTANCE_ID", "producer-1"), "Unique instance ID for this producer")
	flag.StringVar(&cfg.QueueURI, "queue", config.GetEnv("QUEUE_URI", "bmq://bmq.test.mem.priority/orders"), "Queue to post to")
	flag.StringVar(&cfg.FilePath, "file", config.GetEnv("MESSAGE_FILE", ""), "CSV message file; synthetic messages are posted when empty")
	flag.IntVar(&cfg.Count, "count", config.GetEnvAsInt("MESSAGE_COUNT", 100), "Number of synthetic messages per pass")
	flag.IntVar(&cfg.PayloadSize, "payload-size", config.GetEnvAsInt("PAYLOAD_SIZE", 64), "Size of synthetic payloads in bytes")
	flag.DurationVar(&cfg.PostInterval, "interval", config.GetEnvAsDuration("POST_INTERVAL", 10*time.Millisecond), "Interval between posts")
	flag.BoolVar(&cfg.LoopMode, "loop", config.GetEnvAsBool("LOOP_MODE", false), "Start a new pass after each completed pass")
	flag.DurationVar(&cfg.LoopDelay, "loop-delay", config.GetEnvAsDuration("LOOP_DELAY", 5*time.Second), "Delay between passes in loop mode")
	flag.StringVar(&cfg.LockRedisURL, "lock-redis-url", config.GetEnv("LOCK_REDIS_URL", ""), "Redis URL of the batch lock shared by producer instances")
	flag.StringVar(&cfg.JournalAddr, "journal-addr", config.GetEnv("JOURNAL_ADDR", ""), "Address serving the ack journal API, empty to disable")

	flag.Parse()

	return cfg
}
