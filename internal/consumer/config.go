package consumer

import (
	"flag"
	"time"

	"github.com/arnabghosh/blazingmq-session/internal/config"
	"github.com/arnabghosh/blazingmq-session/internal/domain"
)

// Config holds the configuration for the consumer
type Config struct {
	ConfigPath              string
	InstanceID              string
	QueueURI                string
	MaxUnconfirmedMessages  int
	MaxUnconfirmedBytes     int
	ConsumerPriority        int
	SuspendsOnBadHostHealth bool
	ProcessingDelay         time.Duration
	MaxMessages             int
	DrainTimeout            time.Duration
}

// LoadConfig loads configuration from environment variables and command-line flags
func LoadConfig() *Config {
	cfg := &Config{}

	flag.StringVar(&cfg.ConfigPath, "config", config.GetEnv("BMQ_CONFIG", ""), "Path to a YAML or TOML config file")
	flag.StringVar(&cfg.InstanceID, "instance-id", config.GetEnv("INSTANCE_ID", "consumer-1"), "Unique instance ID for this consumer")
	flag.StringVar(&cfg.QueueURI, "queue", config.GetEnv("QUEUE_URI", "bmq://bmq.test.mem.priority/orders"), "Queue to consume from")
	flag.IntVar(&cfg.MaxUnconfirmedMessages, "max-unconfirmed", config.GetEnvAsInt("MAX_UNCONFIRMED_MESSAGES", domain.DefaultMaxUnconfirmedMessages), "Maximum unconfirmed messages")
	flag.IntVar(&cfg.MaxUnconfirmedBytes, "max-unconfirmed-bytes", config.GetEnvAsInt("MAX_UNCONFIRMED_BYTES", domain.DefaultMaxUnconfirmedBytes), "Maximum unconfirmed bytes")
	flag.IntVar(&cfg.ConsumerPriority, "priority", config.GetEnvAsInt("CONSUMER_PRIORITY", domain.DefaultConsumerPriority), "Consumer priority")
	flag.BoolVar(&cfg.SuspendsOnBadHostHealth, "suspend-on-bad-health", config.GetEnvAsBool("SUSPENDS_ON_BAD_HOST_HEALTH", false), "Suspend the queue while the host is unhealthy")
	flag.DurationVar(&cfg.ProcessingDelay, "processing-delay", config.GetEnvAsDuration("PROCESSING_DELAY", 0), "Simulated processing time per message")
	flag.IntVar(&cfg.MaxMessages, "max-messages", config.GetEnvAsInt("MAX_MESSAGES", 0), "Stop after confirming this many messages (0 = run until signalled)")
	flag.DurationVar(&cfg.DrainTimeout, "drain-timeout", config.GetEnvAsDuration("DRAIN_TIMEOUT", 30*time.Second), "Time allowed to stop deliveries and close the queue")

	flag.Parse()

	return cfg
}

// QueueOptions returns the options the queue is opened with
func (c *Config) QueueOptions() domain.QueueOptions {
	return domain.QueueOptions{
		MaxUnconfirmedMessages:  domain.Int(c.MaxUnconfirmedMessages),
		MaxUnconfirmedBytes:     domain.Int(c.MaxUnconfirmedBytes),
		ConsumerPriority:        domain.Int(c.ConsumerPriority),
		SuspendsOnBadHostHealth: domain.Bool(c.SuspendsOnBadHostHealth),
	}
}
