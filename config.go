package restbus

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the declarative form of the settings a Client otherwise takes
// through NewClient and its ClientOptions, for callers who prefer to keep
// broker connection details out of code.
type Config struct {
	URL            string         `yaml:"url"`
	Exchange       ExchangeConfig `yaml:"exchange"`
	DefaultTimeout yamlDuration   `yaml:"default_timeout"`
	BaseURI        string         `yaml:"base_uri"`
}

// ExchangeConfig is the yaml-mapped form of ExchangeDescriptor.
type ExchangeConfig struct {
	Name             string       `yaml:"name"`
	Type             string       `yaml:"type"`
	Durable          bool         `yaml:"durable"`
	AutoDelete       bool         `yaml:"auto_delete"`
	CallbackQueueTTL yamlDuration `yaml:"callback_queue_ttl"`
}

// LoadConfig reads and validates a Config from a YAML file at path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read restbus config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse restbus config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validate restbus config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.URL == "" {
		return fmt.Errorf("url must not be empty")
	}
	if c.DefaultTimeout == 0 {
		c.DefaultTimeout = yamlDuration(30 * time.Second)
	}
	return nil
}

// Descriptor converts the YAML-mapped exchange settings into an
// ExchangeDescriptor suitable for NewClient.
func (c *Config) Descriptor() ExchangeDescriptor {
	return ExchangeDescriptor{
		ExchangeName:     c.Exchange.Name,
		ExchangeType:     c.Exchange.Type,
		Durable:          c.Exchange.Durable,
		AutoDelete:       c.Exchange.AutoDelete,
		CallbackQueueTTL: time.Duration(c.Exchange.CallbackQueueTTL),
	}
}

// NewClient builds a Client from a loaded Config, applying its default
// timeout and base URI alongside any additional options.
func (c *Config) NewClient(opts ...ClientOption) *Client {
	all := append([]ClientOption{
		WithDefaultTimeout(time.Duration(c.DefaultTimeout)),
		WithBaseURI(c.BaseURI),
	}, opts...)
	return NewClient(c.URL, c.Descriptor(), all...)
}

// yamlDuration parses human-readable duration strings ("5s", "500ms") from
// YAML instead of requiring a raw integer nanosecond count.
type yamlDuration time.Duration

func (d *yamlDuration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	if s == "" {
		*d = 0
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = yamlDuration(parsed)
	return nil
}
