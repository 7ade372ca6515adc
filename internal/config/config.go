package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Server describes one VPN backend as supplied by configuration. It is a
// static descriptor; runtime state (status, latency, user counter) lives in
// the registry.
type Server struct {
	ID       string `yaml:"id" json:"id"`
	Name     string `yaml:"name" json:"name"`
	Location string `yaml:"location" json:"location"`

	Host        string `yaml:"host" json:"host"`
	SSHPort     int    `yaml:"ssh_port" json:"ssh_port"`
	SSHUser     string `yaml:"ssh_user" json:"ssh_user"`
	SSHKeyPath  string `yaml:"ssh_key_path" json:"ssh_key_path"`
	SSHPassword string `yaml:"ssh_password" json:"ssh_password"`

	XrayAPIPort int    `yaml:"xray_api_port" json:"xray_api_port"`
	InboundPort int    `yaml:"inbound_port" json:"inbound_port"`
	InboundTag  string `yaml:"inbound_tag" json:"inbound_tag"`

	// APIMode selects how users are provisioned on this server:
	// "ssh" shells out to the remote helper, "grpc" talks to the Xray
	// API through an SSH-forwarded connection.
	APIMode string `yaml:"api_mode" json:"api_mode"`

	RealityPrivateKey string `yaml:"reality_private_key" json:"reality_private_key"`
	RealityPublicKey  string `yaml:"reality_public_key" json:"reality_public_key"`
	RealityShortID    string `yaml:"reality_short_id" json:"reality_short_id"`
	RealityServerName string `yaml:"reality_server_name" json:"reality_server_name"`

	Priority int `yaml:"priority" json:"priority"`
	MaxUsers int `yaml:"max_users" json:"max_users"`
}

// Config holds all service settings.
type Config struct {
	ListenAddr string `yaml:"listen_addr"` // subscription HTTP
	APIAddr    string `yaml:"api_addr"`    // admin gRPC

	SubscriptionDomain string `yaml:"subscription_domain"`
	SubscriptionSecret string `yaml:"subscription_secret"`

	DatabaseURL string `yaml:"database_url"`

	DefaultFlow string `yaml:"default_flow"`

	ConnectTimeout      time.Duration `yaml:"connect_timeout"`
	RequestTimeout      time.Duration `yaml:"request_timeout"`
	HealthCheckInterval time.Duration `yaml:"health_check_interval"`
	StatsCacheTTL       time.Duration `yaml:"stats_cache_ttl"`

	Servers []Server `yaml:"servers"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		ListenAddr:          ":8080",
		APIAddr:             "127.0.0.1:50051",
		DefaultFlow:         "xtls-rprx-vision",
		ConnectTimeout:      10 * time.Second,
		RequestTimeout:      30 * time.Second,
		HealthCheckInterval: 60 * time.Second,
		StatsCacheTTL:       60 * time.Second,
	}
}

// Load reads the YAML config file at path (skipped when empty or missing),
// then applies environment overrides:
//
//	VPN_SUBSCRIPTION_DOMAIN  domain for subscription URLs
//	VPN_SUBSCRIPTION_SECRET  HMAC secret for tokens and key derivation
//	VPN_SERVERS              JSON array of server descriptors
//	DATABASE_URL             Postgres DSN for the key store
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("reading config: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}

	if v := os.Getenv("VPN_SUBSCRIPTION_DOMAIN"); v != "" {
		cfg.SubscriptionDomain = v
	}
	if v := os.Getenv("VPN_SUBSCRIPTION_SECRET"); v != "" {
		cfg.SubscriptionSecret = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("VPN_SERVERS"); v != "" {
		var servers []Server
		if err := json.Unmarshal([]byte(v), &servers); err != nil {
			return nil, fmt.Errorf("parsing VPN_SERVERS: %w", err)
		}
		cfg.Servers = servers
	}

	for i := range cfg.Servers {
		applyServerDefaults(&cfg.Servers[i])
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyServerDefaults(s *Server) {
	if s.ID == "" {
		s.ID = "default"
	}
	if s.Name == "" {
		s.Name = "VPN Server"
	}
	if s.Location == "" {
		s.Location = "Unknown"
	}
	if s.SSHPort == 0 {
		s.SSHPort = 22
	}
	if s.SSHUser == "" {
		s.SSHUser = "root"
	}
	if s.XrayAPIPort == 0 {
		s.XrayAPIPort = 10085
	}
	if s.InboundPort == 0 {
		s.InboundPort = 443
	}
	if s.InboundTag == "" {
		s.InboundTag = "vless-reality"
	}
	if s.APIMode == "" {
		s.APIMode = "ssh"
	}
	if s.RealityServerName == "" {
		s.RealityServerName = "www.google.com"
	}
	if s.Priority == 0 {
		s.Priority = 10
	}
	if s.MaxUsers == 0 {
		s.MaxUsers = 1000
	}
}

// Validate checks invariants that would make the service misbehave at
// runtime. A server without Reality key material is allowed (it is simply
// never selected) but a server without a host is a configuration bug.
func (c *Config) Validate() error {
	if c.SubscriptionSecret == "" {
		return fmt.Errorf("subscription_secret is required")
	}
	seen := make(map[string]bool, len(c.Servers))
	for _, s := range c.Servers {
		if s.Host == "" {
			return fmt.Errorf("server %s: host is required", s.ID)
		}
		if s.APIMode != "ssh" && s.APIMode != "grpc" {
			return fmt.Errorf("server %s: invalid api_mode %q", s.ID, s.APIMode)
		}
		if seen[s.ID] {
			return fmt.Errorf("duplicate server id %q", s.ID)
		}
		seen[s.ID] = true
	}
	return nil
}
