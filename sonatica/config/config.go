package config

import (
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/ini.v1"
)

const nodePrefix = "nodes."

// NodeConfig is one `[nodes.<identifier>]` section.
type NodeConfig struct {
	Identifier           string
	Host                 string
	Port                 int
	Password             string
	Secure               bool
	RetryAmount          int
	RetryDelay           time.Duration
	RequestTimeout       time.Duration
	RequestsPerSecond    float64
	Search               bool
	Playback             bool
	HealthCheckInterval  time.Duration
	HealthCheckThreshold int
}

// Config wraps viper and provides typed accessors.
type Config struct {
	v     *viper.Viper
	nodes map[string]NodeConfig
}

// Load reads an INI (or any viper-supported) config file and prepares defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SONATICA")
	v.AutomaticEnv()

	setDefaults(v)

	c := &Config{v: v, nodes: make(map[string]NodeConfig)}

	if strings.EqualFold(filepath.Ext(path), ".ini") {
		cfg, err := loadINI(v, path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		loadININodes(cfg, c)
		return c, nil
	}

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	loadMapNodes(v, c)
	return c, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ClientName", "sonatica-go")
	v.SetDefault("Shards", 0)
	v.SetDefault("AutoPlay", true)
	v.SetDefault("AutoMove", true)
	v.SetDefault("AutoResume", true)
	v.SetDefault("DefaultSearchPlatform", "youtube music")
	v.SetDefault("CacheTTLSeconds", 1800)
	v.SetDefault("CacheSize", 100)
	v.SetDefault("CacheCleanupSeconds", 300)
	v.SetDefault("Sorter", "leastload")
	v.SetDefault("Store", "memory")
	v.SetDefault("RedisURL", "")
	v.SetDefault("SQLitePath", "data/sonatica.db")
	v.SetDefault("StoreTTLSeconds", 86400)
	v.SetDefault("ResumeTimeoutSeconds", 360)
	v.SetDefault("MoveGraceSeconds", 5)
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogFormat", "text")
	v.SetDefault("LogSource", false)
	v.SetDefault("LogDir", "./log")
	v.SetDefault("GormLogLevel", "warn")
	v.SetDefault("WorkerPoolSize", 4)
	v.SetDefault("MetricsAddr", "")
	v.SetDefault("BotToken", "")
}

// GetString returns a string value.
func (c *Config) GetString(key string) string {
	return c.v.GetString(key)
}

// GetInt returns an int value.
func (c *Config) GetInt(key string) int {
	return c.v.GetInt(key)
}

// GetFloat64 returns a float64 value.
func (c *Config) GetFloat64(key string) float64 {
	return c.v.GetFloat64(key)
}

// GetBool returns a bool value.
func (c *Config) GetBool(key string) bool {
	return c.v.GetBool(key)
}

// GetSeconds reads an integer number of seconds as a duration.
func (c *Config) GetSeconds(key string) time.Duration {
	return time.Duration(c.v.GetInt(key)) * time.Second
}

// Nodes returns the configured nodes ordered by identifier.
func (c *Config) Nodes() []NodeConfig {
	ids := make([]string, 0, len(c.nodes))
	for id := range c.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]NodeConfig, 0, len(ids))
	for _, id := range ids {
		out = append(out, c.nodes[id])
	}
	return out
}

// Node returns one node section by identifier.
func (c *Config) Node(identifier string) (NodeConfig, bool) {
	n, ok := c.nodes[identifier]
	return n, ok
}

func loadINI(v *viper.Viper, path string) (*ini.File, error) {
	cfg, err := ini.Load(path)
	if err != nil {
		return nil, err
	}

	for _, key := range cfg.Section("").Keys() {
		v.Set(key.Name(), key.Value())
	}

	return cfg, nil
}

func loadININodes(cfg *ini.File, c *Config) {
	for _, section := range cfg.Sections() {
		name := section.Name()
		if !strings.HasPrefix(name, nodePrefix) {
			continue
		}
		id := strings.TrimPrefix(name, nodePrefix)
		if id == "" {
			continue
		}

		values := make(map[string]string, len(section.Keys()))
		for _, key := range section.Keys() {
			values[strings.ToLower(key.Name())] = key.Value()
		}
		c.nodes[id] = parseNode(id, values)
	}
}

func loadMapNodes(v *viper.Viper, c *Config) {
	for id, raw := range v.GetStringMap("nodes") {
		section, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		values := make(map[string]string, len(section))
		for key, val := range section {
			values[strings.ToLower(key)] = fmt.Sprintf("%v", val)
		}
		c.nodes[id] = parseNode(id, values)
	}
}

func parseNode(id string, values map[string]string) NodeConfig {
	n := NodeConfig{
		Identifier:           id,
		Host:                 stringValue(values, "host", "localhost"),
		Port:                 intValue(values, "port", 2333),
		Password:             stringValue(values, "password", "youshallnotpass"),
		Secure:               boolValue(values, "secure", false),
		RetryAmount:          intValue(values, "retry_amount", 0),
		RetryDelay:           time.Duration(intValue(values, "retry_delay_ms", 2500)) * time.Millisecond,
		RequestTimeout:       time.Duration(intValue(values, "request_timeout_ms", 5000)) * time.Millisecond,
		RequestsPerSecond:    floatValue(values, "requests_per_second", 0),
		Search:               boolValue(values, "search", true),
		Playback:             boolValue(values, "playback", true),
		HealthCheckInterval:  time.Duration(intValue(values, "health_check_interval_sec", 30)) * time.Second,
		HealthCheckThreshold: intValue(values, "health_check_threshold", 3),
	}
	if n.Port == 443 {
		n.Secure = true
	}
	return n
}

func stringValue(values map[string]string, key, fallback string) string {
	if val, ok := values[key]; ok && strings.TrimSpace(val) != "" {
		return strings.TrimSpace(val)
	}
	return fallback
}

func intValue(values map[string]string, key string, fallback int) int {
	val, ok := values[key]
	if !ok {
		return fallback
	}
	num, err := strconv.Atoi(strings.TrimSpace(val))
	if err != nil {
		return fallback
	}
	return num
}

func floatValue(values map[string]string, key string, fallback float64) float64 {
	val, ok := values[key]
	if !ok {
		return fallback
	}
	num, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
	if err != nil {
		return fallback
	}
	return num
}

func boolValue(values map[string]string, key string, fallback bool) bool {
	val, ok := values[key]
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(val)) {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	default:
		return fallback
	}
}
