// Package config loads didgate settings from defaults, an optional YAML or TOML
// file, DIDGATE_* environment variables and command line flags, in increasing
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/jessevdk/go-flags"
	"gopkg.in/yaml.v3"

	"github.com/layer-3/didgate/adapters/proof"
	"github.com/layer-3/didgate/adapters/tokenizer"
)

const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// Config holds all configuration options
type Config struct {
	ConfigFile string `long:"config" env:"DIDGATE_CONFIG" description:"YAML or TOML config file" yaml:"-" toml:"-"`

	HTTP    HTTPConfig    `group:"HTTP Options" namespace:"http" env-namespace:"DIDGATE_HTTP" yaml:"http" toml:"http"`
	Auth    AuthConfig    `group:"Auth Options" namespace:"auth" env-namespace:"DIDGATE_AUTH" yaml:"auth" toml:"auth"`
	Store   StoreConfig   `group:"Store Options" namespace:"store" env-namespace:"DIDGATE_STORE" yaml:"store" toml:"store"`
	Redis   RedisConfig   `group:"Redis Options" namespace:"redis" env-namespace:"DIDGATE_REDIS" yaml:"redis" toml:"redis"`
	Events  EventsConfig  `group:"Event Options" namespace:"events" env-namespace:"DIDGATE_EVENTS" yaml:"events" toml:"events"`
	Logging LoggingConfig `group:"Logging Options" namespace:"logging" env-namespace:"DIDGATE_LOGGING" yaml:"logging" toml:"logging"`
}

type HTTPConfig struct {
	Addr           string   `long:"addr" env:"ADDR" default:":9000" description:"HTTP listen address" yaml:"addr" toml:"addr"`
	AllowedOrigins []string `long:"allowed-origin" env:"ALLOWED_ORIGINS" env-delim:"," default:"http://localhost:5173" description:"CORS allowed origins" yaml:"allowed_origins" toml:"allowed_origins"`
}

type AuthConfig struct {
	Scheme       string        `long:"scheme" env:"SCHEME" default:"shared-secret" description:"Proof scheme (shared-secret, ed25519, eip191)" yaml:"scheme" toml:"scheme"`
	ChainID      int64         `long:"chain-id" env:"CHAIN_ID" default:"1" description:"EIP-155 chain id for did:pkh identifiers" yaml:"chain_id" toml:"chain_id"`
	JWTSecret    string        `long:"jwt-secret" env:"JWT_SECRET" description:"HMAC secret for session tokens" yaml:"jwt_secret" toml:"jwt_secret"`
	Issuer       string        `long:"issuer" env:"ISSUER" default:"didgate" description:"Session token issuer" yaml:"issuer" toml:"issuer"`
	SessionTTL   time.Duration `long:"session-ttl" env:"SESSION_TTL" default:"1h" description:"Session token lifetime" yaml:"session_ttl" toml:"session_ttl"`
	ChallengeTTL time.Duration `long:"challenge-ttl" env:"CHALLENGE_TTL" default:"5m" description:"Login challenge lifetime, 0 disables expiry" yaml:"challenge_ttl" toml:"challenge_ttl"`
}

type StoreConfig struct {
	Mode              string `long:"mode" env:"MODE" default:"memory" choice:"memory" choice:"redis" description:"Identity and challenge storage backend" yaml:"mode" toml:"mode"`
	ChallengeCapacity int    `long:"challenge-capacity" env:"CHALLENGE_CAPACITY" default:"10000" description:"Outstanding challenges kept in memory mode; when full the least recently used challenge of another DID is evicted" yaml:"challenge_capacity" toml:"challenge_capacity"`
}

type RedisConfig struct {
	URL            string `long:"url" env:"URL" default:"redis://localhost:6379/0" description:"Redis URL" yaml:"url" toml:"url"`
	Prefix         string `long:"prefix" env:"PREFIX" default:"didgate:" description:"Redis key prefix" yaml:"prefix" toml:"prefix"`
	ConnectRetries uint64 `long:"connect-retries" env:"CONNECT_RETRIES" default:"5" description:"Redis ping attempts at startup" yaml:"connect_retries" toml:"connect_retries"`
}

type EventsConfig struct {
	TopicPrefix string `long:"topic-prefix" env:"TOPIC_PREFIX" default:"didgate." description:"Prefix for published event topics" yaml:"topic_prefix" toml:"topic_prefix"`
}

type LoggingConfig struct {
	Level  string `long:"level" env:"LEVEL" default:"info" description:"Log level (debug, info, warn, error)" yaml:"level" toml:"level"`
	Format string `long:"format" env:"FORMAT" default:"console" choice:"console" choice:"text" choice:"json" description:"Log format" yaml:"format" toml:"format"`
}

// Load parses args (without the program name) and the environment, then overlays
// the config file if one is named. A help request surfaces as a wrapped *flags.Error.
func Load(args []string) (*Config, error) {
	var cfg Config

	parser := flags.NewParser(&cfg, flags.Default)
	parser.Usage = "[OPTIONS]"

	if _, err := parser.ParseArgs(args); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.ConfigFile != "" {
		file, err := readFile(cfg.ConfigFile)
		if err != nil {
			return nil, err
		}
		overlay(parser, &cfg, file)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// Validate checks that the settings can be used to start the service.
func (c *Config) Validate() error {
	if !slices.Contains(proof.Schemes, c.Auth.Scheme) {
		return fmt.Errorf("auth.scheme %q is not one of %s", c.Auth.Scheme, strings.Join(proof.Schemes, ", "))
	}
	if c.Auth.Scheme == proof.SchemeEIP191 && c.Auth.ChainID <= 0 {
		return errors.New("auth.chain_id must be positive")
	}
	if len(c.Auth.JWTSecret) < tokenizer.MinSecretLength {
		return fmt.Errorf("auth.jwt_secret must be at least %d bytes", tokenizer.MinSecretLength)
	}
	if c.Auth.SessionTTL <= 0 {
		return errors.New("auth.session_ttl must be positive")
	}
	if c.Auth.ChallengeTTL < 0 {
		return errors.New("auth.challenge_ttl must not be negative")
	}

	switch c.Store.Mode {
	case StoreMemory:
		if c.Store.ChallengeCapacity <= 0 {
			return errors.New("store.challenge_capacity must be positive")
		}
	case StoreRedis:
		if c.Redis.URL == "" {
			return errors.New("redis.url is required in redis mode")
		}
	default:
		return fmt.Errorf("store.mode %q must be %s or %s", c.Store.Mode, StoreMemory, StoreRedis)
	}

	if c.HTTP.Addr == "" {
		return errors.New("http.addr is required")
	}
	return nil
}

// fileConfig is a decoded config file plus the keys it actually sets
type fileConfig struct {
	Config
	defined func(key []string) bool
}

func readFile(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables (${VAR} syntax)
	expanded := expandEnvVars(string(data))

	file := &fileConfig{}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		var raw map[string]any
		if err = yaml.Unmarshal([]byte(expanded), &raw); err == nil {
			err = yaml.Unmarshal([]byte(expanded), &file.Config)
		}
		file.defined = func(key []string) bool { return yamlDefined(raw, key) }
	case ".toml":
		var md toml.MetaData
		md, err = toml.Decode(expanded, &file.Config)
		file.defined = func(key []string) bool { return md.IsDefined(key...) }
	default:
		return nil, fmt.Errorf("unsupported config file extension %q", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return file, nil
}

func yamlDefined(raw map[string]any, key []string) bool {
	var node any = raw
	for _, part := range key {
		m, ok := node.(map[string]any)
		if !ok {
			return false
		}
		if node, ok = m[part]; !ok {
			return false
		}
	}
	return true
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR} with environment variable values.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := strings.TrimSuffix(strings.TrimPrefix(match, "${"), "}")
		return os.Getenv(varName)
	})
}

// overlay copies the values the file sets into cfg for every option that was
// left at its default, i.e. not given on the command line or in the environment.
func overlay(parser *flags.Parser, cfg *Config, file *fileConfig) {
	dst := fieldsByName(reflect.ValueOf(cfg).Elem(), "", nil)
	src := fieldsByName(reflect.ValueOf(&file.Config).Elem(), "", nil)

	for _, opt := range allOptions(parser.Command.Group) {
		if opt.IsSet() && !opt.IsSetDefault() {
			continue
		}
		if key := opt.EnvKeyWithNamespace(); key != "" {
			if _, ok := os.LookupEnv(key); ok {
				continue
			}
		}

		name := opt.LongNameWithNamespace()
		from, ok := src[name]
		if !ok || !file.defined(from.key) {
			continue
		}
		if to, ok := dst[name]; ok {
			to.value.Set(from.value)
		}
	}
}

func allOptions(g *flags.Group) []*flags.Option {
	opts := g.Options()
	for _, sub := range g.Groups() {
		opts = append(opts, allOptions(sub)...)
	}
	return opts
}

type field struct {
	value reflect.Value
	key   []string // path of the field in a config file
}

// fieldsByName indexes the settable fields of v by their namespaced long flag name
func fieldsByName(v reflect.Value, namespace string, path []string) map[string]field {
	fields := make(map[string]field)
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		key := append(slices.Clone(path), f.Tag.Get("yaml"))
		if ns, ok := f.Tag.Lookup("namespace"); ok && f.Type.Kind() == reflect.Struct {
			for name, sub := range fieldsByName(v.Field(i), join(namespace, ns), key) {
				fields[name] = sub
			}
			continue
		}
		if long := f.Tag.Get("long"); long != "" {
			fields[join(namespace, long)] = field{value: v.Field(i), key: key}
		}
	}
	return fields
}

func join(namespace, name string) string {
	if namespace == "" {
		return name
	}
	return namespace + "." + name
}
