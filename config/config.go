package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/layer-3/lens-onboard/adapters/grove"
	"github.com/layer-3/lens-onboard/adapters/store"
	"github.com/layer-3/lens-onboard/core"
)

// Storage backends
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendCookie = "cookie"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "LENS_"

var backends = []string{BackendMemory, BackendRedis, BackendCookie}

// Config is the runtime configuration of lens-onboard and lens-devnet
type Config struct {
	LogLevel string        `yaml:"logLevel"`
	HTTP     HTTPConfig    `yaml:"http"`
	Lens     LensConfig    `yaml:"lens"`
	Storage  StorageConfig `yaml:"storage"`
	Grove    GroveConfig   `yaml:"grove"`
	Events   EventsConfig  `yaml:"events"`
	Wallet   WalletConfig  `yaml:"wallet"`
	Devnet   DevnetConfig  `yaml:"devnet"`
}

type HTTPConfig struct {
	Address           string        `yaml:"address"`
	ReadHeaderTimeout time.Duration `yaml:"readHeaderTimeout"`
}

type LensConfig struct {
	Endpoint       string        `yaml:"endpoint"` // empty selects the hosted API for the network
	UseTestnet     bool          `yaml:"useTestnet"`
	AppAddress     string        `yaml:"appAddress"` // overrides the network default app
	Origin         string        `yaml:"origin"`
	RequestTimeout time.Duration `yaml:"requestTimeout"`
	ChallengeTTL   time.Duration `yaml:"challengeTTL"`
}

type StorageConfig struct {
	Backend  string               `yaml:"backend"`
	RedisURL string               `yaml:"redisURL"`
	Prefix   string               `yaml:"prefix"`
	TTL      time.Duration        `yaml:"ttl"`
	Cookie   store.CookieTemplate `yaml:"cookie"`
}

type GroveConfig struct {
	URL     string `yaml:"url"`
	ChainID int64  `yaml:"chainID"`
}

// EventsConfig selects where session events go. An empty RedisURL disables publishing.
type EventsConfig struct {
	RedisURL string `yaml:"redisURL"`
	Topic    string `yaml:"topic"`
}

// WalletConfig holds a development signing key for the /onboard endpoint
type WalletConfig struct {
	PrivateKeyHex string `yaml:"privateKeyHex"`
}

type DevnetConfig struct {
	Address      string        `yaml:"address"`
	RedisURL     string        `yaml:"redisURL"` // revocation store, in memory when empty
	ChallengeTTL time.Duration `yaml:"challengeTTL"`
	AccessTTL    time.Duration `yaml:"accessTTL"`
	RefreshTTL   time.Duration `yaml:"refreshTTL"`
}

// Default returns the configuration used when nothing is set
func Default() Config {
	return Config{
		LogLevel: "info",
		HTTP: HTTPConfig{
			Address:           ":8080",
			ReadHeaderTimeout: 5 * time.Second,
		},
		Lens: LensConfig{
			UseTestnet:     true,
			RequestTimeout: 15 * time.Second,
			ChallengeTTL:   5 * time.Minute,
		},
		Storage: StorageConfig{
			Backend: BackendCookie,
			Prefix:  "lens-onboard:",
			TTL:     7 * 24 * time.Hour,
			Cookie:  store.DefaultCookieTemplate(),
		},
		Grove: GroveConfig{
			URL:     grove.DefaultURL,
			ChainID: grove.TestnetChainID,
		},
		Events: EventsConfig{
			Topic: "lens.session",
		},
		Devnet: DevnetConfig{
			Address:      ":8090",
			ChallengeTTL: 5 * time.Minute,
			AccessTTL:    10 * time.Minute,
			RefreshTTL:   7 * 24 * time.Hour,
		},
	}
}

// Load reads the YAML file at path over the defaults, applies LENS_* environment
// overrides and validates the result. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config: %w", err)
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.LogLevel = envString("LOG_LEVEL", c.LogLevel)

	c.HTTP.Address = envString("HTTP_ADDRESS", c.HTTP.Address)
	c.HTTP.ReadHeaderTimeout = envDuration("HTTP_READ_HEADER_TIMEOUT", c.HTTP.ReadHeaderTimeout)

	c.Lens.Endpoint = envString("ENDPOINT", c.Lens.Endpoint)
	c.Lens.UseTestnet = envBool("USE_TESTNET", c.Lens.UseTestnet)
	c.Lens.AppAddress = envString("APP_ADDRESS", c.Lens.AppAddress)
	c.Lens.Origin = envString("ORIGIN", c.Lens.Origin)
	c.Lens.RequestTimeout = envDuration("REQUEST_TIMEOUT", c.Lens.RequestTimeout)
	c.Lens.ChallengeTTL = envDuration("CHALLENGE_TTL", c.Lens.ChallengeTTL)

	c.Storage.Backend = envString("STORAGE_BACKEND", c.Storage.Backend)
	c.Storage.RedisURL = envString("STORAGE_REDIS_URL", c.Storage.RedisURL)
	c.Storage.Prefix = envString("STORAGE_PREFIX", c.Storage.Prefix)
	c.Storage.Cookie.Domain = envString("COOKIE_DOMAIN", c.Storage.Cookie.Domain)
	c.Storage.Cookie.Secure = envBool("COOKIE_SECURE", c.Storage.Cookie.Secure)

	c.Grove.URL = envString("GROVE_URL", c.Grove.URL)

	c.Events.RedisURL = envString("EVENTS_REDIS_URL", c.Events.RedisURL)
	c.Events.Topic = envString("EVENTS_TOPIC", c.Events.Topic)

	c.Wallet.PrivateKeyHex = envString("WALLET_PRIVATE_KEY", c.Wallet.PrivateKeyHex)

	c.Devnet.Address = envString("DEVNET_ADDRESS", c.Devnet.Address)
	c.Devnet.RedisURL = envString("DEVNET_REDIS_URL", c.Devnet.RedisURL)
}

// Validate reports every invalid setting
func (c Config) Validate() error {
	var errs []error
	if !slices.Contains(backends, c.Storage.Backend) {
		errs = append(errs, fmt.Errorf("storage.backend %q: want one of %s", c.Storage.Backend, strings.Join(backends, ", ")))
	}
	if c.Storage.Backend == BackendRedis && c.Storage.RedisURL == "" {
		errs = append(errs, errors.New("storage.redisURL is required for the redis backend"))
	}
	if c.Lens.RequestTimeout <= 0 {
		errs = append(errs, errors.New("lens.requestTimeout must be positive"))
	}
	if c.Lens.ChallengeTTL <= 0 {
		errs = append(errs, errors.New("lens.challengeTTL must be positive"))
	}
	if c.Devnet.ChallengeTTL <= 0 || c.Devnet.AccessTTL <= 0 || c.Devnet.RefreshTTL <= 0 {
		errs = append(errs, errors.New("devnet lifetimes must be positive"))
	}
	if c.Grove.URL == "" {
		errs = append(errs, errors.New("grove.url is required"))
	}
	return errors.Join(errs...)
}

// LensEndpoint returns the configured endpoint, or the hosted API for the network
func (c Config) LensEndpoint() string {
	if c.Lens.Endpoint != "" {
		return c.Lens.Endpoint
	}
	if c.Lens.UseTestnet {
		return core.TestnetEndpoint
	}
	return core.MainnetEndpoint
}

// AppAddresses returns the default app table with the configured override applied to both networks
func (c Config) AppAddresses() core.AppAddresses {
	apps := core.DefaultAppAddresses()
	if c.Lens.AppAddress != "" {
		apps.Mainnet = c.Lens.AppAddress
		apps.Testnet = c.Lens.AppAddress
	}
	return apps
}
