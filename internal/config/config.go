// Package config handles loading and validation of service configuration.
// Supports both development (env vars) and production (Secret Manager) modes.
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/joho/godotenv"
	"golang.org/x/mod/semver"

	"b2b-pricing/internal/model"
)

const (
	// DefaultAPIVersion is the Admin API version used when none is configured.
	DefaultAPIVersion = "2025-01"
	// MinAPIVersion is the oldest Admin API version that has productVariants
	// and bulk mutation staged uploads in the shape the client expects.
	MinAPIVersion = "2024-04"

	defaultBulkThreshold = 25
	defaultJobStorePath  = "pricing-jobs.db"
	defaultRPS           = 2.0
)

// Config holds all service configuration.
// Environment determines whether shop secrets load from env vars (development) or Secret Manager (production).
type Config struct {
	// Server settings
	Port        string
	Environment string // "development" or "production"
	LogLevel    string // "debug", "info", "warn", "error"

	// GCP settings (required in production)
	GCPProject string
	ShopID     string

	// Reconciliation tuning
	BulkThreshold int     // admitted operations above this go through a bulk mutation
	JobStorePath  string  // SQLite file holding pending bulk reports
	Fingerprint   string  // outbound TLS fingerprint, "" or "chrome"
	RPS           float64 // client-side Admin API request rate

	// Shop-specific configuration (loaded from secrets)
	Shop ShopConfig
}

// ShopConfig contains shop credentials and the special-price field location.
// In production, this is loaded from Secret Manager as JSON.
// In development, loaded from individual env vars or CONFIG_FILE.
type ShopConfig struct {
	Domain      string `json:"shop_domain"`
	AccessToken string `json:"access_token"`
	APIVersion  string `json:"api_version,omitempty"`
	APISecret   string `json:"api_secret,omitempty"` // webhook HMAC key

	SpecialPriceNamespace string `json:"special_price_namespace,omitempty"`
	SpecialPriceKey       string `json:"special_price_key,omitempty"`
}

// SpecialPriceField returns the configured metafield location, defaulting each part.
func (s ShopConfig) SpecialPriceField() model.SpecialPriceField {
	return model.SpecialPriceField{
		Namespace: withDefault(s.SpecialPriceNamespace, model.DefaultSpecialPriceField.Namespace),
		Key:       withDefault(s.SpecialPriceKey, model.DefaultSpecialPriceField.Key),
		Type:      model.DefaultSpecialPriceField.Type,
	}
}

// Load reads configuration from file, environment, or Secret Manager.
// Priority: CONFIG_FILE (if set) → ENV vars / Secret Manager.
// A .env file in the working directory is loaded first when present; it never
// overrides variables that are already set.
func Load(ctx context.Context) (*Config, error) {
	_ = godotenv.Load()

	// If CONFIG_FILE is set, load everything from the JSON file
	if configPath := os.Getenv("CONFIG_FILE"); configPath != "" {
		return loadFromFile(configPath)
	}

	cfg := &Config{
		Port:         envOrDefault("PORT", "8080"),
		Environment:  envOrDefault("ENVIRONMENT", "development"),
		LogLevel:     envOrDefault("LOG_LEVEL", "info"),
		GCPProject:   os.Getenv("GCP_PROJECT"),
		ShopID:       os.Getenv("SHOP_ID"),
		JobStorePath: envOrDefault("JOB_STORE_PATH", defaultJobStorePath),
		Fingerprint:  os.Getenv("TLS_FINGERPRINT"),
	}

	var err error
	if cfg.BulkThreshold, err = envInt("BULK_THRESHOLD", defaultBulkThreshold); err != nil {
		return nil, err
	}
	if cfg.RPS, err = envFloat("SHOPIFY_RPS", defaultRPS); err != nil {
		return nil, err
	}

	if cfg.Environment == "production" {
		if cfg.ShopID == "" {
			return nil, fmt.Errorf("SHOP_ID environment variable required in production")
		}
		if cfg.GCPProject == "" {
			return nil, fmt.Errorf("GCP_PROJECT required in production environment")
		}
		err = cfg.loadFromSecretManager(ctx)
	} else {
		cfg.loadFromEnv()
	}
	if err != nil {
		return nil, fmt.Errorf("loading shop config: %w", err)
	}

	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFromFile reads all configuration from a JSON file.
// Used for local development to avoid multiple ENV vars.
func loadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var fileConfig struct {
		Port          string     `json:"port"`
		Environment   string     `json:"environment"`
		LogLevel      string     `json:"log_level"`
		ShopID        string     `json:"shop_id"`
		BulkThreshold int        `json:"bulk_threshold"`
		JobStorePath  string     `json:"job_store_path"`
		Fingerprint   string     `json:"tls_fingerprint"`
		RPS           float64    `json:"shopify_rps"`
		Shop          ShopConfig `json:"shop"`
	}

	if err := json.Unmarshal(data, &fileConfig); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg := &Config{
		Port:          withDefault(fileConfig.Port, "8080"),
		Environment:   withDefault(fileConfig.Environment, "development"),
		LogLevel:      withDefault(fileConfig.LogLevel, "info"),
		ShopID:        fileConfig.ShopID,
		BulkThreshold: fileConfig.BulkThreshold,
		JobStorePath:  withDefault(fileConfig.JobStorePath, defaultJobStorePath),
		Fingerprint:   fileConfig.Fingerprint,
		RPS:           fileConfig.RPS,
		Shop:          fileConfig.Shop,
	}
	if cfg.BulkThreshold == 0 {
		cfg.BulkThreshold = defaultBulkThreshold
	}
	if cfg.RPS == 0 {
		cfg.RPS = defaultRPS
	}

	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// withDefault returns val if non-empty, otherwise defaultVal.
func withDefault(val, defaultVal string) string {
	if val != "" {
		return val
	}
	return defaultVal
}

// loadFromSecretManager fetches shop config from GCP Secret Manager.
// Secret name format: projects/{project}/secrets/{shop_id}/versions/latest
func (c *Config) loadFromSecretManager(ctx context.Context) error {
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("creating secret manager client: %w", err)
	}
	defer client.Close()

	secretName := fmt.Sprintf("projects/%s/secrets/%s/versions/latest",
		c.GCPProject, c.ShopID)

	result, err := client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: secretName,
	})
	if err != nil {
		return fmt.Errorf("accessing secret %s: %w", secretName, err)
	}

	if err := json.Unmarshal(result.Payload.Data, &c.Shop); err != nil {
		return fmt.Errorf("parsing secret JSON: %w", err)
	}
	return nil
}

// loadFromEnv reads shop config from individual environment variables.
func (c *Config) loadFromEnv() {
	c.Shop = ShopConfig{
		Domain:                os.Getenv("SHOPIFY_SHOP"),
		AccessToken:           os.Getenv("SHOPIFY_ACCESS_TOKEN"),
		APIVersion:            os.Getenv("SHOPIFY_API_VERSION"),
		APISecret:             os.Getenv("SHOPIFY_API_SECRET"),
		SpecialPriceNamespace: os.Getenv("SPECIAL_PRICE_NAMESPACE"),
		SpecialPriceKey:       os.Getenv("SPECIAL_PRICE_KEY"),
	}
}

func (c *Config) normalize() {
	c.Shop.Domain = normalizeDomain(c.Shop.Domain)
	c.Shop.APIVersion = withDefault(c.Shop.APIVersion, DefaultAPIVersion)
}

// validate checks that all required configuration fields are present.
func (c *Config) validate() error {
	if c.Shop.Domain == "" {
		return fmt.Errorf("shop_domain is required")
	}
	if strings.ContainsAny(c.Shop.Domain, "/ ") {
		return fmt.Errorf("invalid shop_domain %q", c.Shop.Domain)
	}
	if c.Shop.AccessToken == "" {
		return fmt.Errorf("access_token is required")
	}
	if err := checkAPIVersion(c.Shop.APIVersion); err != nil {
		return err
	}
	if c.BulkThreshold < 1 {
		return fmt.Errorf("bulk_threshold must be positive, got %d", c.BulkThreshold)
	}
	if c.RPS <= 0 {
		return fmt.Errorf("shopify_rps must be positive, got %v", c.RPS)
	}
	switch c.Fingerprint {
	case "", "chrome":
	default:
		return fmt.Errorf("unsupported tls_fingerprint %q", c.Fingerprint)
	}
	return nil
}

// checkAPIVersion rejects malformed versions and versions older than MinAPIVersion.
func checkAPIVersion(version string) error {
	v := semverOf(version)
	if !semver.IsValid(v) {
		return fmt.Errorf("invalid api_version %q, want YYYY-MM", version)
	}
	if semver.Compare(v, semverOf(MinAPIVersion)) < 0 {
		return fmt.Errorf("api_version %s is older than the minimum supported %s", version, MinAPIVersion)
	}
	return nil
}

// semverOf maps a dated Admin API version ("2025-01") to "v2025.1.0".
// "unstable" and malformed values map to "".
func semverOf(version string) string {
	year, month, ok := strings.Cut(version, "-")
	if !ok || len(year) != 4 || len(month) != 2 {
		return ""
	}
	y, err := strconv.Atoi(year)
	if err != nil {
		return ""
	}
	m, err := strconv.Atoi(month)
	if err != nil || m < 1 || m > 12 {
		return ""
	}
	return fmt.Sprintf("v%d.%d.0", y, m)
}

// normalizeDomain accepts "acme", "acme.myshopify.com" or a full admin URL
// and returns the bare myshopify host.
func normalizeDomain(raw string) string {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" {
		return ""
	}
	if strings.Contains(raw, "://") {
		if u, err := url.Parse(raw); err == nil {
			raw = u.Host
		}
	}
	raw = strings.TrimSuffix(strings.Split(raw, "/")[0], ".")
	if !strings.Contains(raw, ".") {
		raw += ".myshopify.com"
	}
	return raw
}

// envOrDefault returns the environment variable value or the default if not set.
func envOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func envInt(key string, defaultVal int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", key, err)
	}
	return n, nil
}

func envFloat(key string, defaultVal float64) (float64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", key, err)
	}
	return f, nil
}
