package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
)

// Config holds all agent configuration
type Config struct {
	ServerAddress string       `json:"serverAddress"`
	DatabasePath  string       `json:"databasePath"`
	DatabaseURL   string       `json:"databaseUrl"`
	Verification  Verification `json:"verification"`
	Sync          Sync         `json:"sync"`
	Capture       Capture      `json:"capture"`
	Security      Security     `json:"security"`
}

// Verification configures the remote verification endpoint
type Verification struct {
	EndpointURL    string   `json:"endpointUrl"`
	APIKey         string   `json:"apiKey"`
	APIKeyHeader   string   `json:"apiKeyHeader"`
	TimeoutSeconds int      `json:"timeoutSeconds"`
	OAuthTokenURL  string   `json:"oauthTokenUrl"`
	OAuthClientID  string   `json:"oauthClientId"`
	OAuthSecret    string   `json:"oauthSecret"`
	OAuthScopes    []string `json:"oauthScopes"`
}

// UseOAuth returns true if the endpoint wants client-credentials auth
func (v *Verification) UseOAuth() bool {
	return v.OAuthTokenURL != "" && v.OAuthClientID != ""
}

// Sync configures the background synchronization engine
type Sync struct {
	IntervalMinutes      int `json:"intervalMinutes"`
	RetentionDays        int `json:"retentionDays"`
	ProbeIntervalSeconds int `json:"probeIntervalSeconds"`
}

// Capture configures the camera and location sources
type Capture struct {
	FramesPath             string   `json:"framesPath"`
	MinWidth               int      `json:"minWidth"`
	MinHeight              int      `json:"minHeight"`
	MaxEdge                int      `json:"maxEdge"`
	JPEGQuality            int      `json:"jpegQuality"`
	FrameMaxAgeSeconds     int      `json:"frameMaxAgeSeconds"`
	LocationTimeoutSeconds int      `json:"locationTimeoutSeconds"`
	Latitude               *float64 `json:"latitude,omitempty"`
	Longitude              *float64 `json:"longitude,omitempty"`
}

// Security configures access to the local control API
type Security struct {
	APIKey       string `json:"apiKey"`
	APIKeyBcrypt string `json:"apiKeyBcrypt"`
	APIKeyHeader string `json:"apiKeyHeader"`
}

// UsePostgres returns true if a co-located PostgreSQL should back the queue
func (c *Config) UsePostgres() bool {
	return c.DatabaseURL != ""
}

// Default configuration
func defaultConfig() *Config {
	return &Config{
		ServerAddress: ":5600",
		DatabasePath:  "presence-agent.db",
		Verification: Verification{
			APIKeyHeader:   "X-API-Key",
			TimeoutSeconds: 20,
		},
		Sync: Sync{
			IntervalMinutes:      60,
			RetentionDays:        7,
			ProbeIntervalSeconds: 15,
		},
		Capture: Capture{
			FramesPath:             "./frames",
			MinWidth:               640,
			MinHeight:              480,
			MaxEdge:                1280,
			JPEGQuality:            85,
			FrameMaxAgeSeconds:     10,
			LocationTimeoutSeconds: 10,
		},
		Security: Security{
			APIKey:       "CHANGE_THIS_TO_A_SECURE_API_KEY_AT_LEAST_32_CHARS",
			APIKeyHeader: "X-API-Key",
		},
	}
}

// Load loads configuration from file or environment
func Load() (*Config, error) {
	cfg := defaultConfig()

	// Try to load from config file
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.json"
	}

	if data, err := os.ReadFile(configPath); err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	// Override from environment variables
	if addr := os.Getenv("SERVER_ADDRESS"); addr != "" {
		cfg.ServerAddress = addr
	}
	if dbPath := os.Getenv("DATABASE_PATH"); dbPath != "" {
		cfg.DatabasePath = dbPath
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		cfg.DatabaseURL = dbURL
	}
	if endpoint := os.Getenv("VERIFICATION_ENDPOINT"); endpoint != "" {
		cfg.Verification.EndpointURL = endpoint
	}
	if key := os.Getenv("VERIFICATION_API_KEY"); key != "" {
		cfg.Verification.APIKey = key
	}
	if framesPath := os.Getenv("FRAMES_PATH"); framesPath != "" {
		cfg.Capture.FramesPath = framesPath
	}
	if apiKey := os.Getenv("API_KEY"); apiKey != "" {
		cfg.Security.APIKey = apiKey
	}

	// Sync engine configuration
	if interval := os.Getenv("SYNC_INTERVAL_MINUTES"); interval != "" {
		if minutes, err := strconv.Atoi(interval); err == nil && minutes > 0 {
			cfg.Sync.IntervalMinutes = minutes
		}
	}
	if retention := os.Getenv("SYNC_RETENTION_DAYS"); retention != "" {
		if days, err := strconv.Atoi(retention); err == nil && days > 0 {
			cfg.Sync.RetentionDays = days
		}
	}

	// Ensure frames directory exists
	if err := os.MkdirAll(cfg.Capture.FramesPath, 0755); err != nil {
		return nil, err
	}

	// Make frames path absolute
	absPath, err := filepath.Abs(cfg.Capture.FramesPath)
	if err != nil {
		return nil, err
	}
	cfg.Capture.FramesPath = absPath

	return cfg, nil
}
