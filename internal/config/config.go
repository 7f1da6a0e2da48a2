package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Census   CensusConfig   `yaml:"census" mapstructure:"census"`
	Geometry GeometryConfig `yaml:"geometry" mapstructure:"geometry"`
	HTTP     HTTPConfig     `yaml:"http" mapstructure:"http"`
	Circuit  CircuitConfig  `yaml:"circuit" mapstructure:"circuit"`
	Map      MapConfig      `yaml:"map" mapstructure:"map"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// CensusConfig configures the statistics API.
type CensusConfig struct {
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	APIKey      string  `yaml:"api_key" mapstructure:"api_key"`
	TotalVar    string  `yaml:"total_var" mapstructure:"total_var"`
	VacantVar   string  `yaml:"vacant_var" mapstructure:"vacant_var"`
	RateLimitPS float64 `yaml:"rate_limit_ps" mapstructure:"rate_limit_ps"`
}

// GeometryConfig configures the boundary sources.
type GeometryConfig struct {
	// StatesURL is the national state boundary GeoJSON document.
	StatesURL string `yaml:"states_url" mapstructure:"states_url"`
	// StatesShapefile, when set, replaces StatesURL with a local TIGER or
	// cartographic boundary state shapefile.
	StatesShapefile string `yaml:"states_shapefile" mapstructure:"states_shapefile"`
	// StateIDProperty names the feature property holding the state FIPS code
	// in the national document. Empty means the feature's top-level id.
	StateIDProperty   string      `yaml:"state_id_property" mapstructure:"state_id_property"`
	StateNameProperty string      `yaml:"state_name_property" mapstructure:"state_name_property"`
	QueryURL          string      `yaml:"query_url" mapstructure:"query_url"`
	Layers            LayerConfig `yaml:"layers" mapstructure:"layers"`
	OutSR             int         `yaml:"out_sr" mapstructure:"out_sr"`
	RateLimitPS       float64     `yaml:"rate_limit_ps" mapstructure:"rate_limit_ps"`
}

// LayerConfig maps levels to TIGERweb map service layer ids.
type LayerConfig struct {
	County int `yaml:"county" mapstructure:"county"`
	Tract  int `yaml:"tract" mapstructure:"tract"`
	Block  int `yaml:"block" mapstructure:"block"`
}

// HTTPConfig configures outbound requests.
type HTTPConfig struct {
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	UserAgent   string `yaml:"user_agent" mapstructure:"user_agent"`
}

// Timeout returns the request timeout as a duration.
func (c HTTPConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// CircuitConfig configures the per-upstream circuit breakers.
type CircuitConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	CooldownSecs     int `yaml:"cooldown_secs" mapstructure:"cooldown_secs"`
}

// MapConfig configures the joined layer and its styling.
type MapConfig struct {
	TopN     int    `yaml:"top_n" mapstructure:"top_n"`
	RampFile string `yaml:"ramp_file" mapstructure:"ramp_file"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	SessionTTLMins int      `yaml:"session_ttl_mins" mapstructure:"session_ttl_mins"`
	CORSOrigins    []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// SessionTTL returns the idle session lifetime.
func (c ServerConfig) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLMins) * time.Minute
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("VACANCY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("census.base_url", "https://api.census.gov/data/2022/acs/acs5")
	v.SetDefault("census.api_key", "")
	v.SetDefault("census.total_var", "B25002_001E")
	v.SetDefault("census.vacant_var", "B25002_003E")
	v.SetDefault("census.rate_limit_ps", 10)
	v.SetDefault("geometry.states_url", "https://raw.githubusercontent.com/PublicaMundi/MappingAPI/master/data/geojson/us-states.json")
	v.SetDefault("geometry.states_shapefile", "")
	v.SetDefault("geometry.state_id_property", "")
	v.SetDefault("geometry.state_name_property", "name")
	v.SetDefault("geometry.query_url", "https://tigerweb.geo.census.gov/arcgis/rest/services/TIGERweb/tigerWMS_ACS2022/MapServer")
	v.SetDefault("geometry.layers.county", 82)
	v.SetDefault("geometry.layers.tract", 8)
	v.SetDefault("geometry.layers.block", 10)
	v.SetDefault("geometry.out_sr", 4326)
	v.SetDefault("geometry.rate_limit_ps", 5)
	v.SetDefault("http.timeout_secs", 30)
	v.SetDefault("http.user_agent", "vacancy-map/1.0")
	v.SetDefault("circuit.failure_threshold", 5)
	v.SetDefault("circuit.cooldown_secs", 30)
	v.SetDefault("map.top_n", 10)
	v.SetDefault("map.ramp_file", "")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.session_ttl_mins", 60)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}

// Validate checks the settings a command needs. mode is "serve" or "layer".
func (c *Config) Validate(mode string) error {
	var problems []string

	switch mode {
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			problems = append(problems, "server.port must be between 1 and 65535")
		}
		if c.Server.SessionTTLMins <= 0 {
			problems = append(problems, "server.session_ttl_mins must be > 0")
		}
	case "layer":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Census.BaseURL == "" {
		problems = append(problems, "census.base_url is required")
	}
	if c.Census.TotalVar == "" || c.Census.VacantVar == "" {
		problems = append(problems, "census.total_var and census.vacant_var are required")
	}
	if c.Geometry.StatesURL == "" && c.Geometry.StatesShapefile == "" {
		problems = append(problems, "geometry.states_url or geometry.states_shapefile is required")
	}
	if c.Geometry.QueryURL == "" {
		problems = append(problems, "geometry.query_url is required")
	}
	if c.Map.TopN < 0 {
		problems = append(problems, "map.top_n must be >= 0")
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}
