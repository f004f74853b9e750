package clustering

import (
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/gilchrisn/hsne-clustering-service/pkg/louvain"
)

// Config manages clustering configuration using Viper
type Config struct {
	v *viper.Viper
}

// NewConfig creates a new configuration with defaults
func NewConfig() *Config {
	v := viper.New()

	// Algorithm parameters
	v.SetDefault("algorithm.partitioner", "louvain")
	v.SetDefault("algorithm.method", string(MethodCluster))
	v.SetDefault("algorithm.max_levels", 10)
	v.SetDefault("algorithm.max_iterations", 100)
	v.SetDefault("algorithm.min_modularity_gain", 1e-7)
	v.SetDefault("algorithm.resolution", 1.0)
	v.SetDefault("algorithm.random_seed", 42)

	// Performance parameters
	v.SetDefault("performance.parallel", false)
	v.SetDefault("performance.num_workers", runtime.NumCPU())

	// Logging parameters
	v.SetDefault("logging.level", "info")

	v.SetDefault("parser.strict_sizes", false)
	v.SetDefault("parser.max_decoded_bytes", int64(4<<30))

	// HTTP server parameters
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 5*time.Minute)
	v.SetDefault("server.max_upload_bytes", int64(512<<20))
	v.SetDefault("server.max_jobs", 4)
	v.SetDefault("server.job_ttl", time.Hour)
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetEnvPrefix("hsne")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return &Config{v: v}
}

// LoadFromFile loads configuration from file
func (c *Config) LoadFromFile(path string) error {
	c.v.SetConfigFile(path)
	return c.v.ReadInConfig()
}

// BindFlag binds a config key to a command line flag.
func (c *Config) BindFlag(key string, flag *pflag.Flag) error {
	return c.v.BindPFlag(key, flag)
}

// Getters for algorithm parameters
func (c *Config) Partitioner() string        { return c.v.GetString("algorithm.partitioner") }
func (c *Config) Method() string             { return c.v.GetString("algorithm.method") }
func (c *Config) MaxLevels() int             { return c.v.GetInt("algorithm.max_levels") }
func (c *Config) MaxIterations() int         { return c.v.GetInt("algorithm.max_iterations") }
func (c *Config) MinModularityGain() float64 { return c.v.GetFloat64("algorithm.min_modularity_gain") }
func (c *Config) Resolution() float64        { return c.v.GetFloat64("algorithm.resolution") }
func (c *Config) RandomSeed() int64          { return c.v.GetInt64("algorithm.random_seed") }

func (c *Config) Parallel() bool  { return c.v.GetBool("performance.parallel") }
func (c *Config) NumWorkers() int { return c.v.GetInt("performance.num_workers") }

func (c *Config) LogLevel() string { return c.v.GetString("logging.level") }

func (c *Config) StrictSizes() bool      { return c.v.GetBool("parser.strict_sizes") }
func (c *Config) MaxDecodedBytes() int64 { return c.v.GetInt64("parser.max_decoded_bytes") }

func (c *Config) ServerAddress() string       { return c.v.GetString("server.address") }
func (c *Config) ReadTimeout() time.Duration  { return c.v.GetDuration("server.read_timeout") }
func (c *Config) WriteTimeout() time.Duration { return c.v.GetDuration("server.write_timeout") }
func (c *Config) MaxUploadBytes() int64       { return c.v.GetInt64("server.max_upload_bytes") }
func (c *Config) MaxJobs() int                { return c.v.GetInt("server.max_jobs") }
func (c *Config) JobTTL() time.Duration       { return c.v.GetDuration("server.job_ttl") }
func (c *Config) AllowedOrigins() []string    { return c.v.GetStringSlice("server.allowed_origins") }

// Set allows dynamic configuration changes
func (c *Config) Set(key string, value interface{}) {
	c.v.Set(key, value)
}

// LouvainOptions converts the algorithm section into louvain options.
func (c *Config) LouvainOptions(logger zerolog.Logger) louvain.Options {
	return louvain.Options{
		MaxLevels:         c.MaxLevels(),
		MaxIterations:     c.MaxIterations(),
		MinModularityGain: c.MinModularityGain(),
		Resolution:        c.Resolution(),
		RandomSeed:        c.RandomSeed(),
		Logger:            logger,
	}
}

// CreateLogger creates a zerolog logger based on config
func (c *Config) CreateLogger() zerolog.Logger {
	level, err := zerolog.ParseLevel(c.LogLevel())
	if err != nil {
		level = zerolog.InfoLevel
	}

	return zerolog.New(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: "15:04:05",
	}).Level(level).With().Timestamp().Str("service", "hsne-clustering").Logger()
}
