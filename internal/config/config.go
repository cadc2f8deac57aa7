package config

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/gnaf-verify/internal/extract"
	"github.com/gnaf-verify/internal/matcher"
	"github.com/gnaf-verify/internal/reference"
	"github.com/gnaf-verify/internal/verify"
)

// Config is the full process configuration, loadable from a YAML file and
// overridable through GNAF_VERIFY_* environment variables.
type Config struct {
	Server struct {
		Host string `mapstructure:"host"`
		Port int    `mapstructure:"port"`
	} `mapstructure:"server"`

	Reference struct {
		// Dir holds pipe-delimited reference tables. DatabaseURL, when
		// set, wins and the tables are read from Postgres instead.
		Dir         string `mapstructure:"dir"`
		DatabaseURL string `mapstructure:"database_url"`
	} `mapstructure:"reference"`

	Engine struct {
		TimeoutMS         int            `mapstructure:"timeout_ms"`
		Workers           int            `mapstructure:"workers"`
		MaxCandidates     int            `mapstructure:"max_candidates"`
		FuzzPreset        string         `mapstructure:"fuzz_preset"` // full or none
		FuzzLevels        []int          `mapstructure:"fuzz_levels"` // overrides the preset
		Exhaustive        bool           `mapstructure:"exhaustive"`
		MinCombinedWeight int            `mapstructure:"min_combined_weight"`
		NTPostcodes       bool           `mapstructure:"nt_postcodes"`
		SuburbWeights     map[string]int `mapstructure:"suburb_weights"`
		StreetWeights     map[string]int `mapstructure:"street_weights"`
	} `mapstructure:"engine"`

	Log struct {
		Level  string `mapstructure:"level"`
		Pretty bool   `mapstructure:"pretty"`
	} `mapstructure:"log"`
}

// Load reads configuration from an optional file path plus the
// environment. Defaults reproduce the standard trust table and the full
// widening schedule.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8090)
	v.SetDefault("reference.dir", "reference")
	v.SetDefault("engine.timeout_ms", 2000)
	v.SetDefault("engine.workers", 4)
	v.SetDefault("engine.max_candidates", 5)
	v.SetDefault("engine.fuzz_preset", "full")
	v.SetDefault("engine.min_combined_weight", 40)
	v.SetDefault("log.level", "info")

	v.SetEnvPrefix("GNAF_VERIFY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

// EngineConfig translates the file/env view into the engine's wiring.
func (c *Config) EngineConfig() (verify.Config, error) {
	ec := verify.DefaultConfig()
	ec.Timeout = time.Duration(c.Engine.TimeoutMS) * time.Millisecond
	ec.Workers = c.Engine.Workers
	ec.MaxCandidates = c.Engine.MaxCandidates
	ec.Extract = extract.Options{NTPostcodes: c.Engine.NTPostcodes}

	levels, err := c.fuzzLevels()
	if err != nil {
		return ec, err
	}
	ec.Matcher.FuzzLevels = levels
	ec.Matcher.Exhaustive = c.Engine.Exhaustive
	ec.Resolver.FuzzLevels = levels
	ec.Resolver.Exhaustive = c.Engine.Exhaustive
	if c.Engine.MinCombinedWeight > 0 {
		ec.Resolver.MinCombinedWeight = c.Engine.MinCombinedWeight
	}

	if len(c.Engine.SuburbWeights) > 0 {
		ec.Matcher.SuburbWeights = sourceWeights(c.Engine.SuburbWeights)
	}
	if len(c.Engine.StreetWeights) > 0 {
		ec.Matcher.StreetWeights = sourceWeights(c.Engine.StreetWeights)
	}
	return ec, nil
}

func (c *Config) fuzzLevels() ([]int, error) {
	if len(c.Engine.FuzzLevels) > 0 {
		// Exact matching is not optional: the list picks the widening
		// levels beyond it. Level 1 is always present, and the matcher
		// needs the levels sorted and deduplicated.
		seen := map[int]bool{matcher.MinFuzzLevel: true}
		levels := []int{matcher.MinFuzzLevel}
		for _, l := range c.Engine.FuzzLevels {
			if l < matcher.MinFuzzLevel || l > matcher.MaxFuzzLevel {
				return nil, fmt.Errorf("fuzz level %d out of range", l)
			}
			if !seen[l] {
				seen[l] = true
				levels = append(levels, l)
			}
		}
		sort.Ints(levels)
		return levels, nil
	}
	switch c.Engine.FuzzPreset {
	case "", "full":
		return matcher.FullFuzzLevels(), nil
	case "none":
		return matcher.NoFuzzLevels(), nil
	default:
		return nil, fmt.Errorf("unknown fuzz preset %q", c.Engine.FuzzPreset)
	}
}

func sourceWeights(m map[string]int) map[reference.Source]int {
	out := make(map[reference.Source]int, len(m))
	for k, w := range m {
		out[reference.Source(strings.ToUpper(k))] = w
	}
	return out
}

// Address returns the host:port listen address.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
