package main

import (
	"os"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/nmxmxh/pushsum-gossip-sim/internal/simlog"
)

// pushsimConfig holds every configuration knob exposed on the CLI:
// either set by flags, loaded from a YAML file via --config, or
// defaulted.
type pushsimConfig struct {
	Vertices        int     `yaml:"vertices"`
	EdgeProbability float64 `yaml:"edge_probability"`
	Fanout          int     `yaml:"fanout"`
	NoNewsSize      int     `yaml:"no_news"`
	FaultChance     float64 `yaml:"fault_chance"`
	HorizonMs       int64   `yaml:"horizon_ms"`
	Seed            int64   `yaml:"seed"`
	InitialValue    float64 `yaml:"initial_value"`
}

func defaultConfig() pushsimConfig {
	return pushsimConfig{
		Vertices:        8,
		EdgeProbability: 0.4,
		Fanout:          3,
		NoNewsSize:      5,
		FaultChance:     0,
		HorizonMs:       1_000_000,
		Seed:            1,
		InitialValue:    1,
	}
}

func loadConfig(path string) (pushsimConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return pushsimConfig{}, simlog.WrapError(err, "read config file")
	}
	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return pushsimConfig{}, simlog.WrapError(err, "parse config file")
	}
	return cfg, nil
}

// mergeConfig layers file-loaded values under explicitly-set flag
// values: fileCfg supplies the base, and any flag the user actually
// passed on the command line (tracked by the FlagSet's Changed bookkeeping)
// overrides it. This is the project's established
// flags-override-file configuration idiom.
func mergeConfig(fileCfg, flagCfg pushsimConfig, flags *pflag.FlagSet) pushsimConfig {
	merged := fileCfg

	overrideInt := func(name string, dst *int, val int) {
		if flags.Changed(name) {
			*dst = val
		}
	}
	overrideInt64 := func(name string, dst *int64, val int64) {
		if flags.Changed(name) {
			*dst = val
		}
	}
	overrideFloat := func(name string, dst *float64, val float64) {
		if flags.Changed(name) {
			*dst = val
		}
	}

	overrideInt("vertices", &merged.Vertices, flagCfg.Vertices)
	overrideFloat("edge-probability", &merged.EdgeProbability, flagCfg.EdgeProbability)
	overrideInt("fanout", &merged.Fanout, flagCfg.Fanout)
	overrideInt("no-news", &merged.NoNewsSize, flagCfg.NoNewsSize)
	overrideFloat("fault-chance", &merged.FaultChance, flagCfg.FaultChance)
	overrideInt64("horizon-ms", &merged.HorizonMs, flagCfg.HorizonMs)
	overrideInt64("seed", &merged.Seed, flagCfg.Seed)
	overrideFloat("initial-value", &merged.InitialValue, flagCfg.InitialValue)

	return merged
}
