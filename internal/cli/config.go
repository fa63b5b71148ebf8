package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/mesh-intelligence/fmlearn/internal/logging"
	"github.com/mesh-intelligence/fmlearn/internal/metalearn"
	"github.com/mesh-intelligence/fmlearn/internal/paths"
	"github.com/mesh-intelligence/fmlearn/internal/recommender"
	"github.com/mesh-intelligence/fmlearn/internal/server"
	"github.com/mesh-intelligence/fmlearn/pkg/types"
)

const (
	configFileName = "config"
	configFileType = "yaml"
	configFileExt  = "config.yaml"
	envPrefix      = "FMLEARN"
)

// Config keys.
const (
	cfgKeyBackend        = "backend"
	cfgKeyDataDir        = "data_dir"
	cfgKeyDSN            = "dsn"
	cfgKeyThreshold      = "threshold"
	cfgKeyRetrainOnStale = "retrain_on_stale"
	cfgKeyTrainTimeout   = "train_timeout"
	cfgKeyNeighbors      = "neighbors"
	cfgKeyListen         = "listen"
	cfgKeyRateLimit      = "rate_limit"
	cfgKeyRateBurst      = "rate_burst"
	cfgKeyLogLevel       = "log.level"
	cfgKeyLogFormat      = "log.format"
	cfgKeyPolicies       = "selector.policies"
)

// configFile is the structure written to config.yaml by init. data_dir is
// left out unless given so the CWD default keeps applying.
type configFile struct {
	Backend        string          `yaml:"backend"`
	DataDir        string          `yaml:"data_dir,omitempty"`
	DSN            string          `yaml:"dsn,omitempty"`
	Threshold      int64           `yaml:"threshold"`
	RetrainOnStale bool            `yaml:"retrain_on_stale"`
	TrainTimeout   string          `yaml:"train_timeout"`
	Neighbors      int             `yaml:"neighbors"`
	Listen         string          `yaml:"listen"`
	RateLimit      float64         `yaml:"rate_limit"`
	RateBurst      int             `yaml:"rate_burst"`
	Log            logSection      `yaml:"log"`
	Selector       selectorSection `yaml:"selector"`
}

type logSection struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type selectorSection struct {
	Policies map[string]string `yaml:"policies"`
}

func defaultConfigFile(dataDir string) configFile {
	rc := recommender.DefaultConfig()
	lc := metalearn.DefaultConfig()
	sc := server.DefaultConfig()
	return configFile{
		Backend:        types.BackendSQLite,
		DataDir:        dataDir,
		Threshold:      rc.Threshold,
		RetrainOnStale: rc.RetrainOnStale,
		TrainTimeout:   lc.TrainTimeout.String(),
		Neighbors:      lc.Neighbors,
		Listen:         sc.Addr,
		RateLimit:      sc.RateLimit,
		RateBurst:      sc.RateBurst,
		Log:            logSection{Level: "info", Format: "json"},
		Selector:       selectorSection{Policies: map[string]string{}},
	}
}

// settings is the resolved runtime configuration of one command.
type settings struct {
	ConfigDir   string
	Store       types.Config
	Recommender recommender.Config
	Learner     metalearn.Config
	Server      server.Config
	Log         logging.Config
	Policies    types.Policies
}

func setDefaults(v *viper.Viper) {
	d := defaultConfigFile("")
	v.SetDefault(cfgKeyBackend, d.Backend)
	v.SetDefault(cfgKeyThreshold, d.Threshold)
	v.SetDefault(cfgKeyRetrainOnStale, d.RetrainOnStale)
	v.SetDefault(cfgKeyTrainTimeout, d.TrainTimeout)
	v.SetDefault(cfgKeyNeighbors, d.Neighbors)
	v.SetDefault(cfgKeyListen, d.Listen)
	v.SetDefault(cfgKeyRateLimit, d.RateLimit)
	v.SetDefault(cfgKeyRateBurst, d.RateBurst)
	v.SetDefault(cfgKeyLogLevel, d.Log.Level)
	v.SetDefault(cfgKeyLogFormat, d.Log.Format)
}

// loadConfig reads config.yaml from configDir with FMLEARN_* environment
// overrides. A missing file is not an error.
func loadConfig(configDir string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	v.AddConfigPath(configDir)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return v, nil
}

// loadSettings resolves directories and reads every key into typed settings.
func loadSettings(flags *rootFlags) (*settings, error) {
	configDir, err := paths.ResolveConfigDir(flags.configDir)
	if err != nil {
		return nil, fmt.Errorf("resolve config dir: %w", err)
	}
	v, err := loadConfig(configDir)
	if err != nil {
		return nil, err
	}

	dataDir, err := paths.ResolveDataDir(flags.dataDir, v.GetString(cfgKeyDataDir))
	if err != nil {
		return nil, fmt.Errorf("resolve data dir: %w", err)
	}

	policies, err := types.DefaultPolicies().WithOverrides(v.GetStringMapString(cfgKeyPolicies))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cfgKeyPolicies, err)
	}

	timeout := v.GetDuration(cfgKeyTrainTimeout)
	if timeout <= 0 {
		return nil, fmt.Errorf("%s must be a positive duration, got %q", cfgKeyTrainTimeout, v.GetString(cfgKeyTrainTimeout))
	}
	neighbors := v.GetInt(cfgKeyNeighbors)
	if neighbors <= 0 {
		return nil, fmt.Errorf("%s must be positive, got %d", cfgKeyNeighbors, neighbors)
	}
	threshold := v.GetInt64(cfgKeyThreshold)
	if threshold < 0 {
		return nil, fmt.Errorf("%s must not be negative, got %d", cfgKeyThreshold, threshold)
	}

	srv := server.DefaultConfig()
	srv.Addr = v.GetString(cfgKeyListen)
	srv.RateLimit = v.GetFloat64(cfgKeyRateLimit)
	srv.RateBurst = v.GetInt(cfgKeyRateBurst)

	s := &settings{
		ConfigDir: configDir,
		Store: types.Config{
			Backend: strings.ToLower(v.GetString(cfgKeyBackend)),
			DataDir: dataDir,
			DSN:     v.GetString(cfgKeyDSN),
		},
		Recommender: recommender.Config{
			Threshold:      threshold,
			RetrainOnStale: v.GetBool(cfgKeyRetrainOnStale),
		},
		Learner: metalearn.Config{
			Neighbors:    neighbors,
			TrainTimeout: timeout,
		},
		Server: srv,
		Log: logging.Config{
			Level:  v.GetString(cfgKeyLogLevel),
			Format: v.GetString(cfgKeyLogFormat),
		},
		Policies: policies,
	}
	if err := s.Store.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// writeConfigIfMissing creates config.yaml with default values if the file
// does not exist. It reports whether a file was written.
func writeConfigIfMissing(configDir, dataDir string) (bool, error) {
	path := filepath.Join(configDir, configFileExt)
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, fmt.Errorf("stat config file: %w", err)
	}

	cfg := defaultConfigFile(dataDir)
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return false, fmt.Errorf("marshal config: %w", err)
	}
	header := []byte("# fmlearn configuration. Every key can be overridden with FMLEARN_<KEY>.\n")
	if err := os.WriteFile(path, append(header, data...), 0o644); err != nil {
		return false, err
	}
	return true, nil
}
