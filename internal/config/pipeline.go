package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// PipelineConfig holds the tunable knobs of the background pipeline.
// It lives in pipeline.yml so operators can retune a running instance
// without a restart.
type PipelineConfig struct {
	PollInterval      time.Duration `mapstructure:"pollInterval"`
	ProcessInterval   time.Duration `mapstructure:"processInterval"`
	AggregateInterval time.Duration `mapstructure:"aggregateInterval"`

	ProcessBatchSize    int `mapstructure:"processBatchSize"`
	DefaultPollSeconds  int `mapstructure:"defaultPollSeconds"`
	MaxBackoffSeconds   int `mapstructure:"maxBackoffSeconds"`
	JobTimeoutSeconds   int `mapstructure:"jobTimeoutSeconds"`
	IngestMaxBatchItems int `mapstructure:"ingestMaxBatchItems"`
}

func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		PollInterval:        30 * time.Second,
		ProcessInterval:     30 * time.Second,
		AggregateInterval:   60 * time.Second,
		ProcessBatchSize:    100,
		DefaultPollSeconds:  30,
		MaxBackoffSeconds:   3600,
		JobTimeoutSeconds:   30,
		IngestMaxBatchItems: 1000,
	}
}

type PipelineConfigHolder struct {
	current atomic.Value // holds PipelineConfig
}

func NewPipelineConfigHolder() (*PipelineConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("pipeline")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/halo/config")
	v.AddConfigPath("/etc/halo")
	v.AddConfigPath(".")

	v.SetEnvPrefix("HALO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		defaults := DefaultPipelineConfig()
		v.SetDefault("pipeline.pollInterval", defaults.PollInterval)
		v.SetDefault("pipeline.processInterval", defaults.ProcessInterval)
		v.SetDefault("pipeline.aggregateInterval", defaults.AggregateInterval)
		v.SetDefault("pipeline.processBatchSize", defaults.ProcessBatchSize)
		v.SetDefault("pipeline.defaultPollSeconds", defaults.DefaultPollSeconds)
		v.SetDefault("pipeline.maxBackoffSeconds", defaults.MaxBackoffSeconds)
		v.SetDefault("pipeline.jobTimeoutSeconds", defaults.JobTimeoutSeconds)
		v.SetDefault("pipeline.ingestMaxBatchItems", defaults.IngestMaxBatchItems)
	}

	var cfg PipelineConfig
	if err := v.UnmarshalKey("pipeline", &cfg); err != nil {
		return nil, err
	}
	if err := validatePipelineConfig(cfg); err != nil {
		return nil, err
	}

	holder := &PipelineConfigHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated PipelineConfig
		if err := v.UnmarshalKey("pipeline", &updated); err != nil {
			log.Printf("[pipeline-config] reload failed: %v", err)
			return
		}
		if err := validatePipelineConfig(updated); err != nil {
			log.Printf("[pipeline-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[pipeline-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *PipelineConfigHolder) Get() PipelineConfig {
	return h.current.Load().(PipelineConfig)
}

func validatePipelineConfig(cfg PipelineConfig) error {
	if cfg.PollInterval <= 0 || cfg.ProcessInterval <= 0 || cfg.AggregateInterval <= 0 {
		return errors.New("pipeline intervals must be positive")
	}
	if cfg.ProcessBatchSize <= 0 {
		return errors.New("pipeline.processBatchSize must be positive")
	}
	return nil
}
