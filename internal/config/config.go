package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator"
	"gopkg.in/yaml.v3"

	"github.com/questforge/questgraph/internal/orchestrator"
)

// Config is the questgraph service configuration (config.yaml).
type Config struct {
	Version int `yaml:"version"`
	Service struct {
		Name string `yaml:"name"`
	} `yaml:"service"`
	API struct {
		Port int `yaml:"port" validate:"min=1,max=65535"`
	} `yaml:"api"`
	Simulation SimulationConfig `yaml:"simulation"`
	Storage    struct {
		DocumentsDir string `yaml:"documents_dir" validate:"required"`
		Document     string `yaml:"document" validate:"required"`
	} `yaml:"storage"`
	MQTT struct {
		Broker      string `yaml:"broker" validate:"omitempty,url"`
		TopicPrefix string `yaml:"topic_prefix"`
	} `yaml:"mqtt"`
}

// SimulationConfig mirrors orchestrator.Options.
type SimulationConfig struct {
	StepDelayMS    int    `yaml:"step_delay_ms"`
	MaxSteps       int    `yaml:"max_steps" validate:"min=0"`
	TaskExperience int    `yaml:"task_experience" validate:"min=0"`
	LevelThreshold int    `yaml:"level_threshold" validate:"min=0"`
	GameVersion    string `yaml:"game_version"`
	RandomSeed     int64  `yaml:"random_seed"`
}

var validate = validator.New()

// Default returns the configuration used when no file is given.
func Default() *Config {
	var cfg Config
	cfg.Version = 1
	cfg.applyDefaults()
	return &cfg
}

func (c *Config) applyDefaults() {
	if c.Service.Name == "" {
		c.Service.Name = "questgraph"
	}
	if c.API.Port == 0 {
		c.API.Port = 8080
	}
	if c.Simulation.StepDelayMS == 0 {
		c.Simulation.StepDelayMS = 500
	}
	if c.Storage.DocumentsDir == "" {
		c.Storage.DocumentsDir = "data/documents"
	}
	if c.Storage.Document == "" {
		c.Storage.Document = "default"
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = "questgraph"
	}
}

// StepDelay returns the pause between simulation steps. Negative values
// in the file disable the pause.
func (c *Config) StepDelay() time.Duration {
	if c.Simulation.StepDelayMS < 0 {
		return 0
	}
	return time.Duration(c.Simulation.StepDelayMS) * time.Millisecond
}

// Options builds runtime options from the simulation section. Unset
// fields fall through to the orchestrator defaults.
func (c *Config) Options() orchestrator.Options {
	return orchestrator.Options{
		StepDelay:      c.StepDelay(),
		MaxSteps:       c.Simulation.MaxSteps,
		TaskExperience: c.Simulation.TaskExperience,
		LevelThreshold: c.Simulation.LevelThreshold,
		GameVersion:    c.Simulation.GameVersion,
		Seed:           c.Simulation.RandomSeed,
	}
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(b)
}

func Parse(b []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}

	if cfg.Version != 1 {
		return nil, fmt.Errorf("unsupported config.yaml version: %d", cfg.Version)
	}

	cfg.applyDefaults()
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config.yaml: %w", err)
	}
	return &cfg, nil
}
