package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

type Config struct {
	LogLevel string        `mapstructure:"log_level"`
	Kubectl  KubectlConfig `mapstructure:"kubectl"`
	SSH      SSHConfig     `mapstructure:"ssh"`
	Job      JobConfig     `mapstructure:"job"`
	Output   OutputConfig  `mapstructure:"output"`
	Publish  PublishConfig `mapstructure:"publish"`
}

type KubectlConfig struct {
	Binary     string `mapstructure:"binary"`
	Context    string `mapstructure:"context"`
	Namespace  string `mapstructure:"namespace"`
	MinVersion string `mapstructure:"min_version"`
}

// When Host is set kubectl runs on that host instead of locally.
type SSHConfig struct {
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
	User    string `mapstructure:"user"`
	KeyPath string `mapstructure:"key_path"`
}

type JobConfig struct {
	Nodes           int           `mapstructure:"nodes"`
	StorageClass    string        `mapstructure:"storage_class"`
	DurationSeconds int           `mapstructure:"duration_seconds"`
	Timeout         time.Duration `mapstructure:"timeout"`
	JobPrefix       string        `mapstructure:"job_prefix"`
	SingleJobName   string        `mapstructure:"single_job_name"`
	LabelKey        string        `mapstructure:"label_key"`
	TailLines       int           `mapstructure:"tail_lines"`
	TemplatePath    string        `mapstructure:"template_path"`
	Concurrency     int           `mapstructure:"concurrency"` // 0 runs every node at once
	ManifestDir     string        `mapstructure:"manifest_dir"`
}

type OutputConfig struct {
	Dir         string `mapstructure:"dir"`
	InstanceTag string `mapstructure:"instance_tag"`
	BenchmarkID string `mapstructure:"benchmark_id"`
}

// Results are uploaded to S3 when Bucket is set.
type PublishConfig struct {
	Bucket      string `mapstructure:"bucket"`
	Prefix      string `mapstructure:"prefix"`
	Concurrency int    `mapstructure:"concurrency"`
}

const EnvPrefix = "DISKBENCH"

func SetDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "debug")

	v.SetDefault("kubectl.binary", "kubectl")
	v.SetDefault("kubectl.context", "")
	v.SetDefault("kubectl.namespace", "")
	v.SetDefault("kubectl.min_version", "1.11")

	v.SetDefault("ssh.host", "")
	v.SetDefault("ssh.port", 22)
	v.SetDefault("ssh.user", "root")
	v.SetDefault("ssh.key_path", "")

	v.SetDefault("job.nodes", 3)
	v.SetDefault("job.storage_class", "default")
	v.SetDefault("job.duration_seconds", 60)
	v.SetDefault("job.timeout", "7200s")
	v.SetDefault("job.job_prefix", "diskspd-node")
	v.SetDefault("job.single_job_name", "diskspd-single-node")
	v.SetDefault("job.label_key", "node-test")
	v.SetDefault("job.tail_lines", 500)
	v.SetDefault("job.template_path", "")
	v.SetDefault("job.concurrency", 0)
	v.SetDefault("job.manifest_dir", "")

	v.SetDefault("output.dir", "results")
	v.SetDefault("output.instance_tag", "Standard_D4s_v3")
	v.SetDefault("output.benchmark_id", "benchmark-01")

	v.SetDefault("publish.bucket", "")
	v.SetDefault("publish.prefix", "")
	v.SetDefault("publish.concurrency", 16)
}

// Loads configuration from defaults, an optional config file, a .env file and DISKBENCH_* environment
// variables, plus any flags already bound to v.
func Load(v *viper.Viper, configPath string) (*Config, error) {
	err := godotenv.Load()
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		err = v.ReadInConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		slog.Debug("loaded config file", slog.String("path", v.ConfigFileUsed()))
	}

	return Decode(v.AllSettings())
}

func Decode(settings map[string]any) (*Config, error) {
	cfg := &Config{}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		Result:           cfg,
	})
	if err != nil {
		return nil, err
	}
	err = dec.Decode(settings)
	if err != nil {
		return nil, fmt.Errorf("can't decode config: %w", err)
	}
	return cfg, cfg.Validate()
}

func (c *Config) Validate() error {
	if c.Job.Nodes < 1 {
		return fmt.Errorf("job.nodes must be at least 1, got %d", c.Job.Nodes)
	}
	if c.Job.DurationSeconds < 1 {
		return fmt.Errorf("job.duration_seconds must be positive, got %d", c.Job.DurationSeconds)
	}
	if c.Job.Timeout <= 0 {
		return fmt.Errorf("job.timeout must be positive, got %s", c.Job.Timeout)
	}
	if c.Job.Concurrency < 0 {
		return fmt.Errorf("job.concurrency must not be negative, got %d", c.Job.Concurrency)
	}
	if c.Output.Dir == "" {
		return fmt.Errorf("output.dir is required")
	}
	if c.SSH.Host != "" && c.SSH.KeyPath == "" {
		return fmt.Errorf("ssh.key_path is required when ssh.host is set")
	}
	return nil
}

func (c *Config) SlogLevel() slog.Level {
	var level slog.Level
	err := level.UnmarshalText([]byte(c.LogLevel))
	if err != nil {
		return slog.LevelDebug
	}
	return level
}
