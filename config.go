package rdd

import (
	"fmt"
	"runtime"
	"time"

	"github.com/go-sif/rdd/internal/scheduler"
	"github.com/go-sif/rdd/logging"
	"github.com/spf13/viper"
)

// Listener is notified of the progress of every job run by a Session
type Listener = scheduler.Listener

// Config configures a Session
type Config struct {
	Workers            int           // number of in-process workers of a local Session
	TaskSlots          int           // concurrent tasks per in-process worker
	MaxTaskAttempts    int           // attempts per task, across workers, before a stage fails
	MaxStageAttempts   int           // attempts per job to recover lost shuffle outputs
	MaxRecoveries      int           // recomputations of a single shuffle output per job
	CacheMemory        int64         // bytes of persisted partitions each in-process worker may cache
	HeartbeatInterval  time.Duration // how often workers are pinged
	HeartbeatTimeout   time.Duration // silence after which a worker is considered lost
	DefaultParallelism int           // partitions of parallelized collections, when unspecified
	LogLevel           string        // TRACE, DEBUG, INFO, WARN, ERROR or FATAL
	ProgressBar        bool          // display a progress bar for every stage
	listeners          []Listener
	closers            []func() error
}

// Option configures a Session
type Option func(*Config)

func defaultConfig() *Config {
	return &Config{
		Workers:            runtime.NumCPU(),
		TaskSlots:          2,
		MaxTaskAttempts:    4,
		MaxStageAttempts:   4,
		MaxRecoveries:      3,
		CacheMemory:        256 * 1024 * 1024,
		HeartbeatInterval:  time.Second,
		HeartbeatTimeout:   10 * time.Second,
		DefaultParallelism: 0,
		LogLevel:           "INFO",
	}
}

// ensureDefaults fills unset values and validates the rest
func (c *Config) ensureDefaults() error {
	d := defaultConfig()
	if c.Workers <= 0 {
		c.Workers = d.Workers
	}
	if c.TaskSlots <= 0 {
		c.TaskSlots = d.TaskSlots
	}
	if c.MaxTaskAttempts <= 0 {
		c.MaxTaskAttempts = d.MaxTaskAttempts
	}
	if c.MaxStageAttempts <= 0 {
		c.MaxStageAttempts = d.MaxStageAttempts
	}
	if c.MaxRecoveries <= 0 {
		c.MaxRecoveries = d.MaxRecoveries
	}
	if c.CacheMemory < 0 {
		return fmt.Errorf("CacheMemory must not be negative")
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = d.HeartbeatInterval
	}
	if c.HeartbeatTimeout <= c.HeartbeatInterval {
		c.HeartbeatTimeout = 10 * c.HeartbeatInterval
	}
	if len(c.LogLevel) == 0 {
		c.LogLevel = d.LogLevel
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// WithWorkers sets the number of in-process workers of a local Session
func WithWorkers(n int) Option {
	return func(c *Config) {
		c.Workers = n
	}
}

// WithTaskSlots sets the number of tasks each in-process worker runs concurrently
func WithTaskSlots(n int) Option {
	return func(c *Config) {
		c.TaskSlots = n
	}
}

// WithMaxTaskAttempts sets the number of attempts per task before its stage fails
func WithMaxTaskAttempts(n int) Option {
	return func(c *Config) {
		c.MaxTaskAttempts = n
	}
}

// WithMaxStageAttempts sets the number of times a job re-runs its stages after losing shuffle outputs
func WithMaxStageAttempts(n int) Option {
	return func(c *Config) {
		c.MaxStageAttempts = n
	}
}

// WithCacheMemory sets the number of bytes of persisted partitions each in-process worker may cache.
// Partitions which do not fit are recomputed when needed.
func WithCacheMemory(bytes int64) Option {
	return func(c *Config) {
		c.CacheMemory = bytes
	}
}

// WithHeartbeat sets how often workers are pinged, and how long a worker may be silent before it is lost
func WithHeartbeat(interval time.Duration, timeout time.Duration) Option {
	return func(c *Config) {
		c.HeartbeatInterval = interval
		c.HeartbeatTimeout = timeout
	}
}

// WithDefaultParallelism sets the number of partitions of parallelized collections
func WithDefaultParallelism(n int) Option {
	return func(c *Config) {
		c.DefaultParallelism = n
	}
}

// WithListener registers a Listener for every job run by the Session
func WithListener(l Listener) Option {
	return func(c *Config) {
		c.listeners = append(c.listeners, l)
	}
}

// WithProgressBar toggles progress bars for running stages
func WithProgressBar(enabled bool) Option {
	return func(c *Config) {
		c.ProgressBar = enabled
	}
}

// WithLogLevel sets the level of the standard logger
func WithLogLevel(level string) Option {
	return func(c *Config) {
		c.LogLevel = level
	}
}

// WithCloseHook registers a function called when the Session is closed, after its jobs have stopped
func WithCloseHook(fn func() error) Option {
	return func(c *Config) {
		c.closers = append(c.closers, fn)
	}
}

// WithConfig replaces every setting with those of conf, typically obtained from LoadConfig
func WithConfig(conf *Config) Option {
	return func(c *Config) {
		listeners, closers := c.listeners, c.closers
		*c = *conf
		c.listeners = append(listeners, conf.listeners...)
		c.closers = append(closers, conf.closers...)
	}
}

// LoadConfig reads a Config from rdd.yaml (in the given paths, the working directory or
// $HOME/.rdd) and from RDD_* environment variables, on top of the defaults
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("rdd")
	v.SetConfigType("yaml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.rdd")

	d := defaultConfig()
	defaults := map[string]interface{}{
		"workers":             d.Workers,
		"task_slots":          d.TaskSlots,
		"max_task_attempts":   d.MaxTaskAttempts,
		"max_stage_attempts":  d.MaxStageAttempts,
		"max_recoveries":      d.MaxRecoveries,
		"cache_memory":        d.CacheMemory,
		"heartbeat_interval":  d.HeartbeatInterval,
		"heartbeat_timeout":   d.HeartbeatTimeout,
		"default_parallelism": d.DefaultParallelism,
		"log_level":           d.LogLevel,
		"progress_bar":        d.ProgressBar,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix("rdd")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("Unable to read configuration: %w", err)
		}
	}

	conf := &Config{
		Workers:            v.GetInt("workers"),
		TaskSlots:          v.GetInt("task_slots"),
		MaxTaskAttempts:    v.GetInt("max_task_attempts"),
		MaxStageAttempts:   v.GetInt("max_stage_attempts"),
		MaxRecoveries:      v.GetInt("max_recoveries"),
		CacheMemory:        v.GetInt64("cache_memory"),
		HeartbeatInterval:  v.GetDuration("heartbeat_interval"),
		HeartbeatTimeout:   v.GetDuration("heartbeat_timeout"),
		DefaultParallelism: v.GetInt("default_parallelism"),
		LogLevel:           v.GetString("log_level"),
		ProgressBar:        v.GetBool("progress_bar"),
	}
	if err := conf.ensureDefaults(); err != nil {
		return nil, err
	}
	return conf, nil
}
