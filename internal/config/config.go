package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/dustin/go-humanize"
	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/llehouerou/notifyd/internal/engine"
	"github.com/llehouerou/notifyd/internal/hints"
	"github.com/llehouerou/notifyd/internal/notify"
	"github.com/llehouerou/notifyd/internal/ratelimit"
	"github.com/llehouerou/notifyd/internal/rules"
	"github.com/llehouerou/notifyd/internal/store"
)

const (
	appName        = "notifyd"
	configFileName = "config.toml"
)

type Config struct {
	DoNotDisturb     *bool `koanf:"do_not_disturb"`                                     // default: false
	ShowImages       *bool `koanf:"show_images"`                                        // default: true
	ShowActions      *bool `koanf:"show_actions"`                                       // default: true
	EnableLinks      *bool `koanf:"enable_links"`                                       // default: true
	EnableAnimations *bool `koanf:"enable_animations"`                                  // default: true
	MaxImageSize     int   `koanf:"max_image_size" validate:"omitempty,min=32,max=256"` // pixels (default: 128)

	// Timeouts in milliseconds. Zero caps mean no cap.
	DefaultTimeout   *int `koanf:"default_timeout" validate:"omitempty,min=0"`    // default: 5000
	MaxTimeoutUrgent *int `koanf:"max_timeout_urgent" validate:"omitempty,min=0"` // default: unset
	MaxTimeoutNormal *int `koanf:"max_timeout_normal" validate:"omitempty,min=0"` // default: 5000
	MaxTimeoutLow    *int `koanf:"max_timeout_low" validate:"omitempty,min=0"`    // default: 3000

	MaxPerApp     int    `koanf:"max_per_app" validate:"min=0"`                          // default: 10
	MaxLive       int    `koanf:"max_live" validate:"min=0"`                             // default: 100
	Grouping      string `koanf:"grouping" validate:"omitempty,oneof=none app category"` // default: "none"
	Workers       int    `koanf:"workers" validate:"omitempty,min=1,max=64"`             // default: 4
	EnrichTimeout int    `koanf:"enrich_timeout" validate:"omitempty,min=100"`           // ms (default: 5000)

	Retention RetentionConfig `koanf:"retention"`
	RateLimit RateLimitConfig `koanf:"rate_limit"`
	Log       LogConfig       `koanf:"log"`

	// Per-application rules
	Apps []AppConfig `koanf:"apps" validate:"dive"`
}

// RetentionConfig holds history retention settings.
type RetentionConfig struct {
	Enabled  *bool  `koanf:"enabled"`   // default: true
	MaxBytes string `koanf:"max_bytes"` // human size, e.g. "50MiB" (default: "50MiB")
}

// RateLimitConfig holds admission limits.
type RateLimitConfig struct {
	PerSender       int     `koanf:"per_sender" validate:"min=0"`        // default: 60
	Window          int     `koanf:"window" validate:"min=0"`            // ms (default: 60000)
	MaxSenders      int     `koanf:"max_senders" validate:"min=0"`       // default: 1000
	GlobalPerSecond float64 `koanf:"global_per_second" validate:"min=0"` // default: 50
	GlobalBurst     int     `koanf:"global_burst" validate:"min=0"`      // default: 200
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `koanf:"level" validate:"omitempty,oneof=trace debug info warn error"` // default: "info"
	Format string `koanf:"format" validate:"omitempty,oneof=console json"`               // default: "console"
}

// AppConfig is the rule for one application.
type AppConfig struct {
	Match   string `koanf:"match" validate:"required"`                              // app name or desktop entry
	Enabled *bool  `koanf:"enabled"`                                                // default: true
	Urgency string `koanf:"urgency" validate:"omitempty,oneof=low normal critical"` // override
	Sound   *bool  `koanf:"sound"`                                                  // default: true
	Timeout *int   `koanf:"timeout" validate:"omitempty,min=0"`                     // ms override
}

var validate = validator.New()

// Load reads the configuration files in priority order (last wins) and
// validates the result. A non-empty explicit path must exist.
func Load(explicit string) (*Config, error) {
	k := koanf.New(".")

	if explicit != "" {
		if _, err := os.Stat(expandPath(explicit)); err != nil {
			return nil, fmt.Errorf("config file: %w", err)
		}
	}
	for _, path := range Paths(explicit) {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
				return nil, fmt.Errorf("%s: %w", path, err)
			}
		}
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Paths returns the candidate configuration files, lowest priority first.
func Paths(explicit string) []string {
	var paths []string

	// 1. $XDG_CONFIG_DIRS/notifyd/config.toml, least important directory first
	for _, dir := range slices.Backward(xdg.ConfigDirs) {
		paths = append(paths, filepath.Join(dir, appName, configFileName))
	}

	// 2. $XDG_CONFIG_HOME/notifyd/config.toml
	paths = append(paths, filepath.Join(xdg.ConfigHome, appName, configFileName))

	// 3. ./config.toml
	paths = append(paths, configFileName)

	// 4. --config
	if explicit != "" {
		paths = append(paths, expandPath(explicit))
	}
	return paths
}

func expandPath(path string) string {
	if path != "" && path[0] == '~' {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}

// Validate checks field ranges and the retention size.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: %s", fe.Namespace(), validationMessage(fe)))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := c.RetentionBytes(); err != nil {
		return fmt.Errorf("invalid config: retention.max_bytes: %w", err)
	}
	return nil
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "oneof":
		return "must be one of " + fe.Param()
	}
	return "is invalid"
}

func boolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}

func msOr(v *int, def time.Duration) time.Duration {
	if v == nil {
		return def
	}
	return time.Duration(*v) * time.Millisecond
}

// GetDoNotDisturb returns whether do-not-disturb is on (default: false).
func (c *Config) GetDoNotDisturb() bool { return boolOr(c.DoNotDisturb, false) }

// GetShowImages returns whether images are decoded (default: true).
func (c *Config) GetShowImages() bool { return boolOr(c.ShowImages, true) }

// GetShowActions returns whether actions are kept (default: true).
func (c *Config) GetShowActions() bool { return boolOr(c.ShowActions, true) }

// GetEnableLinks returns whether links are detected (default: true).
func (c *Config) GetEnableLinks() bool { return boolOr(c.EnableLinks, true) }

// GetEnableAnimations returns whether animations are decoded (default: true).
func (c *Config) GetEnableAnimations() bool { return boolOr(c.EnableAnimations, true) }

// GetMaxImageSize returns the image size budget in pixels (default: 128).
func (c *Config) GetMaxImageSize() int {
	if c.MaxImageSize <= 0 {
		return 128
	}
	return c.MaxImageSize
}

// GetGrouping returns the grouping mode (default: none).
func (c *Config) GetGrouping() notify.GroupingMode {
	if c.Grouping == "" {
		return notify.GroupNone
	}
	return notify.GroupingMode(c.Grouping)
}

// GetRetentionEnabled returns whether history is kept (default: true).
func (c *Config) GetRetentionEnabled() bool { return boolOr(c.Retention.Enabled, true) }

// RetentionBytes parses the retention budget (default: 50MiB).
func (c *Config) RetentionBytes() (int, error) {
	if c.Retention.MaxBytes == "" {
		return store.DefaultRetentionBytes, nil
	}
	n, err := humanize.ParseBytes(c.Retention.MaxBytes)
	if err != nil {
		return 0, err
	}
	if n == 0 || n > 1<<40 {
		return 0, fmt.Errorf("%s out of range", c.Retention.MaxBytes)
	}
	return int(n), nil //nolint:gosec // bounded above
}

// Policy returns the store policy.
func (c *Config) Policy() (store.Policy, error) {
	p := store.DefaultPolicy()
	p.DefaultTimeout = msOr(c.DefaultTimeout, store.DefaultTimeout)
	p.MaxTimeout = map[notify.Urgency]time.Duration{
		notify.UrgencyLow:      msOr(c.MaxTimeoutLow, p.MaxTimeout[notify.UrgencyLow]),
		notify.UrgencyNormal:   msOr(c.MaxTimeoutNormal, p.MaxTimeout[notify.UrgencyNormal]),
		notify.UrgencyCritical: msOr(c.MaxTimeoutUrgent, 0),
	}
	if c.MaxPerApp > 0 {
		p.MaxPerApp = c.MaxPerApp
	}
	if c.MaxLive > 0 {
		p.MaxLive = c.MaxLive
	}
	p.DoNotDisturb = c.GetDoNotDisturb()
	p.Retention = c.GetRetentionEnabled()
	n, err := c.RetentionBytes()
	if err != nil {
		return p, err
	}
	p.RetentionBytes = n
	p.Rules = c.Rules()
	return p, nil
}

// Rules builds the per-application rule set.
func (c *Config) Rules() *rules.Set {
	rs := make([]rules.Rule, 0, len(c.Apps))
	for _, a := range c.Apps {
		r := rules.Rule{
			Match:   a.Match,
			Enabled: boolOr(a.Enabled, true),
			Sound:   boolOr(a.Sound, true),
		}
		if u, ok := notify.ParseUrgencyName(a.Urgency); ok {
			r.Urgency = &u
		}
		if a.Timeout != nil {
			d := msOr(a.Timeout, 0)
			r.Timeout = &d
		}
		rs = append(rs, r)
	}
	return rules.New(rs)
}

// ContentOptions returns the enrichment options.
func (c *Config) ContentOptions() hints.Options {
	return hints.Options{
		ShowImages:       c.GetShowImages(),
		ShowActions:      c.GetShowActions(),
		EnableLinks:      c.GetEnableLinks(),
		EnableAnimations: c.GetEnableAnimations(),
		MaxImageSize:     c.GetMaxImageSize(),
	}
}

// RateLimitOptions returns the admission limits with defaults applied.
func (c *Config) RateLimitOptions() ratelimit.Options {
	rl := c.RateLimit
	opts := ratelimit.Options{
		Limit:       rl.PerSender,
		Window:      time.Duration(rl.Window) * time.Millisecond,
		MaxSenders:  rl.MaxSenders,
		GlobalRate:  rl.GlobalPerSecond,
		GlobalBurst: rl.GlobalBurst,
	}
	if opts.Limit <= 0 {
		opts.Limit = ratelimit.DefaultLimit
	}
	if opts.Window <= 0 {
		opts.Window = ratelimit.DefaultWindow
	}
	if opts.MaxSenders <= 0 {
		opts.MaxSenders = ratelimit.DefaultMaxSenders
	}
	if opts.GlobalRate <= 0 {
		opts.GlobalRate = 50
	}
	if opts.GlobalBurst <= 0 {
		opts.GlobalBurst = 200
	}
	return opts
}

// EngineSettings converts the configuration into engine settings.
func (c *Config) EngineSettings() (engine.Settings, error) {
	p, err := c.Policy()
	if err != nil {
		return engine.Settings{}, err
	}
	s := engine.DefaultSettings()
	s.Policy = p
	s.Content = c.ContentOptions()
	s.RateLimit = c.RateLimitOptions()
	s.Grouping = c.GetGrouping()
	if c.Workers > 0 {
		s.Workers = c.Workers
	}
	if c.EnrichTimeout > 0 {
		s.EnrichTimeout = time.Duration(c.EnrichTimeout) * time.Millisecond
	}
	return s, nil
}
