package scraper

import (
	"fmt"
	"math/rand"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config contains politeness settings for a scraping session. Values
// were tuned operationally against the target sites; override them
// with a YAML file when a site starts pushing back.
type Config struct {
	MinDelay          Duration `yaml:"min_delay"`           // minimum delay between page requests
	MaxDelay          Duration `yaml:"max_delay"`           // requests are jittered up to this delay
	BatchBreakEvery   int      `yaml:"batch_break_every"`   // take an extended break every N articles
	BatchBreakMin     Duration `yaml:"batch_break_min"`
	BatchBreakMax     Duration `yaml:"batch_break_max"`
	PauseBetweenDates Duration `yaml:"pause_between_dates"`
	Retry             Retry    `yaml:"retry"`
	UserAgents        []string `yaml:"user_agents"`       // rotated randomly per request
	BlockingKeywords  []string `yaml:"blocking_keywords"` // response markers of captcha/anti-bot pages
}

// Retry describes the backoff applied between attempts on the same date.
type Retry struct {
	BaseDelay  Duration `yaml:"base_delay"`
	Multiplier int      `yaml:"multiplier"`
	MaxDelay   Duration `yaml:"max_delay"`
}

// Backoff returns the delay to sleep before the given retry attempt,
// starting from 1 for the first retry.
func (r Retry) Backoff(attempt int) time.Duration {
	d := time.Duration(r.BaseDelay)
	for i := 1; i < attempt; i++ {
		d *= time.Duration(r.Multiplier)
		if d >= time.Duration(r.MaxDelay) {
			return time.Duration(r.MaxDelay)
		}
	}
	if max := time.Duration(r.MaxDelay); d > max {
		return max
	}
	return d
}

// DefaultConfig returns the politeness settings used when no config
// file is given.
func DefaultConfig() Config {
	return Config{
		MinDelay:          Duration(2500 * time.Millisecond),
		MaxDelay:          Duration(5 * time.Second),
		BatchBreakEvery:   10,
		BatchBreakMin:     Duration(10 * time.Second),
		BatchBreakMax:     Duration(20 * time.Second),
		PauseBetweenDates: Duration(2 * time.Second),
		Retry: Retry{
			BaseDelay:  Duration(2 * time.Second),
			Multiplier: 2,
			MaxDelay:   Duration(time.Minute),
		},
		UserAgents: []string{
			"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
			"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
		},
		BlockingKeywords: []string{
			"captcha",
			"access denied",
			"too many requests",
			"rate limit",
			"cloudflare",
			"security check",
			"unusual traffic",
			"bot detection",
			"human verification",
		},
	}
}

// LoadConfig reads politeness settings from a YAML file, filling
// omitted fields with defaults.
func LoadConfig(path string) (Config, error) {
	bts, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(bts, &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	return cfg, nil
}

func (c Config) batchBreak() time.Duration {
	min, max := time.Duration(c.BatchBreakMin), time.Duration(c.BatchBreakMax)
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Int63n(int64(max-min)))
}

// Duration wraps time.Duration to accept "2.5s"-style values in YAML.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	v, err := time.ParseDuration(n.Value)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", n.Value, err)
	}
	*d = Duration(v)
	return nil
}
