package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Settings holds the market tunables shared by the bank and auction house
// binaries. Addresses and file paths come from flags; timing policy lives
// here so every node in a deployment reads the same numbers.
type Settings struct {
	BidDuration     int `yaml:"bid_duration"`     // countdown units per item, reset on each accepted bid
	ElapseEvery     int `yaml:"elapse_every"`     // heartbeat period, in countdown units
	InitialListings int `yaml:"initial_listings"` // items listed when a house opens

	TickInterval   time.Duration `yaml:"tick_interval"`
	GracePeriod    time.Duration `yaml:"grace_period"`     // wait after the last item expires before ending the auction
	BankRetryDelay time.Duration `yaml:"bank_retry_delay"` // polling interval while the bank is unreachable
}

// duration lets yaml carry values like "250ms" or "5s".
type duration time.Duration

func (d *duration) UnmarshalYAML(n *yaml.Node) error {
	v, err := time.ParseDuration(n.Value)
	if err != nil {
		return fmt.Errorf("duration %q: %w", n.Value, err)
	}
	*d = duration(v)
	return nil
}

// UnmarshalYAML keeps unset keys at their prior (default) values.
func (s *Settings) UnmarshalYAML(n *yaml.Node) error {
	type raw struct {
		BidDuration     int      `yaml:"bid_duration"`
		ElapseEvery     int      `yaml:"elapse_every"`
		InitialListings int      `yaml:"initial_listings"`
		TickInterval    duration `yaml:"tick_interval"`
		GracePeriod     duration `yaml:"grace_period"`
		BankRetryDelay  duration `yaml:"bank_retry_delay"`
	}
	r := raw{
		BidDuration:     s.BidDuration,
		ElapseEvery:     s.ElapseEvery,
		InitialListings: s.InitialListings,
		TickInterval:    duration(s.TickInterval),
		GracePeriod:     duration(s.GracePeriod),
		BankRetryDelay:  duration(s.BankRetryDelay),
	}
	if err := n.Decode(&r); err != nil {
		return err
	}
	s.BidDuration = r.BidDuration
	s.ElapseEvery = r.ElapseEvery
	s.InitialListings = r.InitialListings
	s.TickInterval = time.Duration(r.TickInterval)
	s.GracePeriod = time.Duration(r.GracePeriod)
	s.BankRetryDelay = time.Duration(r.BankRetryDelay)
	return nil
}

func Load(path string) (Settings, error) {
	s := Defaults()
	if strings.TrimSpace(path) == "" {
		return s, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return s, err
	}
	if err := yaml.Unmarshal(b, &s); err != nil {
		return s, fmt.Errorf("market.yaml: %w", err)
	}
	if err := s.Validate(); err != nil {
		return s, fmt.Errorf("market.yaml: %w", err)
	}
	return s, nil
}

func Defaults() Settings {
	return Settings{
		BidDuration:     15,
		ElapseEvery:     5,
		InitialListings: 3,
		TickInterval:    time.Second,
		GracePeriod:     5 * time.Second,
		BankRetryDelay:  5 * time.Second,
	}
}

func (s Settings) Validate() error {
	if s.BidDuration <= 0 {
		return fmt.Errorf("bid_duration must be > 0")
	}
	if s.ElapseEvery <= 0 {
		return fmt.Errorf("elapse_every must be > 0")
	}
	if s.InitialListings <= 0 {
		return fmt.Errorf("initial_listings must be > 0")
	}
	if s.TickInterval <= 0 {
		return fmt.Errorf("tick_interval must be > 0")
	}
	if s.GracePeriod < 0 {
		return fmt.Errorf("grace_period must be >= 0")
	}
	if s.BankRetryDelay <= 0 {
		return fmt.Errorf("bank_retry_delay must be > 0")
	}
	return nil
}
