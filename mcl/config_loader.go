package mcl

import (
	"fmt"
	"os"
	"time"

	"github.com/paulmach/orb"
	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML configs can say "15s" or "2m".
type Duration time.Duration

// UnmarshalYAML parses a Go duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML renders the duration as a string.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// MQTTConfig holds MQTT connection and topic settings.
type MQTTConfig struct {
	Broker        string `yaml:"broker" json:"broker"`
	ClientID      string `yaml:"clientId" json:"clientId"`
	Username      string `yaml:"username,omitempty" json:"username,omitempty"`
	Password      string `yaml:"password,omitempty" json:"password,omitempty"`
	ScanTopic     string `yaml:"scanTopic" json:"scanTopic"`
	MapTopic      string `yaml:"mapTopic" json:"mapTopic"`
	PublishPrefix string `yaml:"publishPrefix,omitempty" json:"publishPrefix,omitempty"`
}

// FilterConfig sizes and seeds the particle filter engine.
type FilterConfig struct {
	Particles      int     `yaml:"particles" json:"particles"`
	ConvergeRadius float64 `yaml:"convergeRadius" json:"convergeRadius"`
	Seed           uint64  `yaml:"seed,omitempty" json:"seed,omitempty"`
}

// CycleConfig is the YAML-facing form of OrchestratorConfig.
type CycleConfig struct {
	ResampleInterval            int        `yaml:"resampleInterval" json:"resampleInterval"`
	UpdateMinDistance           float64    `yaml:"updateMinDistance" json:"updateMinDistance"`
	UpdateMinHeading            float64    `yaml:"updateMinHeading" json:"updateMinHeading"`
	ScannerCheckInterval        Duration   `yaml:"scannerCheckInterval" json:"scannerCheckInterval"`
	TransformTimeout            Duration   `yaml:"transformTimeout" json:"transformTimeout"`
	FirstMapOnly                bool       `yaml:"firstMapOnly,omitempty" json:"firstMapOnly,omitempty"`
	GlobalLocalizationParticles int        `yaml:"globalLocalizationParticles" json:"globalLocalizationParticles"`
	GlobalFactors               MapFactors `yaml:"globalFactors" json:"globalFactors"`
}

// BoundsConfig optionally constrains the map when the source cannot
// self-report usable bounds.
type BoundsConfig struct {
	MinX float64 `yaml:"minX" json:"minX"`
	MinY float64 `yaml:"minY" json:"minY"`
	MaxX float64 `yaml:"maxX" json:"maxX"`
	MaxY float64 `yaml:"maxY" json:"maxY"`
}

// Config is the full configuration file.
type Config struct {
	MQTT       MQTTConfig      `yaml:"mqtt" json:"mqtt"`
	MapURL     string          `yaml:"mapUrl,omitempty" json:"mapUrl,omitempty"`
	Filter     FilterConfig    `yaml:"filter" json:"filter"`
	Scanner    ScannerConfig   `yaml:"scanner" json:"scanner"`
	MapFactors MapFactors      `yaml:"mapFactors" json:"mapFactors"`
	Cycle      CycleConfig     `yaml:"cycle" json:"cycle"`
	Transforms map[string]Pose `yaml:"transforms" json:"transforms"`
	MapBounds  *BoundsConfig   `yaml:"mapBounds,omitempty" json:"mapBounds,omitempty"`
}

// DefaultConfig returns a fully populated configuration with every tunable
// at its default.
func DefaultConfig() *Config {
	cycle := DefaultOrchestratorConfig()
	return &Config{
		Filter: FilterConfig{
			Particles:      500,
			ConvergeRadius: 0.5,
			Seed:           1,
		},
		Scanner:    DefaultScannerConfig(),
		MapFactors: DefaultMapFactors(),
		Cycle: CycleConfig{
			ResampleInterval:            cycle.ResampleInterval,
			UpdateMinDistance:           cycle.UpdateMinDistance,
			UpdateMinHeading:            cycle.UpdateMinHeading,
			ScannerCheckInterval:        Duration(cycle.ScannerCheckInterval),
			TransformTimeout:            Duration(cycle.TransformTimeout),
			GlobalLocalizationParticles: cycle.GlobalLocalizationParticles,
			GlobalFactors:               cycle.GlobalFactors,
		},
		Transforms: map[string]Pose{},
	}
}

// LoadConfig loads and validates the configuration from a YAML file.
// Values absent from the file keep their defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// SaveConfig writes the configuration to a YAML file.
func SaveConfig(path string, config *Config) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshaling config YAML: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// Validate checks cross-field consistency.
func (c *Config) Validate() error {
	if !c.Scanner.Model.Valid() {
		return fmt.Errorf("scanner.model %q is not a known model type", c.Scanner.Model)
	}
	if c.Scanner.SigmaHit <= 0 {
		return fmt.Errorf("scanner.sigmaHit must be positive, got %f", c.Scanner.SigmaHit)
	}
	if c.Scanner.MaxOccDist <= 0 {
		return fmt.Errorf("scanner.maxOccDist must be positive, got %f", c.Scanner.MaxOccDist)
	}
	if c.Filter.Particles <= 0 {
		return fmt.Errorf("filter.particles must be positive, got %d", c.Filter.Particles)
	}
	if c.MQTT.Broker != "" {
		if c.MQTT.ScanTopic == "" {
			return fmt.Errorf("mqtt.scanTopic is required when mqtt.broker is set")
		}
		if c.MQTT.MapTopic == "" && c.MapURL == "" {
			return fmt.Errorf("either mqtt.mapTopic or mapUrl must be set when mqtt.broker is set")
		}
	}
	if b := c.MapBounds; b != nil && (b.MaxX <= b.MinX || b.MaxY <= b.MinY) {
		return fmt.Errorf("mapBounds must have max greater than min")
	}
	return nil
}

// BoundsOverride converts the optional map bounds to the distance field's
// form, or nil when unset.
func (c *Config) BoundsOverride() *orb.Bound {
	if c.MapBounds == nil {
		return nil
	}
	return &orb.Bound{
		Min: orb.Point{c.MapBounds.MinX, c.MapBounds.MinY},
		Max: orb.Point{c.MapBounds.MaxX, c.MapBounds.MaxY},
	}
}

// OrchestratorConfig converts the YAML-facing cycle settings into the
// orchestrator's runtime form.
func (c *Config) OrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		ResampleInterval:            c.Cycle.ResampleInterval,
		UpdateMinDistance:           c.Cycle.UpdateMinDistance,
		UpdateMinHeading:            c.Cycle.UpdateMinHeading,
		ScannerCheckInterval:        time.Duration(c.Cycle.ScannerCheckInterval),
		TransformTimeout:            time.Duration(c.Cycle.TransformTimeout),
		FirstMapOnly:                c.Cycle.FirstMapOnly,
		GlobalLocalizationParticles: c.Cycle.GlobalLocalizationParticles,
		GlobalFactors:               c.Cycle.GlobalFactors,
	}
}
