package mcl

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// yamlNode parses a scalar into the node form custom unmarshalers receive.
func yamlNode(t *testing.T, s string) *yaml.Node {
	t.Helper()
	var n yaml.Node
	require.NoError(t, yaml.Unmarshal([]byte(s), &n))
	return n.Content[0]
}

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeTempConfig(t, `
mqtt:
  broker: tcp://localhost:1883
  clientId: gridloc-test
  scanTopic: robot/scan
  mapTopic: robot/map
filter:
  particles: 800
  convergeRadius: 0.3
scanner:
  model: likelihood_field_prob
  sigmaHit: 0.25
  doBeamSkip: true
cycle:
  resampleInterval: 3
  scannerCheckInterval: 20s
  transformTimeout: 500ms
transforms:
  front_laser:
    x: 0.2
    y: 0.0
    heading: 0.0
`)

	config, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "tcp://localhost:1883", config.MQTT.Broker)
	assert.Equal(t, "robot/scan", config.MQTT.ScanTopic)
	assert.Equal(t, 800, config.Filter.Particles)
	assert.Equal(t, ModelLikelihoodFieldProb, config.Scanner.Model)
	assert.Equal(t, 0.25, config.Scanner.SigmaHit)
	assert.True(t, config.Scanner.DoBeamSkip)
	assert.Equal(t, 3, config.Cycle.ResampleInterval)
	assert.Equal(t, 20*time.Second, time.Duration(config.Cycle.ScannerCheckInterval))
	assert.Equal(t, 500*time.Millisecond, time.Duration(config.Cycle.TransformTimeout))
	assert.Equal(t, Pose{X: 0.2}, config.Transforms["front_laser"])

	// Unset fields keep their defaults.
	assert.Equal(t, DefaultScannerConfig().MaxOccDist, config.Scanner.MaxOccDist)
	assert.Equal(t, DefaultMapFactors(), config.MapFactors)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadConfigBadDuration(t *testing.T) {
	path := writeTempConfig(t, "cycle:\n  transformTimeout: not-a-duration\n")
	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestSaveConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	original := DefaultConfig()
	original.MQTT.Broker = "tcp://broker:1883"
	original.MQTT.ScanTopic = "scan"
	original.MQTT.MapTopic = "map"
	original.Cycle.TransformTimeout = Duration(750 * time.Millisecond)

	require.NoError(t, SaveConfig(path, original))
	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, original, loaded)
}

func TestConfigValidate(t *testing.T) {
	valid := func() *Config {
		c := DefaultConfig()
		c.MQTT.Broker = "tcp://localhost:1883"
		c.MQTT.ScanTopic = "scan"
		c.MQTT.MapTopic = "map"
		return c
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"no broker is fine", func(c *Config) { c.MQTT = MQTTConfig{} }, false},
		{"unknown model", func(c *Config) { c.Scanner.Model = "bogus" }, true},
		{"zero sigmaHit", func(c *Config) { c.Scanner.SigmaHit = 0 }, true},
		{"zero maxOccDist", func(c *Config) { c.Scanner.MaxOccDist = 0 }, true},
		{"zero particles", func(c *Config) { c.Filter.Particles = 0 }, true},
		{"broker without scan topic", func(c *Config) { c.MQTT.ScanTopic = "" }, true},
		{"broker without any map source", func(c *Config) { c.MQTT.MapTopic = "" }, true},
		{"map url instead of map topic", func(c *Config) { c.MQTT.MapTopic = ""; c.MapURL = "http://maps/floor1" }, false},
		{"inverted bounds", func(c *Config) { c.MapBounds = &BoundsConfig{MinX: 1, MinY: 1, MaxX: 0, MaxY: 2} }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestBoundsOverride(t *testing.T) {
	c := DefaultConfig()
	assert.Nil(t, c.BoundsOverride())

	c.MapBounds = &BoundsConfig{MinX: -1, MinY: -2, MaxX: 3, MaxY: 4}
	b := c.BoundsOverride()
	require.NotNil(t, b)
	assert.Equal(t, -1.0, b.Min[0])
	assert.Equal(t, 4.0, b.Max[1])
}

func TestOrchestratorConfigConversion(t *testing.T) {
	c := DefaultConfig()
	c.Cycle.ResampleInterval = 5
	c.Cycle.ScannerCheckInterval = Duration(42 * time.Second)
	c.Cycle.FirstMapOnly = true

	oc := c.OrchestratorConfig()
	assert.Equal(t, 5, oc.ResampleInterval)
	assert.Equal(t, 42*time.Second, oc.ScannerCheckInterval)
	assert.True(t, oc.FirstMapOnly)
	assert.Equal(t, c.Cycle.GlobalFactors, oc.GlobalFactors)
}

func TestDurationYAML(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalYAML(yamlNode(t, "1m30s")))
	assert.Equal(t, 90*time.Second, time.Duration(d))

	out, err := Duration(2 * time.Minute).MarshalYAML()
	require.NoError(t, err)
	assert.Equal(t, "2m0s", out)
}
