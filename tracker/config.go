package tracker

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/mitchellh/go-homedir"
	"github.com/sirupsen/logrus"
	"github.com/vsariola/trackplay"
	"gopkg.in/yaml.v3"
)

type (
	// Config is the user configuration. The defaults are embedded in the
	// binary and the user file only needs to list the keys it changes.
	Config struct {
		Volume       float64      `yaml:"volume"`
		Effect       string       `yaml:"effect"`
		Theme        string       `yaml:"theme"`
		BufferFrames int          `yaml:"buffer_frames"`
		SampleRate   int          `yaml:"sample_rate"`
		LogLevel     string       `yaml:"log_level"`
		Export       ExportConfig `yaml:"export"`
		MIDI         MIDIConfig   `yaml:"midi"`

		// Path is the file the config was read from and Save writes to.
		Path string `yaml:"-"`
	}

	ExportConfig struct {
		Format   string `yaml:"format"`
		Template string `yaml:"template"`
	}

	MIDIConfig struct {
		// Input is matched as a prefix of the input port name. Empty disables
		// MIDI.
		Input    string         `yaml:"input"`
		VolumeCC int            `yaml:"volume_cc"`
		NoteMap  map[int]string `yaml:"note_map"`
	}
)

const (
	ThemeDark  = "dark"
	ThemeLight = "light"
)

//go:embed config.yml
var defaultConfigYaml []byte

var midiActions = map[string]Command{
	"toggle_pause":    {Kind: CommandTogglePause},
	"previous_order":  {Kind: CommandJumpOrder, Delta: -1},
	"next_order":      {Kind: CommandJumpOrder, Delta: 1},
	"rows_back":       {Kind: CommandJumpRows, Delta: -8},
	"rows_forward":    {Kind: CommandJumpRows, Delta: 8},
	"previous_effect": {Kind: CommandNextEffect, Delta: -1},
	"next_effect":     {Kind: CommandNextEffect, Delta: 1},
}

func DefaultConfig() Config {
	var c Config
	if err := decodeStrict(defaultConfigYaml, &c); err != nil {
		panic(fmt.Errorf("failed to unmarshal default config: %w", err))
	}
	c.normalize()
	return c
}

// DefaultConfigPath returns <user config dir>/trackplay/config.yml.
func DefaultConfigPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "trackplay", "config.yml"), nil
}

// LoadConfig reads the defaults and then the user file on top of them. With
// an empty path, the file at DefaultConfigPath is used if it exists. A path
// given explicitly must exist; "~" in it is expanded.
func LoadConfig(path string) (Config, error) {
	c := DefaultConfig()
	explicit := path != ""
	if explicit {
		expanded, err := homedir.Expand(path)
		if err != nil {
			return c, fmt.Errorf("could not expand config path %q: %w", path, err)
		}
		path = expanded
	} else {
		var err error
		if path, err = DefaultConfigPath(); err != nil {
			logrus.WithField("error", err).Warn("No user config directory")
			return c, nil
		}
	}
	c.Path = path
	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return c, nil
		}
		return c, fmt.Errorf("could not read config: %w", err)
	}
	if err := decodeStrict(data, &c); err != nil {
		return c, fmt.Errorf("could not parse config %v: %w", path, err)
	}
	c.normalize()
	logrus.WithFields(logrus.Fields{
		"function": "LoadConfig",
		"path":     path,
	}).Debug("Config loaded")
	return c, nil
}

func decodeStrict(data []byte, target any) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(target); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (c *Config) normalize() {
	c.Volume = clampVolume(c.Volume)
	if c.Theme != ThemeLight {
		c.Theme = ThemeDark
	}
}

// Save writes the volume and the theme back to the config file, keeping
// everything else in the file as it was.
func (c Config) Save() error {
	if c.Path == "" {
		return errors.New("config has no path")
	}
	doc := map[string]any{}
	if data, err := os.ReadFile(c.Path); err == nil {
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("could not parse config %v: %w", c.Path, err)
		}
		if doc == nil {
			doc = map[string]any{}
		}
	}
	doc["volume"] = c.Volume
	doc["theme"] = c.Theme
	data, err := yaml.Marshal(doc)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(c.Path), 0o755); err != nil {
		return fmt.Errorf("could not create config directory: %w", err)
	}
	return os.WriteFile(c.Path, data, 0o644)
}

func (c Config) EffectValue() (Effect, error) { return ParseEffect(c.Effect) }

func (c Config) ExportFormat() (trackplay.ExportFormat, error) {
	return trackplay.ParseExportFormat(c.Export.Format)
}

func (c Config) Level() (logrus.Level, error) {
	if c.LogLevel == "" {
		return logrus.InfoLevel, nil
	}
	return logrus.ParseLevel(c.LogLevel)
}

// PlayerConfig converts the config into the settings of a Player.
func (c Config) PlayerConfig() (PlayerConfig, error) {
	effect, err := c.EffectValue()
	if err != nil {
		return PlayerConfig{}, err
	}
	ret := DefaultPlayerConfig()
	if c.BufferFrames > 0 {
		ret.BufferFrames = c.BufferFrames
	}
	ret.Volume = c.Volume
	ret.Effect = effect
	ret.ExportTemplate = c.Export.Template
	return ret, nil
}

// Commands maps the configured MIDI note numbers to commands.
func (m MIDIConfig) Commands() (map[uint8]Command, error) {
	ret := make(map[uint8]Command, len(m.NoteMap))
	for note, action := range m.NoteMap {
		if note < 0 || note > 127 {
			return nil, fmt.Errorf("MIDI note %d out of range", note)
		}
		cmd, ok := midiActions[action]
		if !ok {
			return nil, fmt.Errorf("unknown MIDI action %q for note %d", action, note)
		}
		ret[uint8(note)] = cmd
	}
	return ret, nil
}
