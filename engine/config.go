package engine

import (
	"os"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

// ConfigFile is read from the working directory when present.
const ConfigFile = "bsrt.yaml"

type Config struct {
	Window   WindowConfig   `yaml:"window"`
	GPU      GPUConfig      `yaml:"gpu"`
	Log      LogConfig      `yaml:"log"`
	Dispatch DispatchConfig `yaml:"dispatch"`
}

type WindowConfig struct {
	Title  string `yaml:"title"`
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
}

type GPUConfig struct {
	Validation       bool     `yaml:"validation"`
	DeviceExtensions []string `yaml:"device_extensions"`
}

type LogConfig struct {
	Dir string `yaml:"dir"`
}

// DispatchConfig describes the test dispatch run at startup.
type DispatchConfig struct {
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
	Output string `yaml:"output"`
}

func DefaultConfig() Config {
	return Config{
		Window: WindowConfig{Title: "bsrt", Width: 800, Height: 600},
		Log:    LogConfig{Dir: "."},
		Dispatch: DispatchConfig{
			Width:  640,
			Height: 640,
			Output: "test.png",
		},
	}
}

// LoadConfig reads path over the defaults. A missing file yields the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, errors.Wrapf(err, "read config %s", path)
	}

	err = yaml.Unmarshal(data, &cfg)
	if err != nil {
		return cfg, errors.Wrapf(err, "parse config %s", path)
	}

	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if c.Window.Width <= 0 || c.Window.Height <= 0 {
		return errors.Newf("window size %dx%d must be positive", c.Window.Width, c.Window.Height)
	}
	if c.Dispatch.Width <= 0 || c.Dispatch.Height <= 0 {
		return errors.Newf("dispatch size %dx%d must be positive", c.Dispatch.Width, c.Dispatch.Height)
	}
	if c.Dispatch.Output == "" {
		return errors.New("dispatch output must be set")
	}
	return nil
}
