package main

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// The boot ROM takes these as indices into its own tables, so order matters.
var (
	spiClockList   = []int{48, 24, 12, 8}
	spiReadCmdList = []int{0x3, 0xb, 0x3b}
)

const (
	configName = "ecpack"
	envPrefix  = "ECPACK"
)

type packConfig struct {
	Input         string `mapstructure:"input" json:"input"`
	Output        string `mapstructure:"output" json:"output"`
	HeaderKey     string `mapstructure:"header_key" json:"header_key"`
	PayloadKey    string `mapstructure:"payload_key" json:"payload_key"`
	SpiSize       int    `mapstructure:"spi_size" json:"spi_size_kb"`
	HeaderLoc     int    `mapstructure:"header_loc" json:"header_loc"`
	PayloadOffset int    `mapstructure:"payload_offset" json:"payload_offset"`
	ChipSelect    int    `mapstructure:"chip_select" json:"chip_select"`
	SpiClock      int    `mapstructure:"spi_clock" json:"spi_clock_mhz"`
	SpiReadCmd    int    `mapstructure:"spi_read_cmd" json:"spi_read_cmd"`
	Signer        string `mapstructure:"signer" json:"signer"`
}

func defaultConfig() packConfig {
	return packConfig{
		Input:         "ec.bin",
		Output:        "ec.packed.bin",
		HeaderKey:     "rsakey_sign_header.pem",
		PayloadKey:    "rsakey_sign_payload.pem",
		SpiSize:       4096,
		HeaderLoc:     0,
		PayloadOffset: 0x240,
		ChipSelect:    0,
		SpiClock:      24,
		SpiReadCmd:    0xb,
		Signer:        signerOpenSSL,
	}
}

// loadConfig layers the config file and ECPACK_* environment over the
// defaults, then applies overrides (explicitly set flags) on top.
// An empty file means look for ecpack.* in the working directory; a missing
// file is not an error in that case.
func loadConfig(file string, overrides map[string]interface{}) (*packConfig, error) {
	v := viper.New()
	def := defaultConfig()
	v.SetDefault("input", def.Input)
	v.SetDefault("output", def.Output)
	v.SetDefault("header_key", def.HeaderKey)
	v.SetDefault("payload_key", def.PayloadKey)
	v.SetDefault("spi_size", def.SpiSize)
	v.SetDefault("header_loc", def.HeaderLoc)
	v.SetDefault("payload_offset", def.PayloadOffset)
	v.SetDefault("chip_select", def.ChipSelect)
	v.SetDefault("spi_clock", def.SpiClock)
	v.SetDefault("spi_read_cmd", def.SpiReadCmd)
	v.SetDefault("signer", def.Signer)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "reading %s", file)
		}
	} else {
		v.AddConfigPath(".")
		v.SetConfigName(configName)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, errors.Wrap(err, "reading config")
			}
		}
	}

	for k, val := range overrides {
		v.Set(k, val)
	}

	cfg := &packConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, "decoding config")
	}
	return cfg, nil
}

// validate rejects bad enumerated values before any file is touched.
func (c *packConfig) validate() error {
	if _, err := c.spiClockIndex(); err != nil {
		return err
	}
	if _, err := c.spiReadCmdIndex(); err != nil {
		return err
	}
	if c.ChipSelect != 0 && c.ChipSelect != 1 {
		return fmt.Errorf("chip select must be 0 or 1, not %d", c.ChipSelect)
	}
	if c.SpiSize <= 0 {
		return fmt.Errorf("invalid SPI flash size %d KB", c.SpiSize)
	}
	if c.HeaderLoc < 0 || c.PayloadOffset < 0 {
		return fmt.Errorf("negative header location or payload offset")
	}
	if _, ok := signerBackends[c.Signer]; !ok {
		return fmt.Errorf("unknown signer %q", c.Signer)
	}
	return nil
}

func (c *packConfig) spiClockIndex() (uint8, error) {
	for i, mhz := range spiClockList {
		if mhz == c.SpiClock {
			return uint8(i), nil
		}
	}
	return 0, &UnsupportedClockError{MHz: c.SpiClock}
}

func (c *packConfig) spiReadCmdIndex() (uint8, error) {
	for i, cmd := range spiReadCmdList {
		if cmd == c.SpiReadCmd {
			return uint8(i), nil
		}
	}
	return 0, &UnsupportedReadCmdError{Cmd: c.SpiReadCmd}
}

// spiSizeBytes is the flash size; the config carries it in KB.
func (c *packConfig) spiSizeBytes() int {
	return c.SpiSize * 1024
}

// outputStem is the output path without its .bin suffix, used to name the
// hex, manifest and bundle outputs.
func (c *packConfig) outputStem() string {
	return strings.TrimSuffix(c.Output, ".bin")
}
