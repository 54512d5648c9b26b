// cmd/gaggle/config.go
// Copyright(c) 2024-2026 gaggle contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mmp/gaggle/log"
	"github.com/mmp/gaggle/replay"
)

// configVersion is bumped when the Config format changes;
// LoadOrMakeDefaultConfig migrates older files stepwise.
const configVersion = 2

// Config holds the bits worth remembering between runs: where the
// viewer lives, which model to draw, and named reference points.
type Config struct {
	Version int

	ViewerAddress string
	Model         string

	// RefPresets maps a name to a "lat, long" string so task landmarks
	// don't have to be retyped every run.
	RefPresets map[string]string
}

func defaultConfig() *Config {
	return &Config{
		Version:       configVersion,
		ViewerAddress: replay.DefaultAddress,
		Model:         replay.DefaultModel,
		RefPresets:    make(map[string]string),
	}
}

func configFilePath(lg *log.Logger) string {
	dir, err := os.UserConfigDir()
	if err != nil {
		lg.Errorf("unable to find user config dir: %v", err)
		dir = "."
	}
	dir = filepath.Join(dir, "Gaggle")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		lg.Errorf("%s: unable to make config dir: %v", dir, err)
	}
	return filepath.Join(dir, "config.json")
}

func (c *Config) Encode(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "    ")
	return enc.Encode(c)
}

func (c *Config) Save(lg *log.Logger) error {
	lg.Infof("Saving config to: %s", configFilePath(lg))
	f, err := os.Create(configFilePath(lg))
	if err != nil {
		return err
	}
	defer f.Close()
	return c.Encode(f)
}

func LoadOrMakeDefaultConfig(lg *log.Logger) (config *Config, configErr error) {
	fn := configFilePath(lg)
	lg.Infof("Loading config from: %s", fn)

	config = defaultConfig()
	if f, err := os.Open(fn); err == nil {
		defer f.Close()
		defer func() {
			if err := recover(); err != nil {
				lg.Errorf("Panic loading config: %v", err)
				config = defaultConfig()
				configErr = fmt.Errorf("%v", err)
			}
		}()

		config = &Config{}
		if err := json.NewDecoder(f).Decode(config); err != nil {
			config = defaultConfig()
			configErr = err
			return
		}

		if config.Version < 1 {
			// Unversioned configs stored the viewer host alone.
			if config.ViewerAddress != "" && !strings.Contains(config.ViewerAddress, ":") {
				config.ViewerAddress += ":5124"
			}
		}
		if config.Version < 2 {
			// v2 renamed the dg101g model and added RefPresets.
			if config.Model == "dg101g" {
				config.Model = "dg101"
			}
		}

		if config.RefPresets == nil {
			config.RefPresets = make(map[string]string)
		}
		if config.ViewerAddress == "" {
			config.ViewerAddress = replay.DefaultAddress
		}
		if config.Model == "" {
			config.Model = replay.DefaultModel
		}
		config.Version = configVersion
	}

	return
}
