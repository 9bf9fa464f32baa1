// Copyright (C) 2024 The obx Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package obxconfig loads the configuration options recognized by the
// storage core (spec.md §6) from a YAML document, using sigs.k8s.io/yaml
// the way it round-trips YAML through JSON struct tags.
package obxconfig

import (
	"fmt"
	"os"

	"sigs.k8s.io/yaml"

	"github.com/obxdb/obx/obxlog"
)

// Config is the recognized option set from spec.md §6.
type Config struct {
	Log struct {
		Level string `json:"level"`
		Path  string `json:"path"`
	} `json:"log"`
	WAL struct {
		On         bool   `json:"on"`
		Path       string `json:"path"`
		SyncToDisk bool   `json:"sync_to_disk"`
		Agents     int    `json:"agents"`
		Compress   bool   `json:"compress"`
	} `json:"wal"`
	Disk struct {
		On   bool   `json:"on"`
		Path string `json:"path"`
	} `json:"disk"`
	MainPath string `json:"main_path"`
}

// Default returns the configuration used by an embedded, in-memory-only
// database: no WAL, no disk block manager, logging off.
func Default() *Config {
	c := &Config{}
	c.Log.Level = "off"
	c.WAL.Agents = 1
	c.MainPath = "."
	return c
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("obxconfig: reading %s: %w", path, err)
	}
	c := Default()
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("obxconfig: parsing %s: %w", path, err)
	}
	return c, nil
}

// Logger builds a root obxlog.Logger from the Log.Level/Log.Path options.
func (c *Config) Logger() (*obxlog.Logger, error) {
	level := obxlog.ParseLevel(c.Log.Level)
	if c.Log.Path == "" {
		return obxlog.New(nil, level), nil
	}
	f, err := os.OpenFile(c.Log.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("obxconfig: opening log path %s: %w", c.Log.Path, err)
	}
	return obxlog.New(f, level), nil
}
