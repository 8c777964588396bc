// Package config loads the host core's startup configuration from YAML
// (spec.md §10 Ambient Stack), in the teacher's own idiom of keeping
// defaults in code and letting the file only override what it names.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Serial configures the MCU motion link.
type Serial struct {
	Port string `yaml:"port"`
	Baud int    `yaml:"baud"`
}

// TCP configures the client-facing command/telemetry listener (§6).
type TCP struct {
	Addr string `yaml:"addr"`
}

// Motion bounds the adaptive speed-limit ramp (§4.3 item 2, §8 testable
// property "0 < cur_speedlim <= max_speedlim <= 70").
type Motion struct {
	MaxSpeedlim int32 `yaml:"max_speedlim"`
}

// Charger records the docking geometry persisted by the operator console's
// 'L' key (§6 charger_pos.txt), used as the default before any console
// configuration overwrites it.
type Charger struct {
	FirstX, FirstY   int32   `yaml:"first_x_y"`
	SecondX, SecondY int32   `yaml:"second_x_y"`
	AngDeg           float64 `yaml:"ang_deg"`
	FwdMM            int32   `yaml:"fwd_mm"`
}

// Persist names the files the operator console's save/load keys and the
// charger FSM read and write (§6 Persisted files).
type Persist struct {
	RobotPosFile   string `yaml:"robot_pos_file"`
	ChargerPosFile string `yaml:"charger_pos_file"`
	MapDir         string `yaml:"map_dir"`
}

// Config is the host core's full startup configuration.
type Config struct {
	Serial  Serial  `yaml:"serial"`
	TCP     TCP     `yaml:"tcp"`
	Motion  Motion  `yaml:"motion"`
	Charger Charger `yaml:"charger"`
	Persist Persist `yaml:"persist"`
}

// Default returns the configuration applied before a file is loaded; a
// config file only needs to name the fields it overrides.
func Default() Config {
	return Config{
		Serial: Serial{Port: "/dev/ttyUSB0", Baud: 115200},
		TCP:    TCP{Addr: ":9999"},
		Motion: Motion{MaxSpeedlim: 70},
		Persist: Persist{
			RobotPosFile:   "robot_pos.txt",
			ChargerPosFile: "charger_pos.txt",
			MapDir:         "map",
		},
	}
}

// Load reads path, applying its contents on top of Default(). A missing
// file is not an error - the defaults stand alone for a first run.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}
