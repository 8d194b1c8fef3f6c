package config

import (
	"fmt"
	"io"
	"os"
	"os/user"
	"path"
	"strconv"
	"strings"

	"github.com/cosiner/argv"
	"gopkg.in/yaml.v2"

	"github.com/go-delve/hwbreak/pkg/hwbreak"
)

const (
	configDir       string = "hwbreak"
	configDirHidden string = ".hwbreak"
	configFile      string = "config.yml"
)

// Breakpoint is a hardware breakpoint set before the target is resumed.
type Breakpoint struct {
	// Slot is the debug register slot, "0".."3".
	Slot string `yaml:"slot"`
	// Addr is the virtual address, decimal or 0x prefixed hexadecimal.
	Addr string `yaml:"addr"`
}

// Parse returns the slot and address of bp.
func (bp *Breakpoint) Parse() (hwbreak.BreakpointSlot, uint64, error) {
	slot, err := hwbreak.ParseSlot(bp.Slot)
	if err != nil {
		return 0, 0, err
	}
	addr, err := ParseAddr(bp.Addr)
	if err != nil {
		return 0, 0, err
	}
	return slot, addr, nil
}

// ParseAddr parses a decimal, 0x hexadecimal or 0o octal address.
func ParseAddr(s string) (uint64, error) {
	addr, err := strconv.ParseUint(strings.TrimSpace(s), 0, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q", s)
	}
	return addr, nil
}

// Config defines all configuration options available to be set through the config file.
type Config struct {
	// Breakpoint to set on the target. Only one slot is enabled at a
	// time, see hwbreak.Tracee.
	Breakpoint *Breakpoint `yaml:"breakpoint,omitempty"`

	// Target is the command line of the program started by 'hwbreak exec'
	// when no program is given on the command line.
	Target string `yaml:"target,omitempty"`

	// Hits is the number of breakpoint hits reported before detaching, 0
	// means until the target exits.
	Hits int `yaml:"hits"`

	// StepAfterHit is the number of instructions single stepped with the
	// trap flag after every hit.
	StepAfterHit int `yaml:"step-after-hit"`

	// DisassembleFlavour is one of intel, gnu or go.
	DisassembleFlavour string `yaml:"disassemble-flavour"`
}

// TargetArgs splits Target into the program and its arguments.
func (c *Config) TargetArgs() ([]string, error) {
	if strings.TrimSpace(c.Target) == "" {
		return nil, nil
	}
	v, err := argv.Argv(c.Target,
		func(s string) (string, error) {
			return "", fmt.Errorf("Backtick not supported in '%s'", s)
		},
		nil)
	if err != nil {
		return nil, err
	}
	if len(v) != 1 {
		return nil, fmt.Errorf("illegal target command line '%s'", c.Target)
	}
	return v[0], nil
}

// LoadConfig attempts to populate a Config object from the config.yml file.
// Errors are printed and an empty configuration is returned.
func LoadConfig() *Config {
	err := createConfigPath()
	if err != nil {
		fmt.Printf("Could not create config directory: %v.\n", err)
		return &Config{}
	}
	fullConfigFile, err := GetConfigFilePath(configFile)
	if err != nil {
		fmt.Printf("Unable to get config file path: %v.\n", err)
		return &Config{}
	}

	if _, err := os.Stat(fullConfigFile); os.IsNotExist(err) {
		if err := createDefaultConfig(fullConfigFile); err != nil {
			fmt.Printf("Error creating default config file: %v\n", err)
			return &Config{}
		}
	}

	c, err := LoadConfigFile(fullConfigFile)
	if err != nil {
		fmt.Printf("%v.\n", err)
		return &Config{}
	}
	return c
}

// LoadConfigFile reads the configuration stored at path.
func LoadConfigFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("unable to open config file: %v", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("unable to read config data: %v", err)
	}

	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("unable to decode config file: %v", err)
	}
	return &c, nil
}

// SaveConfig will marshal and save the config struct
// to disk.
func SaveConfig(conf *Config) error {
	fullConfigFile, err := GetConfigFilePath(configFile)
	if err != nil {
		return err
	}

	out, err := yaml.Marshal(*conf)
	if err != nil {
		return err
	}

	f, err := os.Create(fullConfigFile)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.Write(out)
	return err
}

func createDefaultConfig(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("unable to create config file: %v", err)
	}
	defer f.Close()
	err = writeDefaultConfig(f)
	if err != nil {
		return fmt.Errorf("unable to write default configuration: %v", err)
	}
	return nil
}

func writeDefaultConfig(f io.Writer) error {
	_, err := io.WriteString(f,
		`# Configuration file for hwbreak.

# This is the default configuration file. Available options are provided, but disabled.
# Delete the leading hash mark to enable an item.

# Hardware breakpoint set before the target is resumed. Setting a breakpoint
# disables every other slot.
# breakpoint: {slot: 0, addr: 0x401000}

# Program started by 'hwbreak exec' when none is given on the command line.
# target: "./prog -v"

# Number of hits reported before detaching, 0 runs until the target exits.
# hits: 0

# Number of instructions single stepped after every hit.
# step-after-hit: 0

# Syntax of disassembled instructions: intel, gnu or go.
# disassemble-flavour: intel
`)
	return err
}

// createConfigPath creates the directory structure at which all config files are saved.
func createConfigPath() error {
	path, err := GetConfigFilePath("")
	if err != nil {
		return err
	}
	return os.MkdirAll(path, 0700)
}

// GetConfigFilePath gets the full path to the given config file name.
// $XDG_CONFIG_HOME/hwbreak is used when XDG_CONFIG_HOME is set,
// ~/.hwbreak otherwise.
func GetConfigFilePath(file string) (string, error) {
	if configPath := os.Getenv("XDG_CONFIG_HOME"); configPath != "" {
		return path.Join(configPath, configDir, file), nil
	}

	userHomeDir := "."
	usr, err := user.Current()
	if err == nil {
		userHomeDir = usr.HomeDir
	}
	return path.Join(userHomeDir, configDirHidden, file), nil
}
