package config

import (
	"fmt"
	"io/ioutil"
	"os"
	"os/user"
	"path"

	"gopkg.in/yaml.v2"
)

const (
	configDir  string = ".gdblaunch"
	configFile string = "config.yml"
)

// DefaultDebugger is the debugger executed when neither the configuration
// file nor the command line names one.
const DefaultDebugger = "gdb"

// Config defines all configuration options available to be set through the config file.
type Config struct {
	// Debugger is the name or path of the gdb executable. Names are resolved
	// through PATH.
	Debugger string `yaml:"debugger"`

	// ServeFiles lets gdb fetch binaries through the remote protocol instead
	// of reading them from the local filesystem.
	ServeFiles bool `yaml:"serve-files"`

	// GdbOptions are passed to gdb after the generated command file, before
	// any option given on the command line.
	GdbOptions []string `yaml:"gdb-options"`

	// Commands are extension commands served by the replay server in
	// addition to the built-in ones. Each gets a binding in the gdb command
	// script.
	Commands []ExtensionCommand `yaml:"commands"`
}

// ExtensionCommand describes one extension command binding.
type ExtensionCommand struct {
	Name string `yaml:"name"`
	// AutoArgs are gdb commands whose output is sent along with the
	// command, for example rr-where.
	AutoArgs []string `yaml:"auto-args"`
	Docs     string   `yaml:"docs"`
}

// DebuggerPath returns the configured debugger or DefaultDebugger.
func (c *Config) DebuggerPath() string {
	if c == nil || c.Debugger == "" {
		return DefaultDebugger
	}
	return c.Debugger
}

// LoadConfig attempts to populate a Config object from the config.yml file.
func LoadConfig() *Config {
	err := createConfigPath()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Could not create config directory: %v.\n", err)
		return &Config{}
	}
	fullConfigFile, err := GetConfigFilePath(configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Unable to get config file path: %v.\n", err)
		return &Config{}
	}

	f, err := os.Open(fullConfigFile)
	if err != nil {
		f, err = createDefaultConfig(fullConfigFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating default config file: %v\n", err)
			return &Config{}
		}
	}
	defer func() {
		err := f.Close()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Closing config file failed: %v.\n", err)
		}
	}()

	c, err := ReadConfig(f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Unable to decode config file: %v.\n", err)
		return &Config{}
	}
	return c
}

// ReadConfig decodes a configuration file.
func ReadConfig(f *os.File) (*Config, error) {
	data, err := ioutil.ReadAll(f)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func createDefaultConfig(path string) (*os.File, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("unable to create config file: %v", err)
	}
	err = writeDefaultConfig(f)
	if err != nil {
		return nil, fmt.Errorf("unable to write default configuration: %v", err)
	}
	if _, err := f.Seek(0, 0); err != nil {
		return nil, err
	}
	return f, nil
}

func writeDefaultConfig(f *os.File) error {
	_, err := f.WriteString(
		`# Configuration file for gdblaunch.

# This is the default configuration file. Available options are provided, but disabled.
# Delete the leading hash mark to enable an item.

# Name or path of the debugger to launch.
# debugger: gdb

# Let gdb read binaries through the remote protocol. When disabled gdb is
# started with "set sysroot /" and reads them from the local filesystem.
# serve-files: false

# Options passed to gdb after the generated command file. An "-ex continue"
# pair here makes gdblaunch connect to the target before it.
gdb-options:
  # - -ex
  # - continue

# Extension commands implemented by the replay server on top of the built-in
# ones.
commands:
  # - name: my-command
  #   auto-args: [rr-where]
  #   docs: help text shown by "help my-command"
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
func GetConfigFilePath(file string) (string, error) {
	if dir := os.Getenv("GDBLAUNCH_CONFIG_DIR"); dir != "" {
		return path.Join(dir, file), nil
	}
	userHomeDir := "."
	usr, err := user.Current()
	if err == nil {
		userHomeDir = usr.HomeDir
	}
	return path.Join(userHomeDir, configDir, file), nil
}
