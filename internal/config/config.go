package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"

	"github.com/vmgr-dev/vmgr/internal/option"
	"github.com/vmgr-dev/vmgr/internal/ports"
)

// DefaultImagesDirectory is used when the config file does not set
// base_images_directory.
const DefaultImagesDirectory = "~/.vmgr/disk-images"

// Config is the loaded configuration tree: process-wide defaults plus one
// entry per declared VM. It is read once per run and never mutated.
type Config struct {
	BaseImagesDirectory string
	GlobalOptions       []option.Option
	VMs                 []VM
}

// VM is the declared launch profile for one virtual machine.
type VM struct {
	ImageName        string
	PortMappings     []ports.Mapping
	Options          []option.Option
	UseGlobalOptions bool
	Daemonize        bool
}

// FindVM returns the first VM whose image name contains the given
// substring, nil if none matches.
func (c *Config) FindVM(name string) *VM {
	if name == "" {
		return nil
	}
	for i := range c.VMs {
		if strings.Contains(c.VMs[i].ImageName, name) {
			return &c.VMs[i]
		}
	}
	return nil
}

// ValidationError reports a malformed or incomplete declaration in the
// configuration tree. It names the offending VM when one is known.
type ValidationError struct {
	VM     string
	Detail string
}

func (e *ValidationError) Error() string {
	if e.VM == "" {
		return "invalid config: " + e.Detail
	}
	return fmt.Sprintf("invalid config for VM %q: %s", e.VM, e.Detail)
}

// Raw decode targets. Required fields are pointers so that an omitted key
// is distinguishable from a zero value: absence is a configuration error,
// never silently filled in.
type rawConfig struct {
	BaseImagesDirectory string      `mapstructure:"base_images_directory"`
	GlobalOptions       []rawOption `mapstructure:"global_options"`
	VMs                 []rawVM     `mapstructure:"vms"`
}

type rawOption struct {
	Option *string `mapstructure:"option"`
}

type rawVM struct {
	ImageName        *string      `mapstructure:"image_name"`
	PortMappings     []rawMapping `mapstructure:"port_mappings"`
	Options          []rawOption  `mapstructure:"options"`
	UseGlobalOptions *bool        `mapstructure:"use_global_options"`
	Daemonize        *bool        `mapstructure:"daemonize"`
}

type rawMapping struct {
	HostPort *int  `mapstructure:"host_port"`
	VMPort   *int  `mapstructure:"vm_port"`
	Explicit *bool `mapstructure:"explicit"`
}

// Load reads the configuration from path, or from ~/.vmgr/config.yaml when
// path is empty. A missing default config file yields an empty Config;
// a missing explicit path is an error. Unknown keys anywhere in the tree
// are rejected so a misspelled key fails loudly instead of silently
// dropping a declaration.
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		expanded, err := homedir.Expand(path)
		if err != nil {
			return nil, fmt.Errorf("expand config path: %w", err)
		}
		v.SetConfigFile(expanded)
	} else {
		dir, err := Dir()
		if err != nil {
			return nil, err
		}
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(dir)
	}

	v.SetDefault("base_images_directory", DefaultImagesDirectory)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// No default config file: run on defaults alone.
	}

	var raw rawConfig
	err := v.Unmarshal(&raw, func(dc *mapstructure.DecoderConfig) {
		dc.ErrorUnused = true
		dc.WeaklyTypedInput = true
	})
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return fromRaw(&raw)
}

func fromRaw(raw *rawConfig) (*Config, error) {
	imagesDir, err := homedir.Expand(raw.BaseImagesDirectory)
	if err != nil {
		return nil, fmt.Errorf("expand base_images_directory: %w", err)
	}

	cfg := &Config{BaseImagesDirectory: imagesDir}

	for i, o := range raw.GlobalOptions {
		if o.Option == nil {
			return nil, &ValidationError{Detail: fmt.Sprintf("global option %d is missing the 'option' key", i+1)}
		}
		cfg.GlobalOptions = append(cfg.GlobalOptions, option.New(*o.Option))
	}

	for i := range raw.VMs {
		vm, err := vmFromRaw(&raw.VMs[i])
		if err != nil {
			return nil, err
		}
		cfg.VMs = append(cfg.VMs, *vm)
	}

	return cfg, nil
}

func vmFromRaw(raw *rawVM) (*VM, error) {
	if raw.ImageName == nil || *raw.ImageName == "" {
		return nil, &ValidationError{Detail: "a VM entry is missing 'image_name'"}
	}
	name := *raw.ImageName

	if raw.UseGlobalOptions == nil {
		return nil, &ValidationError{VM: name, Detail: "missing 'use_global_options'"}
	}
	if raw.Daemonize == nil {
		return nil, &ValidationError{VM: name, Detail: "missing 'daemonize'"}
	}

	vm := &VM{
		ImageName:        name,
		UseGlobalOptions: *raw.UseGlobalOptions,
		Daemonize:        *raw.Daemonize,
	}

	for i, o := range raw.Options {
		if o.Option == nil {
			return nil, &ValidationError{VM: name, Detail: fmt.Sprintf("option %d is missing the 'option' key", i+1)}
		}
		vm.Options = append(vm.Options, option.New(*o.Option))
	}

	for i := range raw.PortMappings {
		mapping, err := mappingFromRaw(name, i, &raw.PortMappings[i])
		if err != nil {
			return nil, err
		}
		vm.PortMappings = append(vm.PortMappings, mapping)
	}

	return vm, nil
}

func mappingFromRaw(vm string, i int, raw *rawMapping) (ports.Mapping, error) {
	var zero ports.Mapping
	if raw.HostPort == nil {
		return zero, &ValidationError{VM: vm, Detail: fmt.Sprintf("port mapping %d is missing 'host_port'", i+1)}
	}
	if raw.VMPort == nil {
		return zero, &ValidationError{VM: vm, Detail: fmt.Sprintf("port mapping %d is missing 'vm_port'", i+1)}
	}
	if raw.Explicit == nil {
		return zero, &ValidationError{VM: vm, Detail: fmt.Sprintf("port mapping %d is missing 'explicit'", i+1)}
	}
	if *raw.HostPort < 1 || *raw.HostPort > ports.MaxPort {
		return zero, &ValidationError{VM: vm, Detail: fmt.Sprintf("port mapping %d: host_port %d is outside 1-%d", i+1, *raw.HostPort, ports.MaxPort)}
	}
	if *raw.VMPort < 1 || *raw.VMPort > ports.MaxPort {
		return zero, &ValidationError{VM: vm, Detail: fmt.Sprintf("port mapping %d: vm_port %d is outside 1-%d", i+1, *raw.VMPort, ports.MaxPort)}
	}
	return ports.Mapping{
		HostPort: *raw.HostPort,
		VMPort:   *raw.VMPort,
		Explicit: *raw.Explicit,
	}, nil
}

// Dir returns the vmgr configuration directory path.
func Dir() (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".vmgr"), nil
}

// EnsureDir creates the config directory if it doesn't exist and returns
// its path.
func EnsureDir() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return dir, os.MkdirAll(dir, 0755)
}
