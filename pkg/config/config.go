// Package config provides the node configuration: built-in defaults,
// overridden by an optional YAML file, environment and command line flags.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/denisbrodbeck/machineid"
	"gopkg.in/yaml.v3"

	"github.com/robotalks/bms.go/pkg/master"
	"github.com/robotalks/bms.go/pkg/node"
	"github.com/robotalks/bms.go/pkg/pl455"
)

// NodeConfig identifies the node in the pack.
type NodeConfig struct {
	Name   string `yaml:"name"`
	Module int    `yaml:"module"`
	Master bool   `yaml:"master"`
}

// SerialConfig configures the UART to the first chip of the chain.
type SerialConfig struct {
	Device      string        `yaml:"device"`
	Baud        int           `yaml:"baud"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
	// AddrWidth is 8 or 16.
	AddrWidth  int `yaml:"addr_width"`
	MaxDevices int `yaml:"max_devices"`
}

// CANConfig configures the inter-node bus.
type CANConfig struct {
	Interface string `yaml:"interface"`
}

// MQTTConfig configures telemetry publishing.
type MQTTConfig struct {
	// URL e.g. mqtt://host:port/topic-prefix
	URL string `yaml:"url"`
}

// HTTPConfig configures the monitor endpoint.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// Config is the complete node configuration.
type Config struct {
	Node           NodeConfig            `yaml:"node"`
	Serial         SerialConfig          `yaml:"serial"`
	CAN            CANConfig             `yaml:"can"`
	MQTT           MQTTConfig            `yaml:"mqtt"`
	HTTP           HTTPConfig            `yaml:"http"`
	ReportInterval time.Duration         `yaml:"report_interval"`
	EvalInterval   time.Duration         `yaml:"eval_interval"`
	Scheduler      pl455.SchedulerConfig `yaml:"scheduler"`
	Master         master.Config         `yaml:"pack"`

	// File is the YAML file loaded on top of the defaults.
	File string `yaml:"-"`
}

var defaultConfig = Config{
	Serial: SerialConfig{
		Device:      "/dev/ttyS1",
		Baud:        pl455.DefaultBaud,
		ReadTimeout: 10 * time.Millisecond,
		AddrWidth:   8,
		MaxDevices:  2,
	},
	CAN:            CANConfig{Interface: "can0"},
	ReportInterval: node.DefaultReportInterval,
	EvalInterval:   node.DefaultEvalInterval,
	Scheduler:      pl455.DefaultSchedulerConfig(),
	Master:         master.DefaultConfig(),
}

func init() {
	if val := os.Getenv("BMS_MQTT_URL"); val != "" {
		defaultConfig.MQTT.URL = val
	}
	if val := os.Getenv("BMS_CAN"); val != "" {
		defaultConfig.CAN.Interface = val
	}
	if val := os.Getenv("BMS_SERIAL"); val != "" {
		defaultConfig.Serial.Device = val
	}
	if val := os.Getenv("BMS_CONFIG"); val != "" {
		defaultConfig.File = val
	}
	defaultConfig.Node.Name = MachineID()
}

// MachineID retrieves the unique ID identifying the machine, used as
// the default node name.
func MachineID() string {
	id, err := machineid.ID()
	if err != nil {
		return "bms"
	}
	if len(id) > 12 {
		id = id[:12]
	}
	return id
}

// SetupFlags sets command line flags.
func SetupFlags() {
	flag.StringVar(&defaultConfig.File, "config", defaultConfig.File, "YAML config file")
	flag.StringVar(&defaultConfig.Node.Name, "name", defaultConfig.Node.Name, "Node name")
	flag.IntVar(&defaultConfig.Node.Module, "module", defaultConfig.Node.Module, "Module index of this node")
	flag.BoolVar(&defaultConfig.Node.Master, "master", defaultConfig.Node.Master, "Aggregate the pack on this node")
	flag.StringVar(&defaultConfig.Serial.Device, "serial", defaultConfig.Serial.Device, "Serial device of the chip chain")
	flag.StringVar(&defaultConfig.CAN.Interface, "can", defaultConfig.CAN.Interface, "CAN interface")
	flag.StringVar(&defaultConfig.MQTT.URL, "mqtt", defaultConfig.MQTT.URL, "MQTT broker URL, publishing disabled if empty")
	flag.StringVar(&defaultConfig.HTTP.Addr, "http", defaultConfig.HTTP.Addr, "Monitor listen address, disabled if empty")
}

// Default gets default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a Config with default configurations.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// ErrInvalid indicates a rejected configuration.
var ErrInvalid = errors.New("invalid config")

// Parse applies YAML on top of the current values.
func (c *Config) Parse(data []byte) error {
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// Load applies the YAML file, if any, and validates the result.
func (c *Config) Load() error {
	if c.File != "" {
		data, err := os.ReadFile(c.File)
		if err != nil {
			return err
		}
		if err = c.Parse(data); err != nil {
			return fmt.Errorf("%s: %w", c.File, err)
		}
	}
	return c.Validate()
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	var errs []string
	if c.Node.Module < 0 || c.Node.Module >= c.Master.Modules {
		errs = append(errs, fmt.Sprintf("node.module %d not in pack of %d", c.Node.Module, c.Master.Modules))
	}
	if c.Serial.AddrWidth != 8 && c.Serial.AddrWidth != 16 {
		errs = append(errs, fmt.Sprintf("serial.addr_width %d must be 8 or 16", c.Serial.AddrWidth))
	}
	if c.Serial.MaxDevices < 1 || c.Serial.MaxDevices > 16 {
		errs = append(errs, fmt.Sprintf("serial.max_devices %d not in 1..16", c.Serial.MaxDevices))
	}
	if c.Serial.Baud <= 0 {
		errs = append(errs, "serial.baud must be positive")
	}
	if c.ReportInterval <= 0 || c.EvalInterval <= 0 {
		errs = append(errs, "intervals must be positive")
	}
	if c.Node.Master && c.CAN.Interface == "" {
		errs = append(errs, "master node requires can.interface")
	}
	if err := c.Scheduler.Validate(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := c.Master.Validate(); err != nil {
		errs = append(errs, err.Error())
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(errs, "; "))
	}
	return nil
}

// AddrWidth returns the chip address width.
func (c *Config) AddrWidth() pl455.AddrWidth {
	if c.Serial.AddrWidth == 16 {
		return pl455.Addr16
	}
	return pl455.Addr8
}

// NodeOptions builds the node options from the configuration. Chip,
// bus and runnables are provided by the caller.
func (c *Config) NodeOptions() node.Options {
	return node.Options{
		Module:         c.Node.Module,
		Master:         c.Node.Master,
		ReportInterval: c.ReportInterval,
		EvalInterval:   c.EvalInterval,
		Engine:         c.Master,
	}
}
