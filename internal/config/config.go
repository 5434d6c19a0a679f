package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/dutlab/dutctl/internal/link"
)

// LabConfig is one bench: the bridge it drives devices through, the
// devices cabled to it, and the surfaces it exposes.
type LabConfig struct {
	Name       string          `toml:"name"`
	ResultRoot string          `toml:"result_root"`
	Bridge     BridgeConfig    `toml:"bridge"`
	Agent      AgentConfig     `toml:"agent"`
	Telemetry  TelemetryConfig `toml:"telemetry"`
	OCR        OCRConfig       `toml:"ocr"`
	Devices    []DeviceConfig  `toml:"devices"`
}

// BridgeConfig selects the adb binary and, when the bridge lives on
// another host, the ssh hop to reach it.
type BridgeConfig struct {
	Bin           string `toml:"bin"`
	SSHHost       string `toml:"ssh_host"`
	SSHPort       int    `toml:"ssh_port"`
	SSHUser       string `toml:"ssh_user"`
	SSHKey        string `toml:"ssh_key"`
	SSHKnownHosts string `toml:"ssh_known_hosts"`
	SSHInsecure   bool   `toml:"ssh_insecure"`
}

func (c BridgeConfig) Remote() bool {
	return strings.TrimSpace(c.SSHHost) != ""
}

// AgentConfig shapes the HTTP surface. An empty token leaves the API
// open, which is fine on an isolated bench network.
type AgentConfig struct {
	Addr        string   `toml:"addr"`
	Token       string   `toml:"token"`
	CorsOrigins []string `toml:"cors_origins"`
}

type TelemetryConfig struct {
	MQTTHost     string `toml:"mqtt_host"`
	MQTTPort     int    `toml:"mqtt_port"`
	MQTTUser     string `toml:"mqtt_user"`
	MQTTPassword string `toml:"mqtt_password"`
	TopicPrefix  string `toml:"topic_prefix"`
}

func (c TelemetryConfig) Enabled() bool {
	return strings.TrimSpace(c.MQTTHost) != ""
}

type OCRConfig struct {
	Languages []string `toml:"languages"`
}

// DeviceConfig is one cabled device. Console names the tty device file
// and is required for serial-attached devices.
type DeviceConfig struct {
	ID       string `toml:"id"`
	Mode     string `toml:"mode"`
	Console  string `toml:"console"`
	IRRemote string `toml:"ir_remote"`
}

func LoadLabConfig(path string) (LabConfig, error) {
	var cfg LabConfig
	if err := loadToml(path, &cfg); err != nil {
		return LabConfig{}, err
	}
	if cfg.Name == "" {
		cfg.Name = "dut-lab"
	}
	if cfg.ResultRoot == "" {
		cfg.ResultRoot = "results"
	}
	if cfg.Bridge.Bin == "" {
		cfg.Bridge.Bin = "adb"
	}
	if cfg.Bridge.SSHPort == 0 {
		cfg.Bridge.SSHPort = 22
	}
	if cfg.Agent.Addr == "" {
		cfg.Agent.Addr = ":9300"
	}
	if cfg.Telemetry.MQTTPort == 0 {
		cfg.Telemetry.MQTTPort = 1883
	}
	if cfg.Telemetry.TopicPrefix == "" {
		cfg.Telemetry.TopicPrefix = "lab"
	}
	if len(cfg.OCR.Languages) == 0 {
		cfg.OCR.Languages = []string{"eng"}
	}
	if err := ValidateLabConfig(cfg); err != nil {
		return LabConfig{}, err
	}
	return cfg, nil
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func ValidateLabConfig(cfg LabConfig) error {
	if strings.TrimSpace(cfg.Name) == "" {
		return fmt.Errorf("lab config missing name")
	}
	if strings.TrimSpace(cfg.Agent.Addr) == "" {
		return fmt.Errorf("lab config missing agent addr")
	}
	if cfg.Bridge.Remote() {
		if strings.TrimSpace(cfg.Bridge.SSHUser) == "" {
			return fmt.Errorf("bridge ssh_user required when ssh_host is set")
		}
		if strings.TrimSpace(cfg.Bridge.SSHKey) == "" {
			return fmt.Errorf("bridge ssh_key required when ssh_host is set")
		}
	}
	seen := make(map[string]bool, len(cfg.Devices))
	for i, devCfg := range cfg.Devices {
		if err := ValidateDeviceEntry(devCfg); err != nil {
			return fmt.Errorf("device[%d] invalid: %w", i, err)
		}
		if seen[devCfg.ID] {
			return fmt.Errorf("device[%d] invalid: duplicate id %s", i, devCfg.ID)
		}
		seen[devCfg.ID] = true
	}
	return nil
}

func ValidateDeviceEntry(cfg DeviceConfig) error {
	if strings.TrimSpace(cfg.ID) == "" {
		return fmt.Errorf("id is required")
	}
	mode, err := link.ParseMode(cfg.Mode)
	if err != nil {
		return err
	}
	if mode == link.ModeSerial && strings.TrimSpace(cfg.Console) == "" {
		return fmt.Errorf("console required for serial device %s", cfg.ID)
	}
	return nil
}

// Device returns the entry for id, or an error naming the ids that do
// exist.
func (cfg LabConfig) Device(id string) (DeviceConfig, error) {
	for _, devCfg := range cfg.Devices {
		if devCfg.ID == id {
			return devCfg, nil
		}
	}
	ids := make([]string, 0, len(cfg.Devices))
	for _, devCfg := range cfg.Devices {
		ids = append(ids, devCfg.ID)
	}
	return DeviceConfig{}, fmt.Errorf("unknown device %s (configured: %s)", id, strings.Join(ids, ", "))
}
