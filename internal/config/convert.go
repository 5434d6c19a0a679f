package config

import (
	"strconv"

	"github.com/dutlab/dutctl/internal/adb"
	"github.com/dutlab/dutctl/internal/cmdexec"
	"github.com/dutlab/dutctl/internal/link"
	"github.com/dutlab/dutctl/internal/telemetry"
)

// BenchBridge builds the adb command vocabulary for this bench.
func (cfg LabConfig) BenchBridge() adb.Bridge {
	return adb.Bridge{Bin: cfg.Bridge.Bin}
}

// BenchBackend picks where bridge commands execute: the local shell, or
// an ssh hop to the host the devices are cabled to.
func (cfg LabConfig) BenchBackend() cmdexec.Backend {
	if !cfg.Bridge.Remote() {
		return cmdexec.LocalBackend{}
	}
	return cmdexec.SSHBackend{
		Host:                        cfg.Bridge.SSHHost,
		Port:                        strconv.Itoa(cfg.Bridge.SSHPort),
		User:                        cfg.Bridge.SSHUser,
		KeyPath:                     cfg.Bridge.SSHKey,
		KnownHostsPath:              cfg.Bridge.SSHKnownHosts,
		InsecureSkipHostKeyChecking: cfg.Bridge.SSHInsecure,
	}
}

// BenchSink builds the telemetry sink: MQTT when a broker is
// configured, otherwise log-only. The returned cleanup disconnects the
// broker and is never nil.
func (cfg LabConfig) BenchSink() (telemetry.Sink, func(), error) {
	if !cfg.Telemetry.Enabled() {
		return telemetry.LogSink{}, func() {}, nil
	}
	mqttSink, err := telemetry.NewMQTTSink(telemetry.MQTTConfig{
		Broker:      cfg.Telemetry.MQTTHost,
		Port:        cfg.Telemetry.MQTTPort,
		Username:    cfg.Telemetry.MQTTUser,
		Password:    cfg.Telemetry.MQTTPassword,
		TopicPrefix: cfg.Telemetry.TopicPrefix,
		ClientID:    cfg.Name,
	})
	if err != nil {
		return nil, nil, err
	}
	return telemetry.MultiSink{telemetry.LogSink{}, mqttSink}, mqttSink.Close, nil
}

// BenchDevices converts device entries into link handles. Consoles are
// not opened here; callers attach them when a session actually starts.
func BenchDevices(entries []DeviceConfig) ([]link.Device, error) {
	devices := make([]link.Device, 0, len(entries))
	for _, entry := range entries {
		mode, err := link.ParseMode(entry.Mode)
		if err != nil {
			return nil, err
		}
		devices = append(devices, link.Device{
			ID:   entry.ID,
			Mode: mode,
		})
	}
	return devices, nil
}
