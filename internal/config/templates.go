package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "lab":
		return labTemplate, nil
	case "remote":
		return remoteTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const labTemplate = `name = "bench-1"
result_root = "results/bench-1"

[bridge]
bin = "adb"

[agent]
addr = ":9300"
token = ""
cors_origins = ["http://localhost:3000"]

[telemetry]
mqtt_host = ""
mqtt_port = 1883
topic_prefix = "lab"

[ocr]
languages = ["eng"]

[[devices]]
id = "192.168.1.40:5555"
mode = "network"

[[devices]]
id = "MTK8173EVB01"
mode = "serial"
console = "/dev/ttyUSB0"
ir_remote = "philips"
`

const remoteTemplate = `name = "bench-remote"
result_root = "results/bench-remote"

[bridge]
bin = "adb"
ssh_host = "bench-host.lab"
ssh_port = 22
ssh_user = "bench"
ssh_key = "/home/bench/.ssh/id_ed25519"

[agent]
addr = ":9300"

[[devices]]
id = "192.168.1.40:5555"
mode = "network"
`
