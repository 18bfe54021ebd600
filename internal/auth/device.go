package auth

import (
	"strings"

	"github.com/ua-parser/uap-go/uaparser"
)

const unknownDevice = "unknown"

// DeviceInfo holds human readable labels derived from a user agent.
type DeviceInfo struct {
	Browser string `json:"browser"`
	OS      string `json:"os"`
	Device  string `json:"device"`
}

// DeviceDescriber turns stored user agents into labels for session listings.
type DeviceDescriber struct {
	parser *uaparser.Parser
}

// NewDeviceDescriber loads the bundled uap-core regex definitions.
func NewDeviceDescriber() *DeviceDescriber {
	return &DeviceDescriber{parser: uaparser.NewFromSaved()}
}

// Describe parses userAgent. Empty or unrecognised values map to "unknown".
func (d *DeviceDescriber) Describe(userAgent string) DeviceInfo {
	userAgent = strings.TrimSpace(userAgent)
	if d == nil || d.parser == nil || userAgent == "" {
		return DeviceInfo{Browser: unknownDevice, OS: unknownDevice, Device: unknownDevice}
	}

	client := d.parser.Parse(userAgent)
	return DeviceInfo{
		Browser: label(client.UserAgent.Family),
		OS:      label(client.Os.Family),
		Device:  label(client.Device.Family),
	}
}

func label(family string) string {
	if family == "" || family == "Other" {
		return unknownDevice
	}
	return family
}
