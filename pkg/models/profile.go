// Package models contains shared data types used across the Orito core:
// system profiles, commands, citations, chats, audit entries, and preferences.
package models

import "time"

// SystemProfile is the legacy-shaped profile stored alongside the normalized
// SystemProfileData. All fields are optional; empty string means unknown.
type SystemProfile struct {
	Distro             string `json:"distro,omitempty"`
	DistroVersion      string `json:"distroVersion,omitempty"`
	Kernel             string `json:"kernel,omitempty"`
	PackageManager     string `json:"packageManager,omitempty"`
	CPUModel           string `json:"cpuModel,omitempty"`
	GPUInfo            string `json:"gpuInfo,omitempty"`
	Shell              string `json:"shell,omitempty"`
	DisplayServer      string `json:"displayServer,omitempty"`
	WindowManager      string `json:"windowManager,omitempty"`
	DesktopEnvironment string `json:"desktopEnvironment,omitempty"`
	CollectedAt        string `json:"collectedAt,omitempty"`
}

// SystemProfileData is the normalized profile produced by the collector.
type SystemProfileData struct {
	Distro             string    `json:"distro"`
	Version            string    `json:"version"`
	PackageManager     string    `json:"packageManager"`
	Shell              string    `json:"shell"`
	DesktopEnvironment string    `json:"desktopEnvironment"`
	DetectedAt         time.Time `json:"detectedAt"`
}

// Legacy converts the normalized profile to the legacy shape.
// Unknown values map to empty strings.
func (p *SystemProfileData) Legacy() *SystemProfile {
	clean := func(v string) string {
		if v == "Unknown" || v == "I don't know" {
			return ""
		}
		return v
	}
	return &SystemProfile{
		Distro:             clean(p.Distro),
		DistroVersion:      clean(p.Version),
		PackageManager:     clean(p.PackageManager),
		Shell:              clean(p.Shell),
		DesktopEnvironment: clean(p.DesktopEnvironment),
		CollectedAt:        p.DetectedAt.UTC().Format(time.RFC3339),
	}
}
