package models

// SystemConfiguration holds per-user system defaults applied when the
// collected profile leaves a field unknown.
type SystemConfiguration struct {
	Shell          string `json:"shell,omitempty"`
	PackageManager string `json:"packageManager,omitempty"`
	Editor         string `json:"editor,omitempty"`
}

// UserPreferences stores per-user configuration loaded once per session.
type UserPreferences struct {
	UserID             string         `json:"userId"`
	DefaultDistro      string         `json:"defaultDistro,omitempty"`
	DefaultShell       string         `json:"defaultShell,omitempty"`
	FontSize           int            `json:"fontSize,omitempty"`
	ResponseStyle      string         `json:"responseStyle,omitempty"`
	CustomInstructions string         `json:"customInstructions,omitempty"`
	PreferredModel     string         `json:"preferredModel,omitempty"`
	TemperatureCeiling float32        `json:"temperatureCeiling,omitempty"`
	AgentPriorities    map[string]int `json:"agentPriorities,omitempty"`
	DefaultEditor      string         `json:"defaultEditor,omitempty"`
}

// GetSystemConfiguration derives the system defaults from the preferences.
func (p *UserPreferences) GetSystemConfiguration() SystemConfiguration {
	return SystemConfiguration{
		Shell:          p.DefaultShell,
		PackageManager: "",
		Editor:         p.DefaultEditor,
	}
}
