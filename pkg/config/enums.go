package config

// AgentMode defines how much autonomy an agent has.
type AgentMode string

const (
	// AgentModeAutonomous runs without user interaction.
	AgentModeAutonomous AgentMode = "autonomous"
	// AgentModeCollaborative may ask the user questions mid-run.
	AgentModeCollaborative AgentMode = "collaborative"
	// AgentModeSupervised requires user confirmation for actions.
	AgentModeSupervised AgentMode = "supervised"
)

// IsValid checks if the agent mode is valid.
func (m AgentMode) IsValid() bool {
	switch m {
	case AgentModeAutonomous, AgentModeCollaborative, AgentModeSupervised:
		return true
	default:
		return false
	}
}

// Tier identifies a user's subscription tier. Tiers bound how many agents
// may run concurrently in a turn.
type Tier string

const (
	TierFree Tier = "free"
	TierPro  Tier = "pro"
)

// IsValid checks if the tier is valid.
func (t Tier) IsValid() bool {
	return t == TierFree || t == TierPro
}

// ModelLatency is the estimated latency class of a selected model.
type ModelLatency string

const (
	LatencyFast   ModelLatency = "fast"
	LatencyMedium ModelLatency = "medium"
	LatencySlow   ModelLatency = "slow"
)

// Urgency expresses how quickly a task needs an answer.
type Urgency string

const (
	UrgencyFast     Urgency = "fast"
	UrgencyBalanced Urgency = "balanced"
	UrgencyThorough Urgency = "thorough"
)
