package models

// PrivilegeLevel describes the privileges a command needs to run.
type PrivilegeLevel string

const (
	PrivilegeReadOnly PrivilegeLevel = "read-only"
	PrivilegeUser     PrivilegeLevel = "user"
	PrivilegeRoot     PrivilegeLevel = "root"
)

// IsValid checks if the privilege level is valid.
func (p PrivilegeLevel) IsValid() bool {
	return p == PrivilegeReadOnly || p == PrivilegeUser || p == PrivilegeRoot
}

// RiskLevel classifies how dangerous a command is.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// IsValid checks if the risk level is valid.
func (r RiskLevel) IsValid() bool {
	return r == RiskLow || r == RiskMedium || r == RiskHigh
}

// PlannedCommand is a single command produced by the planner agent.
type PlannedCommand struct {
	Command         string         `json:"command"`
	PrivilegeLevel  PrivilegeLevel `json:"privilegeLevel"`
	Risk            RiskLevel      `json:"risk"`
	RiskExplanation string         `json:"riskExplanation,omitempty"`
	DryRunHint      string         `json:"dryRunHint,omitempty"`
	ExpectedOutput  string         `json:"expectedOutput,omitempty"`
	Citations       []string       `json:"citations,omitempty"`
}

// BlockedCommand is a command rejected by the validator, with the reason.
type BlockedCommand struct {
	Command string `json:"command"`
	Reason  string `json:"reason"`
}

// Citation references an external source surfaced by the research agent.
type Citation struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
	Source  string `json:"source,omitempty"`
}
