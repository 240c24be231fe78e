// Package classifier decides the handling pipeline for a user message.
// Classification is a pure pattern-based function so that routing stays
// deterministic and cheap; no LLM call is involved.
package classifier

import (
	"regexp"
	"strings"
)

// Intent categorizes what the user is asking for.
type Intent string

const (
	IntentInfo            Intent = "info"
	IntentAction          Intent = "action"
	IntentRepair          Intent = "repair"
	IntentSystemDiscovery Intent = "system_discovery"
)

// Complexity selects the pipeline used to answer.
type Complexity string

const (
	ComplexitySimple   Complexity = "simple"
	ComplexityModerate Complexity = "moderate"
	ComplexityComplex  Complexity = "complex"
	ComplexityDecline  Complexity = "decline"
)

// Strategy tunes research depth.
type Strategy string

const (
	StrategyQuick    Strategy = "quick"
	StrategyAdaptive Strategy = "adaptive"
	StrategyDeep     Strategy = "deep"
)

// Classification is the routing decision for one message.
type Classification struct {
	Intent     Intent
	Complexity Complexity
}

var (
	greetingPattern = regexp.MustCompile(`(?i)^\s*(hi|hiya|hello|hey|yo|good\s+(morning|afternoon|evening)|thanks?|thank\s+you|thx|cheers|bye|goodbye|see\s+you|later|how\s+are\s+you|what'?s\s+up|sup)\b[\s!.,?]*$`)

	followUpPattern = regexp.MustCompile(`(?i)^\s*(ok(ay)?|sure|yes|yep|yeah|no|nope|got\s+it|sounds\s+good|cool|nice|great|perfect|awesome|why|how\s+so|what\s+about|and\s+then|go\s+on|continue|tell\s+me\s+more|really)\b`)

	offTopicPattern = regexp.MustCompile(`(?i)\b(recipe|cooking|baking|movie|film|celebrity|sports?|football|basketball|stock\s+market|crypto(currency)?|dating|horoscope|astrology|poem|poetry|song\s+lyrics|fashion|makeup|travel\s+destination|vacation|homework|essay)\b`)

	linuxTopicPattern = regexp.MustCompile(`(?i)\b(linux|ubuntu|debian|fedora|cent\s*os|arch|manjaro|mint|opensuse|rhel|kernel|terminal|shell|bash|zsh|fish|command|sudo|apt|apt-get|dnf|yum|pacman|zypper|systemd|systemctl|journalctl|grub|ssh|server|daemon|package|filesystem|mount|partition|cron|docker|kubernetes|nginx|apache|firewall|iptables|selinux|driver|gpu|x11|wayland|gnome|kde|xfce|dotfiles?)\b`)

	actionPattern = regexp.MustCompile(`(?i)\b(install|uninstall|remove|set\s*up|configure|enable|disable|start|stop|restart|upgrade|update|mount|unmount|format|partition|deploy|compile|build\s+from\s+source|create\s+(a\s+)?(user|service|script|cron)|change\s+(the\s+)?(password|hostname|permissions)|open\s+(a\s+)?port|add\s+(a\s+)?(repository|ppa|user)|fix|repair|troubleshoot|debug|recover|restore)\b`)

	repairPattern = regexp.MustCompile(`(?i)\b(fix|repair|troubleshoot|debug|broken|not\s+working|doesn'?t\s+work|won'?t\s+(boot|start|load|connect)|crash(es|ed|ing)?|error|fail(s|ed|ing|ure)?|freez(e|es|ing)|hang(s|ing)?|stuck|corrupt(ed)?|black\s+screen|no\s+sound|no\s+wifi)\b`)

	discoveryPrefixes = []string{"NAME=", "PRETTY_NAME=", "ID=", "VERSION=", "uname", "cat /etc"}

	complexTopicPattern = regexp.MustCompile(`(?i)\b(kubernetes|k8s|docker|container|cluster|raid|lvm|zfs|btrfs|virtualization|kvm|qemu|libvirt|systemd\s+unit|kernel\s+module|custom\s+kernel|cross-?compil|error|migration|performance\s+tuning)\b`)

	definitionPattern = regexp.MustCompile(`(?i)^\s*(what\s+is|what'?s|explain|tell\s+me\s+about|define)\b`)

	setupKeywordPattern = regexp.MustCompile(`(?i)\b(install|set\s*up|configure)\b`)
)

// Classify maps a user message to an intent and complexity.
// Rules are ordered; the first match wins.
func Classify(message string) Classification {
	trimmed := strings.TrimSpace(message)

	if greetingPattern.MatchString(trimmed) {
		return Classification{Intent: IntentInfo, Complexity: ComplexitySimple}
	}

	if len(trimmed) < 100 && followUpPattern.MatchString(trimmed) {
		return Classification{Intent: IntentInfo, Complexity: ComplexitySimple}
	}

	if offTopicPattern.MatchString(trimmed) && !linuxTopicPattern.MatchString(trimmed) {
		return Classification{Intent: IntentInfo, Complexity: ComplexityDecline}
	}

	if actionPattern.MatchString(trimmed) {
		if repairPattern.MatchString(trimmed) {
			return Classification{Intent: IntentRepair, Complexity: ComplexityComplex}
		}
		return Classification{Intent: IntentAction, Complexity: ComplexityComplex}
	}

	for _, prefix := range discoveryPrefixes {
		if strings.HasPrefix(trimmed, prefix) {
			return Classification{Intent: IntentSystemDiscovery, Complexity: ComplexitySimple}
		}
	}

	return Classification{Intent: IntentInfo, Complexity: ComplexityModerate}
}

// ResearchStrategy picks how deep the research agent should go for a query.
func ResearchStrategy(query string, intent Intent) Strategy {
	if intent == IntentRepair || intent == IntentAction {
		return StrategyDeep
	}
	if complexTopicPattern.MatchString(query) {
		return StrategyDeep
	}
	if len(query) < 80 && definitionPattern.MatchString(query) && !setupKeywordPattern.MatchString(query) {
		return StrategyQuick
	}
	return StrategyAdaptive
}

// NeedsSystemProfile reports whether answering this intent benefits from
// knowing the user's system configuration.
func NeedsSystemProfile(intent Intent) bool {
	return intent == IntentAction || intent == IntentRepair
}
