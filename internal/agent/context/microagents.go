package context

import (
	"regexp"
	"strings"
	"sync"
)

// MicroagentKind distinguishes repo microagents (always active) from
// knowledge microagents (triggered by a keyword match in a user message).
type MicroagentKind string

const (
	MicroagentRepo      MicroagentKind = "repo"
	MicroagentKnowledge MicroagentKind = "knowledge"
)

// Microagent is a unit of injectable context: either always active
// (repo) or triggered by one of its keyword patterns appearing as a
// whole word, case-insensitively, in a user message (knowledge).
type Microagent struct {
	Name     string
	Kind     MicroagentKind
	Triggers []string
	Content  string
}

// MicroagentSet holds the microagents configured for a conversation and
// tracks which knowledge microagents have already activated, so
// re-triggering an active one is a no-op (spec idempotency requirement).
type MicroagentSet struct {
	mu       sync.Mutex
	agents   []Microagent
	active   map[string]bool
	patterns map[string][]*regexp.Regexp
}

// NewMicroagentSet builds a set of microagents and pre-compiles each
// knowledge microagent's trigger patterns as whole-word, case-insensitive
// matchers.
func NewMicroagentSet(agents []Microagent) *MicroagentSet {
	s := &MicroagentSet{
		agents:   agents,
		active:   make(map[string]bool),
		patterns: make(map[string][]*regexp.Regexp),
	}
	for _, a := range agents {
		if a.Kind != MicroagentKnowledge {
			continue
		}
		var res []*regexp.Regexp
		for _, trig := range a.Triggers {
			trig = strings.TrimSpace(trig)
			if trig == "" {
				continue
			}
			if re, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(trig) + `\b`); err == nil {
				res = append(res, re)
			}
		}
		s.patterns[a.Name] = res
	}
	return s
}

// Repo returns every always-active repo microagent, in declaration order.
func (s *MicroagentSet) Repo() []Microagent {
	var out []Microagent
	for _, a := range s.agents {
		if a.Kind == MicroagentRepo {
			out = append(out, a)
		}
	}
	return out
}

// ActivationResult records a knowledge microagent transitioning to active
// on this call, along with the trigger word that matched.
type ActivationResult struct {
	Agent   Microagent
	Trigger string
}

// CheckActivations scans message for any not-yet-active knowledge
// microagent's trigger words and returns the ones that activate as a
// result of this call. Already-active microagents are skipped
// (idempotent) and never re-reported.
func (s *MicroagentSet) CheckActivations(message string) []ActivationResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	var activated []ActivationResult
	for _, a := range s.agents {
		if a.Kind != MicroagentKnowledge || s.active[a.Name] {
			continue
		}
		for _, re := range s.patterns[a.Name] {
			if loc := re.FindString(message); loc != "" {
				s.active[a.Name] = true
				activated = append(activated, ActivationResult{Agent: a, Trigger: loc})
				break
			}
		}
	}
	return activated
}

// IsActive reports whether the named knowledge microagent has already
// activated in this conversation.
func (s *MicroagentSet) IsActive(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active[name]
}

// ActiveNames returns the names of every currently active knowledge
// microagent, for ConversationState's active-microagent-names set.
func (s *MicroagentSet) ActiveNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.active))
	for name, on := range s.active {
		if on {
			out = append(out, name)
		}
	}
	return out
}

// MarkActive force-activates a microagent by name without requiring a
// trigger match, used to restore active-microagent state after a resume
// from persisted ConversationState.
func (s *MicroagentSet) MarkActive(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active[name] = true
}
