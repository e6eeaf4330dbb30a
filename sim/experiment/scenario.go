package experiment

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ScenarioDescription is the in-memory model of an ATAM-style scenario
// (§6): a named artifact/component the scenario stimulates, a stimulus
// string, and zero or more faultload strings. Parsing the architecture
// and experiment *files* into these strings is out of core scope (§1);
// the DSL strings themselves are evaluated here, since they are a
// simulation-setup-time language, not a file format.
type ScenarioDescription struct {
	Artifact   string // the service the scenario targets
	Component  string // an operation name, or "ALL ENDPOINTS"
	Stimulus   string // "LOAD <profile>", optionally prefixed "~" for repeating
	Faultloads []string
}

// ParsedStimulus is the decoded form of a "LOAD <profile>" /
// "~LOAD <profile>" stimulus string.
type ParsedStimulus struct {
	ProfileKey string
	Repeating  bool
}

var stimulusRe = regexp.MustCompile(`^(~)?LOAD\s+(\S+)$`)

// ParseStimulus decodes a stimulus string (§6).
func ParseStimulus(s string) (ParsedStimulus, error) {
	m := stimulusRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return ParsedStimulus{}, fmt.Errorf("experiment: malformed stimulus %q", s)
	}
	return ParsedStimulus{ProfileKey: m[2], Repeating: m[1] == "~"}, nil
}

// FaultKind enumerates the scenario faultload verbs (§6).
type FaultKind string

const (
	FaultKill    FaultKind = "KILL"
	FaultStart   FaultKind = "START"
	FaultRestart FaultKind = "RESTART"
	FaultDelay   FaultKind = "DELAY"
)

// ParsedFaultload is the decoded form of one faultload line. Only the
// fields relevant to Kind are populated: Service/N/At for
// KILL/START/RESTART, Baseline/StdDev/Duration/At for DELAY (its target
// defaults to the owning ScenarioDescription's Artifact, since the
// grammar carries no service token of its own).
type ParsedFaultload struct {
	Kind     FaultKind
	Service  string
	N        int
	Baseline float64
	StdDev   float64
	Duration float64
	At       float64
}

var killStartRestartRe = regexp.MustCompile(`^(KILL|START|RESTART)(?:\s+(\S+))?(?:\s+(\d+))?\s+@([\d.]+)$`)
var delayRe = regexp.MustCompile(`^DELAY\s+([\d.]+)(?:\+-([\d.]+))?\s+~([\d.]+)\s+@([\d.]+)$`)

// ParseFaultload decodes one faultload line, either a
// "KILL|START|RESTART [service] [n] @time" or a
// "DELAY baseline[+-stddev] ~duration @time" string (§6).
func ParseFaultload(s string) (ParsedFaultload, error) {
	line := strings.TrimSpace(s)
	if m := delayRe.FindStringSubmatch(line); m != nil {
		baseline, _ := strconv.ParseFloat(m[1], 64)
		stddev := 0.0
		if m[2] != "" {
			stddev, _ = strconv.ParseFloat(m[2], 64)
		}
		duration, _ := strconv.ParseFloat(m[3], 64)
		at, _ := strconv.ParseFloat(m[4], 64)
		return ParsedFaultload{Kind: FaultDelay, Baseline: baseline, StdDev: stddev, Duration: duration, At: at}, nil
	}
	if m := killStartRestartRe.FindStringSubmatch(line); m != nil {
		n := 1
		if m[3] != "" {
			n, _ = strconv.Atoi(m[3])
		}
		at, _ := strconv.ParseFloat(m[4], 64)
		return ParsedFaultload{Kind: FaultKind(m[1]), Service: m[2], N: n, At: at}, nil
	}
	return ParsedFaultload{}, fmt.Errorf("experiment: malformed faultload %q", s)
}

// ExpandComponent expands a scenario's component string into the list of
// operation names it covers: "ALL ENDPOINTS" expands to every operation
// of the artifact (§6); anything else names exactly one operation.
func ExpandComponent(component string, operationNames []string) []string {
	if component == "ALL ENDPOINTS" {
		out := make([]string, len(operationNames))
		copy(out, operationNames)
		return out
	}
	return []string{component}
}
