// Package anomaly assembles the prompts that ask a model to find GOOSE anomalies.
package anomaly

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/priscilla100/goose-llm/internal/apperr"
	"github.com/priscilla100/goose-llm/internal/conversation"
	"github.com/priscilla100/goose-llm/internal/llm"
)

// Anomaly labels the model may answer with.
const (
	KindMS     = "MS"
	KindDoS    = "DoS"
	KindNE     = "NE"
	KindOther  = "Other"
	KindNormal = "Normal"
)

var kindNames = map[string]string{
	"ms":  "message suppression",
	"dos": "denial-of-service",
	"ne":  "network error",
}

// Heuristic is one recommendation; failing it indicates an anomaly of Kind.
type Heuristic struct {
	Kind string `yaml:"kind"`
	Rule string `yaml:"rule"`
}

type heuristicsFile struct {
	Heuristics []Heuristic `yaml:"heuristics"`
}

// DefaultHeuristics returns the built-in GOOSE recommendations.
func DefaultHeuristics() []Heuristic {
	return []Heuristic{
		{Kind: KindMS, Rule: "the stNum value is higher or slightly higher than the previously recorded stNum, and sqNum is not 0."},
		{Kind: KindMS, Rule: "Replaying a previously valid GOOSE frame that contains a high stNum and sqNum is 0, but has a stale timestamp."},
		{Kind: KindMS, Rule: "When a frame has a high stNum and sqNum is 0, and there is a valid timestamp."},
		{Kind: KindMS, Rule: "When a frame has a high sqNum causes GOOSE frames to arrive at the receiver out of sequence."},
		{Kind: KindDoS, Rule: "Up to 10 packets are sent within 10 ms."},
		{Kind: KindNE, Rule: "There should be a packet (dataset) within 10s."},
	}
}

// LoadHeuristics reads heuristics from a YAML file. An empty path yields the
// defaults.
func LoadHeuristics(path string) ([]Heuristic, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultHeuristics(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperr.New(apperr.IOFailure, "read heuristics", err)
	}
	return ParseHeuristics(data)
}

// ParseHeuristics decodes a YAML heuristics document.
func ParseHeuristics(data []byte) ([]Heuristic, error) {
	var doc heuristicsFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, apperr.New(apperr.InvalidArgument, "parse heuristics", err)
	}
	if len(doc.Heuristics) == 0 {
		return nil, apperr.Invalid("heuristics file lists no heuristics")
	}
	out := make([]Heuristic, 0, len(doc.Heuristics))
	for i, h := range doc.Heuristics {
		kind, err := normalizeKind(h.Kind)
		if err != nil {
			return nil, apperr.New(apperr.InvalidArgument, fmt.Sprintf("heuristic %d", i+1), err)
		}
		rule := strings.TrimSpace(h.Rule)
		if rule == "" {
			return nil, apperr.Invalid("heuristic %d has an empty rule", i+1)
		}
		out = append(out, Heuristic{Kind: kind, Rule: rule})
	}
	return out, nil
}

func normalizeKind(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "ms":
		return KindMS, nil
	case "dos":
		return KindDoS, nil
	case "ne":
		return KindNE, nil
	case "":
		return "", errors.New("missing kind")
	default:
		return "", fmt.Errorf("unknown kind %q", kind)
	}
}

// ChunkMessage asks the model to acknowledge and remember one dataset chunk.
func ChunkMessage(index, total int, chunk string) string {
	return fmt.Sprintf("Here is a chunk %d of %d of a CSV dataset. Respond with OK to "+
		"acknowledge that you have received this chunk. Remember each line that I give you "+
		"and their line number. Do not explain the data. Here is the data: \n%s", index, total, chunk)
}

// SystemPrompt returns the detector instructions.
func SystemPrompt() string {
	return "You will detect anomalies in patterns in sets of GOOSE messages, you will be given " +
		"anomaly recommendations. You will need to follow the instructions for the " +
		"recommendations-- if you need to check a field on the next row for a recommendation, " +
		"you need to do that. If a pattern shows up that matches something in the " +
		"recommendations, then you need to acknowledge that you've found an anomaly. " +
		"Reply with either 'MS', 'DoS', 'NE' or 'Other' depending on the type of anomaly. " +
		"If there is no anomaly, reply with 'Normal'. Concisely explain your reasoning, " +
		"stating in which line the violation happened. You need to be sure that you carefully look at " +
		"each line in detail so that you do not make generalizations over hundreds of lines. Be sure that " +
		"you state how many anomalies there are, if any, by looking at each line."
}

// Recommendations renders heuristics as the attack description block.
func Recommendations(heuristics []Heuristic) string {
	var b strings.Builder
	b.WriteString("I present you the ")
	b.WriteString(describeKinds(heuristics))
	b.WriteString(", for GOOSE communications.\n\n")
	b.WriteString("These attacks can be described as follows. A failure to satisfy at least one\n")
	b.WriteString("recommendation leads to the relevant attack.\n\n")
	b.WriteString("Attacks/errors on GOOSE datasets:\n")
	for _, h := range heuristics {
		fmt.Fprintf(&b, "- %s: %s\n", h.Kind, h.Rule)
	}
	return b.String()
}

func describeKinds(heuristics []Heuristic) string {
	seen := make(map[string]bool)
	var parts []string
	for _, h := range heuristics {
		if seen[h.Kind] {
			continue
		}
		seen[h.Kind] = true
		parts = append(parts, fmt.Sprintf("%s (%s)", kindNames[strings.ToLower(h.Kind)], h.Kind))
	}
	if len(parts) > 1 {
		parts[len(parts)-1] = "and " + parts[len(parts)-1]
	}
	return strings.Join(parts, ", ")
}

// Instructions embeds the recommendations in the final analysis request.
func Instructions(heuristics []Heuristic) string {
	return fmt.Sprintf("Here are the anomaly recommendations while analyzing each line:\n%s "+
		"You have already been given a dataset of GOOSE messages. Look at the context of "+
		"the previous lines when checking for anomalies. If you detect an anomaly based on "+
		"the provided recommendations, state the type of anomaly (e.g., 'MS', 'DoS', 'NE', "+
		"'Other') and specify the line numbers where the violation occurred. If there is "+
		"no anomaly, reply with 'Normal'. Make sure to check yourself to make sure you "+
		"don't contradict yourself.", Recommendations(heuristics))
}

// BuildAnalysis lays out the opening conversation: every chunk in order, then
// the system prompt and the instructions.
func BuildAnalysis(chunks []string, heuristics []Heuristic) conversation.Log {
	if len(heuristics) == 0 {
		heuristics = DefaultHeuristics()
	}
	var log conversation.Log
	for i, chunk := range chunks {
		log.Append(llm.RoleUser, ChunkMessage(i, len(chunks), chunk))
	}
	log.Append(llm.RoleSystem, SystemPrompt())
	log.Append(llm.RoleUser, Instructions(heuristics))
	return log
}
