// Package workflow decodes the YAML workflow document described in spec
// §6 into the in-memory Document consumed by the flow graph builder and
// runner. YAML parsing itself is named out-of-scope collaborator work by
// spec §1, but the engine still must reach it to get to the core, so this
// adapter is a thin wrapper around gopkg.in/yaml.v3, not a re-derivation
// of a YAML parser.
package workflow

import (
	"fmt"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/nikahq/nika/internal/binding"
)

// OutputFormat names the shape applied to a task's raw verb output.
type OutputFormat string

const (
	OutputText OutputFormat = "text"
	OutputJSON OutputFormat = "json"
)

// OutputPolicy is the `output: {format, schema?}` block.
type OutputPolicy struct {
	Format OutputFormat `yaml:"format"`
	Schema string       `yaml:"schema,omitempty"`
}

// InferParams is the `infer:` verb payload.
type InferParams struct {
	Prompt   string `yaml:"prompt"`
	Provider string `yaml:"provider,omitempty"`
	Model    string `yaml:"model,omitempty"`
}

// ExecParams is the `exec:` verb payload.
type ExecParams struct {
	Command string `yaml:"command"`
}

// FetchParams is the `fetch:` verb payload.
type FetchParams struct {
	URL     string            `yaml:"url"`
	Method  string            `yaml:"method,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Body    string            `yaml:"body,omitempty"`
}

// InvokeParams is the `invoke:` (MCP) verb payload.
type InvokeParams struct {
	Server string         `yaml:"server"`
	Tool   string         `yaml:"tool"`
	Params map[string]any `yaml:"params,omitempty"`
}

// AgentParams is the `agent:` verb payload. MaxTurns is a pointer so an
// explicit `max_turns: 0` (rejected with NIKA-113) is distinguishable from
// an omitted field (defaults to agentloop.DefaultMaxTurns), mirroring the
// Rust original's Option<usize>.
type AgentParams struct {
	Prompt           string   `yaml:"prompt"`
	Model            string   `yaml:"model,omitempty"`
	MCP              []string `yaml:"mcp,omitempty"`
	MaxTurns         *int     `yaml:"max_turns,omitempty"`
	StopConditions   []string `yaml:"stop_conditions,omitempty"`
	ExtendedThinking bool     `yaml:"extended_thinking,omitempty"`
	Tools            []string `yaml:"tools,omitempty"`
}

// Task is one `tasks[]` entry. Exactly one verb field should be set; the
// loader validates this after YAML decode since YAML has no native
// tagged-union support.
type Task struct {
	ID     string `yaml:"id"`
	Infer  *InferParams  `yaml:"infer,omitempty"`
	Exec   *ExecParams   `yaml:"exec,omitempty"`
	Fetch  *FetchParams  `yaml:"fetch,omitempty"`
	Invoke *InvokeParams `yaml:"invoke,omitempty"`
	Agent  *AgentParams  `yaml:"agent,omitempty"`

	Use      binding.WiringSpec `yaml:"use,omitempty"`
	Output   *OutputPolicy      `yaml:"output,omitempty"`
	Provider string             `yaml:"provider,omitempty"`
	Model    string             `yaml:"model,omitempty"`
}

// Verb identifies which of the five verbs a task declares.
type Verb string

const (
	VerbInfer  Verb = "infer"
	VerbExec   Verb = "exec"
	VerbFetch  Verb = "fetch"
	VerbInvoke Verb = "invoke"
	VerbAgent  Verb = "agent"
)

// VerbKind reports which verb this task declares.
func (t Task) VerbKind() (Verb, error) {
	set := 0
	var found Verb
	if t.Infer != nil {
		set++
		found = VerbInfer
	}
	if t.Exec != nil {
		set++
		found = VerbExec
	}
	if t.Fetch != nil {
		set++
		found = VerbFetch
	}
	if t.Invoke != nil {
		set++
		found = VerbInvoke
	}
	if t.Agent != nil {
		set++
		found = VerbAgent
	}
	if set != 1 {
		return "", fmt.Errorf("task %q must declare exactly one verb, found %d", t.ID, set)
	}
	return found, nil
}

// MCPServerSpec is one entry in the top-level `mcp:` map.
type MCPServerSpec struct {
	Command string            `yaml:"command"`
	Args    []string          `yaml:"args,omitempty"`
	Env     map[string]string `yaml:"env,omitempty"`
}

// FlowSide accepts either a single task id or a list of ids in YAML.
type FlowSide []string

func (f *FlowSide) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		var s string
		if err := value.Decode(&s); err != nil {
			return err
		}
		*f = FlowSide{s}
		return nil
	}
	var list []string
	if err := value.Decode(&list); err != nil {
		return err
	}
	*f = FlowSide(list)
	return nil
}

// Flow is a `{source, target}` declaration; each side may expand to
// multiple ids.
type Flow struct {
	Source FlowSide `yaml:"source"`
	Target FlowSide `yaml:"target"`
}

// Document is the full decoded workflow document (spec §6).
type Document struct {
	Schema   string                   `yaml:"schema"`
	Provider string                   `yaml:"provider,omitempty"`
	Model    string                   `yaml:"model,omitempty"`
	MCP      map[string]MCPServerSpec `yaml:"mcp,omitempty"`
	Tasks    []Task                   `yaml:"tasks"`
	Flows    []Flow                   `yaml:"flows,omitempty"`
}

var taskIDPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Parse decodes a workflow document from YAML bytes and validates task id
// syntax and verb-field exclusivity.
func Parse(data []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse workflow document: %w", err)
	}

	seen := make(map[string]struct{}, len(doc.Tasks))
	for _, t := range doc.Tasks {
		if !taskIDPattern.MatchString(t.ID) {
			return nil, fmt.Errorf("NIKA-055: invalid task identifier %q", t.ID)
		}
		if _, dup := seen[t.ID]; dup {
			return nil, fmt.Errorf("NIKA-055: duplicate task identifier %q", t.ID)
		}
		seen[t.ID] = struct{}{}
		if _, err := t.VerbKind(); err != nil {
			return nil, err
		}
	}
	return &doc, nil
}

// TaskByID returns the task with the given id, if present.
func (d *Document) TaskByID(id string) (Task, bool) {
	for _, t := range d.Tasks {
		if t.ID == id {
			return t, true
		}
	}
	return Task{}, false
}
