package usecase

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"torrens/internal/domain"
)

// TableSpec is the declarative form of one domain's state machine, as
// written in YAML or compiled in as a built-in. Tables are data loaded once
// at startup, never computed.
type TableSpec struct {
	Domain       string            `yaml:"domain"`
	ResourceType string            `yaml:"resource_type"`
	Initial      string            `yaml:"initial"`
	Terminal     []string          `yaml:"terminal"`
	Display      map[string]string `yaml:"display"`
	Transitions  []RuleSpec        `yaml:"transitions"`
}

// RuleSpec allows each listed role to move an entity from From to any state
// in To.
type RuleSpec struct {
	From  string   `yaml:"from"`
	Roles []string `yaml:"roles"`
	To    []string `yaml:"to"`
}

// DomainTable is the compiled, validated lookup form of a TableSpec.
type DomainTable struct {
	Domain       domain.WorkflowDomain
	ResourceType string
	Initial      domain.State

	states   map[domain.State]bool
	terminal map[domain.State]bool
	display  map[domain.State]string
	rules    map[domain.State]map[domain.Role]map[domain.State]bool
}

// CompileTable validates spec and builds its lookup structures. The state
// vocabulary is the union of initial, terminal and every state a rule
// references; the table is total over it (states without rules simply allow
// nothing).
func CompileTable(spec TableSpec) (*DomainTable, error) {
	if strings.TrimSpace(spec.Domain) == "" {
		return nil, domain.ValidationError("TABLE_INVALID", "transition table missing domain")
	}
	if strings.TrimSpace(spec.ResourceType) == "" {
		return nil, domain.ValidationError("TABLE_INVALID", "table %q missing resource_type", spec.Domain)
	}
	if strings.TrimSpace(spec.Initial) == "" {
		return nil, domain.ValidationError("TABLE_INVALID", "table %q missing initial state", spec.Domain)
	}

	t := &DomainTable{
		Domain:       domain.WorkflowDomain(spec.Domain),
		ResourceType: spec.ResourceType,
		Initial:      domain.State(spec.Initial),
		states:       map[domain.State]bool{domain.State(spec.Initial): true},
		terminal:     map[domain.State]bool{},
		display:      map[domain.State]string{},
		rules:        map[domain.State]map[domain.Role]map[domain.State]bool{},
	}

	for _, s := range spec.Terminal {
		t.states[domain.State(s)] = true
		t.terminal[domain.State(s)] = true
	}

	for i, rule := range spec.Transitions {
		if rule.From == "" || len(rule.Roles) == 0 || len(rule.To) == 0 {
			return nil, domain.ValidationError("TABLE_INVALID",
				"table %q transition %d needs from, roles and to", spec.Domain, i)
		}
		from := domain.State(rule.From)
		if t.terminal[from] {
			return nil, domain.ValidationError("TABLE_INVALID",
				"table %q allows transitions out of terminal state %q", spec.Domain, rule.From)
		}
		t.states[from] = true
		byRole, ok := t.rules[from]
		if !ok {
			byRole = map[domain.Role]map[domain.State]bool{}
			t.rules[from] = byRole
		}
		for _, role := range rule.Roles {
			targets, ok := byRole[domain.Role(role)]
			if !ok {
				targets = map[domain.State]bool{}
				byRole[domain.Role(role)] = targets
			}
			for _, to := range rule.To {
				if to == rule.From {
					return nil, domain.ValidationError("TABLE_INVALID",
						"table %q transition %d maps state %q onto itself", spec.Domain, i, to)
				}
				t.states[domain.State(to)] = true
				targets[domain.State(to)] = true
			}
		}
	}

	for s := range spec.Display {
		if !t.states[domain.State(s)] {
			return nil, domain.ValidationError("TABLE_INVALID",
				"table %q display maps unknown state %q", spec.Domain, s)
		}
	}
	for s, label := range spec.Display {
		t.display[domain.State(s)] = label
	}
	return t, nil
}

// KnownState reports whether s belongs to the table's state vocabulary.
func (t *DomainTable) KnownState(s domain.State) bool { return t.states[s] }

// IsTerminal reports whether s admits no outgoing transitions for any role.
func (t *DomainTable) IsTerminal(s domain.State) bool { return t.terminal[s] }

// Allows reports whether role may move an entity from one state to another.
func (t *DomainTable) Allows(from, to domain.State, role domain.Role) bool {
	byRole, ok := t.rules[from]
	if !ok {
		return false
	}
	return byRole[role][to]
}

// AllowedNext returns the sorted set of states role may reach from the given
// state. Terminal and unknown states yield an empty set.
func (t *DomainTable) AllowedNext(from domain.State, role domain.Role) []domain.State {
	byRole, ok := t.rules[from]
	if !ok {
		return nil
	}
	targets := byRole[role]
	if len(targets) == 0 {
		return nil
	}
	out := make([]domain.State, 0, len(targets))
	for s := range targets {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// DisplayStatus maps a workflow state to its human-facing status label.
// Pure and total: unmapped states fall back to the raw state string, so the
// canonical state remains the single source of truth.
func (t *DomainTable) DisplayStatus(s domain.State) string {
	if label, ok := t.display[s]; ok {
		return label
	}
	return string(s)
}

// Edge is one legal transition in expanded form.
type Edge struct {
	From domain.State `json:"from"`
	Role domain.Role  `json:"role"`
	To   domain.State `json:"to"`
}

// Edges expands the table into its legal (from, role, to) triples,
// sorted for stable output.
func (t *DomainTable) Edges() []Edge {
	var out []Edge
	for from, byRole := range t.rules {
		for role, targets := range byRole {
			for to := range targets {
				out = append(out, Edge{From: from, Role: role, To: to})
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].From != out[j].From {
			return out[i].From < out[j].From
		}
		if out[i].Role != out[j].Role {
			return out[i].Role < out[j].Role
		}
		return out[i].To < out[j].To
	})
	return out
}

// States returns the table's state vocabulary, sorted.
func (t *DomainTable) States() []domain.State {
	out := make([]domain.State, 0, len(t.states))
	for s := range t.states {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// TransitionTable holds every compiled domain table.
type TransitionTable struct {
	domains map[domain.WorkflowDomain]*DomainTable
}

// NewTransitionTable compiles the given specs. Duplicate domains are a
// configuration error.
func NewTransitionTable(specs ...TableSpec) (*TransitionTable, error) {
	tt := &TransitionTable{domains: map[domain.WorkflowDomain]*DomainTable{}}
	for _, spec := range specs {
		t, err := CompileTable(spec)
		if err != nil {
			return nil, err
		}
		if _, dup := tt.domains[t.Domain]; dup {
			return nil, domain.ValidationError("TABLE_INVALID", "duplicate table for domain %q", t.Domain)
		}
		tt.domains[t.Domain] = t
	}
	return tt, nil
}

// Domain resolves one domain's table.
func (tt *TransitionTable) Domain(d domain.WorkflowDomain) (*DomainTable, bool) {
	t, ok := tt.domains[d]
	return t, ok
}

// Domains lists the configured domains, sorted.
func (tt *TransitionTable) Domains() []domain.WorkflowDomain {
	out := make([]domain.WorkflowDomain, 0, len(tt.domains))
	for d := range tt.domains {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// LoadTables returns the built-in tables overlaid with any YAML specs found
// under dir (one domain per file, *.yaml or *.yml, scanned recursively). A
// loaded domain replaces the built-in of the same name. An empty dir means
// built-ins only.
func LoadTables(dir string) (*TransitionTable, error) {
	specs := map[string]TableSpec{}
	for _, spec := range BuiltinTableSpecs() {
		specs[spec.Domain] = spec
	}

	if dir != "" {
		err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			ext := strings.ToLower(filepath.Ext(path))
			if ext != ".yaml" && ext != ".yml" {
				return nil
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("reading %s: %w", path, err)
			}
			var spec TableSpec
			if err := yaml.Unmarshal(data, &spec); err != nil {
				return fmt.Errorf("parsing %s: %w", path, err)
			}
			specs[spec.Domain] = spec
			return nil
		})
		if err != nil {
			return nil, domain.ValidationError("TABLE_LOAD_FAILED", "scanning %s: %v", dir, err)
		}
	}

	ordered := make([]TableSpec, 0, len(specs))
	for _, spec := range specs {
		ordered = append(ordered, spec)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Domain < ordered[j].Domain })
	return NewTransitionTable(ordered...)
}
