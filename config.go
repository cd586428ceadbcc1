package whse

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// TrackerMatchMode selects how the allocation tracker resolves a GVA or GPA
// lookup against a recorded node's range.
type TrackerMatchMode int

const (
	// MatchRangeContainment matches when the address falls anywhere inside
	// [node.Address, node.Address+node.Size). This is the default.
	MatchRangeContainment TrackerMatchMode = iota
	// MatchExactEquality matches only the node's exact starting address,
	// mirroring an older revision of the address-bookkeeping behavior.
	MatchExactEquality
)

func (m TrackerMatchMode) String() string {
	switch m {
	case MatchRangeContainment:
		return "range"
	case MatchExactEquality:
		return "exact"
	default:
		return fmt.Sprintf("TrackerMatchMode(%d)", int(m))
	}
}

func (m TrackerMatchMode) MarshalYAML() (interface{}, error) {
	return m.String(), nil
}

func (m *TrackerMatchMode) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	switch s {
	case "", "range":
		*m = MatchRangeContainment
	case "exact":
		*m = MatchExactEquality
	default:
		return fmt.Errorf("whse: unknown tracker_match_mode %q", s)
	}
	return nil
}

// Policy is the runtime-tunable behavior this library leaves open: the
// tracker's match semantics, whether ring-3 exceptions are transparently
// escalated to ring 0 for servicing, the guest's physical memory size, and
// the default log verbosity when no *logrus.Entry is supplied explicitly.
type Policy struct {
	TrackerMatchMode    TrackerMatchMode `yaml:"tracker_match_mode"`
	AllowRingEscalation bool             `yaml:"allow_ring_escalation"`
	GuestMemorySize     uint64           `yaml:"guest_memory_size"`
	LogLevel            string           `yaml:"log_level"`
}

// DefaultPolicy returns the behavior this library exhibits absent any
// configuration: range-containment tracker matching, ring escalation
// enabled (required for ring-3 shellcode to take serviceable page faults),
// and a 64 MiB guest physical space.
func DefaultPolicy() Policy {
	return Policy{
		TrackerMatchMode:    MatchRangeContainment,
		AllowRingEscalation: true,
		GuestMemorySize:     64 * 1024 * 1024,
		LogLevel:            "warning",
	}
}

// LoadPolicy reads a Policy from YAML, starting from DefaultPolicy so that
// a partial document only overrides the fields it mentions.
func LoadPolicy(r io.Reader) (Policy, error) {
	p := DefaultPolicy()
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(&p); err != nil && err != io.EOF {
		return Policy{}, fmt.Errorf("whse: decode policy: %w", err)
	}
	return p, nil
}

// LoadPolicyFile reads a Policy from a YAML file on disk.
func LoadPolicyFile(path string) (Policy, error) {
	f, err := os.Open(path)
	if err != nil {
		return Policy{}, fmt.Errorf("whse: open policy file: %w", err)
	}
	defer f.Close()
	return LoadPolicy(f)
}
