package schema

import "fmt"

// Reliability selects the transport delivery guarantee for a topic.
type Reliability int

const (
	// BestEffort delivers samples without retransmission
	BestEffort Reliability = iota
	// Reliable retransmits until samples are acknowledged
	Reliable
)

func (r Reliability) String() string {
	if r == Reliable {
		return "RELIABLE"
	}
	return "BEST_EFFORT"
}

// Durability controls whether late-joining readers receive retained samples.
type Durability int

const (
	// Volatile delivers only samples published after the reader joins
	Volatile Durability = iota
	// TransientLocal replays the writer's retained history to late joiners
	TransientLocal
)

func (d Durability) String() string {
	if d == TransientLocal {
		return "TRANSIENT_LOCAL"
	}
	return "VOLATILE"
}

// HistoryKind controls how many samples a reader or writer retains per key.
type HistoryKind int

const (
	// KeepLast retains the most recent Depth samples
	KeepLast HistoryKind = iota
	// KeepAll retains every sample until taken
	KeepAll
)

func (h HistoryKind) String() string {
	if h == KeepAll {
		return "KEEP_ALL"
	}
	return "KEEP_LAST"
}

// QoSProfile bundles the transport-level delivery parameters attached to a
// topic. All readers and writers of a topic share one profile.
type QoSProfile struct {
	Reliability Reliability
	Durability  Durability
	History     HistoryKind

	// Depth is the retained sample count for KeepLast history.
	// Ignored for KeepAll.
	Depth int
}

// DefaultQoS is the profile applied when a topic's configuration omits one:
// reliable, volatile, KEEP_LAST with a depth of 10.
func DefaultQoS() QoSProfile {
	return QoSProfile{
		Reliability: Reliable,
		Durability:  Volatile,
		History:     KeepLast,
		Depth:       10,
	}
}

// Validate checks the profile for inconsistent settings.
func (q QoSProfile) Validate() error {
	if q.History == KeepLast && q.Depth <= 0 {
		return fmt.Errorf("KEEP_LAST history requires a positive depth, got %d", q.Depth)
	}
	return nil
}

// ParseReliability converts a configuration string into a Reliability.
func ParseReliability(s string) (Reliability, error) {
	switch s {
	case "", "RELIABLE":
		return Reliable, nil
	case "BEST_EFFORT":
		return BestEffort, nil
	default:
		return 0, fmt.Errorf("unknown reliability %q", s)
	}
}

// ParseDurability converts a configuration string into a Durability.
func ParseDurability(s string) (Durability, error) {
	switch s {
	case "", "VOLATILE":
		return Volatile, nil
	case "TRANSIENT_LOCAL":
		return TransientLocal, nil
	default:
		return 0, fmt.Errorf("unknown durability %q", s)
	}
}

// ParseHistoryKind converts a configuration string into a HistoryKind.
func ParseHistoryKind(s string) (HistoryKind, error) {
	switch s {
	case "", "KEEP_LAST":
		return KeepLast, nil
	case "KEEP_ALL":
		return KeepAll, nil
	default:
		return 0, fmt.Errorf("unknown history kind %q", s)
	}
}
