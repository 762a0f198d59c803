// Package state implements the engine's global state store: a mutable,
// mutex-guarded key/value map mutated at each superstep barrier under one of
// four merge strategies, plus the immutable Snapshot view handed to node
// invocations and edge predicates.
package state

import (
	"sort"
	"sync"

	"github.com/vk/burstgraph/bgerrors"
)

// MergeStrategy controls how a node output is combined with an existing
// state value that shares its key.
type MergeStrategy int

const (
	// unspecified is the zero value, reserved so that a caller-omitted
	// MergeStrategy can be distinguished from an explicit Overwrite choice.
	// Scheduler and Store callers that see this value should substitute
	// their own default instead of applying it directly.
	unspecified MergeStrategy = iota
	// Overwrite replaces the existing value outright.
	Overwrite
	// Merge deep-merges maps key by key, concatenates lists, and falls
	// back to Overwrite for scalars or mismatched types.
	Merge
	// Ignore keeps the existing value and drops the incoming one.
	Ignore
	// Reject fails the whole update batch if the key already exists.
	Reject
)

func (s MergeStrategy) String() string {
	switch s {
	case unspecified:
		return "unspecified"
	case Overwrite:
		return "overwrite"
	case Merge:
		return "merge"
	case Ignore:
		return "ignore"
	case Reject:
		return "reject"
	default:
		return "unknown"
	}
}

// State is the read-only view of the store exposed to node invocations and
// edge predicates. Implementations must be safe to read concurrently.
type State interface {
	Get(key string) (any, bool)
	ToMap() map[string]any
}

// Snapshot is a shallow, point-in-time copy of the store's top-level keys.
// Nested maps and slices are not deep-copied; node functions and predicates
// are expected to treat them as read-only.
type Snapshot struct {
	values map[string]any
}

// Get returns the value for key and whether it was present.
func (s Snapshot) Get(key string) (any, bool) {
	v, ok := s.values[key]
	return v, ok
}

// ToMap returns a copy of the snapshot as a plain map.
func (s Snapshot) ToMap() map[string]any {
	out := make(map[string]any, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// Store is the engine's mutable global state. Node outputs are written
// through Apply, which evaluates one merge strategy per key and either commits the whole
// batch or rejects it atomically.
type Store struct {
	mu              sync.Mutex
	values          map[string]any
	defaultStrategy MergeStrategy
	perKey          map[string]MergeStrategy
}

// NewStore builds a Store seeded with a copy of initial, using
// defaultStrategy for any key without a registered per-key override.
func NewStore(initial map[string]any, defaultStrategy MergeStrategy) *Store {
	values := make(map[string]any, len(initial))
	for k, v := range initial {
		values[k] = v
	}
	return &Store{
		values:          values,
		defaultStrategy: defaultStrategy,
		perKey:          make(map[string]MergeStrategy),
	}
}

// RegisterKeyStrategy overrides the merge strategy used for a specific key,
// regardless of the strategy an individual Apply call requests.
func (s *Store) RegisterKeyStrategy(key string, strategy MergeStrategy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.perKey[key] = strategy
}

// Snapshot returns a point-in-time copy of the store's values.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	values := make(map[string]any, len(s.values))
	for k, v := range s.values {
		values[k] = v
	}
	return Snapshot{values: values}
}

// Get returns the current value for key.
func (s *Store) Get(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok
}

// Set unconditionally overwrites key, bypassing any registered merge
// strategy. Intended for seeding or test setup, not for node output
// application — node outputs always go through Apply.
func (s *Store) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}

// Apply merges updates into the store under strategy, or the per-key
// override registered for a given key if one exists. The batch is applied
// atomically: under Reject, if any key conflicts, none of updates is
// committed and a *bgerrors.Error with KindMergeConflict is returned.
func (s *Store) Apply(updates map[string]any, strategy MergeStrategy) error {
	if len(updates) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[string]any, len(s.values))
	for k, v := range s.values {
		next[k] = v
	}

	keys := make([]string, 0, len(updates))
	for k := range updates {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		incoming := updates[key]
		effective := strategy
		if override, ok := s.perKey[key]; ok {
			effective = override
		}

		existing, existed := next[key]
		merged, err := applyStrategy(existing, existed, incoming, effective)
		if err != nil {
			return bgerrors.NewMergeConflict(key, err)
		}
		next[key] = merged
	}

	s.values = next
	return nil
}

func applyStrategy(existing any, existed bool, incoming any, strategy MergeStrategy) (any, error) {
	switch strategy {
	case Overwrite:
		return incoming, nil
	case Ignore:
		if existed {
			return existing, nil
		}
		return incoming, nil
	case Reject:
		if existed {
			return nil, errConflict
		}
		return incoming, nil
	case Merge:
		if !existed {
			return incoming, nil
		}
		return MergeValues(existing, incoming), nil
	default:
		return incoming, nil
	}
}

var errConflict = rejectConflict{}

type rejectConflict struct{}

func (rejectConflict) Error() string { return "key already present under reject strategy" }

// MergeValues combines existing and incoming under Merge semantics: maps are
// merged key by key (recursively), slices are concatenated existing+incoming,
// and anything else (scalars, or a type mismatch between existing and
// incoming) is resolved by the later write winning outright.
func MergeValues(existing, incoming any) any {
	switch inc := incoming.(type) {
	case map[string]any:
		exMap, ok := existing.(map[string]any)
		if !ok {
			return inc
		}
		merged := make(map[string]any, len(exMap)+len(inc))
		for k, v := range exMap {
			merged[k] = v
		}
		for k, v := range inc {
			if prev, ok := merged[k]; ok {
				merged[k] = MergeValues(prev, v)
			} else {
				merged[k] = v
			}
		}
		return merged
	case []any:
		exSlice, ok := existing.([]any)
		if !ok {
			return inc
		}
		out := make([]any, 0, len(exSlice)+len(inc))
		out = append(out, exSlice...)
		out = append(out, inc...)
		return out
	default:
		return incoming
	}
}
