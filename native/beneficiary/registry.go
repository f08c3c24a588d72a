package beneficiary

import (
	"encoding/json"

	"github.com/filecoin-project/go-address"
)

// LenderSet is the bounded per-miner lender registry: a slot arena plus an
// index map giving O(1) membership checks and swap-remove deletion. Iteration
// order is a mechanical artifact and carries no meaning.
type LenderSet struct {
	slots []address.Address
	index map[address.Address]int
}

// Add inserts lender, enforcing the max cardinality. Adding an existing
// member is a no-op regardless of the cap.
func (s *LenderSet) Add(lender address.Address, max uint64) error {
	if s.Contains(lender) {
		return nil
	}
	if uint64(len(s.slots)) >= max {
		return ErrRegistryFull
	}
	if s.index == nil {
		s.index = make(map[address.Address]int)
	}
	s.index[lender] = len(s.slots)
	s.slots = append(s.slots, lender)
	return nil
}

// Remove deletes lender if present by swapping the last slot into its place.
func (s *LenderSet) Remove(lender address.Address) {
	pos, ok := s.index[lender]
	if !ok {
		return
	}
	last := len(s.slots) - 1
	if pos != last {
		moved := s.slots[last]
		s.slots[pos] = moved
		s.index[moved] = pos
	}
	s.slots = s.slots[:last]
	delete(s.index, lender)
}

// Contains reports membership.
func (s *LenderSet) Contains(lender address.Address) bool {
	_, ok := s.index[lender]
	return ok
}

// Len returns the current cardinality.
func (s *LenderSet) Len() int { return len(s.slots) }

// List returns a copy of the member addresses.
func (s *LenderSet) List() []address.Address {
	out := make([]address.Address, len(s.slots))
	copy(out, s.slots)
	return out
}

// Clone returns a deep copy of the set.
func (s LenderSet) Clone() LenderSet {
	clone := LenderSet{}
	for _, lender := range s.slots {
		clone.index = ensureIndex(clone.index)
		clone.index[lender] = len(clone.slots)
		clone.slots = append(clone.slots, lender)
	}
	return clone
}

func ensureIndex(index map[address.Address]int) map[address.Address]int {
	if index == nil {
		return make(map[address.Address]int)
	}
	return index
}

// MarshalJSON encodes the set as a plain address list; the index map is
// rebuilt on load.
func (s LenderSet) MarshalJSON() ([]byte, error) {
	list := make([]string, len(s.slots))
	for i, lender := range s.slots {
		list[i] = lender.String()
	}
	return json.Marshal(list)
}

// UnmarshalJSON decodes an address list and rebuilds the index map.
func (s *LenderSet) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	s.slots = nil
	s.index = make(map[address.Address]int, len(list))
	for _, raw := range list {
		lender, err := address.NewFromString(raw)
		if err != nil {
			return err
		}
		if _, ok := s.index[lender]; ok {
			continue
		}
		s.index[lender] = len(s.slots)
		s.slots = append(s.slots, lender)
	}
	return nil
}
