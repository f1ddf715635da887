package fragment

import (
	"errors"
	"sync"
	"time"

	"github.com/Magicred-1/anon0mesh-sub003/internal/clock"
	"github.com/Magicred-1/anon0mesh-sub003/internal/wire"
)

var (
	ErrMetadataMismatch  = errors.New("fragment: total_size/fragment_count mismatch with in-progress reassembly")
	ErrReassemblyTimeout = errors.New("fragment: reassembly state expired before completion")
	ErrOversizeTotal     = errors.New("fragment: reassembled length does not match total_size")
)

// DefaultReassemblyTimeout is the window from the first fragment of a
// message_id within which all fragments must arrive.
const DefaultReassemblyTimeout = 60 * time.Second

type reassemblyState struct {
	totalSize uint32
	count     uint16
	chunks    map[uint16][]byte
	received  int
	firstSeen time.Time
}

// Reassembler holds in-progress reassembly state keyed by message_id. It
// is not safe to share a Reassembler across unrelated sender identities
// unless message IDs are already namespaced by the caller.
type Reassembler struct {
	mu      sync.Mutex
	clock   clock.Clock
	timeout time.Duration
	states  map[string]*reassemblyState
}

// NewReassembler creates a Reassembler using c as its time source and the
// given reassembly timeout (DefaultReassemblyTimeout if zero).
func NewReassembler(c clock.Clock, timeout time.Duration) *Reassembler {
	if timeout <= 0 {
		timeout = DefaultReassemblyTimeout
	}
	return &Reassembler{
		clock:   c,
		timeout: timeout,
		states:  make(map[string]*reassemblyState),
	}
}

// Absorb feeds one fragment packet's payload into the reassembler. It
// returns (payload, true, nil) once the message is complete, in which
// case the state has already been evicted. Mismatched metadata purges the
// in-progress state and returns ErrMetadataMismatch.
func (r *Reassembler) Absorb(payload []byte) ([]byte, bool, error) {
	header, chunk, err := wire.DecodeFragmentHeader(payload)
	if err != nil {
		return nil, false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	state, exists := r.states[header.MessageID]
	if !exists {
		state = &reassemblyState{
			totalSize: header.TotalSize,
			count:     header.FragmentCount,
			chunks:    make(map[uint16][]byte),
			firstSeen: now,
		}
		r.states[header.MessageID] = state
	}

	if state.totalSize != header.TotalSize || state.count != header.FragmentCount {
		delete(r.states, header.MessageID)
		return nil, false, ErrMetadataMismatch
	}

	if _, dup := state.chunks[header.FragmentIndex]; !dup {
		buf := make([]byte, len(chunk))
		copy(buf, chunk)
		state.chunks[header.FragmentIndex] = buf
		state.received++
	}

	if state.received < int(state.count) {
		return nil, false, nil
	}

	assembled := make([]byte, 0, state.totalSize)
	for i := uint16(0); i < state.count; i++ {
		assembled = append(assembled, state.chunks[i]...)
	}
	delete(r.states, header.MessageID)

	if uint32(len(assembled)) != state.totalSize {
		return nil, false, ErrOversizeTotal
	}

	return assembled, true, nil
}

// Maintenance purges any in-progress reassembly whose first fragment
// arrived more than the configured timeout ago. Call it periodically
// (the same tick the router uses for its own maintenance).
func (r *Reassembler) Maintenance() {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	for id, state := range r.states {
		if now.Sub(state.firstSeen) > r.timeout {
			delete(r.states, id)
		}
	}
}

// Pending returns the number of in-progress reassemblies, for diagnostics.
func (r *Reassembler) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.states)
}
