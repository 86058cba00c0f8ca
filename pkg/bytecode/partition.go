package bytecode

import (
	"fmt"
	"sort"
	"sync"
)

// PartitionKind tells how a partition ends.
type PartitionKind uint8

const (
	// PartitionPoll ends in a POLL; the next partition starts after it.
	PartitionPoll PartitionKind = iota
	// PartitionReturn ends in RETURN or RETURN_VALUE.
	PartitionReturn
	// PartitionFallthrough ends right before an ASYNC_CALL.
	PartitionFallthrough
)

func (k PartitionKind) String() string {
	switch k {
	case PartitionPoll:
		return "poll"
	case PartitionReturn:
		return "return"
	case PartitionFallthrough:
		return "fallthrough"
	default:
		return fmt.Sprintf("PartitionKind(%d)", k)
	}
}

// Partition is the half-open code range [Start, End) of an async function
// between two suspension points.
type Partition struct {
	Index int
	Start int
	End   int
	Kind  PartitionKind
}

// Len returns the number of instructions in the partition.
func (p Partition) Len() int {
	return p.End - p.Start
}

// Split cuts code before every ASYNC_CALL and after every POLL.
// The code must end in RETURN or RETURN_VALUE.
func Split(code []Instruction) ([]Partition, error) {
	if len(code) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrMalformedAsync)
	}
	if last := code[len(code)-1].Op; !last.IsReturn() {
		return nil, fmt.Errorf("%w: ends in %s, want RETURN or RETURN_VALUE", ErrMalformedAsync, last)
	}

	var parts []Partition
	cut := func(start, end int) {
		kind := PartitionFallthrough
		switch last := code[end-1].Op; {
		case last == OpPoll:
			kind = PartitionPoll
		case last.IsReturn():
			kind = PartitionReturn
		}
		parts = append(parts, Partition{Index: len(parts), Start: start, End: end, Kind: kind})
	}

	start := 0
	for pc, ins := range code {
		switch ins.Op {
		case OpAsyncCall:
			if pc > start {
				cut(start, pc)
				start = pc
			}
		case OpPoll:
			cut(start, pc+1)
			start = pc + 1
		}
	}
	if start < len(code) {
		cut(start, len(code))
	}
	return parts, nil
}

// PartitionAt returns the index of the partition containing pc, or -1.
func PartitionAt(parts []Partition, pc int) int {
	i := sort.Search(len(parts), func(i int) bool { return parts[i].End > pc })
	if i < len(parts) && parts[i].Start <= pc {
		return i
	}
	return -1
}

// Partitioner caches partitions by function identity. It is safe for
// concurrent use so a program can be shared between machines.
type Partitioner struct {
	mu    sync.RWMutex
	cache map[*Function][]Partition
}

// NewPartitioner returns an empty partition cache.
func NewPartitioner() *Partitioner {
	return &Partitioner{cache: make(map[*Function][]Partition)}
}

// Partitions returns fn's partitions, computing them on first use.
func (p *Partitioner) Partitions(fn *Function) ([]Partition, error) {
	p.mu.RLock()
	parts, ok := p.cache[fn]
	p.mu.RUnlock()
	if ok {
		return parts, nil
	}

	parts, err := Split(fn.Code)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fn.Name, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if cached, ok := p.cache[fn]; ok {
		return cached, nil
	}
	p.cache[fn] = parts
	return parts, nil
}

// Len returns the number of cached functions.
func (p *Partitioner) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.cache)
}
