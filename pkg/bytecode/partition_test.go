package bytecode

import (
	"errors"
	"sync"
	"testing"
)

func code(ops ...Opcode) []Instruction {
	out := make([]Instruction, len(ops))
	for i, op := range ops {
		out[i] = Instruction{Op: op, Target: NoFunc}
	}
	return out
}

func TestSplit(t *testing.T) {
	tests := []struct {
		name string
		code []Instruction
		want []Partition
	}{
		{
			name: "no suspension",
			code: code(OpLoadVal, OpReturnValue),
			want: []Partition{{0, 0, 2, PartitionReturn}},
		},
		{
			name: "async call at start",
			code: code(OpAsyncCall, OpPoll, OpReturnValue),
			want: []Partition{
				{0, 0, 2, PartitionPoll},
				{1, 2, 3, PartitionReturn},
			},
		},
		{
			name: "work before async call",
			code: code(OpLoadVal, OpAsyncCall, OpPoll, OpPop, OpReturn),
			want: []Partition{
				{0, 0, 1, PartitionFallthrough},
				{1, 1, 3, PartitionPoll},
				{2, 3, 5, PartitionReturn},
			},
		},
		{
			name: "two awaits",
			code: code(OpAsyncCall, OpPoll, OpAsyncCall, OpPoll, OpAdd, OpReturnValue),
			want: []Partition{
				{0, 0, 2, PartitionPoll},
				{1, 2, 4, PartitionPoll},
				{2, 4, 6, PartitionReturn},
			},
		},
		{
			name: "poll of a handle argument",
			code: code(OpLoadLocal, OpPoll, OpReturnValue),
			want: []Partition{
				{0, 0, 2, PartitionPoll},
				{1, 2, 3, PartitionReturn},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Split(tt.code)
			if err != nil {
				t.Fatalf("Split() error = %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("Split() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("partition %d = %+v, want %+v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestSplitCoversCode(t *testing.T) {
	c := code(OpLoadVal, OpAsyncCall, OpPoll, OpAsyncCall, OpAsyncCall, OpPoll, OpPoll, OpReturn)
	parts, err := Split(c)
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	if parts[0].Start != 0 {
		t.Errorf("first partition starts at %d, want 0", parts[0].Start)
	}
	for i := 1; i < len(parts); i++ {
		if parts[i].Start != parts[i-1].End {
			t.Errorf("gap between partition %d and %d", i-1, i)
		}
		if parts[i].Index != i {
			t.Errorf("partition %d has index %d", i, parts[i].Index)
		}
	}
	if last := parts[len(parts)-1]; last.End != len(c) || last.Kind != PartitionReturn {
		t.Errorf("last partition = %+v, want end %d kind return", last, len(c))
	}
	for _, p := range parts {
		if p.Kind == PartitionPoll && c[p.End-1].Op != OpPoll {
			t.Errorf("poll partition %d ends in %s", p.Index, c[p.End-1].Op)
		}
	}
}

func TestSplitMalformed(t *testing.T) {
	tests := []struct {
		name string
		code []Instruction
	}{
		{"empty", nil},
		{"no return", code(OpAsyncCall, OpPoll)},
		{"ends in halt", code(OpLoadVal, OpHalt)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Split(tt.code); !errors.Is(err, ErrMalformedAsync) {
				t.Errorf("Split() error = %v, want ErrMalformedAsync", err)
			}
		})
	}
}

func TestPartitionAt(t *testing.T) {
	parts, err := Split(code(OpLoadVal, OpAsyncCall, OpPoll, OpPop, OpReturn))
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		pc   int
		want int
	}{
		{0, 0},
		{1, 1},
		{2, 1},
		{3, 2},
		{4, 2},
		{5, -1},
		{-1, -1},
	}
	for _, tt := range tests {
		if got := PartitionAt(parts, tt.pc); got != tt.want {
			t.Errorf("PartitionAt(%d) = %d, want %d", tt.pc, got, tt.want)
		}
	}
}

func TestPartitionerCaches(t *testing.T) {
	fn := &Function{Name: "f", Async: true, Code: code(OpAsyncCall, OpPoll, OpReturn)}
	p := NewPartitioner()

	var wg sync.WaitGroup
	results := make([][]Partition, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			parts, err := p.Partitions(fn)
			if err != nil {
				t.Errorf("Partitions() error = %v", err)
			}
			results[i] = parts
		}(i)
	}
	wg.Wait()

	if p.Len() != 1 {
		t.Errorf("Len() = %d, want 1", p.Len())
	}
	first, _ := p.Partitions(fn)
	for i, parts := range results {
		if len(parts) != 2 {
			t.Fatalf("reader %d got %d partitions, want 2", i, len(parts))
		}
		if &parts[0] != &first[0] {
			t.Errorf("reader %d got a different partition slice", i)
		}
	}
}

func TestPartitionerWrapsName(t *testing.T) {
	fn := &Function{Name: "broken", Async: true, Code: code(OpNop)}
	_, err := NewPartitioner().Partitions(fn)
	if !errors.Is(err, ErrMalformedAsync) {
		t.Fatalf("error = %v, want ErrMalformedAsync", err)
	}
	if got := err.Error(); got[:6] != "broken" {
		t.Errorf("error %q should name the function", got)
	}
}
