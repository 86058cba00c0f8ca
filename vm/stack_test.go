package vm

import (
	"bytes"
	"errors"
	"testing"
)

func TestStackPushPop(t *testing.T) {
	s := NewStack()
	s.Push(1)
	s.Push(2)
	s.Push(3)

	if s.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", s.Len())
	}
	top, err := s.Peek(0)
	if err != nil || top != 3 {
		t.Errorf("Peek(0) = %d, %v; want 3", top, err)
	}
	below, err := s.Peek(2)
	if err != nil || below != 1 {
		t.Errorf("Peek(2) = %d, %v; want 1", below, err)
	}
	if s.Len() != 3 {
		t.Errorf("Peek should not remove cells, Len() = %d", s.Len())
	}

	for _, want := range []Cell{3, 2, 1} {
		got, err := s.Pop()
		if err != nil || got != want {
			t.Errorf("Pop() = %d, %v; want %d", got, err, want)
		}
	}
}

func TestStackUnderflow(t *testing.T) {
	s := NewStack()
	if _, err := s.Pop(); !errors.Is(err, ErrStackUnderflow) {
		t.Errorf("Pop() on empty stack error = %v, want ErrStackUnderflow", err)
	}
	if _, err := s.Peek(0); !errors.Is(err, ErrStackUnderflow) {
		t.Errorf("Peek(0) on empty stack error = %v, want ErrStackUnderflow", err)
	}
	if _, err := s.PopN(1); !errors.Is(err, ErrStackUnderflow) {
		t.Errorf("PopN(1) on empty stack error = %v, want ErrStackUnderflow", err)
	}
}

func TestStackFloor(t *testing.T) {
	s := NewStack()
	s.Push(10)
	s.Push(20)
	s.setFloor(2)
	s.Push(30)

	if s.Available() != 1 {
		t.Errorf("Available() = %d, want 1", s.Available())
	}
	if _, err := s.Peek(1); !errors.Is(err, ErrStackUnderflow) {
		t.Errorf("Peek below floor error = %v, want ErrStackUnderflow", err)
	}
	if c, err := s.Pop(); err != nil || c != 30 {
		t.Errorf("Pop() = %d, %v; want 30", c, err)
	}
	if _, err := s.Pop(); !errors.Is(err, ErrStackUnderflow) {
		t.Errorf("Pop() at floor error = %v, want ErrStackUnderflow", err)
	}
	if s.Len() != 2 {
		t.Errorf("cells below the floor were touched, Len() = %d", s.Len())
	}
}

func TestStackPopNOrder(t *testing.T) {
	s := NewStack()
	for i := Cell(1); i <= 4; i++ {
		s.Push(i)
	}
	got, err := s.PopN(3)
	if err != nil {
		t.Fatal(err)
	}
	want := []Cell{2, 3, 4}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("PopN(3)[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestCellBytes(t *testing.T) {
	c := CellFromBytes([]byte("ab"))
	b := c.Bytes()
	if b != [4]byte{'a', 'b', 0, 0} {
		t.Errorf("Bytes() = %v, want [a b 0 0]", b)
	}
	if c.Uint() != uint32('a')|uint32('b')<<8 {
		t.Errorf("byte 0 should be least significant, got %#x", c.Uint())
	}
	if Cell(-1).Uint() != 0xFFFFFFFF {
		t.Errorf("Cell(-1).Uint() = %#x", Cell(-1).Uint())
	}
}

func TestPushStringLayout(t *testing.T) {
	s := NewStack()
	s.PushString([]byte("abcde"))

	if s.Len() != 2 {
		t.Fatalf("PUSH_STR(\"abcde\") pushed %d cells, want 2", s.Len())
	}
	cells := s.Cells()
	if got := cells[0].Bytes(); got != [4]byte{'a', 'b', 'c', 'd'} {
		t.Errorf("deepest cell = %q, want \"abcd\"", got[:])
	}
	if got := cells[1].Bytes(); got != [4]byte{'e', 0, 0, 0} {
		t.Errorf("top cell = %v, want e followed by 3 zero bytes", got)
	}
}

func TestStringRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		in    []byte
		cells int
	}{
		{"empty", []byte{}, 0},
		{"one byte", []byte("x"), 1},
		{"exact group", []byte("abcd"), 1},
		{"padded", []byte("abcde"), 2},
		{"hello world", []byte("hello world!"), 3},
		{"utf-8 not validated", []byte{0xff, 0xfe, 0x00, 0x41, 0x80}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStack()
			s.Push(99)
			s.PushString(tt.in)
			if got := s.Len() - 1; got != tt.cells {
				t.Errorf("pushed %d cells, want %d", got, tt.cells)
			}
			out, err := s.PopString(len(tt.in))
			if err != nil {
				t.Fatalf("PopString() error = %v", err)
			}
			if !bytes.Equal(out, tt.in) {
				t.Errorf("PopString() = %q, want %q", out, tt.in)
			}
			if s.Len() != 1 {
				t.Errorf("PopString consumed %d extra cells", 1-s.Len())
			}
		})
	}
}

func TestPopStringInvalidLength(t *testing.T) {
	s := NewStack()
	s.PushString([]byte("abcd"))

	if _, err := s.PopString(5); !errors.Is(err, ErrInvalidStringLength) {
		t.Errorf("PopString(5) error = %v, want ErrInvalidStringLength", err)
	}
	if _, err := s.PopString(-1); !errors.Is(err, ErrInvalidStringLength) {
		t.Errorf("PopString(-1) error = %v, want ErrInvalidStringLength", err)
	}
	if s.Len() != 1 {
		t.Errorf("failed PopString should not consume cells, Len() = %d", s.Len())
	}
	if _, err := UnpackString([]Cell{1, 2}, 3); !errors.Is(err, ErrInvalidStringLength) {
		t.Errorf("UnpackString() error = %v, want ErrInvalidStringLength", err)
	}
}

func TestPopSizedString(t *testing.T) {
	s := NewStack()
	s.PushString([]byte("hey"))
	s.Push(3)

	out, err := s.PopSizedString()
	if err != nil || string(out) != "hey" {
		t.Errorf("PopSizedString() = %q, %v; want \"hey\"", out, err)
	}
}

func TestCallStackLimit(t *testing.T) {
	cs := NewCallStack(2)
	if err := cs.Push(&Frame{}); err != nil {
		t.Fatal(err)
	}
	if err := cs.Push(&Frame{}); err != nil {
		t.Fatal(err)
	}
	if err := cs.Push(&Frame{}); !errors.Is(err, ErrCallDepthExceeded) {
		t.Errorf("Push() past limit error = %v, want ErrCallDepthExceeded", err)
	}
	if cs.Depth() != 2 {
		t.Errorf("Depth() = %d, want 2", cs.Depth())
	}
	cs.Pop()
	cs.Pop()
	if cs.Pop() != nil || cs.Top() != nil {
		t.Error("empty call stack should return nil")
	}
}
