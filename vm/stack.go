package vm

// Stack is a growable operand stack of cells. Pops never go below the
// floor, which is the base of the frame currently executing.
type Stack struct {
	cells []Cell
	floor int
}

// NewStack creates an empty stack.
func NewStack() *Stack {
	return &Stack{cells: make([]Cell, 0, 64)}
}

// Push appends c to the top.
func (s *Stack) Push(c Cell) {
	s.cells = append(s.cells, c)
}

// Pop removes and returns the top cell.
func (s *Stack) Pop() (Cell, error) {
	n := len(s.cells)
	if n <= s.floor {
		return 0, ErrStackUnderflow
	}
	c := s.cells[n-1]
	s.cells = s.cells[:n-1]
	return c, nil
}

// PopN removes the top n cells and returns them bottom first.
func (s *Stack) PopN(n int) ([]Cell, error) {
	if n < 0 || s.Available() < n {
		return nil, ErrStackUnderflow
	}
	top := len(s.cells)
	out := make([]Cell, n)
	copy(out, s.cells[top-n:])
	s.cells = s.cells[:top-n]
	return out, nil
}

// Peek reads the cell offset positions below the top without removing it.
// Peek(0) is the top.
func (s *Stack) Peek(offset int) (Cell, error) {
	i := len(s.cells) - 1 - offset
	if offset < 0 || i < s.floor {
		return 0, ErrStackUnderflow
	}
	return s.cells[i], nil
}

// Len returns the total number of cells, including those below the floor.
func (s *Stack) Len() int {
	return len(s.cells)
}

// Available returns the number of cells above the floor.
func (s *Stack) Available() int {
	return len(s.cells) - s.floor
}

// Floor returns the lowest index pops may reach.
func (s *Stack) Floor() int {
	return s.floor
}

// Cells returns a copy of the whole stack, bottom first.
func (s *Stack) Cells() []Cell {
	out := make([]Cell, len(s.cells))
	copy(out, s.cells)
	return out
}

func (s *Stack) setFloor(floor int) {
	s.floor = floor
}

func (s *Stack) truncate(n int) {
	if n < len(s.cells) {
		s.cells = s.cells[:n]
	}
}
