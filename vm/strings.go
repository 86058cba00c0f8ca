package vm

import "fmt"

// CellsFor returns how many cells a string of n bytes occupies.
func CellsFor(n int) int {
	return (n + CellSize - 1) / CellSize
}

// PackString splits b into 4-byte groups, one cell per group, in order.
// The last group is zero padded. Bytes are not validated as UTF-8.
//
// Pushed in order, the first group ends up deepest:
//
//	PUSH_STR "hello world!"  ->  | h e l l | o _ w o | r l d ! |  <- top
func PackString(b []byte) []Cell {
	cells := make([]Cell, CellsFor(len(b)))
	for i := range cells {
		end := (i + 1) * CellSize
		if end > len(b) {
			end = len(b)
		}
		cells[i] = CellFromBytes(b[i*CellSize : end])
	}
	return cells
}

// UnpackString reassembles n bytes from cells produced by PackString,
// dropping the padding of the last group.
func UnpackString(cells []Cell, n int) ([]byte, error) {
	if n < 0 || CellsFor(n) != len(cells) {
		return nil, fmt.Errorf("%w: %d bytes in %d cells", ErrInvalidStringLength, n, len(cells))
	}
	out := make([]byte, 0, len(cells)*CellSize)
	for _, c := range cells {
		b := c.Bytes()
		out = append(out, b[:]...)
	}
	return out[:n], nil
}

// PushString pushes the packed cells of b.
func (s *Stack) PushString(b []byte) {
	for _, c := range PackString(b) {
		s.Push(c)
	}
}

// PopString pops a string of n bytes pushed by PushString.
func (s *Stack) PopString(n int) ([]byte, error) {
	if n < 0 || CellsFor(n) > s.Available() {
		return nil, fmt.Errorf("%w: %d bytes, %d cells available", ErrInvalidStringLength, n, s.Available())
	}
	cells, err := s.PopN(CellsFor(n))
	if err != nil {
		return nil, err
	}
	return UnpackString(cells, n)
}

// PopSizedString pops a length cell, then the string it describes.
func (s *Stack) PopSizedString() ([]byte, error) {
	n, err := s.Pop()
	if err != nil {
		return nil, err
	}
	return s.PopString(int(n.Int()))
}
