package vm

import (
	"encoding/binary"
	"fmt"
)

// CellSize is the width of a cell in bytes.
const CellSize = 4

// Cell is the only unit of storage: an untyped 4-byte word. Instructions
// decide whether it holds an integer, an address, a handle or packed bytes.
type Cell int32

// Int returns the cell as a signed integer.
func (c Cell) Int() int32 {
	return int32(c)
}

// Uint returns the cell as an unsigned integer.
func (c Cell) Uint() uint32 {
	return uint32(c)
}

// Bytes returns the four bytes packed in the cell. Byte 0 is the least
// significant byte.
func (c Cell) Bytes() [CellSize]byte {
	var b [CellSize]byte
	binary.LittleEndian.PutUint32(b[:], uint32(c))
	return b
}

// CellFromBytes packs up to four bytes into a cell, zero padding on the
// right.
func CellFromBytes(b []byte) Cell {
	var buf [CellSize]byte
	copy(buf[:], b)
	return Cell(binary.LittleEndian.Uint32(buf[:]))
}

func (c Cell) String() string {
	return fmt.Sprintf("%d", int32(c))
}
