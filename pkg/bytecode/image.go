package bytecode

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// ImageVersion is the current program image format version.
// Increment when making incompatible changes to the format.
const ImageVersion uint16 = 1

// ImageMagic tags CBOR program images: "CBCI" (Cell ByteCode Image).
const ImageMagic = "CBCI"

var (
	ErrInvalidMagic    = errors.New("invalid magic: expected " + ImageMagic)
	ErrVersionMismatch = errors.New("image version mismatch")
)

// ProgramImage is the wire form of a Program. Link targets are not
// stored; they are recomputed when the image is loaded.
type ProgramImage struct {
	Magic     string          `cbor:"1,keyasint"`
	Version   uint16          `cbor:"2,keyasint"`
	Functions []FunctionImage `cbor:"3,keyasint"`
}

// FunctionImage is the wire form of a Function.
type FunctionImage struct {
	Name       string             `cbor:"1,keyasint"`
	Arity      int                `cbor:"2,keyasint"`
	Locals     int                `cbor:"3,keyasint,omitempty"`
	LocalNames []string           `cbor:"4,keyasint,omitempty"`
	Async      bool               `cbor:"5,keyasint,omitempty"`
	Code       []InstructionImage `cbor:"6,keyasint"`
}

// InstructionImage is the wire form of an Instruction.
type InstructionImage struct {
	Op   uint8  `cbor:"1,keyasint"`
	Arg  int32  `cbor:"2,keyasint,omitempty"`
	Name string `cbor:"3,keyasint,omitempty"`
	Str  []byte `cbor:"4,keyasint,omitempty"`
}

// cborEncMode uses canonical options so equal programs encode to equal
// bytes.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("bytecode: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Image converts the program to its wire form.
func (p *Program) Image() *ProgramImage {
	img := &ProgramImage{
		Magic:     ImageMagic,
		Version:   ImageVersion,
		Functions: make([]FunctionImage, 0, len(p.funcs)),
	}
	for _, fn := range p.funcs {
		fi := FunctionImage{
			Name:       fn.Name,
			Arity:      fn.Arity,
			Locals:     fn.Locals,
			LocalNames: fn.LocalNames,
			Async:      fn.Async,
			Code:       make([]InstructionImage, len(fn.Code)),
		}
		for i, ins := range fn.Code {
			fi.Code[i] = InstructionImage{Op: uint8(ins.Op), Arg: ins.Arg, Name: ins.Name, Str: ins.Str}
		}
		img.Functions = append(img.Functions, fi)
	}
	return img
}

// Program validates the image and builds a linked program from it.
func (img *ProgramImage) Program() (*Program, error) {
	if img.Magic != ImageMagic {
		return nil, ErrInvalidMagic
	}
	if img.Version != ImageVersion {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrVersionMismatch, img.Version, ImageVersion)
	}
	funcs := make([]*Function, 0, len(img.Functions))
	for _, fi := range img.Functions {
		fn := &Function{
			Name:       fi.Name,
			Arity:      fi.Arity,
			Locals:     fi.Locals,
			LocalNames: fi.LocalNames,
			Async:      fi.Async,
			Code:       make([]Instruction, len(fi.Code)),
		}
		for i, ii := range fi.Code {
			fn.Code[i] = Instruction{Op: Opcode(ii.Op), Arg: ii.Arg, Name: ii.Name, Str: ii.Str, Target: NoFunc}
		}
		funcs = append(funcs, fn)
	}
	return NewProgram(funcs)
}

// MarshalProgram serializes a Program to CBOR bytes.
func MarshalProgram(p *Program) ([]byte, error) {
	return cborEncMode.Marshal(p.Image())
}

// UnmarshalProgram deserializes and links a Program from CBOR bytes.
func UnmarshalProgram(data []byte) (*Program, error) {
	var img ProgramImage
	if err := cbor.Unmarshal(data, &img); err != nil {
		return nil, fmt.Errorf("bytecode: unmarshal program: %w", err)
	}
	return img.Program()
}
