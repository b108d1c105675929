package vm

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// MaxConstants and MaxJump are the ceilings the 16-bit operand widths
// impose: constant pool indices and jump offsets are each a u16.
const (
	MaxConstants = 65535
	MaxJump      = 65535
)

// ErrTooManyConstants is returned by AddConstant once the pool is full.
type ErrTooManyConstants struct{}

func (ErrTooManyConstants) Error() string { return "too many constants in one chunk" }

// ErrJumpTooFar is returned by PatchJump when the jump distance overflows
// the 16-bit operand.
type ErrJumpTooFar struct{}

func (ErrJumpTooFar) Error() string { return "jump distance too large" }

// Tracer receives instruction-level disassembly when the CLI's --trace
// flag is set; it is silent (Info level, no Debug output) by default.
var Tracer = logrus.New()

func init() {
	Tracer.SetLevel(logrus.InfoLevel)
}

// Chunk is an append-only sequence of bytecode instructions plus the
// constant pool and line table that go with it.
type Chunk struct {
	Code      []byte
	Constants []Value
	Lines     []int
}

// NewChunk creates a new empty chunk.
func NewChunk() *Chunk {
	return &Chunk{
		Code:      make([]byte, 0, 256),
		Constants: make([]Value, 0, 32),
		Lines:     make([]int, 0, 256),
	}
}

// WriteByte appends a byte to the chunk's code array.
func (c *Chunk) WriteByte(b byte, line int) {
	c.Code = append(c.Code, b)
	c.Lines = append(c.Lines, line)
}

// WriteOpcode appends an opcode to the chunk.
func (c *Chunk) WriteOpcode(op Opcode, line int) {
	c.WriteByte(byte(op), line)
}

// WriteBytes appends multiple bytes to the chunk, all tagged with line.
func (c *Chunk) WriteBytes(bytes []byte, line int) {
	for _, b := range bytes {
		c.WriteByte(b, line)
	}
}

// WriteShort appends a big-endian 16-bit operand.
func (c *Chunk) WriteShort(v uint16, line int) {
	c.WriteByte(byte(v>>8), line)
	c.WriteByte(byte(v), line)
}

// Count returns the number of bytes currently in the chunk.
func (c *Chunk) Count() int {
	return len(c.Code)
}

// AddConstant adds a value to the constant pool, deduplicating identical
// values, and returns its index. Returns ErrTooManyConstants once the
// pool would exceed the 16-bit index space.
func (c *Chunk) AddConstant(value Value) (int, error) {
	for i, existing := range c.Constants {
		if existing.Equals(value) {
			return i, nil
		}
	}
	if len(c.Constants) > MaxConstants {
		return 0, ErrTooManyConstants{}
	}
	c.Constants = append(c.Constants, value)
	return len(c.Constants) - 1, nil
}

// GetConstant retrieves a constant by index.
func (c *Chunk) GetConstant(index int) Value {
	if index < 0 || index >= len(c.Constants) {
		return Nil
	}
	return c.Constants[index]
}

// GetLine returns the source line number for a bytecode offset.
func (c *Chunk) GetLine(offset int) int {
	if offset < 0 || offset >= len(c.Lines) {
		return 0
	}
	return c.Lines[offset]
}

// PatchJump backpatches the 2-byte operand at (offset, offset+1) with the
// distance from just past that operand to the chunk's current end.
// Returns ErrJumpTooFar if the distance overflows a u16.
func (c *Chunk) PatchJump(offset int) error {
	jump := c.Count() - offset - 2
	if jump > MaxJump {
		return ErrJumpTooFar{}
	}
	c.Code[offset] = byte(uint16(jump) >> 8)
	c.Code[offset+1] = byte(uint16(jump))
	return nil
}

// Disassemble renders the entire chunk as human-readable instructions,
// via Tracer so output only appears when tracing is enabled.
func (c *Chunk) Disassemble(name string) {
	Tracer.Debugf("== %s ==", name)
	for offset := 0; offset < len(c.Code); {
		offset = c.DisassembleInstruction(offset)
	}
}

// DisassembleInstruction renders a single instruction at offset and
// returns the offset of the next instruction.
func (c *Chunk) DisassembleInstruction(offset int) int {
	line := fmt.Sprintf("%4d", c.Lines[offset])
	if offset > 0 && c.Lines[offset] == c.Lines[offset-1] {
		line = "   |"
	}

	instruction := Opcode(c.Code[offset])

	switch instruction {
	case OP_CONSTANT:
		return c.constantInstruction(instruction, offset, line)
	case OP_GET_LOCAL, OP_SET_LOCAL, OP_CALL:
		return c.byteInstruction(instruction, offset, line)
	case OP_GET_GLOBAL, OP_DEFINE_GLOBAL, OP_SET_GLOBAL:
		return c.shortInstruction(instruction, offset, line)
	case OP_JUMP, OP_JUMP_IF_FALSE:
		return c.jumpInstruction(instruction, 1, offset, line)
	case OP_LOOP:
		return c.jumpInstruction(instruction, -1, offset, line)
	default:
		return c.simpleInstruction(instruction, offset, line)
	}
}

func (c *Chunk) simpleInstruction(op Opcode, offset int, line string) int {
	Tracer.Debugf("%04d %s %s", offset, line, op)
	return offset + 1
}

func (c *Chunk) byteInstruction(op Opcode, offset int, line string) int {
	slot := c.Code[offset+1]
	Tracer.Debugf("%04d %s %-16s %4d", offset, line, op, slot)
	return offset + 2
}

func (c *Chunk) shortInstruction(op Opcode, offset int, line string) int {
	value := uint16(c.Code[offset+1])<<8 | uint16(c.Code[offset+2])
	Tracer.Debugf("%04d %s %-16s %4d", offset, line, op, value)
	return offset + 3
}

func (c *Chunk) constantInstruction(op Opcode, offset int, line string) int {
	idx := uint16(c.Code[offset+1])<<8 | uint16(c.Code[offset+2])
	var repr string
	if int(idx) < len(c.Constants) {
		repr = c.Constants[idx].String()
	}
	Tracer.Debugf("%04d %s %-16s %4d '%s'", offset, line, op, idx, repr)
	return offset + 3
}

func (c *Chunk) jumpInstruction(op Opcode, sign int, offset int, line string) int {
	jump := int(uint16(c.Code[offset+1])<<8 | uint16(c.Code[offset+2]))
	target := offset + 3 + sign*jump
	Tracer.Debugf("%04d %s %-16s %4d -> %d", offset, line, op, offset, target)
	return offset + 3
}
