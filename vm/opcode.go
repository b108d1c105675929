package vm

// Opcode represents a single bytecode instruction.
type Opcode byte

const (
	OP_CONSTANT Opcode = iota // push constant from pool: [u16 index]
	OP_NIL                    // push nil
	OP_TRUE                  // push true
	OP_FALSE                 // push false

	OP_POP // pop and discard top value

	OP_GET_LOCAL    // [u8 slot]
	OP_SET_LOCAL    // [u8 slot]
	OP_GET_GLOBAL   // [u16 name index]
	OP_DEFINE_GLOBAL // [u16 name index]
	OP_SET_GLOBAL   // [u16 name index]

	OP_EQUAL
	OP_GREATER
	OP_LESS

	OP_ADD
	OP_SUBTRACT
	OP_MULTIPLY
	OP_DIVIDE
	OP_NOT
	OP_NEGATE

	OP_PRINT

	OP_JUMP          // [u16 offset]
	OP_JUMP_IF_FALSE // [u16 offset]
	OP_LOOP          // [u16 offset]

	OP_CALL // [u8 argCount]

	OP_RETURN
)

// OpcodeNames maps opcodes to their string names for disassembly.
var OpcodeNames = map[Opcode]string{
	OP_CONSTANT:       "OP_CONSTANT",
	OP_NIL:            "OP_NIL",
	OP_TRUE:           "OP_TRUE",
	OP_FALSE:          "OP_FALSE",
	OP_POP:            "OP_POP",
	OP_GET_LOCAL:      "OP_GET_LOCAL",
	OP_SET_LOCAL:      "OP_SET_LOCAL",
	OP_GET_GLOBAL:     "OP_GET_GLOBAL",
	OP_DEFINE_GLOBAL:  "OP_DEFINE_GLOBAL",
	OP_SET_GLOBAL:     "OP_SET_GLOBAL",
	OP_EQUAL:          "OP_EQUAL",
	OP_GREATER:        "OP_GREATER",
	OP_LESS:           "OP_LESS",
	OP_ADD:            "OP_ADD",
	OP_SUBTRACT:       "OP_SUBTRACT",
	OP_MULTIPLY:       "OP_MULTIPLY",
	OP_DIVIDE:         "OP_DIVIDE",
	OP_NOT:            "OP_NOT",
	OP_NEGATE:         "OP_NEGATE",
	OP_PRINT:          "OP_PRINT",
	OP_JUMP:           "OP_JUMP",
	OP_JUMP_IF_FALSE:  "OP_JUMP_IF_FALSE",
	OP_LOOP:           "OP_LOOP",
	OP_CALL:           "OP_CALL",
	OP_RETURN:         "OP_RETURN",
}

// String returns the disassembly name of the opcode.
func (op Opcode) String() string {
	if name, ok := OpcodeNames[op]; ok {
		return name
	}
	return "UNKNOWN"
}

// OpcodeOperandCount maps an opcode to the number of operand bytes that
// follow it in the code stream.
var OpcodeOperandCount = map[Opcode]int{
	OP_CONSTANT:      2,
	OP_NIL:           0,
	OP_TRUE:          0,
	OP_FALSE:         0,
	OP_POP:           0,
	OP_GET_LOCAL:     1,
	OP_SET_LOCAL:     1,
	OP_GET_GLOBAL:    2,
	OP_DEFINE_GLOBAL: 2,
	OP_SET_GLOBAL:    2,
	OP_EQUAL:         0,
	OP_GREATER:       0,
	OP_LESS:          0,
	OP_ADD:           0,
	OP_SUBTRACT:      0,
	OP_MULTIPLY:      0,
	OP_DIVIDE:        0,
	OP_NOT:           0,
	OP_NEGATE:        0,
	OP_PRINT:         0,
	OP_JUMP:          2,
	OP_JUMP_IF_FALSE: 2,
	OP_LOOP:          2,
	OP_CALL:          1,
	OP_RETURN:        0,
}

// GetOperandCount returns the number of operand bytes for an opcode.
func (op Opcode) GetOperandCount() int {
	if count, ok := OpcodeOperandCount[op]; ok {
		return count
	}
	return 0
}
