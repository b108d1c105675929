package vm

import (
	"fmt"
	"io"
	"os"
)

const (
	STACK_MAX  = 256  // maximum value stack depth
	FRAMES_MAX = 64   // maximum call depth
)

// VM is the stack-based bytecode interpreter. One VM instance can run
// several top-level scripts in sequence (the REPL reuses one VM so that
// globals persist across entries).
type VM struct {
	stack    [STACK_MAX]Value
	stackTop int

	frames     [FRAMES_MAX]CallFrame
	frameCount int

	globals   map[string]Value
	functions *FunctionTable

	out io.Writer
}

// CallFrame is one activation of a Function on the call stack.
type CallFrame struct {
	function  *Function
	ip        int
	stackBase int // index into vm.stack where this frame's slot 0 lives
}

// NewVM creates a virtual machine that writes print output to stdout.
func NewVM() *VM {
	return &VM{
		globals: make(map[string]Value),
		out:     os.Stdout,
	}
}

// SetOutput redirects print output, primarily for tests.
func (vm *VM) SetOutput(w io.Writer) {
	vm.out = w
}

func (vm *VM) push(value Value) error {
	if vm.stackTop >= STACK_MAX {
		return vm.runtimeError("Stack overflow")
	}
	vm.stack[vm.stackTop] = value
	vm.stackTop++
	return nil
}

func (vm *VM) pop() Value {
	vm.stackTop--
	return vm.stack[vm.stackTop]
}

func (vm *VM) peek(distance int) Value {
	return vm.stack[vm.stackTop-1-distance]
}

// Run executes the function table's script (function id 0) to
// completion. functions must outlive the call since Values reference it
// by id. A VM is reused across calls (the REPL keeps one alive so that
// globals persist), so on error Run leaves the stack and frames reset
// to empty rather than in whatever half-unwound state execute() hit.
func (vm *VM) Run(functions *FunctionTable) (Value, error) {
	vm.functions = functions
	script := functions.Get(0)

	vm.frames[0] = CallFrame{function: script, ip: 0, stackBase: 0}
	vm.frameCount = 1
	if err := vm.push(NewFunction(0)); err != nil {
		vm.stackTop, vm.frameCount = 0, 0
		return Nil, err
	}

	result, err := vm.execute()
	if err != nil {
		vm.stackTop, vm.frameCount = 0, 0
	}
	return result, err
}

func (vm *VM) currentFrame() *CallFrame {
	return &vm.frames[vm.frameCount-1]
}

func (vm *VM) execute() (Value, error) {
	frame := vm.currentFrame()
	code := frame.function.Chunk.Code

	readByte := func() byte {
		b := code[frame.ip]
		frame.ip++
		return b
	}
	readShort := func() uint16 {
		b1 := uint16(code[frame.ip])
		b2 := uint16(code[frame.ip+1])
		frame.ip += 2
		return (b1 << 8) | b2
	}
	readConstant := func() Value {
		return frame.function.Chunk.Constants[readShort()]
	}

	for {
		instruction := Opcode(readByte())

		switch instruction {
		case OP_CONSTANT:
			if err := vm.push(readConstant()); err != nil {
				return Nil, err
			}

		case OP_NIL:
			if err := vm.push(Nil); err != nil {
				return Nil, err
			}

		case OP_TRUE:
			if err := vm.push(NewBool(true)); err != nil {
				return Nil, err
			}

		case OP_FALSE:
			if err := vm.push(NewBool(false)); err != nil {
				return Nil, err
			}

		case OP_POP:
			vm.pop()

		case OP_GET_LOCAL:
			slot := readByte()
			if err := vm.push(vm.stack[frame.stackBase+int(slot)]); err != nil {
				return Nil, err
			}

		case OP_SET_LOCAL:
			slot := readByte()
			vm.stack[frame.stackBase+int(slot)] = vm.peek(0)

		case OP_GET_GLOBAL:
			name := readConstant().AsString()
			val, ok := vm.globals[name]
			if !ok {
				return Nil, vm.runtimeError("Undefined global variable '%s'", name)
			}
			if err := vm.push(val); err != nil {
				return Nil, err
			}

		case OP_DEFINE_GLOBAL:
			name := readConstant().AsString()
			vm.globals[name] = vm.pop()

		case OP_SET_GLOBAL:
			name := readConstant().AsString()
			if _, ok := vm.globals[name]; !ok {
				return Nil, vm.runtimeError("Undefined global variable '%s'", name)
			}
			vm.globals[name] = vm.peek(0)

		case OP_EQUAL:
			b := vm.pop()
			a := vm.pop()
			if err := vm.push(NewBool(a.Equals(b))); err != nil {
				return Nil, err
			}

		case OP_GREATER, OP_LESS:
			b := vm.peek(0)
			a := vm.peek(1)
			if !a.IsNumber() || !b.IsNumber() {
				return Nil, vm.runtimeError("Operands must be numbers")
			}
			vm.stackTop -= 2
			result := a.AsNumber() > b.AsNumber()
			if instruction == OP_LESS {
				result = a.AsNumber() < b.AsNumber()
			}
			if err := vm.push(NewBool(result)); err != nil {
				return Nil, err
			}

		case OP_ADD:
			b := vm.peek(0)
			a := vm.peek(1)
			switch {
			case a.IsNumber() && b.IsNumber():
				vm.stackTop -= 2
				if err := vm.push(NewNumber(a.AsNumber() + b.AsNumber())); err != nil {
					return Nil, err
				}
			case a.IsString() && b.IsString():
				vm.stackTop -= 2
				if err := vm.push(NewString(a.AsString() + b.AsString())); err != nil {
					return Nil, err
				}
			default:
				return Nil, vm.runtimeError("Cannot add %s and %s", a.TypeName(), b.TypeName())
			}

		case OP_SUBTRACT:
			if err := vm.binaryNumeric(func(a, b float64) float64 { return a - b }); err != nil {
				return Nil, err
			}

		case OP_MULTIPLY:
			if err := vm.binaryNumeric(func(a, b float64) float64 { return a * b }); err != nil {
				return Nil, err
			}

		case OP_DIVIDE:
			b := vm.peek(0)
			a := vm.peek(1)
			if !a.IsNumber() || !b.IsNumber() {
				return Nil, vm.runtimeError("Operands must be numbers")
			}
			vm.stackTop -= 2
			if err := vm.push(NewNumber(a.AsNumber() / b.AsNumber())); err != nil {
				return Nil, err
			}

		case OP_NOT:
			a := vm.peek(0)
			if !a.IsBool() && !a.IsNil() {
				return Nil, vm.runtimeError("Cannot perform '!' operation on %s", a.DebugString())
			}
			vm.stack[vm.stackTop-1] = NewBool(a.IsFalsey())

		case OP_NEGATE:
			a := vm.peek(0)
			if !a.IsNumber() {
				return Nil, vm.runtimeError("Cannot negate %s", a.DebugString())
			}
			vm.stack[vm.stackTop-1] = NewNumber(-a.AsNumber())

		case OP_PRINT:
			fmt.Fprintln(vm.out, vm.pop().String())

		case OP_JUMP:
			offset := readShort()
			frame.ip += int(offset)

		case OP_JUMP_IF_FALSE:
			offset := readShort()
			if vm.peek(0).IsFalsey() {
				frame.ip += int(offset)
			}

		case OP_LOOP:
			offset := readShort()
			frame.ip -= int(offset)

		case OP_CALL:
			argCount := int(readByte())
			callee := vm.peek(argCount)
			if !callee.IsFunction() {
				return Nil, vm.runtimeError("Can only call functions")
			}
			fn := vm.functions.Get(callee.AsFunction())
			if argCount != fn.Arity {
				return Nil, vm.runtimeError("Expected %d arguments but got %d", fn.Arity, argCount)
			}
			if vm.frameCount >= FRAMES_MAX {
				return Nil, vm.runtimeError("Stack overflow")
			}
			vm.frames[vm.frameCount] = CallFrame{
				function:  fn,
				ip:        0,
				stackBase: vm.stackTop - argCount - 1,
			}
			vm.frameCount++
			frame = vm.currentFrame()
			code = frame.function.Chunk.Code

		case OP_RETURN:
			result := vm.pop()
			returningBase := frame.stackBase
			vm.frameCount--
			if vm.frameCount == 0 {
				vm.pop() // the implicit <script> function value
				if vm.stackTop != 0 {
					panic("stack not empty after top-level return")
				}
				return result, nil
			}
			vm.stackTop = returningBase
			if err := vm.push(result); err != nil {
				return Nil, err
			}
			frame = vm.currentFrame()
			code = frame.function.Chunk.Code

		default:
			return Nil, vm.runtimeError("Unknown opcode: %d", instruction)
		}
	}
}

func (vm *VM) binaryNumeric(op func(a, b float64) float64) error {
	b := vm.peek(0)
	a := vm.peek(1)
	if !a.IsNumber() || !b.IsNumber() {
		return vm.runtimeError("Operands must be numbers")
	}
	vm.stackTop -= 2
	return vm.push(NewNumber(op(a.AsNumber(), b.AsNumber())))
}

// runtimeError builds a RuntimeError carrying the current line and a
// frame trace, innermost frame first, matching spec's "[line L] in NAME()"
// format.
func (vm *VM) runtimeError(format string, args ...interface{}) error {
	message := fmt.Sprintf(format, args...)

	trace := make([]string, 0, vm.frameCount)
	line := 0
	for i := vm.frameCount - 1; i >= 0; i-- {
		f := &vm.frames[i]
		frameLine := f.function.Chunk.GetLine(f.ip - 1)
		if i == vm.frameCount-1 {
			line = frameLine
		}
		name := f.function.Name
		if name == "" {
			name = "<script>"
		}
		trace = append(trace, fmt.Sprintf("[line %d] in %s()", frameLine, name))
	}

	return &RuntimeError{Message: message, Line: line, Trace: trace}
}
