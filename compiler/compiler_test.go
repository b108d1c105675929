package compiler

import (
	"bytes"
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loxgo/vm"
)

// runSource compiles source and executes it, capturing whatever `print`
// wrote to stdout and returning the chunk's final value.
func runSource(t *testing.T, source string) (string, vm.Value, error) {
	t.Helper()
	functions, err := Compile(source)
	if err != nil {
		return "", vm.Nil, err
	}
	machine := vm.NewVM()
	var out bytes.Buffer
	machine.SetOutput(&out)
	result, err := machine.Run(functions)
	return out.String(), result, err
}

func TestCompile_ArithmeticPrecedence(t *testing.T) {
	out, _, err := runSource(t, `print 2 + 3 * 4;`)
	require.NoError(t, err)
	assert.Equal(t, "14\n", out)
}

func TestCompile_GroupingOverridesPrecedence(t *testing.T) {
	out, _, err := runSource(t, `print (2 + 3) * 4;`)
	require.NoError(t, err)
	assert.Equal(t, "20\n", out)
}

func TestCompile_Comparisons(t *testing.T) {
	tests := []struct {
		expr string
		want string
	}{
		{"1 < 2", "true\n"},
		{"1 <= 1", "true\n"},
		{"2 > 1", "true\n"},
		{"2 >= 3", "false\n"},
		{"1 == 1", "true\n"},
		{"1 != 1", "false\n"},
	}
	for _, tt := range tests {
		out, _, err := runSource(t, "print "+tt.expr+";")
		require.NoError(t, err)
		assert.Equal(t, tt.want, out, tt.expr)
	}
}

func TestCompile_StringConcatenation(t *testing.T) {
	out, _, err := runSource(t, `print "foo" + "bar";`)
	require.NoError(t, err)
	assert.Equal(t, "foobar\n", out)
}

func TestCompile_GlobalVariables(t *testing.T) {
	out, _, err := runSource(t, `
		var x = 1;
		x = x + 1;
		print x;
	`)
	require.NoError(t, err)
	assert.Equal(t, "2\n", out)
}

func TestCompile_BlockScopedLocals(t *testing.T) {
	out, _, err := runSource(t, `
		var x = "outer";
		{
			var x = "inner";
			print x;
		}
		print x;
	`)
	require.NoError(t, err)
	assert.Equal(t, "inner\nouter\n", out)
}

func TestCompile_IfElse(t *testing.T) {
	out, _, err := runSource(t, `
		if (1 < 2) { print "yes"; } else { print "no"; }
	`)
	require.NoError(t, err)
	assert.Equal(t, "yes\n", out)
}

func TestCompile_WhileLoop(t *testing.T) {
	out, _, err := runSource(t, `
		var i = 0;
		while (i < 3) {
			print i;
			i = i + 1;
		}
	`)
	require.NoError(t, err)
	assert.Equal(t, "0\n1\n2\n", out)
}

func TestCompile_ForLoop(t *testing.T) {
	out, _, err := runSource(t, `
		for (var i = 0; i < 3; i = i + 1) {
			print i;
		}
	`)
	require.NoError(t, err)
	assert.Equal(t, "0\n1\n2\n", out)
}

func TestCompile_AndOrShortCircuit(t *testing.T) {
	// -"x" would raise a runtime error if evaluated; short-circuiting
	// must skip it entirely on both sides.
	out, _, err := runSource(t, `
		print false and (-"x" == 0);
		print true or (-"x" == 0);
	`)
	require.NoError(t, err)
	assert.Equal(t, "false\ntrue\n", out)
}

func TestCompile_FunctionCallAndReturn(t *testing.T) {
	out, _, err := runSource(t, `
		fun add(a, b) {
			return a + b;
		}
		print add(3, 4);
	`)
	require.NoError(t, err)
	assert.Equal(t, "7\n", out)
}

func TestCompile_RecursiveFunction(t *testing.T) {
	out, _, err := runSource(t, `
		fun fib(n) {
			if (n < 2) { return n; }
			return fib(n - 1) + fib(n - 2);
		}
		print fib(10);
	`)
	require.NoError(t, err)
	assert.Equal(t, "55\n", out)
}

func TestCompile_UndefinedVariableIsRuntimeError(t *testing.T) {
	_, _, err := runSource(t, `print undefined_name;`)
	require.Error(t, err)
	rtErr, ok := err.(*vm.RuntimeError)
	require.True(t, ok, "expected a runtime error, got %T", err)
	assert.Contains(t, rtErr.Message, "Undefined global variable 'undefined_name'")
}

func TestCompile_TypeErrorOnAdd(t *testing.T) {
	_, _, err := runSource(t, `print 1 + "a";`)
	require.Error(t, err)
	rtErr, ok := err.(*vm.RuntimeError)
	require.True(t, ok)
	assert.Contains(t, rtErr.Message, "Cannot add")
}

func TestCompile_SyntaxErrorAggregation(t *testing.T) {
	_, err := Compile(`1 + ; 1 + ;`)
	require.Error(t, err)
	merr, ok := err.(*multierror.Error)
	require.True(t, ok, "expected an aggregated error, got %T", err)
	assert.GreaterOrEqual(t, len(merr.Errors), 2, "expected at least two aggregated errors")
	assert.Contains(t, err.Error(), "Expect expression.")
}

func TestCompile_SelfReferenceInInitializerIsError(t *testing.T) {
	_, err := Compile(`{ var a = a; }`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "its own initializer")
}

func TestCompile_ReturnAtTopLevelIsError(t *testing.T) {
	_, err := Compile(`return 1;`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Can't return from top-level code.")
}
