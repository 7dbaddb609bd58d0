// Copyright (c) 2024 The Falcon Contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

// Tests the six end-to-end scenarios against the emitted assembly's
// structure. Without an RV32IM simulator on hand, these check shape -- the
// right symbols, calls, and directives show up -- not the numeric result a
// real run would print.
package compile

import (
	"strings"
	"testing"

	"mxc/ast"
)

func compileOK(t *testing.T, source string) string {
	t.Helper()
	asm := Compile(strings.NewReader(source), Options{})
	if asm == "" {
		t.Fatalf("Compile returned empty assembly for:\n%s", source)
	}
	return asm
}

func TestCompileHelloWorld(t *testing.T) {
	asm := compileOK(t, `
		func main() int {
			print("hello");
			return 0;
		}
	`)
	if !strings.Contains(asm, ".globl main") {
		t.Fatalf("expected a .globl main directive, got:\n%s", asm)
	}
	if !strings.Contains(asm, "call print") {
		t.Fatalf("expected a call to print, got:\n%s", asm)
	}
	if !strings.Contains(asm, `.string "hello"`) {
		t.Fatalf("expected the string literal pool to carry \"hello\", got:\n%s", asm)
	}
}

func TestCompileFibonacciIterative(t *testing.T) {
	asm := compileOK(t, `
		func fib(int n) int {
			let a = 0;
			let b = 1;
			for (let i = 0; i < n; i += 1) {
				let t = a + b;
				a = b;
				b = t;
			}
			return a;
		}
		func main() int {
			printlnInt(fib(10));
			return 0;
		}
	`)
	if !strings.Contains(asm, ".globl fib") {
		t.Fatalf("expected a .globl fib directive, got:\n%s", asm)
	}
	if !strings.Contains(asm, "call printlnInt") {
		t.Fatalf("expected a call to printlnInt, got:\n%s", asm)
	}
}

func TestCompileSumOfArray(t *testing.T) {
	asm := compileOK(t, `
		func main() int {
			let int[] xs = new int[5];
			let i = 0;
			for (i = 0; i < 5; i += 1) {
				xs[i] = i;
			}
			let sum = 0;
			for (i = 0; i < 5; i += 1) {
				sum += xs[i];
			}
			printlnInt(sum);
			return 0;
		}
	`)
	if !strings.Contains(asm, "call printlnInt") {
		t.Fatalf("expected a call to printlnInt, got:\n%s", asm)
	}
}

func TestCompileClassWithConstructor(t *testing.T) {
	asm := compileOK(t, `
		class P {
			int x;
			P(int v) { x = v; }
		}
		func main() int {
			let P p = new P(7);
			printlnInt(p.x);
			return 0;
		}
	`)
	if !strings.Contains(asm, "P.P") && !strings.Contains(asm, "P:") {
		t.Fatalf("expected the constructor to be emitted under a P-qualified symbol, got:\n%s", asm)
	}
	if !strings.Contains(asm, "call printlnInt") {
		t.Fatalf("expected a call to printlnInt, got:\n%s", asm)
	}
}

func TestCompileStringConcatenation(t *testing.T) {
	asm := compileOK(t, `
		func main() int {
			print("a" + "b" + toString(3));
			return 0;
		}
	`)
	if !strings.Contains(asm, "call toString") {
		t.Fatalf("expected a call to toString, got:\n%s", asm)
	}
	if !strings.Contains(asm, "call print") {
		t.Fatalf("expected a call to print, got:\n%s", asm)
	}
}

// TestCompileCyclicParallelCopyStress exercises a tight loop that rotates
// several locals simultaneously (a,b,c := b,c,a), the classic case phi
// elimination's cycle-breaking must resolve correctly after coloring --
// otherwise the final sequentialized copies clobber a live value before it
// is read.
func TestCompileCyclicParallelCopyStress(t *testing.T) {
	asm := compileOK(t, `
		func main() int {
			let a = 1;
			let b = 2;
			let c = 3;
			let i = 0;
			for (i = 0; i < 10; i += 1) {
				let t = a;
				a = b;
				b = c;
				c = t;
			}
			printlnInt(a + b + c);
			return 0;
		}
	`)
	if !strings.Contains(asm, "call printlnInt") {
		t.Fatalf("expected a call to printlnInt, got:\n%s", asm)
	}
}

func TestCompileSyntaxErrorPanicsWithCompileError(t *testing.T) {
	defer func() {
		rec := recover()
		if rec == nil {
			t.Fatalf("expected a panic for malformed source")
		}
		if _, ok := rec.(*ast.CompileError); !ok {
			t.Fatalf("expected *ast.CompileError, got %T (%v)", rec, rec)
		}
	}()
	Compile(strings.NewReader(`func main( { return 0; }`), Options{})
}
