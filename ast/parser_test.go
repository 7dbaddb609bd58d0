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
package ast

import (
	"strings"
	"testing"
)

func mustParse(t *testing.T, source string) *PackageDecl {
	t.Helper()
	return ParseText("test", strings.NewReader(source))
}

func TestParseClassWithConstructorAndMethod(t *testing.T) {
	pkg := mustParse(t, `
		class P {
			int x;
			P(int v) { x = v; }
			func get() int { return x; }
		}
		func main() int {
			let P p = new P(7);
			return p.get();
		}
	`)

	if len(pkg.Classes) != 1 {
		t.Fatalf("expected one class, got %d", len(pkg.Classes))
	}
	class := pkg.Classes[0]
	if class.Name != "P" {
		t.Fatalf("class name = %q, want P", class.Name)
	}
	if len(class.Fields) != 1 || class.Fields[0].Name != "x" || !class.Fields[0].Type.IsInt() {
		t.Fatalf("expected one int field x, got %v", class.Fields)
	}
	if class.Ctor == nil || len(class.Ctor.Params) != 1 || class.Ctor.Params[0].Name != "v" {
		t.Fatalf("expected a one-param constructor, got %v", class.Ctor)
	}
	if len(class.Methods) != 1 || class.Methods[0].Name != "get" {
		t.Fatalf("expected one method named get, got %v", class.Methods)
	}

	if len(pkg.Funcs) != 1 || pkg.Funcs[0].Name != "main" {
		t.Fatalf("expected a free function main, got %v", pkg.Funcs)
	}
}

func TestParseClassWithoutExplicitConstructorSynthesizesOne(t *testing.T) {
	pkg := mustParse(t, `
		class Empty { int x; }
		func main() int { return 0; }
	`)

	class := pkg.Classes[0]
	if class.Ctor == nil {
		t.Fatalf("a class with no declared constructor must get a synthesized default one")
	}
	if !class.Ctor.IsCtor || class.Ctor.Name != "Empty" {
		t.Fatalf("synthesized ctor should be named after the class, got %+v", class.Ctor)
	}
}

func TestParseArrayLiteralAndIndexing(t *testing.T) {
	pkg := mustParse(t, `
		func main() int {
			let int[] xs = new int[3];
			xs[0] = 1;
			return xs[0];
		}
	`)
	if len(pkg.Funcs) != 1 {
		t.Fatalf("expected one function, got %d", len(pkg.Funcs))
	}
	body := pkg.Funcs[0].Body
	if len(body.Stmts) != 3 {
		t.Fatalf("expected 3 statements (let, assign, return), got %d", len(body.Stmts))
	}
}

func TestParseStringConcatenation(t *testing.T) {
	pkg := mustParse(t, `
		func main() int {
			let string s = "a" + "b";
			return 0;
		}
	`)
	if len(pkg.Funcs) != 1 {
		t.Fatalf("expected one function, got %d", len(pkg.Funcs))
	}
}

func TestParseSyntaxErrorReportsLineAndColumn(t *testing.T) {
	defer func() {
		rec := recover()
		if rec == nil {
			t.Fatalf("expected a panic for malformed source")
		}
		ce, ok := rec.(*CompileError)
		if !ok {
			t.Fatalf("expected *CompileError, got %T (%v)", rec, rec)
		}
		if ce.Line == 0 {
			t.Fatalf("expected a nonzero line number in %v", ce)
		}
		if ce.Column == 0 {
			t.Fatalf("expected a nonzero column number in %v", ce)
		}
	}()
	mustParse(t, `func main( { return 0; }`)
}
