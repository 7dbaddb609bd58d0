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

// checkAll drives the full front-end pipeline in the order compile.Compile
// uses: layouts, then class-name resolution, then inference, then checking.
func checkAll(t *testing.T, source string) *PackageDecl {
	t.Helper()
	pkg := ParseText("test", strings.NewReader(source))
	classes := BuildClassLayouts(pkg)
	ResolveAllTypes(pkg, classes)
	InferTypes(pkg, classes)
	TypeCheck(pkg)
	return pkg
}

func TestInferTypesResolvesLetWithoutExplicitType(t *testing.T) {
	pkg := checkAll(t, `
		func main() int {
			let x = 1 + 2;
			return x;
		}
	`)
	let := pkg.Funcs[0].Body.Stmts[0].(*LetStmt)
	if let.Type == nil || !let.Type.IsInt() {
		t.Fatalf("let x = 1+2 should infer type int, got %v", let.Type)
	}
}

func TestInferTypesResolvesFieldAccessThroughClassLayout(t *testing.T) {
	pkg := checkAll(t, `
		class P { int x; P(int v) { x = v; } }
		func main() int {
			let P p = new P(7);
			return p.x;
		}
	`)
	ret := pkg.Funcs[0].Body.Stmts[1].(*ReturnStmt)
	field := ret.Expr.(*FieldExpr)
	if !field.GetType().IsInt() {
		t.Fatalf("p.x should resolve to type int through P's layout, got %v", field.GetType())
	}

	classes := pkg.Classes[0].Layout
	if len(classes.Fields) != 1 || classes.Fields[0].Name != "x" || classes.Fields[0].Offset != 0 {
		t.Fatalf("expected class layout with field x at offset 0, got %+v", classes.Fields)
	}
}

func TestInferTypesResolvesArrayIndexElementType(t *testing.T) {
	pkg := checkAll(t, `
		func main() int {
			let int[] xs = new int[3];
			return xs[0];
		}
	`)
	ret := pkg.Funcs[0].Body.Stmts[1].(*ReturnStmt)
	idx := ret.Expr.(*IndexExpr)
	if !idx.GetType().IsInt() {
		t.Fatalf("xs[0] should have element type int, got %v", idx.GetType())
	}
}

func TestTypeCheckRejectsNonBoolCondition(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected a panic: if-condition typed int rather than bool")
		}
	}()
	checkAll(t, `
		func main() int {
			if (1) { return 0; }
			return 1;
		}
	`)
}
