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
package ir

import (
	"testing"

	"mxc/ast"
)

// buildDiamond builds:
//
//	entry: alloca x; if cond then else
//	then:  store x, 1; goto merge
//	els:   store x, 2; goto merge
//	merge: %v = load x; return %v
//
// the textbook case a single phi should fall out of at merge.
func buildDiamond() (*Func, *Value) {
	fn := NewFunc("f")
	entry := fn.NewBlock(BlockIf)
	then := fn.NewBlock(BlockGoto)
	els := fn.NewBlock(BlockGoto)
	merge := fn.NewBlock(BlockReturn)
	fn.Entry = entry

	x := entry.NewValue(OpAlloca, PtrType(ast.TInt))
	cond := entry.NewValue(OpCBool, ast.TBool, )
	cond.Sym = true
	cond.AddUseBlock(entry)
	entry.WireTo(then)
	entry.WireTo(els)

	one := then.NewValue(OpCInt, ast.TInt)
	one.Sym = 1
	then.NewValue(OpStore, ast.TVoid, x, one)
	then.WireTo(merge)

	two := els.NewValue(OpCInt, ast.TInt)
	two.Sym = 2
	els.NewValue(OpStore, ast.TVoid, x, two)
	els.WireTo(merge)

	load := merge.NewValue(OpLoad, ast.TInt, x)
	load.AddUseBlock(merge)

	return fn, load
}

func TestMem2RegInsertsPhiAtMergeBlock(t *testing.T) {
	fn, load := buildDiamond()
	merge := load.Block

	Mem2Reg(fn)

	if len(merge.Values) == 0 || merge.Values[0].Op != OpPhi {
		t.Fatalf("expected a phi as merge's first value after Mem2Reg, got %v", merge.Values)
	}
	phi := merge.Values[0]
	if len(phi.Args) != 2 {
		t.Fatalf("phi should have one argument per predecessor, got %d", len(phi.Args))
	}

	for _, block := range fn.Blocks {
		for _, v := range block.Values {
			if v.Op == OpAlloca || v.Op == OpStore || v.Op == OpLoad {
				t.Fatalf("Mem2Reg should have eliminated every alloca/store/load, found %v in b%d", v.Op, block.Id)
			}
		}
	}
}

func TestPromotableAllocasSkipsEscapingUse(t *testing.T) {
	fn := NewFunc("f")
	entry := fn.NewBlock(BlockReturn)
	fn.Entry = entry

	x := entry.NewValue(OpAlloca, PtrType(ast.TInt))
	// Passing the alloca's address itself to a call means it's not a plain
	// load/store local any more -- isPromotable must reject it.
	entry.NewValue(OpCall, ast.TVoid, x)

	if got := PromotableAllocas(fn); len(got) != 0 {
		t.Fatalf("PromotableAllocas = %v, want none (alloca escapes through a call arg)", got)
	}
}
