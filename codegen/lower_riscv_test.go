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
package codegen

import (
	"testing"

	"mxc/ast"
	"mxc/ir"
)

// TestLowerCallSpillsArgsPastA7 exercises a call with 10 arguments -- two
// more than fit in a0-a7 -- the scenario a 9-parameter method call hits
// once its implicit receiver is counted as argument 1 (spec.md §4.8).
func TestLowerCallSpillsArgsPastA7(t *testing.T) {
	fn := ir.NewFunc("f")
	entry := fn.NewBlock(ir.BlockReturn)
	fn.Entry = entry

	args := make([]*ir.Value, 10)
	for i := range args {
		c := entry.NewValue(ir.OpCInt, ast.TInt)
		c.Sym = i
		args[i] = c
	}
	call := entry.NewValue(ir.OpCall, ast.TInt, args...)
	call.Sym = "g"

	color := map[*ir.Value]*PhyReg{call: A0_}
	for i, a := range args {
		color[a] = CallerSaved()[i%len(CallerSaved())]
	}

	frame := BuildFrame(fn, nil)
	if frame.OutgoingArgBytes != 8 {
		t.Fatalf("OutgoingArgBytes = %d, want 8 (two extra args past a0-a7)", frame.OutgoingArgBytes)
	}

	lir := Lower(fn, color, nil, frame)
	instrs := lir.Instrs[entry]

	var stores []*Instruction
	for _, ins := range instrs {
		if ins.Op == LIR_Sw {
			stores = append(stores, ins)
		}
	}
	if len(stores) != 2 {
		t.Fatalf("expected 2 stack stores for the 2 overflow arguments, got %d", len(stores))
	}
	seen := map[int]bool{}
	for _, ins := range stores {
		mem, ok := ins.Args[1].(Mem)
		if !ok || mem.Base != Sp_ {
			t.Fatalf("overflow argument store must address sp, got %#v", ins.Args[1])
		}
		seen[mem.Offset] = true
	}
	if !seen[0] || !seen[4] {
		t.Fatalf("expected overflow argument stores at 0(sp) and 4(sp), got offsets %v", seen)
	}

	var regMoves int
	for _, ins := range instrs {
		if ins.Op == LIR_Call {
			break // the result move out of a0 after the call is not an argument move
		}
		if ins.Op == LIR_Mv {
			if r, ok := ins.Result.(Reg); ok {
				for _, a := range ArgRegs() {
					if r.Phy == a {
						regMoves++
					}
				}
			}
		}
	}
	if regMoves != 8 {
		t.Fatalf("expected exactly 8 argument-register moves, got %d", regMoves)
	}
}

// TestLowerParamReadsOverflowFromCallerFrame mirrors the callee side of the
// same convention: a param index past a0-a7 must be read from the stack at
// an offset that accounts for this function's own frame size, since by the
// time a block's body runs the prologue has already moved sp below the
// caller's outgoing-argument area.
func TestLowerParamReadsOverflowFromCallerFrame(t *testing.T) {
	fn := ir.NewFunc("g")
	entry := fn.NewBlock(ir.BlockReturn)
	fn.Entry = entry

	p := entry.NewValue(ir.OpParam, ast.TInt)
	p.Sym = 9 // 10th parameter, 2 past a0-a7

	frame := BuildFrame(fn, nil)
	color := map[*ir.Value]*PhyReg{p: T0_}

	lir := Lower(fn, color, nil, frame)
	instrs := lir.Instrs[entry]

	if len(instrs) != 2 || instrs[0].Op != LIR_Lw || instrs[1].Op != LIR_Ret {
		t.Fatalf("expected a single load for the overflow param followed by ret, got %v", instrs)
	}
	mem, ok := instrs[0].Args[0].(Mem)
	if !ok || mem.Base != Sp_ {
		t.Fatalf("overflow param load must address sp, got %#v", instrs[0].Args[0])
	}
	want := frame.Size + 4 // 2nd overflow slot (idx 9 - 8 = 1) at +4
	if mem.Offset != want {
		t.Fatalf("overflow param offset = %d, want %d (frame.Size + 4)", mem.Offset, want)
	}
}
