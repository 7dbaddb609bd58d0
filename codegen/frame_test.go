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

func TestBuildFrameSlotsAreNegativeAnd16ByteAligned(t *testing.T) {
	fn := ir.NewFunc("f")
	entry := fn.NewBlock(ir.BlockReturn)
	fn.Entry = entry

	a1 := entry.NewValue(ir.OpAlloca, ir.PtrType(ast.TInt))
	a2 := entry.NewValue(ir.OpAlloca, ir.PtrType(ast.TInt))

	frame := BuildFrame(fn, nil)

	if frame.Reserved != 8 {
		t.Fatalf("Reserved = %d, want 8 (ra+s0, no callee-saved regs used)", frame.Reserved)
	}
	if frame.Slots[a1] >= 0 || frame.Slots[a2] >= 0 {
		t.Fatalf("alloca slots must be negative offsets from s0, got %d %d", frame.Slots[a1], frame.Slots[a2])
	}
	if frame.Slots[a1] == frame.Slots[a2] {
		t.Fatalf("two distinct allocas must not share a slot")
	}
	if frame.Size%16 != 0 {
		t.Fatalf("frame size %d is not 16-byte aligned", frame.Size)
	}
}

func TestBuildFrameReservesCalleeSavedSlots(t *testing.T) {
	fn := ir.NewFunc("f")
	entry := fn.NewBlock(ir.BlockReturn)
	fn.Entry = entry

	frame := BuildFrame(fn, []*PhyReg{S1_, S2_})
	if frame.Reserved != 8+4*2 {
		t.Fatalf("Reserved = %d, want %d with two callee-saved registers used", frame.Reserved, 8+8)
	}
}

func TestUsedCalleeSavedExcludesFrameRegAndUncoloredRegs(t *testing.T) {
	fn := ir.NewFunc("f")
	entry := fn.NewBlock(ir.BlockReturn)
	fn.Entry = entry
	v1 := entry.NewValue(ir.OpCInt, ast.TInt)
	v2 := entry.NewValue(ir.OpCInt, ast.TInt)

	color := map[*ir.Value]*PhyReg{v1: S1_, v2: A0_}
	used := UsedCalleeSaved(color)

	if len(used) != 1 || used[0] != S1_ {
		t.Fatalf("UsedCalleeSaved = %v, want exactly [S1_] (s0 excluded, a0 is caller-saved)", used)
	}
}
