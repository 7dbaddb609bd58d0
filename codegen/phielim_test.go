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

import "testing"

// simulate replays a sequence of LIR_Mv instructions against an initial
// register file and returns the final values, keyed by register name.
func simulate(initial map[*PhyReg]int, instrs []*Instruction) map[*PhyReg]int {
	regs := make(map[*PhyReg]int, len(initial))
	for r, v := range initial {
		regs[r] = v
	}
	for _, ins := range instrs {
		if ins.Op != LIR_Mv {
			continue
		}
		dst := ins.Result.(Reg).Phy
		src := ins.Args[0].(Reg).Phy
		regs[dst] = regs[src]
	}
	return regs
}

func TestResolveParallelCopySwap(t *testing.T) {
	// a1 <- a2, a2 <- a1: a pure 2-cycle, the classic register swap.
	moves := []copyPair{{src: A2_, dst: A1_}, {src: A1_, dst: A2_}}
	initial := map[*PhyReg]int{A1_: 1, A2_: 2, ScratchReg(): -1}

	instrs := ResolveParallelCopy(moves, ScratchReg())
	final := simulate(initial, instrs)

	if final[A1_] != 2 || final[A2_] != 1 {
		t.Fatalf("swap failed: a1=%d a2=%d, want a1=2 a2=1", final[A1_], final[A2_])
	}
}

func TestResolveParallelCopyThreeCycle(t *testing.T) {
	// a1 <- a2 <- a3 <- a1: a pure 3-cycle.
	moves := []copyPair{
		{src: A2_, dst: A1_},
		{src: A3_, dst: A2_},
		{src: A1_, dst: A3_},
	}
	initial := map[*PhyReg]int{A1_: 1, A2_: 2, A3_: 3, ScratchReg(): -1}

	instrs := ResolveParallelCopy(moves, ScratchReg())
	final := simulate(initial, instrs)

	if final[A1_] != 2 || final[A2_] != 3 || final[A3_] != 1 {
		t.Fatalf("3-cycle rotate failed: a1=%d a2=%d a3=%d, want a1=2 a2=3 a3=1",
			final[A1_], final[A2_], final[A3_])
	}
}

func TestResolveParallelCopyDagAndCycleTogether(t *testing.T) {
	// a4 <- a1 (pure consumer, no cycle), plus an independent a1<->a2 swap.
	moves := []copyPair{
		{src: A2_, dst: A1_},
		{src: A1_, dst: A2_},
		{src: A1_, dst: A4_},
	}
	initial := map[*PhyReg]int{A1_: 1, A2_: 2, A4_: 0, ScratchReg(): -1}

	instrs := ResolveParallelCopy(moves, ScratchReg())
	final := simulate(initial, instrs)

	if final[A4_] != 1 {
		t.Fatalf("dag consumer a4=%d, want 1 (a1's original value)", final[A4_])
	}
	if final[A1_] != 2 || final[A2_] != 1 {
		t.Fatalf("swap portion failed: a1=%d a2=%d, want a1=2 a2=1", final[A1_], final[A2_])
	}
}

func TestResolveParallelCopyNoOp(t *testing.T) {
	if instrs := ResolveParallelCopy(nil, ScratchReg()); len(instrs) != 0 {
		t.Fatalf("expected no instructions for an empty move set, got %d", len(instrs))
	}
}
