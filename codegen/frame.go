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
	"mxc/ir"
	"mxc/utils"
)

// FrameLayout assigns every un-promoted local (every surviving ir.OpAlloca,
// including the fresh ones regalloc.Rewrite manufactures for actual spills)
// a fixed offset below the frame pointer. Unlike a coloring, this never
// changes once computed: an alloca's address is a compile-time constant
// relative to s0, not a value that moves between registers, so it is folded
// straight into a Mem operand rather than occupying a color of its own
// (see regalloc's needsReg).
type FrameLayout struct {
	Slots            map[*ir.Value]int // OpAlloca -> offset from s0, always negative
	Reserved         int               // bytes below s0 already spoken for: saved ra/s0 plus any callee-saved regs the coloring used
	OutgoingArgBytes int               // bytes reserved at the very bottom of the frame (flush with sp) for the 9th+ argument of the widest call fn makes
	Size             int               // total frame size in bytes, 16-byte aligned
}

// maxOutgoingStackArgs scans every call fn makes and returns the largest
// number of arguments that spill past the eight integer argument registers
// (spec.md §4.8: "arguments 1-8 in a0-a7, extras on the stack"). A method
// call's implicit receiver counts as argument 1, so an 8-parameter method
// is already one argument past the register budget.
func maxOutgoingStackArgs(fn *ir.Func) int {
	max := 0
	nargs := len(ArgRegs())
	for _, block := range fn.Blocks {
		for _, v := range block.Values {
			if v.Op != ir.OpCall {
				continue
			}
			if extra := len(v.Args) - nargs; extra > max {
				max = extra
			}
		}
	}
	return max
}

// UsedCalleeSaved returns the callee-saved registers (excluding the frame
// pointer s0, which the prologue always saves) that color actually assigns
// to some value -- exactly the registers the prologue/epilogue must spill
// and restore around the function body.
func UsedCalleeSaved(color map[*ir.Value]*PhyReg) []*PhyReg {
	seen := make(map[*PhyReg]bool)
	var used []*PhyReg
	for _, reg := range CalleeSaved() {
		if reg == FrameReg() {
			continue
		}
		for _, r := range color {
			if r == reg && !seen[reg] {
				seen[reg] = true
				used = append(used, reg)
			}
		}
	}
	return used
}

// BuildFrame walks fn's allocas in definition order and packs them into
// consecutive 4-byte slots below the reserved region (the saved ra/s0 pair
// plus one slot per register UsedCalleeSaved names), mirroring the teacher's
// asm_x86.go stackOffset/v2offset bookkeeping (NewAssembler, allocateStackSlot)
// but computed once up front instead of lazily during emission, since
// RV32I's prologue must know the final frame size before it emits the
// single `addi sp, sp, -N` that creates it.
func BuildFrame(fn *ir.Func, usedCallee []*PhyReg) *FrameLayout {
	reserved := 8 + 4*len(usedCallee) // ra + s0, then one word per saved register
	layout := &FrameLayout{Slots: make(map[*ir.Value]int), Reserved: reserved}
	offset := reserved
	for _, block := range fn.Blocks {
		for _, v := range block.Values {
			if v.Op != ir.OpAlloca {
				continue
			}
			offset += 4
			layout.Slots[v] = -offset
		}
	}
	layout.OutgoingArgBytes = 4 * maxOutgoingStackArgs(fn)
	layout.Size = utils.Align16(offset + layout.OutgoingArgBytes)
	return layout
}
