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
package regalloc

import (
	"mxc/ast"
	"mxc/ir"
)

// Rewrite turns every value in spilled back into a plain memory cell: one
// alloca in the function's entry block, a store immediately after the
// value's own definition, and a fresh load immediately before every place
// that used to read it directly from a register. A phi argument is an edge
// use rather than a block use, so its load goes at the end of the
// contributing predecessor, and a value used only as a block's branch
// condition gets its load appended at the end of that block, right where
// the (implicit) branch reads it.
//
// After Rewrite, liveness must be recomputed and Build/Color rerun: the
// spilled values are gone from the interference problem, replaced by
// ordinary loads and stores with their own, usually much shorter, live
// ranges (spec.md §4.5 step 4's repeat-until-colorable loop).
func Rewrite(fn *ir.Func, spilled []*ir.Value) {
	for _, v := range spilled {
		rewriteOne(fn, v)
	}
}

func rewriteOne(fn *ir.Func, v *ir.Value) {
	slot := fn.Entry.NewValue(ir.OpAlloca, ir.PtrType(v.Type))

	uses := append([]*ir.Value{}, v.Uses...)
	useBlocks := append([]*ir.Block{}, v.UseBlock...)

	v.Block.NewValueAfter(v, ir.OpStore, ast.TVoid, slot, v)

	for _, use := range uses {
		if use.Op == ir.OpPhi {
			rewritePhiUse(use, v, slot)
			continue
		}
		load := use.Block.NewValueBefore(use, ir.OpLoad, v.Type, slot)
		replaced := false
		for i, a := range use.Args {
			if a == v {
				use.Args[i] = load
				load.Uses = append(load.Uses, use)
				replaced = true
			}
		}
		if replaced {
			v.RemoveUse(use)
		}
	}

	for _, ub := range useBlocks {
		load := ub.NewValue(ir.OpLoad, v.Type, slot)
		ub.Ctrl = load
		load.UseBlock = append(load.UseBlock, ub)
		removeUseBlock(v, ub)
	}
}

func rewritePhiUse(phi *ir.Value, v *ir.Value, slot *ir.Value) {
	for i, a := range phi.Args {
		if a != v {
			continue
		}
		pred := phi.Block.Preds[i]
		load := pred.NewValue(ir.OpLoad, v.Type, slot)
		phi.Args[i] = load
		load.Uses = append(load.Uses, phi)
	}
	v.RemoveUse(phi)
}

func removeUseBlock(v *ir.Value, ub *ir.Block) {
	for idx, b := range v.UseBlock {
		if b == ub {
			v.UseBlock = append(v.UseBlock[:idx], v.UseBlock[idx+1:]...)
			return
		}
	}
}
