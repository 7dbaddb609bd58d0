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

import "mxc/ir"

// SplitCriticalEdges inserts an empty block on every critical edge -- an
// edge whose source has more than one successor and whose destination has
// more than one predecessor. Phi elimination (phielim.go) inserts a copy at
// the end of each predecessor for every phi argument; without this pass, a
// copy inserted on a critical edge's source block would run on every path
// out of that block, not just the one leading to the phi, corrupting the
// other successor.
func SplitCriticalEdges(fn *ir.Func) {
	for _, block := range append([]*ir.Block{}, fn.Blocks...) {
		if len(block.Succs) < 2 {
			continue
		}
		for _, succ := range append([]*ir.Block{}, block.Succs...) {
			if len(succ.Preds) < 2 {
				continue
			}
			splitEdge(fn, block, succ)
		}
	}
}

// splitEdge replaces the block->succ edge with block->mid->succ, where mid
// is a fresh empty BlockGoto. Phi arguments in succ keep their original
// slot (now fed by mid instead of block), so argument order never needs
// rewriting -- only the Preds/Succs pointers change.
func splitEdge(fn *ir.Func, block, succ *ir.Block) {
	mid := fn.NewBlock(ir.BlockGoto)

	for i, s := range block.Succs {
		if s == succ {
			block.Succs[i] = mid
			break
		}
	}
	for i, p := range succ.Preds {
		if p == block {
			succ.Preds[i] = mid
			break
		}
	}
	mid.Preds = append(mid.Preds, block)
	mid.Succs = append(mid.Succs, succ)
}
