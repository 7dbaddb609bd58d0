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

import "mxc/utils"

// Liveness holds per-block live-in/live-out sets of SSA values, computed by
// the standard SSA liveness dataflow (Wimmer & Franz): a phi's operand is
// counted live-out of the corresponding predecessor, not live-in of the
// phi's own block, since the value crosses the edge rather than being used
// inside the block that defines the phi.
type Liveness struct {
	Func    *Func
	LiveIn  map[*Block]*utils.Set[*Value]
	LiveOut map[*Block]*utils.Set[*Value]
}

func cloneSet(s *utils.Set[*Value]) *utils.Set[*Value] {
	c := utils.NewSet[*Value]()
	if s != nil {
		s.ForEach(func(v *Value) { c.Add(v) })
	}
	return c
}

func setEqual(a, b *utils.Set[*Value]) bool {
	if a.Length() != b.Length() {
		return false
	}
	equal := true
	a.ForEach(func(v *Value) {
		if !b.Contains(v) {
			equal = false
		}
	})
	return equal
}

// upwardExposed returns the values block reads before any of its own
// definitions of them could occur, i.e. operands of non-phi instructions
// whose defining block differs from block. Since every SSA value has a
// single static definition site, "defined elsewhere" already implies
// "available at block entry".
func upwardExposed(block *Block) *utils.Set[*Value] {
	uses := utils.NewSet[*Value]()
	for _, val := range block.Values {
		if val.Op == OpPhi {
			continue
		}
		for _, arg := range val.Args {
			if arg.Block != block {
				uses.Add(arg)
			}
		}
	}
	if block.Ctrl != nil && block.Ctrl.Block != block {
		uses.Add(block.Ctrl)
	}
	return uses
}

func blockDefs(block *Block) *utils.Set[*Value] {
	defs := utils.NewSet[*Value]()
	for _, val := range block.Values {
		defs.Add(val)
	}
	return defs
}

// reversePostorder returns fn's blocks ordered so that, barring loop back
// edges, a block appears before its successors -- the iteration order that
// converges fastest for a backward dataflow problem like liveness.
func reversePostorder(fn *Func) []*Block {
	visited := make(map[*Block]bool)
	var order []*Block
	var visit func(*Block)
	visit = func(b *Block) {
		if visited[b] {
			return
		}
		visited[b] = true
		for _, s := range b.Succs {
			visit(s)
		}
		order = append(order, b)
	}
	visit(fn.Entry)
	for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
		order[i], order[j] = order[j], order[i]
	}
	return order
}

// ComputeLiveness runs the fixpoint backward dataflow to completion.
func ComputeLiveness(fn *Func) *Liveness {
	lv := &Liveness{
		Func:    fn,
		LiveIn:  make(map[*Block]*utils.Set[*Value]),
		LiveOut: make(map[*Block]*utils.Set[*Value]),
	}
	rpo := reversePostorder(fn)
	for _, b := range rpo {
		lv.LiveIn[b] = utils.NewSet[*Value]()
		lv.LiveOut[b] = utils.NewSet[*Value]()
	}

	exposed := make(map[*Block]*utils.Set[*Value])
	defs := make(map[*Block]*utils.Set[*Value])
	for _, b := range rpo {
		exposed[b] = upwardExposed(b)
		defs[b] = blockDefs(b)
	}

	changed := true
	for changed {
		changed = false
		// Process in reverse of reverse-postorder (i.e. postorder) so a
		// block's successors are usually already up to date.
		for i := len(rpo) - 1; i >= 0; i-- {
			block := rpo[i]

			liveOut := utils.NewSet[*Value]()
			for _, succ := range block.Succs {
				predIdx := -1
				for idx, p := range succ.Preds {
					if p == block {
						predIdx = idx
						break
					}
				}
				lv.LiveIn[succ].ForEach(func(v *Value) {
					if v.Op == OpPhi && v.Block == succ {
						return // contributed via the phi-arg branch below
					}
					liveOut.Add(v)
				})
				for _, val := range succ.Values {
					if val.Op != OpPhi {
						continue
					}
					if predIdx >= 0 && predIdx < len(val.Args) && val.Args[predIdx] != nil {
						liveOut.Add(val.Args[predIdx])
					}
				}
			}

			liveIn := cloneSet(liveOut)
			defs[block].ForEach(func(v *Value) { liveIn.Remove(v) })
			exposed[block].ForEach(func(v *Value) { liveIn.Add(v) })

			if !setEqual(liveIn, lv.LiveIn[block]) || !setEqual(liveOut, lv.LiveOut[block]) {
				changed = true
				lv.LiveIn[block] = liveIn
				lv.LiveOut[block] = liveOut
			}
		}
	}
	return lv
}
