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

// Mem2Reg promotes memory-cell locals (every local and parameter starts life
// as an OpAlloca, per the builder) into SSA values, following Cytron et al.'s
// dominance-frontier construction: place phis at the iterated dominance
// frontier of each promotable alloca's assignments, then rename loads/stores
// to SSA values in a dominator-tree preorder walk.

// isPromotable reports whether every use of an alloca is a direct OpLoad or
// OpStore through it (as opposed to being passed to a call, or never used at
// all beyond its own address escaping through FieldAddr/IndexAddr, which
// cannot happen for a plain local -- aggregates are always reached through a
// loaded pointer, never through the alloca cell that holds the pointer
// itself). This holds for every alloca the builder emits, but the check is
// kept explicit rather than assumed, matching the classic mem2reg structure.
func isPromotable(alloca *Value) bool {
	for _, use := range alloca.Uses {
		switch use.Op {
		case OpLoad:
			if use.Args[0] != alloca {
				return false
			}
		case OpStore:
			if use.Args[0] != alloca {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// PromotableAllocas returns every OpAlloca value in fn's entry block that
// Mem2Reg can eliminate.
func PromotableAllocas(fn *Func) []*Value {
	var allocas []*Value
	for _, val := range fn.Entry.Values {
		if val.Op == OpAlloca && isPromotable(val) {
			allocas = append(allocas, val)
		}
	}
	return allocas
}

// iteratedDominanceFrontier computes IDF(defBlocks): the fixpoint of
// repeatedly taking the dominance frontier of the frontier itself.
func iteratedDominanceFrontier(df map[*Block][]*Block, defBlocks []*Block) map[*Block]bool {
	result := make(map[*Block]bool)
	worklist := append([]*Block{}, defBlocks...)
	for len(worklist) > 0 {
		x := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]
		for _, y := range df[x] {
			if !result[y] {
				result[y] = true
				worklist = append(worklist, y)
			}
		}
	}
	return result
}

func cloneCurrentMap(m map[*Value]*Value) map[*Value]*Value {
	c := make(map[*Value]*Value, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}

// Mem2Reg promotes every eligible alloca in fn to SSA form in place.
func Mem2Reg(fn *Func) {
	allocas := PromotableAllocas(fn)
	if len(allocas) == 0 {
		return
	}
	dt := BuildDomTree(fn)
	df := dt.DominanceFrontier()

	// 1. Phi placement: for each alloca, find blocks containing a store to
	// it, and insert an empty phi at every block in their iterated
	// dominance frontier.
	phiOf := make(map[*Block]map[*Value]*Value) // block -> alloca -> phi value
	for _, alloca := range allocas {
		var defBlocks []*Block
		seen := make(map[*Block]bool)
		for _, use := range alloca.Uses {
			if use.Op == OpStore && !seen[use.Block] {
				seen[use.Block] = true
				defBlocks = append(defBlocks, use.Block)
			}
		}
		frontier := iteratedDominanceFrontier(df, defBlocks)
		for block := range frontier {
			if phiOf[block] == nil {
				phiOf[block] = make(map[*Value]*Value)
			}
			if _, exists := phiOf[block][alloca]; exists {
				continue
			}
			pointee := alloca.Type.ElemType
			phi := block.NewValue(OpPhi, pointee)
			phi.Args = make([]*Value, len(block.Preds))
			phiOf[block][alloca] = phi
		}
	}

	// 2. Renaming: dominator-tree preorder walk, threading the current SSA
	// value of each alloca through a map copied at every recursive step (so
	// that a sibling subtree doesn't see a cousin's definitions).
	var rename func(block *Block, current map[*Value]*Value)
	rename = func(block *Block, current map[*Value]*Value) {
		current = cloneCurrentMap(current)

		if phis, ok := phiOf[block]; ok {
			for alloca, phi := range phis {
				current[alloca] = phi
			}
		}

		for _, val := range append([]*Value{}, block.Values...) {
			switch val.Op {
			case OpLoad:
				if isAllocaArg(val, allocas) {
					alloca := val.Args[0]
					val.ReplaceUses(current[alloca])
					block.RemoveValue(val)
				}
			case OpStore:
				if isAllocaArg(val, allocas) {
					alloca := val.Args[0]
					current[alloca] = val.Args[1]
					block.RemoveValue(val)
				}
			}
		}

		for _, succ := range block.Succs {
			predIdx := -1
			for i, p := range succ.Preds {
				if p == block {
					predIdx = i
					break
				}
			}
			if predIdx == -1 {
				continue
			}
			if phis, ok := phiOf[succ]; ok {
				for alloca, phi := range phis {
					phi.AddArgAt(predIdx, current[alloca])
				}
			}
		}

		for _, child := range dt.Children(block) {
			rename(child, current)
		}
	}
	rename(fn.Entry, make(map[*Value]*Value))

	// 3. The allocas themselves are now unused; drop them.
	for _, alloca := range allocas {
		if len(alloca.Uses) == 0 {
			fn.Entry.RemoveValue(alloca)
		}
	}
}

func isAllocaArg(val *Value, allocas []*Value) bool {
	if len(val.Args) == 0 {
		return false
	}
	for _, a := range allocas {
		if val.Args[0] == a {
			return true
		}
	}
	return false
}
