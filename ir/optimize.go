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
	"fmt"

	"mxc/utils"
)

type Optimizer struct {
	Func  *Func
	Debug bool
}

// Ideal iteratively performs peephole optimizations on the HIR until no more
// changes are made. Runs once after Mem2Reg, and again after every spill
// rewrite in register allocation to clean up dead spill/reload traffic.
func (opt *Optimizer) Ideal() {
	changed := 1
	round := 0
	for changed == 1 {
		changed = 0
		changed |= opt.simplifyPhi()
		changed |= opt.simplifyCFG()
		changed |= opt.dce()
		round++
	}
	if opt.Debug {
		fmt.Printf("%d round ideal optimization\n", round)
	}
}

// -----------------------------------------------------------------------------
// Phi Simplification

func (opt *Optimizer) simplifyPhi() int {
	fn := opt.Func
	changed := 0
	for _, block := range fn.Blocks {
		for i := len(block.Values) - 1; i >= 0; i-- {
			val := block.Values[i]
			if val.Op != OpPhi {
				continue
			}
			if len(val.Args) == 1 {
				changed = 1
				val.ReplaceUses(val.Args[0])
				block.RemoveValue(val)
				continue
			}
			if len(val.Args) == 0 {
				panic("Phi node with no arguments")
			}
			same := true
			for _, arg := range val.Args {
				if arg != val.Args[0] {
					same = false
					break
				}
			}
			if same {
				changed = 1
				val.ReplaceUses(val.Args[0])
				block.RemoveValue(val)
				continue
			}
			var one *Value
			for _, arg := range val.Args {
				if arg != val {
					if one == nil {
						one = arg
					} else {
						one = nil
						break
					}
				}
			}
			if one != nil {
				changed = 1
				val.ReplaceUses(one)
				block.RemoveValue(val)
			}
		}
	}
	return changed
}

// -----------------------------------------------------------------------------
// Dead Code Elimination

// isPinned reports values that must never be DCE'd purely on a zero-use
// count: OpAlloca/OpLoad/OpStore carry the program's memory effects and
// OpCall may have side effects the IR doesn't model; OpParam defines the
// calling convention's inputs. Pure address arithmetic (OpFieldAddr,
// OpIndexAddr, OpArrayLen) is not pinned -- it can be eliminated whenever
// nothing reads the address it computes.
func isPinned(val *Value) bool {
	switch val.Op {
	case OpParam, OpCall, OpLoad, OpStore, OpAlloca:
		return true
	}
	return false
}

func findReachableBlocksRecursively(block *Block, reachable map[*Block]bool) {
	if reachable[block] {
		return
	}
	reachable[block] = true
	for _, succ := range block.Succs {
		findReachableBlocksRecursively(succ, reachable)
	}
}

func FindReachableBlocks(block *Block) map[*Block]bool {
	reachable := make(map[*Block]bool)
	findReachableBlocksRecursively(block, reachable)
	return reachable
}

func removePhiArg(succ *Block, pred *Block) {
	for ipred, p := range succ.Preds {
		if p != pred {
			continue
		}
		for _, val := range succ.Values {
			if val.Op == OpPhi {
				def := val.Args[ipred]
				def.RemoveUse(val)
				val.Args = append(val.Args[:ipred], val.Args[ipred+1:]...)
			}
		}
		break
	}
}

func (opt *Optimizer) dce() int {
	fn := opt.Func
	changed := 0

	reachable := FindReachableBlocks(fn.Entry)
	if opt.Debug {
		str := ""
		for block := range reachable {
			str += fmt.Sprintf("b%d ", block.Id)
		}
		fmt.Printf("Reachable blocks: %s\n", str)
	}

	for block := range reachable {
		for i := len(block.Values) - 1; i >= 0; i-- {
			val := block.Values[i]
			if len(val.Uses) == 0 && len(val.UseBlock) == 0 && !isPinned(val) {
				block.RemoveValue(val)
				changed = 1
			}
		}
	}

	for i := len(fn.Blocks) - 1; i >= 0; i-- {
		block := fn.Blocks[i]
		if reachable[block] {
			continue
		}
		utils.Assert(block.Hint != HintEntry, "entry always reachable")
		for _, succ := range block.Succs {
			if len(succ.Preds) > 1 {
				removePhiArg(succ, block)
			}
		}
		for _, succ := range block.Succs {
			succ.RemovePred(block)
		}
		fn.RemoveBlock(block)
		changed = 1
	}
	return changed
}

// -----------------------------------------------------------------------------
// CFG Simplification

func isConstBool(val *Value) bool {
	return val.Op == OpCBool && val.Type.IsBool()
}

func (opt *Optimizer) simplifyCFG() int {
	fn := opt.Func
	changed := 0
	for _, block := range fn.Blocks {
		if block.Kind != BlockIf {
			continue
		}
		ctrl := block.Ctrl
		if !isConstBool(ctrl) {
			continue
		}
		taken := 0
		if ctrl.Sym.(bool) == false {
			taken = 1
		}
		notTaken := block.Succs[1-taken]
		if len(notTaken.Preds) > 1 {
			removePhiArg(notTaken, block)
		}
		block.Kind = BlockGoto
		ctrl.RemoveUseBlock(block)
		block.RemoveSucc(notTaken)
		notTaken.RemovePred(block)
		utils.Assert(len(block.Succs) == 1, "block has only one successor now")
		changed = 1
	}

	for _, block := range fn.Blocks {
		if block.Kind != BlockGoto || len(block.Preds) != 1 || len(block.Succs) != 1 || len(block.Values) != 0 {
			continue
		}
		pred := block.Preds[0]
		succ := block.Succs[0]
		if len(pred.Succs) == 1 && len(succ.Preds) == 1 {
			block.RemoveSucc(succ)
			block.RemovePred(pred)
			pred.RemoveSucc(block)
			succ.RemovePred(block)
			pred.WireTo(succ)
			pred.Values = append(pred.Values, block.Values...)
			block.Values = nil
			changed = 1
		}
	}
	return changed
}

func OptimizeHIR(fn *Func, debug bool) {
	opt := &Optimizer{Func: fn, Debug: debug}
	opt.Ideal()
}
