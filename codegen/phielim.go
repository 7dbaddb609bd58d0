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

// copyPair is one leg of a parallel register-to-register assignment: dst
// should end up holding whatever src holds right now.
type copyPair struct{ src, dst *PhyReg }

// PhiCopies maps each predecessor block to the sequence of moves that must
// run at its tail (after SplitCriticalEdges has made that safe) to resolve
// every phi in its successor.
type PhiCopies map[*ir.Block][]*Instruction

// EliminatePhis computes, for every block's phis, the parallel register
// assignment each predecessor must perform, then sequentializes it with
// ResolveParallelCopy -- the teacher's resolvePhi (compile/codegen/lower_x86.go)
// emits one unconditional mov per phi argument, which is only safe when no
// two phis in the same block trade registers; this version handles the
// general case (including the cyclic swap that resolvePhi would get wrong)
// per spec.md §4.7.
func EliminatePhis(fn *ir.Func, color map[*ir.Value]*PhyReg) PhiCopies {
	out := make(PhiCopies)
	for _, block := range fn.Blocks {
		var phis []*ir.Value
		for _, v := range block.Values {
			if v.Op != ir.OpPhi {
				break
			}
			phis = append(phis, v)
		}
		if len(phis) == 0 {
			continue
		}
		for i, pred := range block.Preds {
			var moves []copyPair
			for _, phi := range phis {
				dst := color[phi]
				src := color[phi.Args[i]]
				if dst == nil || src == nil || dst == src {
					continue
				}
				moves = append(moves, copyPair{src: src, dst: dst})
			}
			out[pred] = append(out[pred], ResolveParallelCopy(moves, ScratchReg())...)
		}
	}
	return out
}

// ResolveParallelCopy sequentializes a set of simultaneous dst<-src register
// assignments (all dsts distinct) into an ordered list of plain movs. A
// destination is written as soon as nothing still needs to read its current
// value; what remains after that peel is a disjoint union of pure cycles
// (every node in a functional graph with out-degree <= 1 decomposes into
// trees hanging off cycles), each broken by saving its first node to
// scratch before overwriting it and closing the loop by reading scratch
// back at the end.
func ResolveParallelCopy(moves []copyPair, scratch *PhyReg) []*Instruction {
	srcOf := make(map[*PhyReg]*PhyReg, len(moves))
	numReaders := make(map[*PhyReg]int, len(moves))
	for _, m := range moves {
		srcOf[m.dst] = m.src
		numReaders[m.src]++
	}

	var out []*Instruction
	emit := func(dst, src *PhyReg) {
		out = append(out, &Instruction{Op: LIR_Mv, Result: Reg{dst}, Args: []IOperand{Reg{src}}})
	}

	var ready []*PhyReg
	for dst := range srcOf {
		if numReaders[dst] == 0 {
			ready = append(ready, dst)
		}
	}
	for len(ready) > 0 {
		dst := ready[len(ready)-1]
		ready = ready[:len(ready)-1]
		src, ok := srcOf[dst]
		if !ok {
			continue
		}
		emit(dst, src)
		delete(srcOf, dst)
		numReaders[src]--
		if _, stillPending := srcOf[src]; stillPending && numReaders[src] == 0 {
			ready = append(ready, src)
		}
	}

	// Anything left in srcOf now forms pure cycles.
	for len(srcOf) > 0 {
		var start *PhyReg
		for dst := range srcOf {
			start = dst
			break
		}
		emit(scratch, start)
		cur := start
		for {
			src := srcOf[cur]
			delete(srcOf, cur)
			if src == start {
				emit(cur, scratch)
				break
			}
			emit(cur, src)
			cur = src
		}
	}
	return out
}
