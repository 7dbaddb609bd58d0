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
	"mxc/codegen"
	"mxc/ir"
)

// Coloring is the result of one Chaitin pass over a Graph: every
// successfully colored value's physical register, plus the values that
// could not be colored and must be spilled before the pass is retried.
type Coloring struct {
	Color   map[*ir.Value]*codegen.PhyReg
	Spilled []*ir.Value
}

// spillCost estimates how expensive it is to keep v in a register: more
// uses and a definition or use inside a loop header both raise the cost,
// mirroring the degree/cost ratio the linear-scan allocators in the pack
// use to rank spill candidates, adapted here to weigh a node actually
// picked for optimistic removal rather than an interval boundary.
func spillCost(v *ir.Value) float64 {
	cost := float64(len(v.Uses)) + 1
	if v.Block != nil && v.Block.Hint == ir.HintLoopHeader {
		cost += 4
	}
	for _, use := range v.Uses {
		if use.Block != nil && use.Block.Hint == ir.HintLoopHeader {
			cost += 4
		}
	}
	return cost
}

// Color runs one Chaitin-style simplify/spill/select pass over g:
//
//  1. Simplify: repeatedly remove any node whose remaining degree is below
//     codegen.K() -- such a node is always colorable once its neighbors are,
//     since at most k-1 colors can be in use among them.
//  2. Optimistic spill: when no such node remains, the graph is not (yet)
//     provably k-colorable. Pick the remaining node with the worst
//     degree/cost ratio (likely to free the most colors at the least
//     runtime cost if it ends up truly spilled) and push it anyway --
//     Briggs' optimistic-coloring refinement over Chaitin's original
//     "spill immediately" rule, deferring the real/potential distinction to
//     the select phase below.
//  3. Select: pop the stack in reverse removal order and assign each node
//     the first allocatable register not already taken by an already-colored
//     neighbor or forbidden by a RegConflicts entry (the call-clobber case).
//     A node that still has no free color here is an actual spill; the
//     caller rewrites it to memory (spill.go) and reruns Build+Color.
func Color(g *Graph) *Coloring {
	k := codegen.K()
	removed := make(map[*ir.Value]bool)
	var stack []*ir.Value

	remainingDegree := func(v *ir.Value) int {
		n := 0
		for _, u := range g.Neighbors(v) {
			if !removed[u] {
				n++
			}
		}
		return n
	}

	total := len(g.Nodes())
	for len(removed) < total {
		progressed := false
		for _, v := range g.Nodes() {
			if removed[v] || remainingDegree(v) >= k {
				continue
			}
			removed[v] = true
			stack = append(stack, v)
			progressed = true
		}
		if progressed {
			continue
		}

		var worst *ir.Value
		worstScore := -1.0
		for _, v := range g.Nodes() {
			if removed[v] {
				continue
			}
			score := float64(remainingDegree(v)) / spillCost(v)
			if score > worstScore {
				worstScore = score
				worst = v
			}
		}
		removed[worst] = true
		stack = append(stack, worst)
	}

	color := make(map[*ir.Value]*codegen.PhyReg)
	var spilled []*ir.Value
	for i := len(stack) - 1; i >= 0; i-- {
		v := stack[i]
		taken := make(map[*codegen.PhyReg]bool)
		for _, u := range g.Neighbors(v) {
			if c, ok := color[u]; ok {
				taken[c] = true
			}
		}
		if conflicts, ok := g.RegConflicts[v]; ok {
			conflicts.ForEach(func(r *codegen.PhyReg) { taken[r] = true })
		}

		var chosen *codegen.PhyReg
		for _, reg := range codegen.AllocatableRegs {
			if !taken[reg] {
				chosen = reg
				break
			}
		}
		if chosen != nil {
			color[v] = chosen
		} else {
			spilled = append(spilled, v)
		}
	}

	return &Coloring{Color: color, Spilled: spilled}
}
