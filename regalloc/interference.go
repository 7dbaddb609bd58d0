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

// Package regalloc assigns RV32I physical registers to SSA values by
// Chaitin-style graph coloring: build an interference graph from liveness,
// simplify/select with a spill-cost heuristic when the graph isn't
// k-colorable, rewrite actual spills back into memory-cell load/store pairs,
// and repeat until every value has a home.
package regalloc

import (
	"mxc/codegen"
	"mxc/ir"
	"mxc/utils"
)

// Graph is an interference graph over the SSA values of one function that
// need a register. Two values interfere if they are simultaneously live at
// some program point and therefore cannot share a color. RegConflicts
// additionally records values forced away from specific physical registers
// -- chiefly those live across a call, which must avoid the caller-saved
// set since a callee is free to clobber it.
type Graph struct {
	Fn    *ir.Func
	order []*ir.Value
	adj   map[*ir.Value]*utils.Set[*ir.Value]

	RegConflicts map[*ir.Value]*utils.Set[*codegen.PhyReg]
}

func newGraph(fn *ir.Func) *Graph {
	return &Graph{
		Fn:           fn,
		adj:          make(map[*ir.Value]*utils.Set[*ir.Value]),
		RegConflicts: make(map[*ir.Value]*utils.Set[*codegen.PhyReg]),
	}
}

// needsReg reports whether v's result occupies a register. Void-typed
// values -- OpStore, and an OpCall to a function returning void -- produce
// nothing; every other value, including addresses and phis, is a register
// candidate --
// except OpAlloca, whose "address" is a fixed offset off the frame pointer
// assigned once by the frame layout (codegen/frame.go) and folded directly
// into the Mem operand of whatever Load/Store references it, never
// occupying a register of its own.
func needsReg(v *ir.Value) bool {
	return v != nil && v.Type != nil && !v.Type.IsVoid() && v.Op != ir.OpAlloca
}

func (g *Graph) addNode(v *ir.Value) {
	if _, ok := g.adj[v]; !ok {
		g.adj[v] = utils.NewSet[*ir.Value]()
		g.order = append(g.order, v)
	}
}

func (g *Graph) addEdge(a, b *ir.Value) {
	if a == b {
		return
	}
	g.addNode(a)
	g.addNode(b)
	g.adj[a].Add(b)
	g.adj[b].Add(a)
}

func (g *Graph) addRegConflict(v *ir.Value, reg *codegen.PhyReg) {
	g.addNode(v)
	if g.RegConflicts[v] == nil {
		g.RegConflicts[v] = utils.NewSet[*codegen.PhyReg]()
	}
	g.RegConflicts[v].Add(reg)
}

// Nodes returns every value that needs a color, in first-seen order --
// stable, so allocation over the same function is deterministic.
func (g *Graph) Nodes() []*ir.Value { return g.order }

// Neighbors returns v's interference edges.
func (g *Graph) Neighbors(v *ir.Value) []*ir.Value {
	var out []*ir.Value
	if s, ok := g.adj[v]; ok {
		s.ForEach(func(u *ir.Value) { out = append(out, u) })
	}
	return out
}

// Degree is the number of values v currently interferes with.
func (g *Graph) Degree(v *ir.Value) int {
	if s, ok := g.adj[v]; ok {
		return s.Length()
	}
	return 0
}

// Interferes reports whether a and b share an edge.
func (g *Graph) Interferes(a, b *ir.Value) bool {
	s, ok := g.adj[a]
	return ok && s.Contains(b)
}

// removeNode deletes v and all of its edges. Color does not call it: its
// simplify phase marks peeled nodes in a map of its own instead.
func (g *Graph) removeNode(v *ir.Value) {
	if s, ok := g.adj[v]; ok {
		s.ForEach(func(u *ir.Value) {
			if us, ok := g.adj[u]; ok {
				us.Remove(v)
			}
		})
	}
	delete(g.adj, v)
}

// Build constructs the interference graph for fn from its (already
// computed) liveness, walking each block backward from live-out and adding
// an edge between a definition and everything live past it -- the standard
// Chaitin construction. A value's live range additionally conflicts with
// every caller-saved register if it survives across a call in that range
// (spec.md's runtime ABI clobbers caller-saved registers on every call),
// recorded in RegConflicts rather than as a graph edge since the conflicting
// side is a physical register, not another SSA value.
func Build(fn *ir.Func, lv *ir.Liveness) *Graph {
	g := newGraph(fn)
	callerSaved := codegen.CallerSaved()

	for _, b := range fn.Blocks {
		live := utils.NewSet[*ir.Value]()
		lv.LiveOut[b].ForEach(func(v *ir.Value) {
			if needsReg(v) {
				live.Add(v)
			}
		})
		if b.Ctrl != nil && needsReg(b.Ctrl) {
			live.Add(b.Ctrl)
		}

		for i := len(b.Values) - 1; i >= 0; i-- {
			v := b.Values[i]

			if v.Op == ir.OpCall {
				live.ForEach(func(u *ir.Value) {
					if u == v {
						return
					}
					for _, reg := range callerSaved {
						g.addRegConflict(u, reg)
					}
				})
			}

			if needsReg(v) {
				live.ForEach(func(u *ir.Value) { g.addEdge(v, u) })
				g.addNode(v)
				live.Remove(v)
			}

			if v.Op != ir.OpPhi {
				for _, arg := range v.Args {
					if needsReg(arg) {
						live.Add(arg)
					}
				}
			}
		}
	}
	return g
}
