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

// ------------------------------------------------------------------------------
// Dominator tree
//
// There are some general dominator definitions:
// * Dominators: a dom b if all paths from entry to block b include a
// * Strict Dominators: a sdom b if a dom b and a != b
// * Immediate Dominators: a idom b if a sdom b and there is no block c such that
// a sdom c sdom b
//
// This is an iterative dataflow algorithm, O(n^2) in the worst case -- fine
// for the function sizes Mx* programs produce.
type DomTree struct {
	Func *Func
	Dom  map[*Block][]*Block
	IDom map[*Block]*Block
}

// a dom b if all paths from entry to block b include a
func (dt *DomTree) IsDominate(a, b *Block) bool {
	for _, dom := range dt.Dom[b] {
		if dom == a {
			return true
		}
	}
	return false
}

// a sdom b if a dom b and a != b
func (dt *DomTree) IsSDominate(a, b *Block) bool {
	return dt.IsDominate(a, b) && a != b
}

// a idom b if a sdom b and there is no block c such that a sdom c sdom b
func (dt *DomTree) IsIDominate(a, b *Block) bool {
	if !dt.IsSDominate(a, b) {
		return false
	}
	for _, c := range dt.Dom[b] {
		if c != a && c != b && dt.IsSDominate(a, c) {
			return false
		}
	}
	return true
}

func intersect(a []*Block, b []*Block) []*Block {
	if len(a) > len(b) {
		a, b = b, a
	}
	res := make([]*Block, 0, len(a))
	for _, x := range a {
		for _, y := range b {
			if x == y {
				res = append(res, x)
				break
			}
		}
	}
	return res
}

func union(a []*Block, b []*Block) []*Block {
	m := make(map[*Block]bool)
	for _, x := range a {
		m[x] = true
	}
	for _, x := range b {
		m[x] = true
	}
	res := make([]*Block, 0, len(m))
	for x := range m {
		res = append(res, x)
	}
	return res
}

func (dt *DomTree) String() string {
	s := "== Dom Tree:\n"
	for block, doms := range dt.Dom {
		s += fmt.Sprintf("b%d", block.Id)
		s += ":"
		for _, dom := range doms {
			s += fmt.Sprintf(" b%d", dom.Id)
		}
		s += "\n"
	}
	return s
}

func BuildDomTree(fn *Func) *DomTree {
	dom := make(map[*Block][]*Block, len(fn.Blocks))
	dom[fn.Entry] = []*Block{fn.Entry}
	for _, block := range fn.Blocks {
		if block == fn.Entry {
			continue
		}
		dom[block] = fn.Blocks
	}

	changed := true
	for changed {
		changed = false
		for _, block := range fn.Blocks {
			if block == fn.Entry {
				continue
			}
			var newdom []*Block
			if len(block.Preds) > 0 {
				newdom = dom[block.Preds[0]]
				for _, pred := range block.Preds[1:] {
					newdom = intersect(newdom, dom[pred])
				}
			}
			newdom = union(newdom, []*Block{block})
			if len(newdom) != len(dom[block]) {
				changed = true
				dom[block] = newdom
			}
		}
	}

	dt := &DomTree{Func: fn, Dom: dom, IDom: make(map[*Block]*Block)}
	for _, block := range fn.Blocks {
		if block == fn.Entry {
			continue
		}
		var idom *Block
		for _, c := range dom[block] {
			if c == block {
				continue
			}
			if idom == nil || len(dom[c]) > len(dom[idom]) {
				idom = c
			}
		}
		dt.IDom[block] = idom
	}
	return dt
}

// Children returns the blocks whose immediate dominator is b, i.e. b's
// children in the dominator tree.
func (dt *DomTree) Children(b *Block) []*Block {
	var kids []*Block
	for _, blk := range dt.Func.Blocks {
		if dt.IDom[blk] == b {
			kids = append(kids, blk)
		}
	}
	return kids
}

// DominanceFrontier computes, for every block, the standard Cytron et al.
// dominance frontier: DF(n) holds every block y such that n dominates an
// immediate predecessor of y but n does not strictly dominate y itself. This
// is exactly the set of join points at which Mem2Reg must insert a phi for a
// variable assigned in n.
func (dt *DomTree) DominanceFrontier() map[*Block][]*Block {
	df := make(map[*Block][]*Block)
	for _, y := range dt.Func.Blocks {
		if len(y.Preds) < 2 {
			continue
		}
		for _, p := range y.Preds {
			runner := p
			for runner != nil && runner != dt.IDom[y] {
				df[runner] = append(df[runner], y)
				runner = dt.IDom[runner]
			}
		}
	}
	return df
}

// Verify the dominance relationship of a function
func VerifyDom(fn *Func) {
	domTree := BuildDomTree(fn)
	for _, block := range fn.Blocks {
		for _, val := range block.Values {
			for _, use := range val.Uses {
				if use.Op == OpPhi {
					for ipred, pred := range use.Block.Preds {
						phiArg := use.Args[ipred]
						if !domTree.IsDominate(phiArg.Block, pred) {
							fmt.Printf("%v\n", fn)
							fmt.Printf("%v\n", domTree)
							utils.Fatal("b%v does not dominate b%d",
								phiArg.Block.Id, pred.Id)
						}
					}
					continue
				}
				if !domTree.IsDominate(val.Block, use.Block) {
					fmt.Printf("%v", fn)
					utils.Fatal("def v%d(b%d) does not dominate its use v%d(b%d)",
						val.Id, val.Block.Id, use.Id, use.Block.Id)
				}
			}
		}
	}
}
