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
	"fmt"

	"mxc/ir"
	"mxc/utils"
)

// ------------------------------------------------------------------------------
// Lowering pass: colored SSA -> LIR
//
// Grounded on the teacher's compile/codegen/lower_x86.go -- same overall
// shape (lowerValue's op switch, lowerBlockControl's per-BlockKind tail,
// Lower's driver) -- but retargeted in three ways the teacher's 2-operand
// x86 backend didn't need:
//
//   - Every SSA value already has a physical register by the time this
//     runs (regalloc.Color has been applied and re-run until colorable), so
//     there is no NewVReg/virtual-register indirection left: an operand is
//     either a register straight out of the coloring or an immediate/symbol.
//   - Phis are never lowered here at all. The teacher's resolvePhi emits an
//     unconditional mov per phi argument inline, which breaks under a
//     register-swap cycle; this backend resolves phis up front with
//     EliminatePhis's cycle-safe parallel copy and receives the result as a
//     precomputed per-predecessor copy list (PhiCopies) to splice at each
//     predecessor's tail.
//   - RV32I's 3-operand R/I-type encodings mean arithmetic never needs the
//     teacher's "mov src to dst first" dance.

// blockLabel names a block's position within its own function.
func blockLabel(fn *ir.Func, block *ir.Block) Label {
	return Label{Name: fmt.Sprintf(".L%s_%d", fn.Name, block.Id)}
}

// FuncLIR is one function's LIR instruction stream, in block emission order.
type FuncLIR struct {
	Fn     *ir.Func
	Frame  *FrameLayout
	Order  []*ir.Block
	Instrs map[*ir.Block][]*Instruction
}

type lowerer struct {
	fn     *ir.Func
	color  map[*ir.Value]*PhyReg
	copies PhiCopies
	frame  *FrameLayout
	cur    []*Instruction
}

// Lower turns fn's colored, phi-eliminated, critical-edge-split SSA into a
// linear per-block LIR stream ready for asm_riscv.go.
func Lower(fn *ir.Func, color map[*ir.Value]*PhyReg, copies PhiCopies, frame *FrameLayout) *FuncLIR {
	out := &FuncLIR{Fn: fn, Frame: frame, Instrs: make(map[*ir.Block][]*Instruction)}
	l := &lowerer{fn: fn, color: color, copies: copies, frame: frame}
	for _, block := range fn.Blocks {
		l.cur = nil
		l.lowerBlock(block)
		out.Order = append(out.Order, block)
		out.Instrs[block] = l.cur
	}
	return out
}

func (l *lowerer) emit(op LIROp, result IOperand, args ...IOperand) *Instruction {
	ins := &Instruction{Op: op, Result: result, Args: args}
	l.cur = append(l.cur, ins)
	return ins
}

func (l *lowerer) reg(v *ir.Value) Reg {
	r, ok := l.color[v]
	utils.Assert(ok && r != nil, "value v%d was never colored", v.Id)
	return Reg{r}
}

// memOperand resolves a pointer-typed value used as a Load/Store address:
// an OpAlloca folds straight into its frame offset, everything else (a
// field/array/global address, or a loaded object pointer) is already
// sitting in a register and becomes a zero-offset Mem off that register.
func (l *lowerer) memOperand(ptr *ir.Value) Mem {
	if ptr.Op == ir.OpAlloca {
		return Mem{Base: FrameReg(), Offset: l.frame.Slots[ptr]}
	}
	return Mem{Base: l.reg(ptr).Phy, Offset: 0}
}

func (l *lowerer) lowerBlock(block *ir.Block) {
	for _, v := range block.Values {
		if v.Op == ir.OpPhi {
			continue // resolved into predecessor tails by EliminatePhis
		}
		l.lowerValue(v)
	}
	for _, ins := range l.copies[block] {
		l.cur = append(l.cur, ins)
	}
	l.lowerControl(block)
}

var arithOp = map[ir.Op]LIROp{
	ir.OpAdd: LIR_Add, ir.OpSub: LIR_Sub, ir.OpMul: LIR_Mul,
	ir.OpDiv: LIR_Div, ir.OpMod: LIR_Rem,
	ir.OpAnd: LIR_And, ir.OpOr: LIR_Or, ir.OpXor: LIR_Xor,
	ir.OpLShift: LIR_Sll, ir.OpRShift: LIR_Sra,
}

func (l *lowerer) lowerValue(v *ir.Value) {
	switch v.Op {
	case ir.OpCInt:
		l.emit(LIR_Li, l.reg(v), Imm{int32(v.Sym.(int))})
	case ir.OpCBool:
		b := int32(0)
		if v.Sym.(bool) {
			b = 1
		}
		l.emit(LIR_Li, l.reg(v), Imm{b})
	case ir.OpCNull:
		l.emit(LIR_Li, l.reg(v), Imm{0})
	case ir.OpCString:
		l.emit(LIR_La, l.reg(v), Sym{v.Sym.(string)})

	case ir.OpAdd, ir.OpSub, ir.OpMul, ir.OpDiv, ir.OpMod,
		ir.OpAnd, ir.OpOr, ir.OpXor, ir.OpLShift, ir.OpRShift:
		l.emit(arithOp[v.Op], l.reg(v), l.reg(v.Args[0]), l.reg(v.Args[1]))
	case ir.OpNeg:
		l.emit(LIR_Neg, l.reg(v), l.reg(v.Args[0]))
	case ir.OpNot:
		l.emit(LIR_Xor, l.reg(v), l.reg(v.Args[0]), Imm{-1})

	case ir.OpCmpLT:
		l.emit(LIR_Slt, l.reg(v), l.reg(v.Args[0]), l.reg(v.Args[1]))
	case ir.OpCmpGT:
		l.emit(LIR_Slt, l.reg(v), l.reg(v.Args[1]), l.reg(v.Args[0]))
	case ir.OpCmpLE:
		l.emit(LIR_Slt, l.reg(v), l.reg(v.Args[1]), l.reg(v.Args[0]))
		l.emit(LIR_Seqz, l.reg(v), l.reg(v))
	case ir.OpCmpGE:
		l.emit(LIR_Slt, l.reg(v), l.reg(v.Args[0]), l.reg(v.Args[1]))
		l.emit(LIR_Seqz, l.reg(v), l.reg(v))
	case ir.OpCmpEQ:
		l.emit(LIR_Sub, l.reg(v), l.reg(v.Args[0]), l.reg(v.Args[1]))
		l.emit(LIR_Seqz, l.reg(v), l.reg(v))
	case ir.OpCmpNE:
		l.emit(LIR_Sub, l.reg(v), l.reg(v.Args[0]), l.reg(v.Args[1]))
		l.emit(LIR_Snez, l.reg(v), l.reg(v))

	case ir.OpParam:
		// Params 1-8 arrive in a0-a7; the rest were pushed by the caller onto
		// its own frame, flush with its sp, which by the time this runs sits
		// l.frame.Size above ours -- spec.md §4.8.
		idx := v.Sym.(int)
		if idx < len(ArgRegs()) {
			l.emit(LIR_Mv, l.reg(v), Reg{ArgRegs()[idx]})
		} else {
			l.emit(LIR_Lw, l.reg(v), Mem{Base: Sp_, Offset: l.frame.Size + 4*(idx-len(ArgRegs()))})
		}

	case ir.OpCall:
		nargs := len(ArgRegs())
		for i, arg := range v.Args {
			if i < nargs {
				l.emit(LIR_Mv, Reg{ArgRegs()[i]}, l.reg(arg))
			} else {
				l.emit(LIR_Sw, nil, l.reg(arg), Mem{Base: Sp_, Offset: 4 * (i - nargs)})
			}
		}
		l.emit(LIR_Call, nil, Sym{v.Sym.(string)})
		if !v.Type.IsVoid() {
			l.emit(LIR_Mv, l.reg(v), Reg{RetReg()})
		}

	case ir.OpAlloca:
		// No instruction: its address is a compile-time frame offset.

	case ir.OpLoad:
		l.emit(LIR_Lw, l.reg(v), l.memOperand(v.Args[0]))
	case ir.OpStore:
		mem := l.memOperand(v.Args[0])
		l.emit(LIR_Sw, nil, l.reg(v.Args[1]), mem)

	case ir.OpFieldAddr:
		off := v.Sym.(int)
		l.emit(LIR_Add, l.reg(v), l.reg(v.Args[0]), Imm{int32(off)})
	case ir.OpIndexAddr:
		l.emit(LIR_Sll, l.reg(v), l.reg(v.Args[1]), Imm{2})
		l.emit(LIR_Add, l.reg(v), l.reg(v), l.reg(v.Args[0]))
	case ir.OpArrayLen:
		l.emit(LIR_Lw, l.reg(v), Mem{Base: l.reg(v.Args[0]).Phy, Offset: -4})
	case ir.OpGlobalAddr:
		l.emit(LIR_La, l.reg(v), Sym{v.Sym.(string)})

	default:
		utils.Unimplement()
	}
}

func (l *lowerer) lowerControl(block *ir.Block) {
	switch block.Kind {
	case ir.BlockGoto:
		l.emit(LIR_J, nil, blockLabel(l.fn, block.Succs[0]))
	case ir.BlockReturn:
		if block.Ctrl != nil {
			l.emit(LIR_Mv, Reg{RetReg()}, l.reg(block.Ctrl))
		}
		l.emit(LIR_Ret, nil)
	case ir.BlockIf:
		l.emit(LIR_Bnez, nil, l.reg(block.Ctrl), blockLabel(l.fn, block.Succs[0]))
		l.emit(LIR_J, nil, blockLabel(l.fn, block.Succs[1]))
	}
}
