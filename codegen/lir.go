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

import "fmt"

// ------------------------------------------------------------------------------
// Low-level Intermediate Representation (LIR)
//
// Unlike x86-64's 2-operand form (where the teacher's lir.go has to mov a
// value into the result register before operating on it), RV32I's R-type
// and I-type encodings are natively 3-operand (rd, rs1, rs2/imm), so an LIR
// instruction here already names its destination separately from its
// sources -- no extra mov needs synthesizing during lowering. Every LIROp is
// named after the RV32I mnemonic (or documented pseudo-op) it emits almost
// verbatim; Mx* has no float/long/short/byte types (spec.md §3), so unlike
// the teacher's LIRType there is exactly one width here.
type LIROp int

const (
	LIR_Add LIROp = iota
	LIR_Sub
	LIR_Mul
	LIR_Div
	LIR_Rem
	LIR_And
	LIR_Or
	LIR_Xor
	LIR_Sll
	LIR_Sra
	LIR_Slt  // rd = (rs1 < rs2) ? 1 : 0
	LIR_Seqz // rd = (rs1 == 0) ? 1 : 0, pseudo for sltiu rd, rs1, 1
	LIR_Snez // rd = (rs1 != 0) ? 1 : 0, pseudo for sltu rd, zero, rs1
	LIR_Neg  // pseudo for sub rd, zero, rs1
	LIR_Mv
	LIR_Li
	LIR_La
	LIR_Lw
	LIR_Sw
	LIR_Call
	LIR_Ret
	LIR_J
	LIR_Beqz
	LIR_Bnez
)

func (x LIROp) String() string {
	switch x {
	case LIR_Add:
		return "add"
	case LIR_Sub:
		return "sub"
	case LIR_Mul:
		return "mul"
	case LIR_Div:
		return "div"
	case LIR_Rem:
		return "rem"
	case LIR_And:
		return "and"
	case LIR_Or:
		return "or"
	case LIR_Xor:
		return "xor"
	case LIR_Sll:
		return "sll"
	case LIR_Sra:
		return "sra"
	case LIR_Slt:
		return "slt"
	case LIR_Seqz:
		return "seqz"
	case LIR_Snez:
		return "snez"
	case LIR_Neg:
		return "neg"
	case LIR_Mv:
		return "mv"
	case LIR_Li:
		return "li"
	case LIR_La:
		return "la"
	case LIR_Lw:
		return "lw"
	case LIR_Sw:
		return "sw"
	case LIR_Call:
		return "call"
	case LIR_Ret:
		return "ret"
	case LIR_J:
		return "j"
	case LIR_Beqz:
		return "beqz"
	case LIR_Bnez:
		return "bnez"
	}
	return "<unknown>"
}

// IOperand is anything an Instruction can name as a source or destination.
type IOperand interface {
	String() string
}

// Reg wraps a colored physical register.
type Reg struct{ Phy *PhyReg }

func (r Reg) String() string { return r.Phy.String() }

// Imm is a 32-bit signed immediate, split into a lui+addi pair by the
// assembler when it doesn't fit RV32I's 12-bit I-type field.
type Imm struct{ Value int32 }

func (i Imm) String() string { return fmt.Sprintf("%d", i.Value) }

// Mem is a `offset(base)` memory operand -- a local/spill slot (`Base ==
// FrameReg()`) or a struct field / array element (any other base register).
type Mem struct {
	Base   *PhyReg
	Offset int
}

func (m Mem) String() string { return fmt.Sprintf("%d(%s)", m.Offset, m.Base) }

// Label names a basic block's position in the function body, e.g. `.L3`.
type Label struct{ Name string }

func (l Label) String() string { return l.Name }

// Sym is an un-mangled linker symbol: a function (`print`, `Foo.bar`), a
// string literal (`.str.0`), or a global variable.
type Sym struct{ Name string }

func (s Sym) String() string { return s.Name }

// Instruction is one LIR op with its destination (may be nil, e.g. for a
// store or branch) and its source operands.
type Instruction struct {
	Op      LIROp
	Result  IOperand
	Args    []IOperand
	Comment string
}

func (ins *Instruction) String() string {
	s := ins.Op.String()
	if ins.Result != nil {
		s += " " + ins.Result.String()
	}
	for _, a := range ins.Args {
		s += ", " + a.String()
	}
	return s
}
