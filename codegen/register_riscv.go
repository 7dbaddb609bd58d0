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

// Package codegen lowers colored SSA into RV32IM assembly text.
package codegen

// PhyReg names one of RV32I's 32 integer registers by its ABI mnemonic.
type PhyReg struct {
	index int
	name  string
}

func (r *PhyReg) Index() int    { return r.index }
func (r *PhyReg) String() string { return r.name }

func defPhyReg(index int, name string) *PhyReg {
	return &PhyReg{index: index, name: name}
}

// The 32 RV32I integer registers, named per the standard ABI.
var (
	Zero_ = defPhyReg(0, "zero")
	Ra_   = defPhyReg(1, "ra")
	Sp_   = defPhyReg(2, "sp")
	Gp_   = defPhyReg(3, "gp")
	Tp_   = defPhyReg(4, "tp")
	T0_   = defPhyReg(5, "t0")
	T1_   = defPhyReg(6, "t1")
	T2_   = defPhyReg(7, "t2")
	S0_   = defPhyReg(8, "s0") // frame pointer
	S1_   = defPhyReg(9, "s1")
	A0_   = defPhyReg(10, "a0")
	A1_   = defPhyReg(11, "a1")
	A2_   = defPhyReg(12, "a2")
	A3_   = defPhyReg(13, "a3")
	A4_   = defPhyReg(14, "a4")
	A5_   = defPhyReg(15, "a5")
	A6_   = defPhyReg(16, "a6")
	A7_   = defPhyReg(17, "a7")
	S2_   = defPhyReg(18, "s2")
	S3_   = defPhyReg(19, "s3")
	S4_   = defPhyReg(20, "s4")
	S5_   = defPhyReg(21, "s5")
	S6_   = defPhyReg(22, "s6")
	S7_   = defPhyReg(23, "s7")
	S8_   = defPhyReg(24, "s8")
	S9_   = defPhyReg(25, "s9")
	S10_  = defPhyReg(26, "s10")
	S11_  = defPhyReg(27, "s11")
	T3_   = defPhyReg(28, "t3")
	T4_   = defPhyReg(29, "t4")
	T5_   = defPhyReg(30, "t5")
	T6_   = defPhyReg(31, "t6")
)

// AllRegs indexes every physical register by its RV32I encoding.
var AllRegs = []*PhyReg{
	Zero_, Ra_, Sp_, Gp_, Tp_, T0_, T1_, T2_, S0_, S1_,
	A0_, A1_, A2_, A3_, A4_, A5_, A6_, A7_,
	S2_, S3_, S4_, S5_, S6_, S7_, S8_, S9_, S10_, S11_,
	T3_, T4_, T5_, T6_,
}

// AllocatableRegs is the register-allocator's universe of colors: every
// integer register except zero/ra/sp/gp/tp (wired hardware meaning), s0
// (reserved as this module's frame pointer, mirroring the teacher's x86
// RBP_-as-frame-pointer convention) and t0 (reserved as the scratch register
// used by phi-elimination's cycle-breaking copy and by spill-rewrite
// load/store sequences). 25 registers remain, so k = 25 at coloring time.
var AllocatableRegs = []*PhyReg{
	T1_, T2_, S1_,
	A0_, A1_, A2_, A3_, A4_, A5_, A6_, A7_,
	S2_, S3_, S4_, S5_, S6_, S7_, S8_, S9_, S10_, S11_,
	T3_, T4_, T5_, T6_,
}

// K is the number of allocatable colors the register allocator may use.
func K() int { return len(AllocatableRegs) }

// ScratchReg is reserved outside AllocatableRegs for spill-code and
// parallel-copy cycle breaking; it is never a coloring candidate.
func ScratchReg() *PhyReg { return T0_ }

// FrameReg is this backend's frame pointer, used for all local/spill-slot
// addressing (`fp - offset`).
func FrameReg() *PhyReg { return S0_ }

// ArgRegs are the eight ILP32 integer argument/return registers, in order.
func ArgRegs() []*PhyReg { return []*PhyReg{A0_, A1_, A2_, A3_, A4_, A5_, A6_, A7_} }

// RetReg is the ILP32 integer return-value register.
func RetReg() *PhyReg { return A0_ }

// CallerSaved lists registers a call may clobber: ra, the argument registers
// a0-a7, and every temporary t0-t6 (all caller-saved by the standard ABI;
// t0 doubles as this backend's scratch so it never needs explicit saving
// around a call).
func CallerSaved() []*PhyReg {
	return []*PhyReg{Ra_, T0_, T1_, T2_, A0_, A1_, A2_, A3_, A4_, A5_, A6_, A7_,
		T3_, T4_, T5_, T6_}
}

// CalleeSaved lists registers a callee must preserve across a call,
// restricting what the allocator may choose to spill across call sites
// without extra save/restore code: s1-s11 plus the frame pointer s0.
func CalleeSaved() []*PhyReg {
	return []*PhyReg{S0_, S1_, S2_, S3_, S4_, S5_, S6_, S7_, S8_, S9_, S10_, S11_}
}
