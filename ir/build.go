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

	"mxc/ast"
)

// GlobalVar is a package-level `let` whose storage lives in the data
// section rather than on any function's frame.
type GlobalVar struct {
	Name   string
	Symbol string
	Type   *ast.Type
	// ConstInit holds the literal initializer when one is a compile-time
	// constant (so the emitter can place it directly in .data); non-const
	// initializers instead run inside InitFunc.
	ConstInit ast.AstExpr
}

// Program is the whole translation unit's IR: one Func per free function,
// method, and constructor, plus the deduplicated string pool and global
// variable table codegen needs to emit the data section.
type Program struct {
	Funcs    []*Func
	Globals  []*GlobalVar
	Strings  map[string]string // content -> deduplicated symbol, iterate via StringOrder for first-seen order
	StringOrder []string
	InitFunc *Func // synthesized __mxc_init, nil if every global is constant
}

// AsmName is the linker symbol for fn: the bare name for free functions and
// builtins, "<ClassName>.<methodName>" for methods and constructors per
// spec.md's runtime ABI / emitter contract.
func AsmName(fn *ast.FuncDecl) string {
	return fn.QualifiedName()
}

type builder struct {
	pkg     *ast.PackageDecl
	classes map[string]*ast.ClassLayout
	funcs   map[string]*ast.FuncDecl // QualifiedName() -> decl, same keying as ast.Infer

	globalTypes map[string]*ast.Type
	globalSyms  map[string]string

	fn     *Func
	block  *Block
	scopes []map[string]*Value // name -> address (OpAlloca result)

	breakTargets    []*Block
	continueTargets []*Block

	strings     map[string]string
	stringOrder []string
	stringSeq   int
}

// BuildProgram lowers a fully type-checked package to IR. Must run after
// ast.BuildClassLayouts, ast.ResolveAllTypes, ast.InferTypes and
// ast.TypeCheck.
func BuildProgram(pkg *ast.PackageDecl, classes map[string]*ast.ClassLayout) *Program {
	b := &builder{
		pkg:         pkg,
		classes:     classes,
		funcs:       make(map[string]*ast.FuncDecl),
		globalTypes: make(map[string]*ast.Type),
		globalSyms:  make(map[string]string),
		strings:     make(map[string]string),
	}
	for _, fn := range ast.BuiltinFuncs() {
		b.funcs[fn.Name] = fn
	}
	for _, fn := range pkg.AllFuncs() {
		b.funcs[fn.QualifiedName()] = fn
	}

	prog := &Program{}
	var nonConstGlobals []*ast.LetStmt
	for _, g := range pkg.Globals {
		sym := "g_" + g.Name
		b.globalTypes[g.Name] = g.Type
		b.globalSyms[g.Name] = sym
		gv := &GlobalVar{Name: g.Name, Symbol: sym, Type: g.Type}
		if isConstExpr(g.Init) {
			gv.ConstInit = g.Init
		} else {
			nonConstGlobals = append(nonConstGlobals, g)
		}
		prog.Globals = append(prog.Globals, gv)
	}

	if len(nonConstGlobals) > 0 {
		b.fn = NewFunc("__mxc_init")
		entry := b.fn.NewBlock(BlockGoto)
		entry.Hint = HintEntry
		b.fn.Entry = entry
		b.block = entry
		b.scopes = []map[string]*Value{{}}
		for _, g := range nonConstGlobals {
			val := b.buildExpr(g.Init)
			addr := b.block.NewValue(OpGlobalAddr, g.Type)
			addr.Sym = b.globalSyms[g.Name]
			b.emitStore(addr, val)
		}
		b.block.Kind = BlockReturn
		prog.InitFunc = b.fn
	}

	for _, fn := range pkg.Funcs {
		prog.Funcs = append(prog.Funcs, b.buildFunc(fn))
	}
	for _, cd := range pkg.Classes {
		prog.Funcs = append(prog.Funcs, b.buildFunc(cd.Ctor))
		for _, m := range cd.Methods {
			prog.Funcs = append(prog.Funcs, b.buildFunc(m))
		}
	}

	prog.Strings = b.strings
	prog.StringOrder = b.stringOrder
	return prog
}

func isConstExpr(e ast.AstExpr) bool {
	if e == nil {
		return true
	}
	switch e.(type) {
	case *ast.IntExpr, *ast.BoolExpr, *ast.NullExpr:
		return true
	}
	return false
}

func (b *builder) buildFunc(decl *ast.FuncDecl) *Func {
	fn := NewFunc(AsmName(decl))
	fn.RetType = decl.RetType
	fn.Params = decl.Params
	entry := fn.NewBlock(BlockGoto)
	entry.Hint = HintEntry
	fn.Entry = entry

	prevFn, prevBlock, prevScopes := b.fn, b.block, b.scopes
	b.fn, b.block = fn, entry
	b.scopes = []map[string]*Value{{}}

	paramIdx := 0
	if decl.Recv != "" {
		thisAddr := b.declareLocal("this", ast.NewClassType(b.classes[decl.Recv]))
		p := entry.NewValue(OpParam, thisAddr.Type.ElemType)
		p.Sym = paramIdx
		b.emitStore(thisAddr, p)
		paramIdx++
	}
	for _, param := range decl.Params {
		addr := b.declareLocal(param.Name, param.Type)
		p := entry.NewValue(OpParam, param.Type)
		p.Sym = paramIdx
		b.emitStore(addr, p)
		paramIdx++
	}

	if decl.Body != nil {
		b.buildBlock(decl.Body)
	}
	if !b.terminated() {
		if decl.RetType.IsVoid() {
			b.block.Kind = BlockReturn
		} else {
			// Only reachable for a function whose static control flow the
			// checker accepted despite a missing return on some path (the
			// spec leaves this undefined); return a
			// zeroed value of the declared type rather than falling off
			// the end of the function.
			zero := b.zeroValue(decl.RetType)
			b.block.Kind = BlockReturn
			zero.AddUseBlock(b.block)
		}
	}

	b.fn, b.block, b.scopes = prevFn, prevBlock, prevScopes

	Mem2Reg(fn)
	OptimizeHIR(fn, false)
	return fn
}

// -----------------------------------------------------------------------------
// Scopes

func (b *builder) pushScope()           { b.scopes = append(b.scopes, map[string]*Value{}) }
func (b *builder) popScope()            { b.scopes = b.scopes[:len(b.scopes)-1] }
func (b *builder) declareLocal(name string, t *ast.Type) *Value {
	addr := b.block.NewValue(OpAlloca, PtrType(t))
	b.scopes[len(b.scopes)-1][name] = addr
	return addr
}

// PtrType tags an address value with the type it points to; the IR has no
// separate pointer-type lattice, so Load/Store/FieldAddr/IndexAddr all carry
// the pointee type directly and codegen treats every address as a plain
// 4-byte register value. Exported for regalloc's spill rewrite, which needs
// to manufacture fresh allocas the same way the builder does.
func PtrType(pointee *ast.Type) *ast.Type {
	return &ast.Type{Kind: pointee.Kind, ElemType: pointee, Class: pointee.Class, ClassName: pointee.ClassName}
}

func (b *builder) lookupAddr(name string) *Value {
	for i := len(b.scopes) - 1; i >= 0; i-- {
		if v, ok := b.scopes[i][name]; ok {
			return v
		}
	}
	return nil
}

func (b *builder) internString(content string) string {
	if sym, ok := b.strings[content]; ok {
		return sym
	}
	sym := fmt.Sprintf(".str.%d", b.stringSeq)
	b.stringSeq++
	b.strings[content] = sym
	b.stringOrder = append(b.stringOrder, content)
	return sym
}

// -----------------------------------------------------------------------------
// Control-flow bookkeeping

func (b *builder) switchBlock(blk *Block) { b.block = blk }

func (b *builder) terminated() bool {
	return b.block.Kind == BlockReturn || len(b.block.Succs) > 0
}

func (b *builder) emitLoad(addr *Value, t *ast.Type) *Value {
	return b.block.NewValue(OpLoad, t, addr)
}

func (b *builder) emitStore(addr *Value, val *Value) *Value {
	return b.block.NewValue(OpStore, ast.TVoid, addr, val)
}

func (b *builder) constInt(v int) *Value {
	val := b.block.NewValue(OpCInt, ast.TInt)
	val.Sym = v
	return val
}

func (b *builder) constBool(v bool) *Value {
	val := b.block.NewValue(OpCBool, ast.TBool)
	val.Sym = v
	return val
}

func (b *builder) zeroValue(t *ast.Type) *Value {
	switch {
	case t.IsInt():
		return b.constInt(0)
	case t.IsBool():
		return b.constBool(false)
	default:
		return b.block.NewValue(OpCNull, t)
	}
}

// -----------------------------------------------------------------------------
// Statements

func (b *builder) buildBlock(blk *ast.BlockStmt) {
	b.pushScope()
	b.buildStmtList(blk.Stmts)
	b.popScope()
}

func (b *builder) buildStmtList(stmts []ast.AstStmt) {
	for _, s := range stmts {
		b.buildStmt(s)
		if b.terminated() {
			return
		}
	}
}

func (b *builder) buildStmt(s ast.AstStmt) {
	switch s := s.(type) {
	case *ast.ExprStmt:
		b.buildExprStmt(s.Expr)
	case *ast.LetStmt:
		addr := b.declareLocal(s.Name, s.Type)
		if s.Init != nil {
			b.emitStore(addr, b.buildExpr(s.Init))
		} else {
			b.emitStore(addr, b.zeroValue(s.Type))
		}
	case *ast.ReturnStmt:
		if s.Expr != nil {
			v := b.buildExpr(s.Expr)
			b.block.Kind = BlockReturn
			v.AddUseBlock(b.block)
		} else {
			b.block.Kind = BlockReturn
		}
	case *ast.IfStmt:
		b.buildIf(s)
	case *ast.WhileStmt:
		b.buildWhile(s)
	case *ast.ForStmt:
		b.buildFor(s)
	case *ast.BreakStmt:
		b.block.WireTo(b.breakTargets[len(b.breakTargets)-1])
	case *ast.ContinueStmt:
		b.block.WireTo(b.continueTargets[len(b.continueTargets)-1])
	case *ast.BlockStmt:
		b.buildBlock(s)
	}
}

// buildExprStmt lowers an expression used for effect: a plain call, or an
// assignment (AssignExpr is only ever produced by the parser at statement
// position, never nested, so it's handled here rather than in buildExpr).
func (b *builder) buildExprStmt(e ast.AstExpr) {
	if assign, ok := e.(*ast.AssignExpr); ok {
		b.buildAssign(assign)
		return
	}
	b.buildExpr(e)
}

func (b *builder) buildAssign(a *ast.AssignExpr) {
	addr := b.buildAddr(a.Left)
	rhs := b.buildExpr(a.Right)
	if a.Op.IsCompoundAssign() {
		old := b.emitLoad(addr, a.Left.GetType())
		rhs = b.emitBinary(a.Op.UnderlyingOp(), old, rhs, a.Left.GetType())
	}
	b.emitStore(addr, rhs)
}

func (b *builder) buildIf(s *ast.IfStmt) {
	thenBlk := b.fn.NewBlock(BlockGoto)
	elseBlk := b.fn.NewBlock(BlockGoto)
	joinBlk := b.fn.NewBlock(BlockGoto)

	b.buildCond(s.Cond, thenBlk, elseBlk)

	b.switchBlock(thenBlk)
	b.buildBlock(s.Then)
	if !b.terminated() {
		b.block.WireTo(joinBlk)
	}

	b.switchBlock(elseBlk)
	if s.Else != nil {
		b.buildStmt(s.Else)
	}
	if !b.terminated() {
		b.block.WireTo(joinBlk)
	}

	b.switchBlock(joinBlk)
}

func (b *builder) buildWhile(s *ast.WhileStmt) {
	condBlk := b.fn.NewBlock(BlockGoto)
	condBlk.Hint = HintLoopHeader
	bodyBlk := b.fn.NewBlock(BlockGoto)
	exitBlk := b.fn.NewBlock(BlockGoto)

	b.block.WireTo(condBlk)
	b.switchBlock(condBlk)
	b.buildCond(s.Cond, bodyBlk, exitBlk)

	b.breakTargets = append(b.breakTargets, exitBlk)
	b.continueTargets = append(b.continueTargets, condBlk)
	b.switchBlock(bodyBlk)
	b.buildBlock(s.Body)
	if !b.terminated() {
		b.block.WireTo(condBlk)
	}
	b.breakTargets = b.breakTargets[:len(b.breakTargets)-1]
	b.continueTargets = b.continueTargets[:len(b.continueTargets)-1]

	b.switchBlock(exitBlk)
}

func (b *builder) buildFor(s *ast.ForStmt) {
	b.pushScope()
	if s.Init != nil {
		b.buildStmt(s.Init)
	}

	condBlk := b.fn.NewBlock(BlockGoto)
	condBlk.Hint = HintLoopHeader
	bodyBlk := b.fn.NewBlock(BlockGoto)
	postBlk := b.fn.NewBlock(BlockGoto)
	exitBlk := b.fn.NewBlock(BlockGoto)

	b.block.WireTo(condBlk)
	b.switchBlock(condBlk)
	if s.Cond != nil {
		b.buildCond(s.Cond, bodyBlk, exitBlk)
	} else {
		b.block.Kind = BlockGoto
		b.block.WireTo(bodyBlk)
	}

	b.breakTargets = append(b.breakTargets, exitBlk)
	b.continueTargets = append(b.continueTargets, postBlk)
	b.switchBlock(bodyBlk)
	b.buildBlock(s.Body)
	if !b.terminated() {
		b.block.WireTo(postBlk)
	}
	b.breakTargets = b.breakTargets[:len(b.breakTargets)-1]
	b.continueTargets = b.continueTargets[:len(b.continueTargets)-1]

	b.switchBlock(postBlk)
	if s.Post != nil {
		b.buildStmt(s.Post)
	}
	if !b.terminated() {
		b.block.WireTo(condBlk)
	}

	b.switchBlock(exitBlk)
	b.popScope()
}

// buildCond lowers e for its truth value alone, branching directly to
// trueBlk/falseBlk without ever materializing a boolean SSA value for `&&`,
// `||` and `!` -- the classic short-circuit control-flow expansion.
func (b *builder) buildCond(e ast.AstExpr, trueBlk, falseBlk *Block) {
	switch e := e.(type) {
	case *ast.BinaryExpr:
		if e.Op == ast.TK_LOGAND {
			rhsBlk := b.fn.NewBlock(BlockGoto)
			b.buildCond(e.Left, rhsBlk, falseBlk)
			b.switchBlock(rhsBlk)
			b.buildCond(e.Right, trueBlk, falseBlk)
			return
		}
		if e.Op == ast.TK_LOGOR {
			rhsBlk := b.fn.NewBlock(BlockGoto)
			b.buildCond(e.Left, trueBlk, rhsBlk)
			b.switchBlock(rhsBlk)
			b.buildCond(e.Right, trueBlk, falseBlk)
			return
		}
	case *ast.UnaryExpr:
		if e.Op == ast.TK_LOGNOT {
			b.buildCond(e.Left, falseBlk, trueBlk)
			return
		}
	}
	cond := b.buildExpr(e)
	b.block.Kind = BlockIf
	b.block.WireTo(trueBlk)
	b.block.WireTo(falseBlk)
	cond.AddUseBlock(b.block)
}

// -----------------------------------------------------------------------------
// Expressions

func (b *builder) buildAddr(e ast.AstExpr) *Value {
	switch e := e.(type) {
	case *ast.VarExpr:
		if addr := b.lookupAddr(e.Name); addr != nil {
			return addr
		}
		if _, isGlobal := b.globalSyms[e.Name]; !isGlobal {
			// A bare field name inside a method or constructor: this.<name>.
			thisAddr := b.lookupAddr("this")
			base := b.emitLoad(thisAddr, thisAddr.Type.ElemType)
			slot, _ := base.Type.Class.Field(e.Name)
			addr := b.block.NewValue(OpFieldAddr, slot.Type, base)
			addr.Sym = slot.Offset
			return addr
		}
		addr := b.block.NewValue(OpGlobalAddr, b.globalTypes[e.Name])
		addr.Sym = b.globalSyms[e.Name]
		return addr
	case *ast.FieldExpr:
		base := b.buildExpr(e.Object)
		slot, _ := base.Type.Class.Field(e.Field)
		addr := b.block.NewValue(OpFieldAddr, slot.Type, base)
		addr.Sym = slot.Offset
		return addr
	case *ast.IndexExpr:
		base := b.buildExpr(e.Array)
		idx := b.buildExpr(e.Index)
		addr := b.block.NewValue(OpIndexAddr, base.Type.ElemType, base, idx)
		return addr
	default:
		panic(fmt.Sprintf("not an lvalue: %v", e))
	}
}

func (b *builder) buildExpr(e ast.AstExpr) *Value {
	switch e := e.(type) {
	case *ast.IntExpr:
		v := b.block.NewValue(OpCInt, ast.TInt)
		v.Sym = e.Value
		return v
	case *ast.BoolExpr:
		return b.constBool(e.Value)
	case *ast.StrExpr:
		v := b.block.NewValue(OpCString, ast.TString)
		v.Sym = b.internString(e.Value)
		return v
	case *ast.NullExpr:
		return b.block.NewValue(OpCNull, ast.TNull)
	case *ast.ThisExpr:
		addr := b.lookupAddr("this")
		return b.emitLoad(addr, addr.Type.ElemType)
	case *ast.VarExpr:
		addr := b.buildAddr(e)
		return b.emitLoad(addr, e.GetType())
	case *ast.UnaryExpr:
		return b.buildUnary(e)
	case *ast.BinaryExpr:
		return b.buildBinary(e)
	case *ast.TernaryExpr:
		return b.buildTernary(e)
	case *ast.IndexExpr:
		addr := b.buildAddr(e)
		return b.emitLoad(addr, e.GetType())
	case *ast.FieldExpr:
		addr := b.buildAddr(e)
		return b.emitLoad(addr, e.GetType())
	case *ast.ArraySizeExpr:
		base := b.buildExpr(e.Array)
		return b.block.NewValue(OpArrayLen, ast.TInt, base)
	case *ast.FuncCallExpr:
		callee := b.funcs[e.Name]
		args := make([]*Value, len(e.Args))
		for i, a := range e.Args {
			args[i] = b.buildExpr(a)
		}
		call := b.block.NewValue(OpCall, e.GetType(), args...)
		call.Sym = AsmName(callee)
		return call
	case *ast.MethodCallExpr:
		obj := b.buildExpr(e.Object)
		if e.Object.GetType().IsString() {
			args := make([]*Value, len(e.Args)+1)
			args[0] = obj
			for i, a := range e.Args {
				args[i+1] = b.buildExpr(a)
			}
			call := b.block.NewValue(OpCall, e.GetType(), args...)
			call.Sym = "string." + e.Method
			return call
		}
		callee := b.funcs[obj.Type.Class.Name+"."+e.Method]
		args := make([]*Value, len(e.Args)+1)
		args[0] = obj
		for i, a := range e.Args {
			args[i+1] = b.buildExpr(a)
		}
		call := b.block.NewValue(OpCall, e.GetType(), args...)
		call.Sym = AsmName(callee)
		return call
	case *ast.NewObjectExpr:
		return b.buildNewObject(e)
	case *ast.NewArrayExpr:
		return b.buildNewArray(e)
	}
	panic(fmt.Sprintf("unhandled expression %v", e))
}

func (b *builder) buildUnary(e *ast.UnaryExpr) *Value {
	switch e.Op {
	case ast.TK_MINUS:
		v := b.buildExpr(e.Left)
		return b.block.NewValue(OpNeg, ast.TInt, v)
	case ast.TK_BITNOT:
		v := b.buildExpr(e.Left)
		return b.block.NewValue(OpNot, ast.TInt, v)
	case ast.TK_LOGNOT:
		v := b.buildExpr(e.Left)
		return b.block.NewValue(OpXor, ast.TBool, v, b.constInt(1))
	}
	panic("unhandled unary operator")
}

// stringRuntimeOp maps a comparison token to its string.* runtime ABI
// helper, or "" if op isn't a string-applicable comparison.
func stringRuntimeOp(op ast.TokenKind) string {
	switch op {
	case ast.TK_EQ:
		return "string.eq"
	case ast.TK_NE:
		return "string.ne"
	case ast.TK_LT:
		return "string.lt"
	case ast.TK_LE:
		return "string.le"
	case ast.TK_GT:
		return "string.gt"
	case ast.TK_GE:
		return "string.ge"
	}
	return ""
}

func (b *builder) emitBinary(op ast.TokenKind, l, r *Value, t *ast.Type) *Value {
	if op == ast.TK_PLUS && t.IsString() {
		call := b.block.NewValue(OpCall, ast.TString, l, r)
		call.Sym = "string.add"
		return call
	}
	switch op {
	case ast.TK_PLUS:
		return b.block.NewValue(OpAdd, t, l, r)
	case ast.TK_MINUS:
		return b.block.NewValue(OpSub, t, l, r)
	case ast.TK_TIMES:
		return b.block.NewValue(OpMul, t, l, r)
	case ast.TK_DIV:
		return b.block.NewValue(OpDiv, t, l, r)
	case ast.TK_MOD:
		return b.block.NewValue(OpMod, t, l, r)
	case ast.TK_BITAND:
		return b.block.NewValue(OpAnd, t, l, r)
	case ast.TK_BITOR:
		return b.block.NewValue(OpOr, t, l, r)
	case ast.TK_BITXOR:
		return b.block.NewValue(OpXor, t, l, r)
	case ast.TK_LSHIFT:
		return b.block.NewValue(OpLShift, t, l, r)
	case ast.TK_RSHIFT:
		return b.block.NewValue(OpRShift, t, l, r)
	}
	panic("unhandled compound-assignment operator")
}

func (b *builder) buildBinary(e *ast.BinaryExpr) *Value {
	if e.Op == ast.TK_LOGAND || e.Op == ast.TK_LOGOR {
		return b.materializeBool(e)
	}
	l := b.buildExpr(e.Left)
	r := b.buildExpr(e.Right)

	if e.Left.GetType().IsString() && stringRuntimeOp(e.Op) != "" {
		call := b.block.NewValue(OpCall, ast.TBool, l, r)
		call.Sym = stringRuntimeOp(e.Op)
		return call
	}

	switch e.Op {
	case ast.TK_EQ:
		return b.block.NewValue(OpCmpEQ, ast.TBool, l, r)
	case ast.TK_NE:
		return b.block.NewValue(OpCmpNE, ast.TBool, l, r)
	case ast.TK_LT:
		return b.block.NewValue(OpCmpLT, ast.TBool, l, r)
	case ast.TK_LE:
		return b.block.NewValue(OpCmpLE, ast.TBool, l, r)
	case ast.TK_GT:
		return b.block.NewValue(OpCmpGT, ast.TBool, l, r)
	case ast.TK_GE:
		return b.block.NewValue(OpCmpGE, ast.TBool, l, r)
	}
	return b.emitBinary(e.Op, l, r, e.GetType())
}

// materializeBool lowers a short-circuit `&&`/`||` expression used in value
// (not purely conditional) position by branching then merging a 0/1 result
// through a phi.
func (b *builder) materializeBool(e ast.AstExpr) *Value {
	trueBlk := b.fn.NewBlock(BlockGoto)
	falseBlk := b.fn.NewBlock(BlockGoto)
	joinBlk := b.fn.NewBlock(BlockGoto)

	b.buildCond(e, trueBlk, falseBlk)

	b.switchBlock(trueBlk)
	trueVal := b.constBool(true)
	b.block.WireTo(joinBlk)

	b.switchBlock(falseBlk)
	falseVal := b.constBool(false)
	b.block.WireTo(joinBlk)

	b.switchBlock(joinBlk)
	phi := joinBlk.NewValue(OpPhi, ast.TBool)
	phi.Args = make([]*Value, len(joinBlk.Preds))
	for i, pred := range joinBlk.Preds {
		if pred == trueBlk {
			phi.AddArgAt(i, trueVal)
		} else {
			phi.AddArgAt(i, falseVal)
		}
	}
	return phi
}

func (b *builder) buildTernary(e *ast.TernaryExpr) *Value {
	thenBlk := b.fn.NewBlock(BlockGoto)
	elseBlk := b.fn.NewBlock(BlockGoto)
	joinBlk := b.fn.NewBlock(BlockGoto)

	b.buildCond(e.Cond, thenBlk, elseBlk)

	b.switchBlock(thenBlk)
	thenVal := b.buildExpr(e.Then)
	b.block.WireTo(joinBlk)
	thenEnd := b.block

	b.switchBlock(elseBlk)
	elseVal := b.buildExpr(e.Else)
	b.block.WireTo(joinBlk)
	elseEnd := b.block

	b.switchBlock(joinBlk)
	phi := joinBlk.NewValue(OpPhi, e.GetType())
	phi.Args = make([]*Value, len(joinBlk.Preds))
	for i, pred := range joinBlk.Preds {
		if pred == thenEnd {
			phi.AddArgAt(i, thenVal)
		} else if pred == elseEnd {
			phi.AddArgAt(i, elseVal)
		}
	}
	return phi
}

func (b *builder) buildNewObject(e *ast.NewObjectExpr) *Value {
	class := b.classes[e.ClassName]
	alloc := b.block.NewValue(OpCall, ast.NewClassType(class), b.constInt(class.Size()))
	alloc.Sym = "malloc"

	ctor := b.funcs[e.ClassName+"."+e.ClassName]
	args := make([]*Value, len(e.Args)+1)
	args[0] = alloc
	for i, a := range e.Args {
		args[i+1] = b.buildExpr(a)
	}
	call := b.block.NewValue(OpCall, ast.TVoid, args...)
	call.Sym = AsmName(ctor)
	return alloc
}

func (b *builder) buildNewArray(e *ast.NewArrayExpr) *Value {
	counts := make([]*Value, len(e.Dims))
	for i, d := range e.Dims {
		counts[i] = b.buildExpr(d)
	}
	return b.allocArrayLevel(counts, 0, e.GetType())
}

// allocArrayLevel allocates e.GetType()'s outermost array -- `malloc`ing
// count*4+4 bytes, writing the element count into the leading length word,
// and returning a pointer past it (spec.md §6: "the 4 bytes immediately
// before it store the length") -- and, for every dimension beyond the
// first, loops over the freshly allocated array storing a freshly
// allocated sub-array into every slot: `new int[n][m]` is n independent
// `new int[m]` arrays, not one shared backing store.
func (b *builder) allocArrayLevel(counts []*Value, level int, arrType *ast.Type) *Value {
	count := counts[level]
	bytes := b.block.NewValue(OpMul, ast.TInt, count, b.constInt(4))
	size := b.block.NewValue(OpAdd, ast.TInt, bytes, b.constInt(4))
	raw := b.block.NewValue(OpCall, ast.TInt, size)
	raw.Sym = "malloc"
	b.emitStore(raw, count)
	alloc := b.block.NewValue(OpAdd, arrType, raw, b.constInt(4))
	if level == len(counts)-1 {
		return alloc
	}

	addr := b.declareLocal(fmt.Sprintf(".idx%d", level), ast.TInt)
	b.emitStore(addr, b.constInt(0))

	condBlk := b.fn.NewBlock(BlockGoto)
	condBlk.Hint = HintLoopHeader
	bodyBlk := b.fn.NewBlock(BlockGoto)
	exitBlk := b.fn.NewBlock(BlockGoto)

	b.block.WireTo(condBlk)
	b.switchBlock(condBlk)
	idx := b.emitLoad(addr, ast.TInt)
	cmp := b.block.NewValue(OpCmpLT, ast.TBool, idx, count)
	b.block.Kind = BlockIf
	b.block.WireTo(bodyBlk)
	b.block.WireTo(exitBlk)
	cmp.AddUseBlock(b.block)

	b.switchBlock(bodyBlk)
	sub := b.allocArrayLevel(counts, level+1, arrType.ElemType)
	idx2 := b.emitLoad(addr, ast.TInt)
	slot := b.block.NewValue(OpIndexAddr, arrType.ElemType, alloc, idx2)
	b.emitStore(slot, sub)
	next := b.block.NewValue(OpAdd, ast.TInt, idx2, b.constInt(1))
	b.emitStore(addr, next)
	b.block.WireTo(condBlk)

	b.switchBlock(exitBlk)
	return alloc
}
