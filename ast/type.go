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
package ast

import (
	"fmt"

	"mxc/utils"
)

// -----------------------------------------------------------------------------
// Type system
//
// Every Mx* value is 4 bytes wide: int, bool (widened to i32), string
// (pointer), array (pointer), class instance (pointer), or null. There is no
// float/double/long/short/char/byte subset in this language, unlike the
// teacher's C-flavored type zoo.

type TypeKind int

const (
	TypeInt TypeKind = iota
	TypeBool
	TypeVoid
	TypeString
	TypeArray
	TypeClass
	TypeNull // type of the `null` literal, unifies with any reference type
)

// ClassLayout is the field-slot table computed by the semantic checker and
// consumed read-only by the IR builder (spec.md §3 "Class layout").
type ClassLayout struct {
	Name   string
	Fields []FieldSlot
}

type FieldSlot struct {
	Name   string
	Type   *Type
	Offset int // byte offset from the object pointer, a multiple of 4
}

func (c *ClassLayout) Size() int { return len(c.Fields) * 4 }

func (c *ClassLayout) FieldIndex(name string) int {
	for i, f := range c.Fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

func (c *ClassLayout) Field(name string) (FieldSlot, bool) {
	for _, f := range c.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldSlot{}, false
}

type Type struct {
	Kind      TypeKind
	ElemType  *Type        // for TypeArray
	Class     *ClassLayout // for TypeClass, once resolved
	ClassName string       // for TypeClass, set by the parser before layouts exist
}

var (
	TInt    = &Type{Kind: TypeInt}
	TBool   = &Type{Kind: TypeBool}
	TVoid   = &Type{Kind: TypeVoid}
	TString = &Type{Kind: TypeString}
	TNull   = &Type{Kind: TypeNull}
)

func NewArrayType(elem *Type) *Type { return &Type{Kind: TypeArray, ElemType: elem} }
func NewClassType(c *ClassLayout) *Type {
	return &Type{Kind: TypeClass, Class: c, ClassName: c.Name}
}

// NewUnresolvedClassType is used by the parser, which knows a type name but
// not yet whether (or where) that class is declared.
func NewUnresolvedClassType(name string) *Type {
	return &Type{Kind: TypeClass, ClassName: name}
}

func (t *Type) IsInt() bool    { return t.Kind == TypeInt }
func (t *Type) IsBool() bool   { return t.Kind == TypeBool }
func (t *Type) IsVoid() bool   { return t.Kind == TypeVoid }
func (t *Type) IsString() bool { return t.Kind == TypeString }
func (t *Type) IsArray() bool  { return t.Kind == TypeArray }
func (t *Type) IsClass() bool  { return t.Kind == TypeClass }
func (t *Type) IsNull() bool   { return t.Kind == TypeNull }

// IsReference is true for any type represented as a pointer at runtime
// (string, array, class instance) as opposed to a plain 32-bit scalar.
func (t *Type) IsReference() bool {
	return t.Kind == TypeString || t.Kind == TypeArray || t.Kind == TypeClass
}

// IsPrimitive reports whether an `alloca` of t could be promoted wholesale
// (spec.md §4.3); nothing calls it, since ir.PromotableAllocas decides
// promotability from an alloca's uses alone. It is true for any type
// an `alloca` of which can be promoted wholesale by
// Mem2Reg, i.e. every non-aggregate scalar or reference (never indexed into
// or field-accessed through its own alloca pointer -- arrays/objects are
// only reached via getelementptr on a *loaded* pointer value, so the cell
// holding that pointer is itself always promotable).
func (t *Type) IsPrimitive() bool {
	return true // every Mx* value is a single 4-byte scalar or pointer
}

func Equal(a, b *Type) bool {
	if a == b {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	if a.Kind == TypeNull && b.IsReference() {
		return true
	}
	if b.Kind == TypeNull && a.IsReference() {
		return true
	}
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case TypeArray:
		return Equal(a.ElemType, b.ElemType)
	case TypeClass:
		return a.Class == b.Class
	default:
		return true
	}
}

func (t *Type) String() string {
	switch t.Kind {
	case TypeInt:
		return "int"
	case TypeBool:
		return "bool"
	case TypeVoid:
		return "void"
	case TypeString:
		return "string"
	case TypeArray:
		return fmt.Sprintf("%v[]", t.ElemType)
	case TypeClass:
		return t.Class.Name
	case TypeNull:
		return "null"
	default:
		utils.ShouldNotReachHere()
	}
	return ""
}

// -----------------------------------------------------------------------------
// Type inference & checking
//
// A scope-stack walker in the teacher's style: `Infer` propagates types
// bottom-up from literals and declarations, `TypeChecker` then verifies every
// expression obeys the language's typing rules.

type scope = map[string]*Type

type Infer struct {
	classes   map[string]*ClassLayout
	varScopes []scope
	funcs     map[string]*FuncDecl // keyed by QualifiedName()
	curClass  string               // receiver class name while inside a method, else ""
}

func (infer *Infer) enterScope() scope {
	s := make(scope)
	infer.varScopes = append(infer.varScopes, s)
	return s
}

func (infer *Infer) exitScope() {
	infer.varScopes = infer.varScopes[:len(infer.varScopes)-1]
}

func (infer *Infer) lookup(name string) *Type {
	for i := len(infer.varScopes) - 1; i >= 0; i-- {
		if t, ok := infer.varScopes[i][name]; ok {
			return t
		}
	}
	return nil
}

func (infer *Infer) declare(name string, t *Type) {
	infer.varScopes[len(infer.varScopes)-1][name] = t
}

func (infer *Infer) inferExpr(e AstExpr) *Type {
	switch e := e.(type) {
	case *IntExpr:
		e.SetType(TInt)
	case *BoolExpr:
		e.SetType(TBool)
	case *StrExpr:
		e.SetType(TString)
	case *NullExpr:
		e.SetType(TNull)
	case *ThisExpr:
		utils.Assert(infer.curClass != "", "`this` used outside a method")
		e.SetType(NewClassType(infer.classes[infer.curClass]))
	case *VarExpr:
		t := infer.lookup(e.Name)
		if t == nil && infer.curClass != "" {
			// A bare field name inside a method or constructor: this.<name>.
			if slot, ok := infer.classes[infer.curClass].Field(e.Name); ok {
				t = slot.Type
			}
		}
		utils.Assert(t != nil, "undeclared identifier %s", e.Name)
		e.SetType(t)
	case *UnaryExpr:
		lt := infer.inferExpr(e.Left)
		if e.Op.IsLogicalOp() {
			e.SetType(TBool)
		} else {
			e.SetType(lt)
		}
	case *BinaryExpr:
		infer.inferExpr(e.Left)
		infer.inferExpr(e.Right)
		if e.Op.IsCmpOp() || e.Op.IsShortCircuitOp() {
			e.SetType(TBool)
		} else if e.Op == TK_PLUS && (e.Left.GetType().IsString() || e.Right.GetType().IsString()) {
			e.SetType(TString)
		} else {
			e.SetType(TInt)
		}
	case *TernaryExpr:
		infer.inferExpr(e.Cond)
		thenType := infer.inferExpr(e.Then)
		infer.inferExpr(e.Else)
		e.SetType(thenType)
	case *AssignExpr:
		lt := infer.inferExpr(e.Left)
		infer.inferExpr(e.Right)
		e.SetType(lt)
	case *IndexExpr:
		at := infer.inferExpr(e.Array)
		infer.inferExpr(e.Index)
		utils.Assert(at.IsArray(), "indexing a non-array type %v", at)
		e.SetType(at.ElemType)
	case *FieldExpr:
		ot := infer.inferExpr(e.Object)
		utils.Assert(ot.IsClass(), "field access on non-class type %v", ot)
		fs, ok := ot.Class.Field(e.Field)
		utils.Assert(ok, "class %s has no field %s", ot.Class.Name, e.Field)
		e.SetType(fs.Type)
	case *ArraySizeExpr:
		infer.inferExpr(e.Array)
		e.SetType(TInt)
	case *FuncCallExpr:
		for _, a := range e.Args {
			infer.inferExpr(a)
		}
		fn, ok := infer.funcs[e.Name]
		utils.Assert(ok, "call to undeclared function %s", e.Name)
		e.SetType(fn.RetType)
	case *MethodCallExpr:
		ot := infer.inferExpr(e.Object)
		for _, a := range e.Args {
			infer.inferExpr(a)
		}
		if ot.IsString() {
			rt := StringMethodReturnType(e.Method)
			utils.Assert(rt != nil, "string has no method %s", e.Method)
			e.SetType(rt)
			break
		}
		utils.Assert(ot.IsClass(), "method call on non-class type %v", ot)
		fn, ok := infer.funcs[ot.Class.Name+"."+e.Method]
		utils.Assert(ok, "class %s has no method %s", ot.Class.Name, e.Method)
		e.SetType(fn.RetType)
	case *NewObjectExpr:
		for _, a := range e.Args {
			infer.inferExpr(a)
		}
		c, ok := infer.classes[e.ClassName]
		utils.Assert(ok, "new of undeclared class %s", e.ClassName)
		e.SetType(NewClassType(c))
	case *NewArrayExpr:
		for _, d := range e.Dims {
			infer.inferExpr(d)
		}
		t := e.ElemType
		for i := 0; i < len(e.Dims)-1; i++ {
			t = NewArrayType(t)
		}
		e.SetType(NewArrayType(t))
	default:
		utils.Unimplement()
	}
	return e.GetType()
}

func (infer *Infer) inferStmt(s AstStmt) {
	switch s := s.(type) {
	case *ExprStmt:
		infer.inferExpr(s.Expr)
	case *LetStmt:
		if s.Init != nil {
			it := infer.inferExpr(s.Init)
			if s.Type == nil {
				s.Type = it
			}
		}
		infer.declare(s.Name, s.Type)
	case *ReturnStmt:
		if s.Expr != nil {
			infer.inferExpr(s.Expr)
		}
	case *IfStmt:
		infer.inferExpr(s.Cond)
		infer.inferBlock(s.Then)
		if s.Else != nil {
			infer.inferStmt(s.Else)
		}
	case *WhileStmt:
		infer.inferExpr(s.Cond)
		infer.inferBlock(s.Body)
	case *ForStmt:
		infer.enterScope()
		if s.Init != nil {
			infer.inferStmt(s.Init)
		}
		if s.Cond != nil {
			infer.inferExpr(s.Cond)
		}
		if s.Post != nil {
			infer.inferStmt(s.Post)
		}
		infer.inferBlockNoScope(s.Body)
		infer.exitScope()
	case *BlockStmt:
		infer.inferBlock(s)
	case *BreakStmt, *ContinueStmt:
	default:
		utils.Unimplement()
	}
}

func (infer *Infer) inferBlock(b *BlockStmt) {
	infer.enterScope()
	infer.inferBlockNoScope(b)
	infer.exitScope()
}

func (infer *Infer) inferBlockNoScope(b *BlockStmt) {
	for _, st := range b.Stmts {
		infer.inferStmt(st)
	}
}

func (infer *Infer) inferFunc(fn *FuncDecl) {
	infer.enterScope()
	if fn.Recv != "" {
		infer.declare("this", NewClassType(infer.classes[fn.Recv]))
	}
	for _, p := range fn.Params {
		infer.declare(p.Name, p.Type)
	}
	prevClass := infer.curClass
	infer.curClass = fn.Recv
	if fn.Body != nil {
		infer.inferBlockNoScope(fn.Body)
	}
	infer.curClass = prevClass
	infer.exitScope()
}

// BuildClassLayouts assigns 4-byte field slots in declaration order and
// wires each ClassDecl's Layout pointer, so later references to the class
// (by any function processed afterwards) see the completed layout.
func BuildClassLayouts(pkg *PackageDecl) map[string]*ClassLayout {
	classes := make(map[string]*ClassLayout)
	for _, cd := range pkg.Classes {
		layout := &ClassLayout{Name: cd.Name}
		classes[cd.Name] = layout
		cd.Layout = layout
	}
	// Field offsets are assigned in a second pass, once every class has a
	// layout; field types that name a class are resolved later, by
	// ResolveAllTypes.
	for _, cd := range pkg.Classes {
		off := 0
		for _, f := range cd.Fields {
			cd.Layout.Fields = append(cd.Layout.Fields, FieldSlot{Name: f.Name, Type: f.Type, Offset: off})
			off += 4
		}
	}
	return classes
}

// resolveType fixes up *Type values of Kind==TypeClass that were created by
// the parser (which knows only a class name, not yet its layout); called
// once BuildClassLayouts has run. Mutates in place and returns t for
// convenience.
func resolveType(t *Type, classes map[string]*ClassLayout) *Type {
	if t == nil {
		return nil
	}
	switch t.Kind {
	case TypeClass:
		if t.Class == nil {
			c, ok := classes[t.ClassName]
			utils.Assert(ok, "reference to undeclared class %s", t.ClassName)
			t.Class = c
		}
	case TypeArray:
		t.ElemType = resolveType(t.ElemType, classes)
	}
	return t
}

// ResolveAllTypes walks every declared type in the package (field types,
// parameter/return types, explicit let types, array-literal element types)
// and resolves class-name placeholders left by the parser. Must run after
// BuildClassLayouts and before InferTypes.
func ResolveAllTypes(pkg *PackageDecl, classes map[string]*ClassLayout) {
	for _, cd := range pkg.Classes {
		for _, f := range cd.Fields {
			f.Type = resolveType(f.Type, classes)
		}
		for i := range cd.Layout.Fields {
			cd.Layout.Fields[i].Type = resolveType(cd.Layout.Fields[i].Type, classes)
		}
	}
	for _, g := range pkg.Globals {
		g.Type = resolveType(g.Type, classes)
	}
	for _, fn := range pkg.AllFuncs() {
		for _, p := range fn.Params {
			p.Type = resolveType(p.Type, classes)
		}
		fn.RetType = resolveType(fn.RetType, classes)
		resolveExprTypesInFunc(fn, classes)
	}
}

func resolveExprTypesInFunc(fn *FuncDecl, classes map[string]*ClassLayout) {
	if fn.Body == nil {
		return
	}
	var walkStmt func(AstStmt)
	var walkExpr func(AstExpr)
	walkExpr = func(e AstExpr) {
		switch e := e.(type) {
		case *NewArrayExpr:
			e.ElemType = resolveType(e.ElemType, classes)
			for _, d := range e.Dims {
				walkExpr(d)
			}
		case *NewObjectExpr:
			for _, a := range e.Args {
				walkExpr(a)
			}
		case *BinaryExpr:
			walkExpr(e.Left)
			walkExpr(e.Right)
		case *UnaryExpr:
			walkExpr(e.Left)
		case *AssignExpr:
			walkExpr(e.Left)
			walkExpr(e.Right)
		case *TernaryExpr:
			walkExpr(e.Cond)
			walkExpr(e.Then)
			walkExpr(e.Else)
		case *IndexExpr:
			walkExpr(e.Array)
			walkExpr(e.Index)
		case *FieldExpr:
			walkExpr(e.Object)
		case *ArraySizeExpr:
			walkExpr(e.Array)
		case *FuncCallExpr:
			for _, a := range e.Args {
				walkExpr(a)
			}
		case *MethodCallExpr:
			walkExpr(e.Object)
			for _, a := range e.Args {
				walkExpr(a)
			}
		}
	}
	walkStmt = func(s AstStmt) {
		switch s := s.(type) {
		case *ExprStmt:
			walkExpr(s.Expr)
		case *LetStmt:
			s.Type = resolveType(s.Type, classes)
			if s.Init != nil {
				walkExpr(s.Init)
			}
		case *ReturnStmt:
			if s.Expr != nil {
				walkExpr(s.Expr)
			}
		case *IfStmt:
			walkExpr(s.Cond)
			for _, st := range s.Then.Stmts {
				walkStmt(st)
			}
			if s.Else != nil {
				walkStmt(s.Else)
			}
		case *WhileStmt:
			walkExpr(s.Cond)
			for _, st := range s.Body.Stmts {
				walkStmt(st)
			}
		case *ForStmt:
			if s.Init != nil {
				walkStmt(s.Init)
			}
			if s.Cond != nil {
				walkExpr(s.Cond)
			}
			if s.Post != nil {
				walkStmt(s.Post)
			}
			for _, st := range s.Body.Stmts {
				walkStmt(st)
			}
		case *BlockStmt:
			for _, st := range s.Stmts {
				walkStmt(st)
			}
		}
	}
	for _, st := range fn.Body.Stmts {
		walkStmt(st)
	}
}

// InferTypes annotates every expression in the package with a *Type.
func InferTypes(pkg *PackageDecl, classes map[string]*ClassLayout) {
	allFuncs := pkg.AllFuncs()
	infer := &Infer{classes: classes, funcs: make(map[string]*FuncDecl)}
	for _, fn := range BuiltinFuncs() {
		infer.funcs[fn.Name] = fn
	}
	for _, fn := range allFuncs {
		infer.funcs[fn.QualifiedName()] = fn
	}
	infer.enterScope()
	for _, g := range pkg.Globals {
		infer.inferStmt(g)
	}
	for _, fn := range allFuncs {
		infer.inferFunc(fn)
	}
	infer.exitScope()
}

// -----------------------------------------------------------------------------
// Type checker
//
// Verifies the typed AST obeys Mx*'s typing rules; a violation here means
// the semantic-checking "external collaborator" contract (spec.md §6) was
// not actually met by the input. Such a violation panics through
// utils.Assert, just as a compiler-internal bug does, and main.go reports
// both the same way.

type TypeChecker struct {
	funcs   map[string]*FuncDecl
	current *FuncDecl
}

func (tc *TypeChecker) requireTyped(e AstExpr) {
	utils.Assert(e.GetType() != nil, "expression left untyped: %v", e)
}

func (tc *TypeChecker) checkExpr(e AstExpr) {
	tc.requireTyped(e)
	switch e := e.(type) {
	case *BinaryExpr:
		tc.checkExpr(e.Left)
		tc.checkExpr(e.Right)
		if e.Op.IsLogicalOp() {
			utils.Assert(e.Left.GetType().IsBool() && e.Right.GetType().IsBool(),
				"logical operator %v requires bool operands", e.Op)
		}
	case *UnaryExpr:
		tc.checkExpr(e.Left)
	case *AssignExpr:
		tc.checkExpr(e.Left)
		tc.checkExpr(e.Right)
	case *FuncCallExpr:
		for _, a := range e.Args {
			tc.checkExpr(a)
		}
		fn, ok := tc.funcs[e.Name]
		utils.Assert(ok, "call to undeclared function %s", e.Name)
		utils.Assert(len(e.Args) == len(fn.Params), "argument count mismatch calling %s", e.Name)
	case *MethodCallExpr:
		tc.checkExpr(e.Object)
		for _, a := range e.Args {
			tc.checkExpr(a)
		}
	case *IndexExpr:
		tc.checkExpr(e.Array)
		tc.checkExpr(e.Index)
	case *FieldExpr:
		tc.checkExpr(e.Object)
	case *TernaryExpr:
		tc.checkExpr(e.Cond)
		tc.checkExpr(e.Then)
		tc.checkExpr(e.Else)
	case *NewObjectExpr:
		for _, a := range e.Args {
			tc.checkExpr(a)
		}
	case *NewArrayExpr:
		for _, d := range e.Dims {
			tc.checkExpr(d)
		}
	case *ArraySizeExpr:
		tc.checkExpr(e.Array)
	}
}

func (tc *TypeChecker) checkStmt(s AstStmt) {
	switch s := s.(type) {
	case *ExprStmt:
		tc.checkExpr(s.Expr)
	case *LetStmt:
		if s.Init != nil {
			tc.checkExpr(s.Init)
		}
	case *ReturnStmt:
		if s.Expr != nil {
			tc.checkExpr(s.Expr)
			utils.Assert(Equal(s.Expr.GetType(), tc.current.RetType),
				"return type mismatch in %s", tc.current.QualifiedName())
		} else {
			utils.Assert(tc.current.RetType.IsVoid(), "missing return value in %s", tc.current.QualifiedName())
		}
	case *IfStmt:
		tc.checkExpr(s.Cond)
		utils.Assert(s.Cond.GetType().IsBool(), "if condition must be bool")
		tc.checkBlock(s.Then)
		if s.Else != nil {
			tc.checkStmt(s.Else)
		}
	case *WhileStmt:
		tc.checkExpr(s.Cond)
		utils.Assert(s.Cond.GetType().IsBool(), "while condition must be bool")
		tc.checkBlock(s.Body)
	case *ForStmt:
		if s.Init != nil {
			tc.checkStmt(s.Init)
		}
		if s.Cond != nil {
			tc.checkExpr(s.Cond)
			utils.Assert(s.Cond.GetType().IsBool(), "for condition must be bool")
		}
		if s.Post != nil {
			tc.checkStmt(s.Post)
		}
		tc.checkBlock(s.Body)
	case *BlockStmt:
		tc.checkBlock(s)
	}
}

func (tc *TypeChecker) checkBlock(b *BlockStmt) {
	for _, st := range b.Stmts {
		tc.checkStmt(st)
	}
}

func TypeCheck(pkg *PackageDecl) {
	allFuncs := pkg.AllFuncs()
	tc := &TypeChecker{funcs: make(map[string]*FuncDecl)}
	for _, fn := range BuiltinFuncs() {
		tc.funcs[fn.Name] = fn
	}
	for _, fn := range allFuncs {
		tc.funcs[fn.QualifiedName()] = fn
	}
	for _, fn := range allFuncs {
		tc.current = fn
		if fn.Body != nil {
			tc.checkBlock(fn.Body)
		}
	}
}
