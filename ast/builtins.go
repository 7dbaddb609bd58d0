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

// BuiltinFuncs returns the signatures of the free functions `builtin.s`
// provides (spec.md §6's runtime ABI contract): print, println, printInt,
// printlnInt, getInt, getString, toString. String methods (length,
// substring, parseInt, ord) are not free functions -- they're handled as
// MethodCallExpr on a string receiver, see Infer.inferExpr / the IR
// builder's buildExpr.
//
// These never have source bodies; Body stays nil and Builtin stays true so
// nothing downstream tries to lower one as a user-defined function.
func BuiltinFuncs() []*FuncDecl {
	return []*FuncDecl{
		{Name: "print", Params: []*Param{{Name: "s", Type: TString}}, RetType: TVoid, Builtin: true},
		{Name: "println", Params: []*Param{{Name: "s", Type: TString}}, RetType: TVoid, Builtin: true},
		{Name: "printInt", Params: []*Param{{Name: "i", Type: TInt}}, RetType: TVoid, Builtin: true},
		{Name: "printlnInt", Params: []*Param{{Name: "i", Type: TInt}}, RetType: TVoid, Builtin: true},
		{Name: "getInt", RetType: TInt, Builtin: true},
		{Name: "getString", RetType: TString, Builtin: true},
		{Name: "toString", Params: []*Param{{Name: "i", Type: TInt}}, RetType: TString, Builtin: true},
	}
}

// StringMethodReturnType reports the result type of the built-in string
// method name (length, substring, parseInt, ord), or nil if name is not one
// of them.
func StringMethodReturnType(name string) *Type {
	switch name {
	case "length", "parseInt", "ord":
		return TInt
	case "substring":
		return TString
	}
	return nil
}
