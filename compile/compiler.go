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

// Package compile sequences the whole-program pipeline: parse, type-check,
// build IR, then per function Mem2Reg -> register allocation -> critical-edge
// splitting -> phi elimination -> frame layout -> lowering, and finally
// assembly emission. Grounded on the teacher's compile/compiler.go
// CompileTheWorld, stripped of the gcc/linker/temp-directory machinery that
// drove the teacher's two-file (stdlib.y + user source), object-producing
// pipeline -- this module reads one whole program from stdin and never
// shells out.
package compile

import (
	"io"

	"mxc/ast"
	"mxc/codegen"
	"mxc/ir"
	"mxc/regalloc"
	"mxc/utils"
)

// Options controls the optional debug tooling main.go's -dump flag exposes;
// the zero value runs the pipeline silently. DumpDir, when non-empty, gets
// one hir_<func>.dot Graphviz file per compiled function (ir.DumpHIRToDotFile)
// written after Mem2Reg -- the point in the pipeline the teacher's own
// DumpSSAToDotFile convention targeted.
type Options struct {
	DumpDir string
	O0      bool // skip the ir.Optimizer.Ideal() passes compileFunc runs after Mem2Reg and after each spill rewrite; ir.BuildProgram's own per-function Mem2Reg + OptimizeHIR still runs
}

// Compile reads one whole Mx* translation unit from r and returns the
// RV32IM assembly text that implements it. A syntax error surfaces as
// *ast.CompileError; a semantic error caught by ast.InferTypes/ast.TypeCheck
// panics through utils.Assert with a plain message, the same way a
// compiler-internal bug (utils.Assert/Unimplement/ShouldNotReachHere/
// ir.VerifyHIR's utils.Fatal) does. Every panic is left to propagate, per
// spec.md §7 -- main.go is the only place that tells *ast.CompileError
// apart from the rest.
func Compile(r io.Reader, opts Options) string {
	pkg := ast.ParseFile("<stdin>", r)

	classes := ast.BuildClassLayouts(pkg)
	ast.ResolveAllTypes(pkg, classes)
	ast.InferTypes(pkg, classes)
	ast.TypeCheck(pkg)

	prog := ir.BuildProgram(pkg, classes)

	funcs := append([]*ir.Func{}, prog.Funcs...)
	if prog.InitFunc != nil {
		funcs = append(funcs, prog.InitFunc)
	}

	compiled := make([]*codegen.CompiledFunc, 0, len(funcs))
	for _, fn := range funcs {
		compiled = append(compiled, compileFunc(fn, opts))
	}

	return codegen.AssembleProgram(prog, compiled)
}

// compileFunc carries one function from memory-cell IR through to a
// CompiledFunc ready for assembly emission (spec.md §4.3-§4.8).
func compileFunc(fn *ir.Func, opts Options) *codegen.CompiledFunc {
	ir.Mem2Reg(fn)
	opt := &ir.Optimizer{Func: fn}
	if !opts.O0 {
		opt.Ideal()
	}
	ir.VerifyHIR(fn)

	if opts.DumpDir != "" {
		ir.DumpHIRToDotFile(fn, opts.DumpDir)
	}

	// Repeat build/color/rewrite until every value has a physical register
	// (spec.md §4.5 step 4): a rewritten spill turns into fresh loads/stores
	// with their own short live ranges, which almost always colors on the
	// next pass, but Ideal() is re-run first to clean up the dead copies a
	// spill/reload sequence can leave behind before liveness is recomputed.
	// After maxSpillIterations rounds without a full coloring, give up.
	const maxSpillIterations = 10
	var coloring *regalloc.Coloring
	for iter := 0; ; iter++ {
		if iter == maxSpillIterations {
			utils.Fatal("%s: register allocation did not converge after %d spill iterations", fn.Name, maxSpillIterations)
		}
		lv := ir.ComputeLiveness(fn)
		graph := regalloc.Build(fn, lv)
		coloring = regalloc.Color(graph)
		if len(coloring.Spilled) == 0 {
			break
		}
		regalloc.Rewrite(fn, coloring.Spilled)
		if !opts.O0 {
			opt.Ideal()
		}
	}

	codegen.SplitCriticalEdges(fn)
	copies := codegen.EliminatePhis(fn, coloring.Color)
	usedCallee := codegen.UsedCalleeSaved(coloring.Color)
	frame := codegen.BuildFrame(fn, usedCallee)
	lir := codegen.Lower(fn, coloring.Color, copies, frame)

	return &codegen.CompiledFunc{
		Fn:         fn,
		Color:      coloring.Color,
		UsedCallee: usedCallee,
		Frame:      frame,
		LIR:        lir,
	}
}
