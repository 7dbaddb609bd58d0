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
package main

import (
	"flag"
	"fmt"
	"os"

	"mxc/ast"
	"mxc/compile"
)

func main() {
	dumpDir := flag.String("dump", "", "write a hir_<func>.dot Graphviz file per function to this directory")
	o0 := flag.Bool("O0", false, "skip the Ideal() peephole passes run after Mem2Reg and after each spill rewrite (IR construction's own cleanup still runs)")
	flag.Parse()

	if *dumpDir != "" {
		if err := os.MkdirAll(*dumpDir, 0755); err != nil {
			fmt.Fprintf(os.Stderr, "mxc: %s\n", err)
			os.Exit(1)
		}
	}

	asm := run(compile.Options{DumpDir: *dumpDir, O0: *o0})
	fmt.Print(asm)
}

// run drives the pipeline and turns a panic into a clean diagnostic and a
// nonzero exit rather than a raw stack trace, matching the teacher's house
// style of panic-based fatal assertions recovered once at the top of main.
// A *ast.CompileError is a syntax error in the Mx* source; anything else --
// a semantic error caught by ast's utils.Assert checks, or this compiler's
// own bug (utils.Assert/Unimplement/ShouldNotReachHere, ir.VerifyHIR's
// utils.Fatal) -- is reported as an internal compiler error.
func run(opts compile.Options) (asm string) {
	defer func() {
		rec := recover()
		if rec == nil {
			return
		}
		if ce, ok := rec.(*ast.CompileError); ok {
			fmt.Fprintf(os.Stderr, "mxc: %s\n", ce)
		} else {
			fmt.Fprintf(os.Stderr, "mxc: internal compiler error: %v\n", rec)
		}
		os.Exit(1)
	}()
	return compile.Compile(os.Stdin, opts)
}
