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
package utils

import (
	"fmt"
)

func Assert(cond bool, format string, msg ...interface{}) {
	if !cond {
		panic(fmt.Sprintf(format, msg...))
	}
}

func Any[T comparable](c T, cs ...T) bool {
	for _, cc := range cs {
		if c == cc {
			return true
		}
	}
	return false
}

func Unimplement() {
	panic("Not implement yet")
}

func ShouldNotReachHere() {
	panic("Should not reach here")
}

func Abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func Fatal(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	panic(msg)
}

// Align16 rounds n up to the next multiple of 16, used for stack frame sizes
// under the RV32 ILP32 calling convention.
func Align16(n int) int {
	return (n + 15) &^ 15
}

// Align4 rounds n up to the next multiple of 4, the alignment every Mx*
// value (and therefore every stack slot and heap allocation) requires.
func Align4(n int) int {
	return (n + 3) &^ 3
}
