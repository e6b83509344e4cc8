//go:build !v8

package typesetd

import (
	"fmt"
	"strconv"

	"modernc.org/quickjs"
)

// evalDiscard evaluates JavaScript and discards the result (frees the
// Value). Use for fire-and-forget JS execution where the return value is
// not needed.
func evalDiscard(vm *quickjs.VM, js string) error {
	v, err := vm.EvalValue(js, quickjs.EvalGlobal)
	if err != nil {
		return err
	}
	v.Free()
	return nil
}

// evalString evaluates JavaScript and returns the result as a Go string.
// Uses vm.Eval which auto-converts to Go types (no manual Free needed).
func evalString(vm *quickjs.VM, js string) (string, error) {
	r, err := vm.Eval(js, quickjs.EvalGlobal)
	if err != nil {
		return "", err
	}
	if r == nil {
		return "", nil
	}
	return fmt.Sprint(r), nil
}

// jsEscape escapes a string for safe embedding in JavaScript source code.
// Uses %q formatting which produces a Go-quoted string that is also valid JS.
func jsEscape(s string) string {
	return strconv.Quote(s)
}
