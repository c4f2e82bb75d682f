//go:build !(darwin || freebsd || linux)

package loader

import (
	"fmt"
	"runtime"
)

func openShared(ref Reference) (Library, error) {
	return nil, fmt.Errorf("shared controller libraries are not supported on %s; use a %s controller", runtime.GOOS, BuiltinPrefix)
}
