//go:build darwin || freebsd || linux

package loader

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"unsafe"

	"github.com/ebitengine/purego"
	"github.com/san-kum/turbinectl/internal/swap"
)

// Symbol names tried in order. gfortran builds without BIND(C) export the
// lower-case name with a trailing underscore.
var disconSymbols = []string{"DISCON", "discon", "discon_"}

type sharedLibrary struct {
	handle uintptr
	path   string
	temp   bool
	discon func(swap, fail, infile, outname, msg unsafe.Pointer)
}

func openShared(ref Reference) (Library, error) {
	path := ref.Path()
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}

	lib := &sharedLibrary{path: path}
	if !ref.Shareable {
		tmp, err := privateCopy(path)
		if err != nil {
			return nil, fmt.Errorf("copy library: %w", err)
		}
		lib.path, lib.temp = tmp, true
	}

	handle, err := purego.Dlopen(lib.path, purego.RTLD_NOW|purego.RTLD_LOCAL)
	if err != nil {
		lib.removeCopy()
		return nil, err
	}
	lib.handle = handle

	var sym uintptr
	for _, name := range disconSymbols {
		if sym, err = purego.Dlsym(handle, name); err == nil {
			break
		}
	}
	if sym == 0 {
		lib.Close()
		return nil, fmt.Errorf("no DISCON entry point in %s", path)
	}
	purego.RegisterFunc(&lib.discon, sym)
	return lib, nil
}

func (l *sharedLibrary) Call(rec *swap.Record) {
	slots := rec.Slots()
	l.discon(
		unsafe.Pointer(&slots[0]),
		unsafe.Pointer(&rec.Fail),
		unsafe.Pointer(&rec.Infile[0]),
		unsafe.Pointer(&rec.Outname[0]),
		unsafe.Pointer(&rec.Message[0]),
	)
	runtime.KeepAlive(rec)
}

func (l *sharedLibrary) Close() error {
	var err error
	if l.handle != 0 {
		err = purego.Dlclose(l.handle)
		l.handle = 0
	}
	if rmErr := l.removeCopy(); err == nil {
		err = rmErr
	}
	return err
}

func (l *sharedLibrary) removeCopy() error {
	if !l.temp {
		return nil
	}
	l.temp = false
	return os.Remove(l.path)
}

func privateCopy(path string) (string, error) {
	src, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer src.Close()

	dst, err := os.CreateTemp("", "discon-*"+filepath.Ext(path))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(dst.Name())
		return "", err
	}
	if err := dst.Close(); err != nil {
		os.Remove(dst.Name())
		return "", err
	}
	return dst.Name(), nil
}
