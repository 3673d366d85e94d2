package toolchain

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

var errNoCompiler = errors.New("no usable compiler found (tried gcc, clang, cl)")

// Detect picks a toolchain for the host. CC/CXX environment overrides
// win; otherwise the first of gnu, clang and msvc whose compiler is on
// PATH is used.
func Detect() (Descriptor, error) {
	if d, ok := fromEnv(); ok {
		return d, nil
	}
	for _, f := range Families() {
		d, _ := ByFamily(f)
		if _, err := exec.LookPath(d.CC); err == nil {
			return d, nil
		}
	}
	if vs := visualStudioPath(); vs != "" {
		return Descriptor{}, fmt.Errorf("Visual Studio is installed at %s but cl is not on PATH, run kiln from a developer command prompt", vs)
	}
	return Descriptor{}, errNoCompiler
}

func fromEnv() (Descriptor, bool) {
	cc := os.Getenv("CC")
	cxx := os.Getenv("CXX")
	if cc == "" && cxx == "" {
		return Descriptor{}, false
	}

	d, _ := ByFamily(classify(cc, cxx))
	if cc != "" {
		d.CC = cc
	}
	if cxx != "" {
		d.CXX = cxx
		d.LD = cxx
	}
	return d, true
}

// classify guesses the family from an executable name so that
// IF COMPILER conditions keep working when CC/CXX are set.
func classify(names ...string) Family {
	for _, n := range names {
		base := strings.TrimSuffix(filepath.Base(n), ".exe")
		switch {
		case strings.Contains(base, "clang"):
			return Clang
		case base == "cl":
			return MSVC
		}
	}
	return GNU
}
