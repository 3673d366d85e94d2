//go:build !windows

package toolchain

func visualStudioPath() string { return "" }
