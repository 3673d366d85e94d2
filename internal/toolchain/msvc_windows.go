//go:build windows

package toolchain

import "github.com/heaths/go-vssetup"

// visualStudioPath reports the installation path of a Visual Studio
// instance, or "" if none is registered.
func visualStudioPath() string {
	instances, err := vssetup.Instances(false)
	if err != nil || len(instances) == 0 {
		return ""
	}
	path, err := instances[0].InstallationPath()
	if err != nil {
		return ""
	}
	return path
}
