// Package selfupdate keeps the running executable in sync with the
// upstream kiln repository.
package selfupdate

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/kiln-build/kiln/internal/fetch"
	"github.com/kiln-build/kiln/internal/msg"
)

const repoURL = "https://github.com/kiln-build/kiln"

// EnvDisable names the environment variable that turns the update
// check off entirely.
const EnvDisable = "KILN_NO_SELFUPDATE"

// Check compares the version shipped beside the executable against the
// upstream repository, and on an accepted update rebuilds the upstream
// checkout with the running executable and swaps it into place. It
// returns true when the executable was replaced and the process should
// exit. The check never runs mid-build; the root command calls it once
// before any command executes.
func Check() bool {
	if os.Getenv(EnvDisable) != "" {
		return false
	}
	exe, err := os.Executable()
	if err != nil {
		msg.Warn("cannot locate own executable: %v", err)
		return false
	}
	exeDir := filepath.Dir(exe)
	exeName := filepath.Base(exe)

	version, err := readVersion(filepath.Join(exeDir, "version.txt"))
	if err != nil {
		msg.Warn("skipping update check: %v", err)
		return false
	}
	fmt.Println(version)

	fmt.Println("Checking for updates...")
	repoDir := filepath.Join(exeDir, "kiln_repo")
	git := &fetch.Git{Progress: &msg.IndentWriter{Indent: "    ", W: os.Stdout}}
	if err := git.Fetch(repoURL, repoDir, ""); err != nil {
		msg.Warn("update check failed: %v", err)
		return false
	}

	upstream, err := readVersion(filepath.Join(repoDir, "version.txt"))
	if err != nil {
		msg.Warn("update check failed: %v", err)
		return false
	}
	if upstream == version {
		return false
	}

	fmt.Printf("New version available: %q\n", upstream)
	fmt.Printf("Current version: %q\n", version)
	if !msg.Ask("A new version of kiln is available. Would you like to update?") {
		fmt.Println("Update declined.")
		return false
	}

	fmt.Println("Building new version...")
	cmd := exec.Command(exe, "NOUPDATE")
	cmd.Dir = repoDir
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		msg.Error("update build failed: %v", err)
		return false
	}
	fmt.Println("Build complete.")

	if err := replaceExecutable(exeDir, exeName, repoDir); err != nil {
		msg.Error("update failed: %v", err)
		return false
	}
	fmt.Println("Update complete. Please restart the program.")
	return true
}

// Version reports the version shipped beside the executable, or "dev"
// when no version.txt is present (running from a source build).
func Version() string {
	exe, err := os.Executable()
	if err != nil {
		return "dev"
	}
	v, err := readVersion(filepath.Join(filepath.Dir(exe), "version.txt"))
	if err != nil {
		return "dev"
	}
	return v
}

// readVersion returns the first line of a version.txt, trimmed.
func readVersion(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	line, _, _ := strings.Cut(string(data), "\n")
	return strings.TrimSpace(line), nil
}

// replaceExecutable parks the running binary under an old_ prefix and
// copies the freshly built artifact over its original name. The
// running process keeps its open inode; the swap takes effect on the
// next start.
func replaceExecutable(exeDir, exeName, repoDir string) error {
	parked := filepath.Join(exeDir, "old_"+exeName)
	if err := os.Remove(parked); err != nil && !os.IsNotExist(err) {
		return err
	}
	if err := os.Rename(filepath.Join(exeDir, exeName), parked); err != nil {
		return err
	}
	return copyFile(filepath.Join(repoDir, "build", "bin", exeName), filepath.Join(exeDir, exeName))
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o755)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
