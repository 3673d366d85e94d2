// Package fetch keeps the working copies pulled in by GITINCLUDE and
// BUILTIN directives present and up to date.
package fetch

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/go-git/go-git/v6"
	"github.com/go-git/go-git/v6/plumbing"
)

// Git fetches project working copies with go-git. It implements
// project.SourceFetcher.
type Git struct {
	Progress io.Writer // clone/pull progress, nil for quiet
}

// Fetch clones url into dest, or brings an existing checkout up to
// date. Local modifications to the checkout are discarded, otherwise
// the pull would refuse to move the worktree.
func (g *Git) Fetch(url, dest, branch string) error {
	if _, err := os.Stat(filepath.Join(dest, ".git")); err == nil {
		return g.update(dest, branch)
	}
	return g.clone(url, dest, branch)
}

func (g *Git) clone(url, dest, branch string) error {
	fmt.Printf("  %s %s\n", color.HiGreenString("Cloning"), url)
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return err
	}

	opts := &git.CloneOptions{
		URL:      url,
		Depth:    1,
		Progress: g.Progress,
	}
	if branch != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(branch)
		opts.SingleBranch = true
	}
	_, err := git.PlainClone(dest, opts)
	return err
}

func (g *Git) update(dest, branch string) error {
	fmt.Printf("  %s %s\n", color.HiGreenString("Updating"), filepath.Base(dest))
	repo, err := git.PlainOpen(dest)
	if err != nil {
		return err
	}
	w, err := repo.Worktree()
	if err != nil {
		return err
	}
	if err := w.Reset(&git.ResetOptions{Mode: git.HardReset}); err != nil {
		return err
	}

	opts := &git.PullOptions{
		RemoteName: "origin",
		Depth:      1,
		Progress:   g.Progress,
	}
	if branch != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(branch)
		opts.SingleBranch = true
	}
	err = w.Pull(opts)
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return err
	}
	return nil
}
