// Package freshness decides whether a workflow's steps left the
// working tree modified. The canonical use is a docs job: regenerate
// the docs, then fail the run when the checked-in copy is stale.
package freshness

import (
	"fmt"
	"sort"

	git "github.com/go-git/go-git/v5"
)

// Status is the outcome of a working-tree check. The decision rule is
// purely textual tree state: any non-empty git status reads as drift,
// whatever produced it.
type Status struct {
	Clean bool
	// Files lists the paths git considers modified, added, deleted
	// or untracked, sorted.
	Files []string
}

// Check opens the repository at path and inspects its working tree.
func Check(path string) (Status, error) {
	repo, err := git.PlainOpen(path)
	if err != nil {
		return Status{}, fmt.Errorf("opening repository: %w", err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		return Status{}, fmt.Errorf("opening worktree: %w", err)
	}

	st, err := wt.Status()
	if err != nil {
		return Status{}, fmt.Errorf("computing status: %w", err)
	}

	if st.IsClean() {
		return Status{Clean: true}, nil
	}

	files := make([]string, 0, len(st))
	for file, fs := range st {
		if fs.Worktree == git.Unmodified && fs.Staging == git.Unmodified {
			continue
		}
		files = append(files, file)
	}
	sort.Strings(files)

	return Status{Clean: false, Files: files}, nil
}
