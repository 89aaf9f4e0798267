package freshness

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func initRepo(t *testing.T) (string, *git.Worktree) {
	t.Helper()

	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)

	wt, err := repo.Worktree()
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "docs.md"), []byte("# api\n"), 0644))
	_, err = wt.Add("docs.md")
	require.NoError(t, err)

	_, err = wt.Commit("initial", &git.CommitOptions{
		Author: &object.Signature{
			Name:  "loom",
			Email: "loom@localhost",
			When:  time.Now(),
		},
	})
	require.NoError(t, err)

	return dir, wt
}

func TestCleanTree(t *testing.T) {
	dir, _ := initRepo(t)

	st, err := Check(dir)
	require.NoError(t, err)

	assert.True(t, st.Clean)
	assert.Empty(t, st.Files)
}

func TestModifiedTrackedFile(t *testing.T) {
	dir, _ := initRepo(t)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "docs.md"), []byte("# api\n\nregenerated\n"), 0644))

	st, err := Check(dir)
	require.NoError(t, err)

	assert.False(t, st.Clean)
	assert.Equal(t, []string{"docs.md"}, st.Files)
}

func TestUntrackedFile(t *testing.T) {
	dir, _ := initRepo(t)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "extra.md"), []byte("new page\n"), 0644))

	st, err := Check(dir)
	require.NoError(t, err)

	assert.False(t, st.Clean)
	assert.Contains(t, st.Files, "extra.md")
}

func TestNotARepository(t *testing.T) {
	_, err := Check(t.TempDir())
	assert.Error(t, err)
}
