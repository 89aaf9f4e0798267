package dispatch

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepoName(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://forge.example.com/acme/widgets", "acme/widgets"},
		{"https://forge.example.com/acme/widgets.git", "acme/widgets"},
		{"git@forge.example.com:acme/widgets.git", "acme/widgets"},
		{"http://localhost:3000/acme/widgets", "acme/widgets"},
		{"widgets", "widgets"},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, repoName(tt.url))
		})
	}
}

func TestCollectWorkflows(t *testing.T) {
	dir := t.TempDir()
	root := filepath.Join(dir, workflowDir)
	require.NoError(t, os.MkdirAll(root, 0o755))

	require.NoError(t, os.WriteFile(filepath.Join(root, "lint.yml"), []byte("image: alpine"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "test.yaml"), []byte("image: alpine"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "README.md"), []byte("not a workflow"), 0o644))

	raw, err := collectWorkflows(dir)
	require.NoError(t, err)
	require.Len(t, raw, 2)

	names := []string{raw[0].Name, raw[1].Name}
	assert.ElementsMatch(t, []string{"lint", "test"}, names)
}

func TestCollectWorkflowsMissingDir(t *testing.T) {
	raw, err := collectWorkflows(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, raw)
}
