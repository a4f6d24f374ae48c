package outputguard

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSizeOK(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing file is not a violation", func(t *testing.T) {
		ok, err := SizeOK(filepath.Join(dir, "missing.log"), 10)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("file at exactly max length does not trigger a kill", func(t *testing.T) {
		path := filepath.Join(dir, "exact.log")
		require.NoError(t, os.WriteFile(path, make([]byte, 10), 0o644))

		ok, err := SizeOK(path, 10)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("one byte over max triggers a violation", func(t *testing.T) {
		path := filepath.Join(dir, "over.log")
		require.NoError(t, os.WriteFile(path, make([]byte, 11), 0o644))

		ok, err := SizeOK(path, 10)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}
