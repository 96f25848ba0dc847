package classify

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// replaceFile swaps content in with a rename so the watcher never sees a
// half-written table.
func replaceFile(t *testing.T, path, content string) {
	tmp := path + ".tmp"
	require.NoError(t, os.WriteFile(tmp, []byte(content), 0o644))
	require.NoError(t, os.Rename(tmp, path))
}

func TestWatchReloadsTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "table.yaml")
	require.NoError(t, os.WriteFile(path, []byte("block:\n  - name: block_hash\n    pattern: '^##\\s*(?P<name>.+)$'\n"), 0o644))
	table, err := LoadTable(path)
	require.NoError(t, err)
	c := New(table)
	require.Equal(t, BlockStart, c.Classify("## Музыка").Kind)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, Watch(ctx, c, path))

	pinned := c.Snapshot()

	// broken patterns keep the current table
	replaceFile(t, path, "block:\n  - name: bad\n    pattern: '('\n")
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, BlockStart, c.Classify("## Музыка").Kind)

	replaceFile(t, path, "block:\n  - name: block_at\n    pattern: '^@\\s*(?P<name>.+)$'\n")
	require.Eventually(t, func() bool {
		return c.Classify("@ Музыка").Kind == BlockStart
	}, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, NoMatch, c.Classify("## Музыка").Kind)
	require.Equal(t, BlockStart, pinned.Classify("## Музыка").Kind)
}

func TestSwapIgnoresNil(t *testing.T) {
	c := New(nil)
	c.Swap(nil)
	require.Equal(t, TourStart, c.Classify("Тур 2").Kind)
}
