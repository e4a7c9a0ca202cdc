package pkg

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPathExists(t *testing.T) {
	tempDir := t.TempDir()

	exists, err := PathExists(tempDir, true)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = PathExists(filepath.Join(tempDir, "nope"), true)
	require.NoError(t, err)
	assert.False(t, exists)

	filePath := filepath.Join(tempDir, "somefile.txt")
	require.NoError(t, os.WriteFile(filePath, []byte("content"), 0600))

	exists, err = PathExists(filePath, false)
	require.NoError(t, err)
	assert.True(t, exists)

	// a file is not a dir
	exists, err = PathExists(filePath, true)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestCompress(t *testing.T) {
	tempDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tempDir, "data.csv"), []byte("a,b,c\n1,2,3\n"), 0600))

	var buf bytes.Buffer
	require.NoError(t, Compress(tempDir, &buf))
	assert.Greater(t, buf.Len(), 0)
}

func TestBytesToString(t *testing.T) {
	assert.Equal(t, "liftlab", BytesToString([]byte("liftlab")))
}
