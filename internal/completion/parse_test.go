package completion

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseToleratesMalformedLines(t *testing.T) {
	input := strings.Join([]string{
		"2024-01-02 03:04:05 - sub/a.pdf",
		"",
		"garbage without separator",
		"2024-01-02 - b.pdf",
		`2024-01-02 03:04:06 - win\dir\c.pdf`,
	}, "\n")

	entries, err := Parse(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, entries, 4)

	assert.Equal(t, Entry{Date: "2024-01-02", Time: "03:04:05", Path: "sub/a.pdf", FileName: "a.pdf", Raw: "2024-01-02 03:04:05 - sub/a.pdf"}, entries[0])
	assert.Equal(t, Entry{Path: "garbage without separator", Raw: "garbage without separator"}, entries[1])
	assert.Equal(t, "2024-01-02", entries[2].Date)
	assert.Empty(t, entries[2].Time)
	assert.Equal(t, "c.pdf", entries[3].FileName)
}

func TestReadFileMissing(t *testing.T) {
	entries, err := ReadFile(filepath.Join(t.TempDir(), "none.txt"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}
