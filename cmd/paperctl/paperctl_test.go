package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestSections(t *testing.T) {
	out, err := run(t, "sections")
	require.NoError(t, err)
	assert.Equal(t, "1. title\n2. abstract\n3. introduction\n4. methods\n5. results and discussion\n6. conclusion\n7. references\n", out)
}

func TestSplit_Text(t *testing.T) {
	path := writeFile(t, "paper.txt", "Deep Graphs\nAbstract: We study graphs.\nReferences\n[1] Euler.\n")
	out, err := run(t, "split", path)
	require.NoError(t, err)
	assert.Contains(t, out, "== title ==\nDeep Graphs\n== abstract ==\nWe study graphs.\n")
	assert.Contains(t, out, "== references ==\n[1] Euler.\n")
	assert.Contains(t, out, "paragraphs: 4  images: 0  tables: 0")
}

func TestSplit_JSON(t *testing.T) {
	path := writeFile(t, "paper.md", "# Methods\n\n| a | b |\n|---|---|\n| 1 | 2 |\n")
	out, err := run(t, "split", "-o", "json", path)
	require.NoError(t, err)
	var got splitOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Len(t, got.Sections, 7)
	assert.Equal(t, "{table1}\n", got.Sections["methods"])
	require.Len(t, got.Tables, 1)
	assert.Contains(t, got.Tables[0], "<table>")
	assert.Empty(t, got.ImageSizes)
}

func TestSplit_Errors(t *testing.T) {
	_, err := run(t, "split", writeFile(t, "paper.exe", "x"))
	assert.ErrorContains(t, err, "unsupported")

	_, err = run(t, "split", filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)

	_, err = run(t, "split", "-o", "yaml", writeFile(t, "paper.txt", "x"))
	assert.ErrorContains(t, err, "unknown output format")

	_, err = run(t, "split")
	assert.Error(t, err)
}
