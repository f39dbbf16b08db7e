package cmd

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"firestige.xyz/scanguard/internal/classifier"
)

func TestPrintRules_Table(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printRules(classifier.DefaultTable().Describe(), formatTable, &buf))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 6)
	assert.True(t, strings.HasPrefix(lines[0], "#"))
	assert.Contains(t, lines[1], "window in [1024 2048 3072 4096]")
	assert.Contains(t, lines[2], "XMAS scan")
	assert.Contains(t, lines[5], "SYN scan")
	assert.Contains(t, lines[5], "drop")
}

func TestPrintRules_YAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printRules(classifier.DefaultTable().Describe(), formatYAML, &buf))

	var rows []classifier.RuleInfo
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &rows))
	assert.Equal(t, classifier.DefaultTable().Describe(), rows)
}

func TestPrintRules_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printRules(classifier.DefaultTable().Describe(), formatJSON, &buf))

	var rows []classifier.RuleInfo
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rows))
	require.Len(t, rows, 5)
	assert.Equal(t, classifier.RuleNULL, rows[3].Name)
}

func TestPrintRules_UnknownFormat(t *testing.T) {
	err := printRules(nil, "csv", &bytes.Buffer{})
	assert.ErrorContains(t, err, "unsupported output format")
}
