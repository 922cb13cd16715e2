package cli

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTable_RenderPlain(t *testing.T) {
	tbl := NewTable("name", "kind", "status")
	tbl.AddRow("agent-tools", "gateway", "READY")
	tbl.AddRow("auth0-backend", "credential-provider", "CREATING")

	var sb strings.Builder
	tbl.RenderPlain(&sb, false)
	out := sb.String()

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	assert.Len(t, lines, 3)
	assert.Equal(t, "NAME", out[:4], "headers are uppercased")
	assert.Contains(t, lines[1], "agent-tools")
	assert.Contains(t, lines[2], "credential-provider")

	// Columns line up: STATUS starts at the same offset in every line.
	headerIdx := strings.Index(lines[0], "STATUS")
	assert.Equal(t, headerIdx, strings.Index(lines[1], "READY"))
	assert.Equal(t, headerIdx, strings.Index(lines[2], "CREATING"))
}

func TestTable_RenderPlainNoHeaders(t *testing.T) {
	tbl := NewTable("name", "status")
	tbl.AddRow("agent-tools", "READY")

	var sb strings.Builder
	tbl.RenderPlain(&sb, true)

	assert.NotContains(t, sb.String(), "NAME")
	assert.Contains(t, sb.String(), "agent-tools")
}

func TestTable_RowNormalization(t *testing.T) {
	tbl := NewTable("name", "status")
	tbl.AddRow("short-row")
	tbl.AddRow("long-row", "READY", "extra-cell-dropped")

	var sb strings.Builder
	tbl.RenderPlain(&sb, true)

	assert.NotContains(t, sb.String(), "extra-cell-dropped")
	assert.Contains(t, sb.String(), "short-row")
}

func TestTable_RenderRounded(t *testing.T) {
	tbl := NewTable("name", "status")
	tbl.AddRow("agent-tools", "READY")

	var sb strings.Builder
	tbl.Render(&sb)
	out := sb.String()

	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "agent-tools")
	assert.Contains(t, out, "│", "rounded style draws box borders")
}

func TestOutputFlags_Validate(t *testing.T) {
	for _, format := range []string{OutputTable, OutputPlain, OutputJSON} {
		assert.NoError(t, (&OutputFlags{Format: format}).Validate())
	}

	err := (&OutputFlags{Format: "yaml"}).Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "yaml")
}
