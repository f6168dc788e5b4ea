package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTable_RenderAlignsColumns(t *testing.T) {
	var buf bytes.Buffer
	table := NewTable([]string{"WORKFLOW_ID", "NAME"})
	table.SetOutput(&buf)
	table.AddRow([]string{"wf-1", "抓取流程"})
	table.AddRow([]string{"wf-with-a-longer-identifier", "短"})
	table.Render()

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 4)
	// 分隔线宽度跟随最宽单元格
	assert.True(t, strings.HasPrefix(lines[1], strings.Repeat("-", len("wf-with-a-longer-identifier"))))
	assert.Contains(t, lines[2], "wf-1")
	assert.Contains(t, lines[3], "wf-with-a-longer-identifier")
}

func TestTable_TruncatesWideCells(t *testing.T) {
	var buf bytes.Buffer
	table := NewTable([]string{"URL"})
	table.SetOutput(&buf)
	table.AddRow([]string{strings.Repeat("x", 100)})
	table.Render()

	assert.Contains(t, buf.String(), "…")
	assert.NotContains(t, buf.String(), strings.Repeat("x", maxCellWidth))
}

func TestTable_ShortRowPadsMissingCells(t *testing.T) {
	var buf bytes.Buffer
	table := NewTable([]string{"ID", "STATUS"})
	table.SetOutput(&buf)
	table.AddRow([]string{"only-id"})
	table.Render()

	assert.Contains(t, buf.String(), "only-id")
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
}
