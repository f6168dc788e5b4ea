// Package output 提供CLI的表格、JSON与着色消息输出。
package output

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
)

// maxCellWidth 单元格最大显示宽度
// Execution ID和URL这类超长值截断展示，完整值走--json输出
const maxCellWidth = 48

// Table 等宽列表格输出
type Table struct {
	out     io.Writer
	headers []string
	rows    [][]string
	widths  []int
}

// NewTable 创建表格，默认输出到标准输出
func NewTable(headers []string) *Table {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len([]rune(h))
	}
	return &Table{
		out:     os.Stdout,
		headers: headers,
		widths:  widths,
	}
}

// SetOutput 重定向输出目标
func (t *Table) SetOutput(w io.Writer) {
	t.out = w
}

// AddRow 添加行
// 超宽单元格截断后计入列宽；缺失的列补空
func (t *Table) AddRow(row []string) {
	cells := make([]string, len(t.headers))
	for i := range t.headers {
		if i < len(row) {
			cells[i] = truncateCell(row[i], maxCellWidth)
		}
		if w := len([]rune(cells[i])); w > t.widths[i] {
			t.widths[i] = w
		}
	}
	t.rows = append(t.rows, cells)
}

// Render 渲染表格
func (t *Table) Render() {
	headerColor := color.New(color.FgCyan, color.Bold)
	for i, h := range t.headers {
		headerColor.Fprint(t.out, padCell(h, t.widths[i]))
		fmt.Fprint(t.out, "  ")
	}
	fmt.Fprintln(t.out)

	for i := range t.headers {
		fmt.Fprint(t.out, strings.Repeat("-", t.widths[i]), "  ")
	}
	fmt.Fprintln(t.out)

	for _, row := range t.rows {
		for i, cell := range row {
			fmt.Fprint(t.out, padCell(cell, t.widths[i]), "  ")
		}
		fmt.Fprintln(t.out)
	}
}

// padCell 右补空格到列宽，宽度按rune计
func padCell(s string, width int) string {
	gap := width - len([]rune(s))
	if gap <= 0 {
		return s
	}
	return s + strings.Repeat(" ", gap)
}

// truncateCell 超宽截断，以…结尾
func truncateCell(s string, width int) string {
	runes := []rune(s)
	if len(runes) <= width {
		return s
	}
	return string(runes[:width-1]) + "…"
}
