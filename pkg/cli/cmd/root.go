// Package cmd 定义CLI命令树。
package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	// 全局变量
	serverURL  string
	tenant     string
	outputJSON bool
)

// rootCmd 根命令
var rootCmd = &cobra.Command{
	Use:   "flow-engine",
	Short: "Flow Engine CLI - 工作流引擎命令行工具",
	Long: `Flow Engine CLI 是一个用于管理DAG工作流的命令行工具。

支持的功能：
  - 管理Workflow定义（保存、列出、查看、触发）
  - 管理Execution（查看状态、暂停、恢复、取消）
  - 查看引擎运行指标

使用示例：
  # 列出所有Workflow
  flow-engine workflow list

  # 触发Workflow执行
  flow-engine workflow trigger <workflow-id>

  # 查看Execution状态
  flow-engine execution status <execution-id>

  # 暂停Execution
  flow-engine execution pause <execution-id>`,
}

// Execute 执行根命令
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	// 全局参数
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "http://localhost:8080", "Flow Engine服务器地址")
	rootCmd.PersistentFlags().StringVarP(&tenant, "tenant", "t", "default", "租户标识")
	rootCmd.PersistentFlags().BoolVarP(&outputJSON, "json", "j", false, "使用JSON格式输出")

	// 添加子命令
	rootCmd.AddCommand(workflowCmd)
	rootCmd.AddCommand(executionCmd)
	rootCmd.AddCommand(metricsCmd)
	rootCmd.AddCommand(versionCmd)
}
