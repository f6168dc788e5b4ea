package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/LENAX/flow-engine/pkg/cli/flowengine"
	"github.com/LENAX/flow-engine/pkg/cli/output"
)

// executionCmd execution子命令
var executionCmd = &cobra.Command{
	Use:   "execution",
	Short: "Execution管理命令",
	Long:  `管理Workflow执行实例，包括查看状态、暂停、恢复和取消。`,
}

// executionStatusCmd 查看Execution状态
var executionStatusCmd = &cobra.Command{
	Use:   "status <id>",
	Short: "查看Execution执行状态",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := flowengine.New(serverURL, tenant)

		exec, err := client.GetExecution(args[0])
		if err != nil {
			output.Error("查询失败: %v", err)
			return err
		}
		steps, err := client.GetExecutionSteps(args[0])
		if err != nil {
			output.Error("查询Steps失败: %v", err)
			return err
		}

		if outputJSON {
			return output.PrintJSON(map[string]any{
				"execution": exec,
				"steps":     steps,
			})
		}

		fmt.Printf("Execution: %s\n", exec.ID)
		fmt.Printf("Workflow:  %s\n", exec.WorkflowID)
		fmt.Printf("Status:    %s\n", formatStatus(exec.Status))
		fmt.Printf("Progress:  %d/%d (%d%%)\n",
			exec.Progress.Completed,
			exec.Progress.Total,
			calculatePercent(exec.Progress.Completed, exec.Progress.Total))
		if exec.StartedAt != nil {
			fmt.Printf("Started:   %s\n", exec.StartedAt.Format("2006-01-02 15:04:05"))
		}
		if exec.CompletedAt != nil {
			fmt.Printf("Completed: %s\n", exec.CompletedAt.Format("2006-01-02 15:04:05"))
		}
		if exec.Error != "" {
			fmt.Printf("Error:     %s\n", exec.Error)
		}

		fmt.Println("\nSteps:")
		for _, s := range steps {
			duration := ""
			if s.Duration != "" {
				duration = fmt.Sprintf(" %s", s.Duration)
			}
			retries := ""
			if s.RetryCount > 0 {
				retries = fmt.Sprintf(" (重试%d次)", s.RetryCount)
			}
			fmt.Printf("  %s %s  %s%s%s\n", getStatusIcon(s.Status), s.StepID, s.Status, duration, retries)
		}
		return nil
	},
}

// executionPauseCmd 暂停Execution
var executionPauseCmd = &cobra.Command{
	Use:   "pause <id>",
	Short: "暂停Execution执行",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := flowengine.New(serverURL, tenant)
		if err := client.PauseExecution(args[0]); err != nil {
			output.Error("暂停失败: %v", err)
			return err
		}
		output.Success("Execution已暂停: %s", args[0])
		return nil
	},
}

// executionResumeCmd 恢复Execution
var executionResumeCmd = &cobra.Command{
	Use:   "resume <id>",
	Short: "恢复Execution执行",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := flowengine.New(serverURL, tenant)
		if err := client.ResumeExecution(args[0]); err != nil {
			output.Error("恢复失败: %v", err)
			return err
		}
		output.Success("Execution已恢复: %s", args[0])
		return nil
	},
}

// executionCancelCmd 取消Execution
var executionCancelCmd = &cobra.Command{
	Use:   "cancel <id>",
	Short: "取消Execution执行",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := flowengine.New(serverURL, tenant)
		if err := client.CancelExecution(args[0]); err != nil {
			output.Error("取消失败: %v", err)
			return err
		}
		output.Success("Execution已取消: %s", args[0])
		return nil
	},
}

// metricsCmd 查看引擎运行指标
var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "查看引擎运行指标",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := flowengine.New(serverURL, tenant)
		metrics, err := client.Metrics()
		if err != nil {
			output.Error("查询失败: %v", err)
			return err
		}
		return output.PrintJSON(metrics)
	},
}

func init() {
	executionCmd.AddCommand(executionStatusCmd)
	executionCmd.AddCommand(executionPauseCmd)
	executionCmd.AddCommand(executionResumeCmd)
	executionCmd.AddCommand(executionCancelCmd)
}

// formatStatus 格式化状态显示
func formatStatus(status string) string {
	switch status {
	case "completed":
		return "✅ completed"
	case "failed":
		return "❌ failed"
	case "running":
		return "🔄 running"
	case "paused":
		return "⏸️  paused"
	case "pending":
		return "⏳ pending"
	case "cancelled":
		return "🛑 cancelled"
	default:
		return status
	}
}

// getStatusIcon 获取状态图标
func getStatusIcon(status string) string {
	switch status {
	case "completed":
		return "✅"
	case "failed":
		return "❌"
	case "running":
		return "🔄"
	case "pending":
		return "⏳"
	default:
		return "❓"
	}
}

// calculatePercent 计算百分比
func calculatePercent(completed, total int) int {
	if total == 0 {
		return 0
	}
	return completed * 100 / total
}
