package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/LENAX/flow-engine/pkg/api/dto"
	"github.com/LENAX/flow-engine/pkg/cli/flowengine"
	"github.com/LENAX/flow-engine/pkg/cli/output"
)

var workflowInput string

// workflowCmd workflow子命令
var workflowCmd = &cobra.Command{
	Use:   "workflow",
	Short: "Workflow定义管理命令",
	Long:  `管理Workflow定义，包括保存、列出、查看和触发执行。`,
}

// workflowListCmd 列出Workflow
var workflowListCmd = &cobra.Command{
	Use:   "list",
	Short: "列出所有Workflow定义",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := flowengine.New(serverURL, tenant)
		result, err := client.ListWorkflows()
		if err != nil {
			output.Error("查询失败: %v", err)
			return err
		}

		if outputJSON {
			return output.PrintJSON(result)
		}

		if len(result.Items) == 0 {
			output.Info("暂无Workflow定义")
			return nil
		}

		table := output.NewTable([]string{"WORKFLOW_ID", "NAME", "STEPS", "CREATED"})
		for _, wf := range result.Items {
			table.AddRow([]string{
				wf.ID,
				wf.Name,
				fmt.Sprintf("%d", wf.StepCount),
				wf.CreatedAt.Format("2006-01-02 15:04:05"),
			})
		}
		table.Render()
		return nil
	},
}

// workflowGetCmd 查看Workflow详情
var workflowGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "查看Workflow定义详情",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := flowengine.New(serverURL, tenant)
		wf, err := client.GetWorkflow(args[0])
		if err != nil {
			output.Error("查询失败: %v", err)
			return err
		}

		if outputJSON {
			return output.PrintJSON(wf)
		}

		fmt.Printf("Workflow: %s\n", wf.ID)
		fmt.Printf("Name:     %s\n", wf.Name)
		if wf.Description != "" {
			fmt.Printf("Desc:     %s\n", wf.Description)
		}
		fmt.Printf("Created:  %s\n", wf.CreatedAt.Format("2006-01-02 15:04:05"))

		fmt.Println("\nSteps:")
		for _, s := range wf.Steps {
			deps := "-"
			if len(s.DependsOn) > 0 {
				deps = strings.Join(s.DependsOn, ", ")
			}
			fmt.Printf("  %s (%s)  依赖: %s\n", s.ID, s.Type, deps)
		}
		return nil
	},
}

// workflowSaveCmd 保存Workflow定义
var workflowSaveCmd = &cobra.Command{
	Use:   "save <file.json>",
	Short: "从JSON文件保存Workflow定义",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		content, err := os.ReadFile(args[0])
		if err != nil {
			output.Error("读取文件失败: %v", err)
			return err
		}

		var req dto.SaveWorkflowRequest
		if err := json.Unmarshal(content, &req); err != nil {
			output.Error("解析定义失败: %v", err)
			return err
		}

		client := flowengine.New(serverURL, tenant)
		wf, err := client.SaveWorkflow(&req)
		if err != nil {
			output.Error("保存失败: %v", err)
			return err
		}
		output.Success("Workflow已保存: %s (%s)", wf.ID, wf.Name)
		return nil
	},
}

// workflowTriggerCmd 触发Workflow执行
var workflowTriggerCmd = &cobra.Command{
	Use:   "trigger <id>",
	Short: "触发Workflow执行",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var input map[string]any
		if workflowInput != "" {
			if err := json.Unmarshal([]byte(workflowInput), &input); err != nil {
				output.Error("解析input失败: %v", err)
				return err
			}
		}

		client := flowengine.New(serverURL, tenant)
		result, err := client.TriggerWorkflow(args[0], input)
		if err != nil {
			output.Error("触发失败: %v", err)
			return err
		}
		output.Success("Workflow已触发, ExecutionID: %s", result.ExecutionID)
		return nil
	},
}

func init() {
	workflowTriggerCmd.Flags().StringVar(&workflowInput, "input", "", "执行输入参数（JSON对象）")

	workflowCmd.AddCommand(workflowListCmd)
	workflowCmd.AddCommand(workflowGetCmd)
	workflowCmd.AddCommand(workflowSaveCmd)
	workflowCmd.AddCommand(workflowTriggerCmd)
}
