// Package flowengine 提供Flow Engine HTTP API客户端，供CLI使用。
package flowengine

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/LENAX/flow-engine/pkg/api/dto"
)

// Client Flow Engine HTTP API客户端
type Client struct {
	baseURL    string
	tenantID   string
	httpClient *http.Client
}

// New 创建客户端
func New(baseURL, tenantID string) *Client {
	return &Client{
		baseURL:  baseURL,
		tenantID: tenantID,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// ========== Workflow API ==========

// ListWorkflows 列出所有Workflow
func (c *Client) ListWorkflows() (*dto.ListResponse[dto.WorkflowSummary], error) {
	var resp dto.APIResponse[dto.ListResponse[dto.WorkflowSummary]]
	if err := c.get("/api/v1/workflows", &resp); err != nil {
		return nil, err
	}
	if resp.Code != 0 {
		return nil, fmt.Errorf("%s", resp.Message)
	}
	return &resp.Data, nil
}

// GetWorkflow 获取Workflow详情
func (c *Client) GetWorkflow(id string) (*dto.WorkflowDetail, error) {
	var resp dto.APIResponse[dto.WorkflowDetail]
	if err := c.get("/api/v1/workflows/"+id, &resp); err != nil {
		return nil, err
	}
	if resp.Code != 0 {
		return nil, fmt.Errorf("%s", resp.Message)
	}
	return &resp.Data, nil
}

// SaveWorkflow 保存Workflow定义
func (c *Client) SaveWorkflow(req *dto.SaveWorkflowRequest) (*dto.WorkflowSummary, error) {
	var resp dto.APIResponse[dto.WorkflowSummary]
	if err := c.post("/api/v1/workflows", req, &resp); err != nil {
		return nil, err
	}
	if resp.Code != 0 {
		return nil, fmt.Errorf("%s", resp.Message)
	}
	return &resp.Data, nil
}

// TriggerWorkflow 触发Workflow执行
func (c *Client) TriggerWorkflow(id string, input map[string]any) (*dto.TriggerResponse, error) {
	req := dto.TriggerWorkflowRequest{Input: input}
	var resp dto.APIResponse[dto.TriggerResponse]
	if err := c.post("/api/v1/workflows/"+id+"/trigger", req, &resp); err != nil {
		return nil, err
	}
	if resp.Code != 0 {
		return nil, fmt.Errorf("%s", resp.Message)
	}
	return &resp.Data, nil
}

// ========== Execution API ==========

// GetExecution 获取Execution详情
func (c *Client) GetExecution(id string) (*dto.ExecutionDetail, error) {
	var resp dto.APIResponse[dto.ExecutionDetail]
	if err := c.get("/api/v1/executions/"+id, &resp); err != nil {
		return nil, err
	}
	if resp.Code != 0 {
		return nil, fmt.Errorf("%s", resp.Message)
	}
	return &resp.Data, nil
}

// GetExecutionSteps 列出Execution的StepExecution
func (c *Client) GetExecutionSteps(id string) ([]dto.StepExecutionDetail, error) {
	var resp dto.APIResponse[dto.ListResponse[dto.StepExecutionDetail]]
	if err := c.get("/api/v1/executions/"+id+"/steps", &resp); err != nil {
		return nil, err
	}
	if resp.Code != 0 {
		return nil, fmt.Errorf("%s", resp.Message)
	}
	return resp.Data.Items, nil
}

// PauseExecution 暂停Execution
func (c *Client) PauseExecution(id string) error {
	return c.lifecycle(id, "pause")
}

// ResumeExecution 恢复Execution
func (c *Client) ResumeExecution(id string) error {
	return c.lifecycle(id, "resume")
}

// CancelExecution 取消Execution
func (c *Client) CancelExecution(id string) error {
	return c.lifecycle(id, "cancel")
}

func (c *Client) lifecycle(id, action string) error {
	var resp dto.APIResponse[map[string]string]
	if err := c.post("/api/v1/executions/"+id+"/"+action, nil, &resp); err != nil {
		return err
	}
	if resp.Code != 0 {
		return fmt.Errorf("%s", resp.Message)
	}
	return nil
}

// ========== 运维 API ==========

// Metrics 获取引擎运行指标
func (c *Client) Metrics() (map[string]any, error) {
	var resp dto.APIResponse[map[string]any]
	if err := c.get("/api/v1/metrics", &resp); err != nil {
		return nil, err
	}
	if resp.Code != 0 {
		return nil, fmt.Errorf("%s", resp.Message)
	}
	return resp.Data, nil
}

// ========== HTTP基础方法 ==========

func (c *Client) get(path string, out any) error {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) post(path string, body, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequest(http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	if c.tenantID != "" {
		req.Header.Set("X-Tenant-ID", c.tenantID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("请求失败: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("读取响应失败: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("解析响应失败 (HTTP %d): %w", resp.StatusCode, err)
	}
	return nil
}
