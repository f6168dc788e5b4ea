package executor

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/LENAX/flow-engine/pkg/core/workflow"
)

// 内置Step类型常量（对外导出）
const (
	StepTypeHTTPFetch   = "http_fetch"
	StepTypeHTMLExtract = "html_extract"
	StepTypeTransform   = "transform"
	StepTypeDelay       = "delay"
)

const maxFetchBodySize = 4 << 20 // 4MB

// RegisterBuiltins 注册内置Step操作（对外导出）
// 由应用入口调用，核心调度器不依赖任何内置操作
func RegisterBuiltins(registry *OperationRegistry) error {
	builtins := map[string]OperationFunc{
		StepTypeHTTPFetch:   HTTPFetchOperation,
		StepTypeHTMLExtract: HTMLExtractOperation,
		StepTypeTransform:   TransformOperation,
		StepTypeDelay:       DelayOperation,
	}
	for stepType, fn := range builtins {
		if err := registry.Register(stepType, fn); err != nil {
			return err
		}
	}
	return nil
}

// HTTPFetchOperation 抓取URL内容（对外导出）
// Config: url（必填）、method（默认GET）、save_as（默认body，结果存入variables的键名）
func HTTPFetchOperation(ctx context.Context, step *workflow.Step, wfCtx *workflow.Context) (*Result, error) {
	url := configString(step, "url")
	if url == "" {
		return nil, fmt.Errorf("step %s 缺少url配置", step.ID)
	}
	method := configString(step, "method")
	if method == "" {
		method = http.MethodGet
	}
	saveAs := configString(step, "save_as")
	if saveAs == "" {
		saveAs = "body"
	}

	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, fmt.Errorf("构建请求失败: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("请求 %s 失败: %w", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBodySize))
	if err != nil {
		return nil, fmt.Errorf("读取响应失败: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("请求 %s 返回状态码 %d", url, resp.StatusCode)
	}

	return &Result{
		Output: map[string]any{
			"status_code": resp.StatusCode,
			"length":      len(body),
		},
		Variables: map[string]any{
			saveAs: string(body),
		},
	}, nil
}

// HTMLExtractOperation 用CSS选择器从HTML中提取文本（对外导出）
// Config: selector（必填）、source（variables中的HTML键名，默认body）、
// save_as（结果存入variables的键名，默认extracted）
func HTMLExtractOperation(ctx context.Context, step *workflow.Step, wfCtx *workflow.Context) (*Result, error) {
	selector := configString(step, "selector")
	if selector == "" {
		return nil, fmt.Errorf("step %s 缺少selector配置", step.ID)
	}
	source := configString(step, "source")
	if source == "" {
		source = "body"
	}
	saveAs := configString(step, "save_as")
	if saveAs == "" {
		saveAs = "extracted"
	}

	html, _ := wfCtx.Variables[source].(string)
	if html == "" {
		return nil, fmt.Errorf("variables中不存在HTML来源 %s", source)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("解析HTML失败: %w", err)
	}

	extracted := make([]any, 0)
	doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		extracted = append(extracted, strings.TrimSpace(s.Text()))
	})

	return &Result{
		Output: map[string]any{
			"matched": len(extracted),
		},
		Variables: map[string]any{
			saveAs: extracted,
		},
	}, nil
}

// TransformOperation 按映射规则重命名variables中的键（对外导出）
// Config: mapping（必填，目标键 -> 来源键）
func TransformOperation(ctx context.Context, step *workflow.Step, wfCtx *workflow.Context) (*Result, error) {
	mapping, _ := step.Config["mapping"].(map[string]any)
	if len(mapping) == 0 {
		return nil, fmt.Errorf("step %s 缺少mapping配置", step.ID)
	}

	vars := make(map[string]any, len(mapping))
	for target, src := range mapping {
		srcKey, ok := src.(string)
		if !ok {
			return nil, fmt.Errorf("mapping的值必须是来源键名: %s", target)
		}
		value, exists := wfCtx.Variables[srcKey]
		if !exists {
			return nil, fmt.Errorf("variables中不存在来源键 %s", srcKey)
		}
		vars[target] = value
	}

	return &Result{
		Output:    map[string]any{"mapped": len(vars)},
		Variables: vars,
	}, nil
}

// DelayOperation 等待指定时长（对外导出）
// Config: duration（Go时长格式，如"500ms"、"2s"）
func DelayOperation(ctx context.Context, step *workflow.Step, wfCtx *workflow.Context) (*Result, error) {
	durationStr := configString(step, "duration")
	duration, err := time.ParseDuration(durationStr)
	if err != nil {
		return nil, fmt.Errorf("step %s 的duration配置无效: %w", step.ID, err)
	}

	select {
	case <-time.After(duration):
		return &Result{Output: map[string]any{"waited": duration.String()}}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// configString 读取Step配置中的字符串项
func configString(step *workflow.Step, key string) string {
	if step.Config == nil {
		return ""
	}
	v, _ := step.Config[key].(string)
	return v
}
