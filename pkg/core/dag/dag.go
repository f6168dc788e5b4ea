// Package dag 基于go-dag库封装工作流依赖图：构建、就绪集计算、上下游查询。
// 循环检测在Workflow.Validate中完成，这里假定输入已经无环。
package dag

import (
	"fmt"

	godag "github.com/begmaroman/go-dag"

	"github.com/LENAX/flow-engine/pkg/core/workflow"
)

// stepVertex go-dag节点适配器，实现Identifiable接口
type stepVertex struct {
	step *workflow.Step
}

// ID 实现go-dag的Identifiable接口
func (v *stepVertex) ID() string {
	return v.step.ID
}

// Graph 工作流依赖图（对外导出）
type Graph struct {
	d *godag.DAG[*stepVertex]
}

// Build 从Workflow定义构建依赖图（对外导出）
// 边方向：前置Step -> 后置Step。go-dag在AddEdge时会再次检测环，
// 定义合法时不会触发
func Build(wf *workflow.Workflow) (*Graph, error) {
	d := godag.NewDAG[*stepVertex]()

	for _, s := range wf.Steps {
		if _, err := d.AddVertex(&stepVertex{step: s}); err != nil {
			return nil, fmt.Errorf("添加节点失败: Step ID=%s, Error=%w", s.ID, err)
		}
	}

	for _, s := range wf.Steps {
		for _, dep := range s.DependsOn {
			if err := d.AddEdge(dep, s.ID); err != nil {
				return nil, fmt.Errorf("添加边失败: %s -> %s, Error=%w", dep, s.ID, err)
			}
		}
	}

	return &Graph{d: d}, nil
}

// Roots 获取所有根Step ID（无依赖的Step，入度为0）（对外导出）
func (g *Graph) Roots() []string {
	roots := g.d.GetRoots()
	result := make([]string, 0, len(roots))
	for id := range roots {
		result = append(result, id)
	}
	return result
}

// Children 获取指定Step的直接下游Step ID列表（对外导出）
func (g *Graph) Children(stepID string) ([]string, error) {
	children, err := g.d.GetChildren(stepID)
	if err != nil {
		return nil, err
	}
	result := make([]string, 0, len(children))
	for id := range children {
		result = append(result, id)
	}
	return result, nil
}

// Parents 获取指定Step的直接前置Step ID列表（对外导出）
func (g *Graph) Parents(stepID string) ([]string, error) {
	parents, err := g.d.GetParents(stepID)
	if err != nil {
		return nil, err
	}
	result := make([]string, 0, len(parents))
	for id := range parents {
		result = append(result, id)
	}
	return result, nil
}

// DependenciesSatisfied 判断指定Step的所有前置是否都已完成（对外导出）
// completed: 已完成Step ID集合
func (g *Graph) DependenciesSatisfied(stepID string, completed map[string]bool) (bool, error) {
	parents, err := g.Parents(stepID)
	if err != nil {
		return false, err
	}
	for _, p := range parents {
		if !completed[p] {
			return false, nil
		}
	}
	return true, nil
}

// ReadyAfter 计算某个Step完成后新就绪的下游Step ID列表（对外导出）
// 只返回所有前置均已完成的子节点，是否已被调度由调用方判断
func (g *Graph) ReadyAfter(completedStepID string, completed map[string]bool) ([]string, error) {
	children, err := g.Children(completedStepID)
	if err != nil {
		return nil, err
	}

	ready := make([]string, 0, len(children))
	for _, c := range children {
		ok, err := g.DependenciesSatisfied(c, completed)
		if err != nil {
			return nil, err
		}
		if ok {
			ready = append(ready, c)
		}
	}
	return ready, nil
}

// Size 获取图中节点数量（对外导出）
func (g *Graph) Size() int {
	return len(g.d.GetVertices())
}
