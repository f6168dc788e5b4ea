package workflow

import (
	"fmt"
)

// Validate 校验Workflow定义的合法性（对外导出）
// 校验规则：
//  1. 至少包含一个Step，Step ID在Workflow内唯一
//  2. DependsOn只能引用本Workflow内的Step，且不能依赖自身
//  3. 依赖图无环（DFS三色标记法检测）
//  4. 所有Step必须从某个无依赖的根Step可达，孤岛子图视为定义错误
//
// 校验只在定义时执行一次，执行期不再检查
func (w *Workflow) Validate() error {
	if len(w.Steps) == 0 {
		return fmt.Errorf("workflow %s 不包含任何Step", w.ID)
	}

	steps := make(map[string]*Step, len(w.Steps))
	for _, s := range w.Steps {
		if s.ID == "" {
			return fmt.Errorf("workflow %s 存在空的Step ID", w.ID)
		}
		if s.Type == "" {
			return fmt.Errorf("step %s 未指定Type", s.ID)
		}
		if _, exists := steps[s.ID]; exists {
			return fmt.Errorf("step ID %s 重复", s.ID)
		}
		steps[s.ID] = s
	}

	// 依赖引用检查
	for _, s := range w.Steps {
		for _, dep := range s.DependsOn {
			if dep == s.ID {
				return fmt.Errorf("step %s 不能依赖自身", s.ID)
			}
			if _, exists := steps[dep]; !exists {
				return fmt.Errorf("step %s 依赖不存在的step %s", s.ID, dep)
			}
		}
	}

	// 构建邻接表：前置Step -> 后置Step
	graph := make(map[string][]string, len(steps))
	for id := range steps {
		graph[id] = make([]string, 0)
	}
	for _, s := range w.Steps {
		for _, dep := range s.DependsOn {
			graph[dep] = append(graph[dep], s.ID)
		}
	}

	if hasCycle, cyclePath := detectCycleDFS(graph); hasCycle {
		return fmt.Errorf("workflow %s 检测到循环依赖: %v", w.ID, cyclePath)
	}

	// 孤岛检查：从所有根Step（无依赖）做可达性遍历
	roots := make([]string, 0)
	for _, s := range w.Steps {
		if len(s.DependsOn) == 0 {
			roots = append(roots, s.ID)
		}
	}
	if len(roots) == 0 {
		// 无环但没有根节点的情况不可能出现，防御性保留
		return fmt.Errorf("workflow %s 没有无依赖的根Step", w.ID)
	}

	reachable := make(map[string]bool, len(steps))
	queue := append([]string(nil), roots...)
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if reachable[cur] {
			continue
		}
		reachable[cur] = true
		queue = append(queue, graph[cur]...)
	}
	for id := range steps {
		if !reachable[id] {
			return fmt.Errorf("step %s 从任何根Step均不可达，workflow %s 存在孤岛子图", id, w.ID)
		}
	}

	return nil
}

// detectCycleDFS 使用DFS检测图中是否存在循环
// 三色标记法：0=白色（未访问），1=灰色（正在访问），2=黑色（已访问）
func detectCycleDFS(graph map[string][]string) (bool, []string) {
	color := make(map[string]int)
	parent := make(map[string]string)
	cyclePath := make([]string, 0)

	for nodeID := range graph {
		color[nodeID] = 0
	}

	var dfs func(nodeID string) bool
	dfs = func(nodeID string) bool {
		color[nodeID] = 1

		for _, childID := range graph[nodeID] {
			if color[childID] == 0 {
				parent[childID] = nodeID
				if dfs(childID) {
					return true
				}
			} else if color[childID] == 1 {
				// 灰色节点，存在后向边，检测到循环
				cyclePath = append(cyclePath, childID)
				cur := nodeID
				for cur != childID && cur != "" {
					cyclePath = append(cyclePath, cur)
					cur = parent[cur]
				}
				cyclePath = append(cyclePath, childID)
				return true
			}
		}

		color[nodeID] = 2
		return false
	}

	for nodeID := range graph {
		if color[nodeID] == 0 {
			if dfs(nodeID) {
				return true, cyclePath
			}
		}
	}

	return false, nil
}
