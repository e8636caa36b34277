package anchor

import "annotation-service/backend/internal/ot/delta"

// IndexChange 描述一次编辑：从 Index 开始，文档净变化 Change（插入为正，删除为负）
type IndexChange struct {
	Index  int `json:"index"`
	Change int `json:"change"`
}

// CalculateIndexChange 从 delta 取编辑起点和净长度变化；没有前导 retain 时起点为 0
func CalculateIndexChange(d delta.Delta) IndexChange {
	return IndexChange{Index: d.LeadingRetain(), Change: d.ChangeLength()}
}

// AdjustIndex 按保守规则移动批注起点：
//   - 净插入，且起点在插入点之前：不动
//   - 净删除，且起点在 Index+Change 之前：不动
//   - 其余情况整体平移 Change
//
// 不区分编辑落在批注内部还是之后，两者都平移
func AdjustIndex(current int, c IndexChange) int {
	switch {
	case c.Change > 0 && current < c.Index:
		return current
	case c.Change < 0 && current < c.Index+c.Change:
		return current
	default:
		return current + c.Change
	}
}
