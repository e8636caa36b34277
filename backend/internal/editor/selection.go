package editor

import "annotation-service/backend/internal/ot/delta"

// shiftPosition：在 index 处插入(length>0)或删除(length<0)后，pos 的新位置。
// 用户在光标处输入时光标不动，其余来源会把光标推到插入内容之后
func shiftPosition(pos, index, length int, source Source) int {
	if index > pos || (index == pos && source == SourceUser) {
		return pos
	}
	if length >= 0 {
		return pos + length
	}
	return max(index, pos+length)
}

func shiftRange(r Range, index, length int, source Source) Range {
	start := shiftPosition(r.Index, index, length, source)
	end := shiftPosition(r.Index+r.Length, index, length, source)
	return Range{Index: start, Length: max(0, end-start)}
}

// transformRange 按 delta 中每个 op 依次移动选区
func transformRange(r Range, d delta.Delta, source Source) Range {
	pos := 0
	for _, op := range d {
		n := op.Len()
		switch op.Kind {
		case delta.KindRetain:
			pos += n
		case delta.KindInsert:
			r = shiftRange(r, pos, n, source)
			pos += n
		case delta.KindDelete:
			r = shiftRange(r, pos, -n, source)
		}
	}
	return r
}
