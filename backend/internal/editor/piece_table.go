package editor

import (
	"errors"
	"slices"
	"strings"

	"annotation-service/backend/internal/ot/delta"
)

var (
	ErrOutOfRange = errors.New("delta exceeds document length")
	ErrSplitEmbed = errors.New("delta splits an embed")
)

type bufferKind int

const (
	//iota：在 const (...) 里从 0 开始自动递增。这里：bufOriginal = 0, bufAdd = 1
	bufOriginal bufferKind = iota
	bufAdd
)

// cell 是缓冲区的最小单位：一个字符，或者 embed 的一格。
// 宽度为 w 的 embed 占 w 个 cell：第一个带 embed，其余 cont=true
type cell struct {
	r     rune
	embed *delta.Embed
	cont  bool
	attrs map[string]any
}

const embedRune = '￼'

func (c cell) isEmbedHead() bool { return c.embed != nil }

type piece struct {
	// 指针标签，表示从 original 还是 add 切片上偏移
	buf    bufferKind
	offset int // 偏移量
	length int
}

type PieceTable struct {
	// 原始内容
	original []cell
	// 新增内容，只追加
	add []cell
	// 分片列表
	pieces []piece
}

func NewPieceTable(initial string) *PieceTable {
	r := []rune(initial)
	cells := make([]cell, len(r))
	for i, ch := range r {
		cells[i] = cell{r: ch}
	}
	return &PieceTable{
		original: cells,
		pieces:   []piece{{buf: bufOriginal, offset: 0, length: len(cells)}},
	}
}

func (pt *PieceTable) Len() int {
	n := 0
	for _, p := range pt.pieces {
		n += p.length
	}
	return n
}

// String 把 embed 渲染成 U+FFFC，embed 的后续格不输出
func (pt *PieceTable) String() string {
	var sb strings.Builder
	for _, c := range pt.cells() {
		switch {
		case c.cont:
		case c.isEmbedHead():
			sb.WriteRune(embedRune)
		default:
			sb.WriteRune(c.r)
		}
	}
	return sb.String()
}

func (pt *PieceTable) source(b bufferKind) []cell {
	if b == bufAdd {
		return pt.add
	}
	return pt.original
}

func (pt *PieceTable) cells() []cell {
	out := make([]cell, 0, pt.Len())
	for _, p := range pt.pieces {
		out = append(out, pt.source(p.buf)[p.offset:p.offset+p.length]...)
	}
	return out
}

// slice 返回 [from, to) 的 cell 副本
func (pt *PieceTable) slice(from, to int) []cell {
	all := pt.cells()
	if from < 0 {
		from = 0
	}
	if to > len(all) {
		to = len(all)
	}
	if from >= to {
		return nil
	}
	out := make([]cell, to-from)
	copy(out, all[from:to])
	return out
}

func (pt *PieceTable) at(pos int) (cell, bool) {
	idx, offset := pt.locate(pos)
	if idx >= len(pt.pieces) {
		return cell{}, false
	}
	p := pt.pieces[idx]
	return pt.source(p.buf)[p.offset+offset], true
}

// validate 先整体检查，避免 delta 只应用了一半。
// embed 占多格，只能整体插入、删除或改格式，落在 embed 内部的边界一律拒绝
func (pt *PieceTable) validate(d delta.Delta) error {
	cont := make([]bool, 0, pt.Len())
	for _, c := range pt.cells() {
		cont = append(cont, c.cont)
	}
	inside := func(at int) bool { return at < len(cont) && cont[at] }

	pos := 0
	for _, op := range d {
		n := op.Len()
		switch op.Kind {
		case delta.KindRetain:
			if pos+n > len(cont) {
				return ErrOutOfRange
			}
			if op.Attrs != nil && n > 0 && (inside(pos) || inside(pos+n)) {
				return ErrSplitEmbed
			}
			pos += n
		case delta.KindInsert:
			if inside(pos) {
				return ErrSplitEmbed
			}
			flags := make([]bool, n)
			if op.Embed != nil {
				for i := 1; i < n; i++ {
					flags[i] = true
				}
			}
			cont = slices.Insert(cont, pos, flags...)
			pos += n
		case delta.KindDelete:
			if pos+n > len(cont) {
				return ErrOutOfRange
			}
			if n > 0 && (inside(pos) || inside(pos+n)) {
				return ErrSplitEmbed
			}
			cont = slices.Delete(cont, pos, pos+n)
		}
	}
	return nil
}

func (pt *PieceTable) Apply(d delta.Delta) error {
	if err := pt.validate(d); err != nil {
		return err
	}
	pos := 0
	//retain: 沿 piece 列表向前走，对应“移动 pos”；带 attrs 时重写这一段的格式
	//insert: 在当前 pos 调用 insert 流程；
	//delete: 在当前 pos 调用 delete 流程（通过调整/合并 piece）。
	for _, op := range d {
		n := op.Len()
		switch op.Kind {
		case delta.KindRetain:
			if op.Attrs != nil && n > 0 {
				cells := pt.slice(pos, pos+n)
				for i := range cells {
					cells[i].attrs = mergeAttrs(cells[i].attrs, op.Attrs)
				}
				pt.deleteAt(pos, n)
				pt.insertAt(pos, cells)
			}
			pos += n

		case delta.KindInsert:
			pt.insertAt(pos, opCells(op))
			pos += n

		case delta.KindDelete:
			pt.deleteAt(pos, n)
		}
	}
	return nil
}

func opCells(op delta.Op) []cell {
	attrs := mergeAttrs(nil, op.Attrs)
	if op.Embed != nil {
		w := op.Len()
		cells := make([]cell, w)
		e := *op.Embed
		cells[0] = cell{r: embedRune, embed: &e, attrs: attrs}
		for i := 1; i < w; i++ {
			cells[i] = cell{r: embedRune, cont: true, attrs: attrs}
		}
		return cells
	}
	r := []rune(op.Text)
	cells := make([]cell, len(r))
	for i, ch := range r {
		cells[i] = cell{r: ch, attrs: attrs}
	}
	return cells
}

func (pt *PieceTable) insertAt(pos int, cells []cell) {
	if len(cells) == 0 {
		return
	}
	start := len(pt.add)
	pt.add = append(pt.add, cells...)
	newPiece := piece{buf: bufAdd, offset: start, length: len(cells)}

	idx, offset := pt.locate(pos)
	if idx >= len(pt.pieces) {
		pt.pieces = append(pt.pieces, newPiece)
		return
	}
	cur := pt.pieces[idx]
	left := piece{buf: cur.buf, offset: cur.offset, length: offset}
	right := piece{buf: cur.buf, offset: cur.offset + offset, length: cur.length - offset}

	newPieces := make([]piece, 0, len(pt.pieces)+2)
	newPieces = append(newPieces, pt.pieces[:idx]...)
	if left.length > 0 {
		newPieces = append(newPieces, left)
	}
	newPieces = append(newPieces, newPiece)
	if right.length > 0 {
		newPieces = append(newPieces, right)
	}
	// 只动目标piece，其他piece不动
	newPieces = append(newPieces, pt.pieces[idx+1:]...)
	pt.pieces = newPieces
}

func (pt *PieceTable) deleteAt(pos, count int) {
	// 要删的剩余长度
	remain := count
	idx, offset := pt.locate(pos)

	for remain > 0 && idx < len(pt.pieces) {
		cur := pt.pieces[idx]
		// 这个 piece 里还剩多少可删
		can := cur.length - offset
		if can <= 0 {
			idx++
			offset = 0
			continue
		}
		take := remain
		if take > can {
			take = can
		}

		if offset == 0 && take == cur.length {
			// 整个 piece 都删掉，idx 不动（现在这个位置是删完后的下一个 piece）
			pt.pieces = append(pt.pieces[:idx], pt.pieces[idx+1:]...)
		} else {
			// 只删一段：拆成 左 / 右 两段
			leftLen := offset
			rightLen := cur.length - offset - take

			newPieces := make([]piece, 0, len(pt.pieces)+1)
			newPieces = append(newPieces, pt.pieces[:idx]...)
			if leftLen > 0 {
				newPieces = append(newPieces, piece{buf: cur.buf, offset: cur.offset, length: leftLen})
			}
			if rightLen > 0 {
				newPieces = append(newPieces, piece{buf: cur.buf, offset: cur.offset + offset + take, length: rightLen})
			}
			newPieces = append(newPieces, pt.pieces[idx+1:]...)
			pt.pieces = newPieces
			if leftLen > 0 {
				idx++
			}
		}
		offset = 0
		remain -= take
	}
}

// 根据逻辑位置 pos，找到对应的 piece 下标 idx 和在该 piece 内的偏移 offset
func (pt *PieceTable) locate(pos int) (idx int, offset int) {
	cur := 0
	for i, p := range pt.pieces {
		if pos < cur+p.length {
			return i, pos - cur
		}
		cur += p.length
	}
	return len(pt.pieces), 0
}

// mergeAttrs 返回新 map；patch 中值为 nil 的键表示删除
func mergeAttrs(base, patch map[string]any) map[string]any {
	if len(base) == 0 && len(patch) == 0 {
		return nil
	}
	out := make(map[string]any, len(base)+len(patch))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range patch {
		if v == nil {
			delete(out, k)
			continue
		}
		out[k] = v
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
