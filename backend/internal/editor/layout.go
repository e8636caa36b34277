package editor

const (
	DefaultLineHeight = 24
	DefaultCharWidth  = 8
)

// Layout 是一个等宽排版模型：每行固定高度，每格固定宽度
type Layout struct {
	LineHeight int
	CharWidth  int
}

func (l Layout) lineHeight() int {
	if l.LineHeight <= 0 {
		return DefaultLineHeight
	}
	return l.LineHeight
}

func (l Layout) charWidth() int {
	if l.CharWidth <= 0 {
		return DefaultCharWidth
	}
	return l.CharWidth
}

// position 返回 index 所在的行号和列号
func position(cells []cell, index int) (line, col int) {
	for i := 0; i < index && i < len(cells); i++ {
		if cells[i].r == '\n' {
			line++
			col = 0
			continue
		}
		col++
	}
	return line, col
}

func (l Layout) bounds(cells []cell, index, length int) Bounds {
	if len(cells) == 0 {
		return Bounds{Height: l.lineHeight()}
	}
	if index < 0 {
		index = 0
	}
	if index > len(cells)-1 {
		index = len(cells) - 1
	}
	if length < 0 {
		length = 0
	}
	line, col := position(cells, index)
	endLine, endCol := position(cells, min(index+length, len(cells)-1))

	b := Bounds{
		Top:    line * l.lineHeight(),
		Left:   col * l.charWidth(),
		Height: (endLine - line + 1) * l.lineHeight(),
	}
	if endLine == line {
		b.Width = (endCol - col) * l.charWidth()
	}
	return b
}

// pointToIndex 把像素坐标换算成缓冲区位置，超出最后一行时落在文档末尾
func (l Layout) pointToIndex(cells []cell, x, y int) (int, bool) {
	if x < 0 || y < 0 || len(cells) == 0 {
		return 0, false
	}
	wantLine := y / l.lineHeight()
	wantCol := (x + l.charWidth()/2) / l.charWidth()

	line, col := 0, 0
	for i, c := range cells {
		if line == wantLine && (col == wantCol || c.r == '\n') {
			return i, true
		}
		if c.r == '\n' {
			line++
			col = 0
			continue
		}
		col++
	}
	return len(cells) - 1, true
}
