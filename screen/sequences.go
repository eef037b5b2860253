package screen

import (
	"github.com/charmbracelet/x/ansi"
)

// count returns parameter i treating missing and zero as one.
func count(params ansi.Params, i int) int {
	n, _, _ := params.Param(i, 1)
	if n < 1 {
		return 1
	}
	return n
}

func param(params ansi.Params, i, def int) int {
	n, _, _ := params.Param(i, def)
	return n
}

func (b *Buffer) handleCsi(cmd ansi.Cmd, params ansi.Params) {
	// private modes (CSI ? ...) and intermediates only affect rendering
	if cmd.Prefix() != 0 || cmd.Intermediate() != 0 {
		return
	}

	x, y := b.cur.x, b.cur.y
	switch cmd.Final() {
	case 'A': // CUU
		b.moveTo(x, y-count(params, 0))
	case 'B', 'e': // CUD, VPR
		b.moveTo(x, y+count(params, 0))
	case 'C', 'a': // CUF, HPR
		b.moveTo(x+count(params, 0), y)
	case 'D': // CUB
		b.moveTo(x-count(params, 0), y)
	case 'E': // CNL
		b.moveTo(0, y+count(params, 0))
	case 'F': // CPL
		b.moveTo(0, y-count(params, 0))
	case 'G', '`': // CHA, HPA
		b.moveTo(count(params, 0)-1, y)
	case 'H', 'f': // CUP, HVP
		b.moveTo(count(params, 1)-1, count(params, 0)-1)
	case 'd': // VPA
		b.moveTo(x, count(params, 0)-1)
	case 'J': // ED
		b.eraseDisplay(param(params, 0, 0))
	case 'K': // EL
		b.eraseLine(param(params, 0, 0))
	case 'X': // ECH
		b.eraseCells(y, x, x+count(params, 0))
		b.wrapPending = false
	case 'P': // DCH
		b.deleteChars(count(params, 0))
	case '@': // ICH
		b.insertChars(count(params, 0))
	case 'L': // IL
		if y >= b.top && y <= b.bottom {
			b.insertRows(y, count(params, 0))
			b.moveTo(0, y)
		}
	case 'M': // DL
		if y >= b.top && y <= b.bottom {
			b.deleteRows(y, count(params, 0))
			b.moveTo(0, y)
		}
	case 'S': // SU
		b.scrollUp(count(params, 0))
	case 'T': // SD
		b.scrollDown(count(params, 0))
	case 'r': // DECSTBM
		top := param(params, 0, 1)
		bottom := param(params, 1, b.rows)
		if top < 1 {
			top = 1
		}
		if bottom < 1 || bottom > b.rows {
			bottom = b.rows
		}
		if top < bottom {
			b.top, b.bottom = top-1, bottom-1
			b.moveTo(0, 0)
		}
	case 's': // SCOSC
		b.saved = b.cur
	case 'u': // SCORC
		b.moveTo(b.saved.x, b.saved.y)
	}
}

func (b *Buffer) handleEsc(cmd ansi.Cmd) {
	// charset designations and DEC line attributes carry an intermediate
	if cmd.Intermediate() != 0 {
		return
	}

	switch cmd.Final() {
	case 'D': // IND
		b.index()
		b.wrapPending = false
	case 'E': // NEL
		b.cur.x = 0
		b.index()
		b.wrapPending = false
	case 'M': // RI
		b.reverseIndex()
		b.wrapPending = false
	case '7': // DECSC
		b.saved = b.cur
	case '8': // DECRC
		b.moveTo(b.saved.x, b.saved.y)
	case 'c': // RIS
		b.reset()
	}
}

func (b *Buffer) eraseDisplay(mode int) {
	x, y := b.cur.x, b.cur.y
	switch mode {
	case 0:
		b.eraseCells(y, x, b.cols)
		for i := y + 1; i < b.rows; i++ {
			b.cells[i] = blankRow(b.cols)
		}
	case 1:
		for i := 0; i < y; i++ {
			b.cells[i] = blankRow(b.cols)
		}
		b.eraseCells(y, 0, x+1)
	case 2, 3:
		for i := range b.cells {
			b.cells[i] = blankRow(b.cols)
		}
	}
	b.wrapPending = false
}

func (b *Buffer) eraseLine(mode int) {
	x, y := b.cur.x, b.cur.y
	switch mode {
	case 0:
		b.eraseCells(y, x, b.cols)
	case 1:
		b.eraseCells(y, 0, x+1)
	case 2:
		b.eraseCells(y, 0, b.cols)
	}
	b.wrapPending = false
}

func (b *Buffer) deleteChars(n int) {
	row := b.cells[b.cur.y]
	x := b.cur.x
	n = min(n, b.cols-x)
	copy(row[x:], row[x+n:])
	for i := b.cols - n; i < b.cols; i++ {
		row[i] = ' '
	}
	b.wrapPending = false
}

func (b *Buffer) insertChars(n int) {
	row := b.cells[b.cur.y]
	x := b.cur.x
	n = min(n, b.cols-x)
	copy(row[x+n:], row[x:b.cols-n])
	for i := x; i < x+n; i++ {
		row[i] = ' '
	}
	b.wrapPending = false
}
