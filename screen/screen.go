// Package screen reconstructs the visible text of a character terminal from
// the raw byte stream a remote console emits.
package screen

import (
	"strings"
	"sync"

	"github.com/charmbracelet/x/ansi"
)

// Default console geometry
const (
	DefaultCols = 84
	DefaultRows = 24
)

const tabWidth = 8

// Snapshot is an immutable copy of the screen, one string per row. Every row
// is exactly as wide as the screen, padded with spaces.
type Snapshot []string

// Text joins the rows with newlines.
func (s Snapshot) Text() string {
	return strings.Join(s, "\n")
}

type cursor struct {
	x, y int
}

// Buffer is a fixed-size character grid driven by an escape-sequence parser.
// Only text placement is modelled: colours and attributes are ignored, as is
// any sequence the grid has no use for. It is safe for concurrent use.
type Buffer struct {
	mu sync.Mutex

	cols, rows int
	cells      [][]rune

	cur   cursor
	saved cursor

	// set after printing into the last column; the next printable wraps first
	wrapPending bool

	// scroll region, inclusive rows
	top, bottom int

	parser *ansi.Parser
}

// New creates a blank buffer. Non-positive dimensions fall back to 84x24.
func New(cols, rows int) *Buffer {
	if cols <= 0 {
		cols = DefaultCols
	}
	if rows <= 0 {
		rows = DefaultRows
	}

	b := &Buffer{
		cols:   cols,
		rows:   rows,
		parser: ansi.NewParser(),
	}
	b.parser.SetHandler(ansi.Handler{
		Print:     b.print,
		Execute:   b.execute,
		HandleCsi: b.handleCsi,
		HandleEsc: b.handleEsc,
	})
	b.reset()
	return b
}

// Feed interprets data and updates the grid. Escape sequences split across
// calls are resumed on the next call. Feed never fails; bytes that make no
// sense are dropped.
func (b *Buffer) Feed(data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, c := range data {
		b.parser.Advance(c)
	}
}

// FeedString is Feed for text input.
func (b *Buffer) FeedString(s string) {
	b.Feed([]byte(s))
}

// Write implements io.Writer so the buffer can sit at the end of a copy loop.
func (b *Buffer) Write(p []byte) (int, error) {
	b.Feed(p)
	return len(p), nil
}

// Snapshot returns a copy of every row.
func (b *Buffer) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make(Snapshot, b.rows)
	for y, row := range b.cells {
		out[y] = string(row)
	}
	return out
}

// Cursor returns the zero-based cursor column and row.
func (b *Buffer) Cursor() (x, y int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cur.x, b.cur.y
}

// Size returns the grid dimensions.
func (b *Buffer) Size() (cols, rows int) {
	return b.cols, b.rows
}

// Reset clears the grid and all cursor state.
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.parser.Reset()
	b.reset()
}

func (b *Buffer) reset() {
	b.cells = make([][]rune, b.rows)
	for y := range b.cells {
		b.cells[y] = blankRow(b.cols)
	}
	b.cur = cursor{}
	b.saved = cursor{}
	b.wrapPending = false
	b.top, b.bottom = 0, b.rows-1
}

func blankRow(n int) []rune {
	row := make([]rune, n)
	for i := range row {
		row[i] = ' '
	}
	return row
}

// print places r at the cursor, wrapping at the right margin.
func (b *Buffer) print(r rune) {
	if b.wrapPending {
		b.cur.x = 0
		b.index()
		b.wrapPending = false
	}

	b.cells[b.cur.y][b.cur.x] = r
	if b.cur.x == b.cols-1 {
		b.wrapPending = true
		return
	}
	b.cur.x++
}

func (b *Buffer) execute(c byte) {
	switch c {
	case ansi.BS:
		if b.cur.x > 0 {
			b.cur.x--
		}
		b.wrapPending = false
	case ansi.HT:
		next := (b.cur.x/tabWidth + 1) * tabWidth
		b.cur.x = min(next, b.cols-1)
		b.wrapPending = false
	case ansi.LF, ansi.VT, ansi.FF:
		b.index()
		b.wrapPending = false
	case ansi.CR:
		b.cur.x = 0
		b.wrapPending = false
	}
}

// index moves the cursor down one row, scrolling the region at its bottom.
func (b *Buffer) index() {
	switch {
	case b.cur.y == b.bottom:
		b.scrollUp(1)
	case b.cur.y < b.rows-1:
		b.cur.y++
	}
}

// reverseIndex moves the cursor up one row, scrolling the region at its top.
func (b *Buffer) reverseIndex() {
	switch {
	case b.cur.y == b.top:
		b.scrollDown(1)
	case b.cur.y > 0:
		b.cur.y--
	}
}

func (b *Buffer) scrollUp(n int) {
	b.deleteRows(b.top, n)
}

func (b *Buffer) scrollDown(n int) {
	b.insertRows(b.top, n)
}

// deleteRows removes n rows at y inside the scroll region, pulling the rows
// below up and blanking the freed rows at the region bottom.
func (b *Buffer) deleteRows(y, n int) {
	n = min(n, b.bottom-y+1)
	if n <= 0 {
		return
	}
	for i := y; i <= b.bottom; i++ {
		if i+n <= b.bottom {
			b.cells[i] = b.cells[i+n]
		} else {
			b.cells[i] = blankRow(b.cols)
		}
	}
}

// insertRows opens n blank rows at y, pushing rows below toward the region bottom.
func (b *Buffer) insertRows(y, n int) {
	n = min(n, b.bottom-y+1)
	if n <= 0 {
		return
	}
	for i := b.bottom; i >= y; i-- {
		if i-n >= y {
			b.cells[i] = b.cells[i-n]
		} else {
			b.cells[i] = blankRow(b.cols)
		}
	}
}

func (b *Buffer) moveTo(x, y int) {
	b.cur.x = clamp(x, 0, b.cols-1)
	b.cur.y = clamp(y, 0, b.rows-1)
	b.wrapPending = false
}

func (b *Buffer) eraseCells(y, from, to int) {
	row := b.cells[y]
	from = clamp(from, 0, b.cols)
	to = clamp(to, 0, b.cols)
	for x := from; x < to; x++ {
		row[x] = ' '
	}
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
