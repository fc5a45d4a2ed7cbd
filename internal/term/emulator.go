package term

import (
	"strings"
)

// Emulator renders raw pane bytes (including ANSI cursor motion) into the
// plain text a user would see. Rendering the capture instead of hashing the
// raw bytes keeps transient cursor movement from defeating stability
// detection.
type Emulator struct {
	width  int
	height int
}

func NewEmulator(width, height int) *Emulator {
	if width <= 0 {
		width = 200
	}
	if height <= 0 {
		height = 100
	}
	return &Emulator{width: width, height: height}
}

// Render replays raw through a fresh screen buffer and returns the visible
// rows, right-trimmed, with trailing blank rows dropped. Deterministic: the
// same input always yields byte-identical output.
func (e *Emulator) Render(raw string) string {
	s := newScreen(e.width, e.height)
	s.feed(ensureCR(raw))
	return s.text()
}

// ensureCR inserts a carriage return before every bare line feed. tmux
// capture output carries LF only, while a terminal moves to column 0 on CR.
func ensureCR(raw string) string {
	if raw == "" {
		return raw
	}
	var b strings.Builder
	b.Grow(len(raw) + len(raw)/8)
	prev := rune(0)
	for _, ch := range raw {
		if ch == '\n' && prev != '\r' {
			b.WriteString("\r\n")
		} else {
			b.WriteRune(ch)
		}
		prev = ch
	}
	return b.String()
}

type screen struct {
	width  int
	height int
	cells  [][]rune
	row    int
	col    int
}

func newScreen(width, height int) *screen {
	cells := make([][]rune, height)
	for i := range cells {
		cells[i] = make([]rune, width)
		for j := range cells[i] {
			cells[i][j] = ' '
		}
	}
	return &screen{width: width, height: height, cells: cells}
}

func (s *screen) feed(text string) {
	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		ch := runes[i]
		switch ch {
		case '\r':
			s.col = 0
		case '\n':
			s.lineFeed()
		case '\b':
			if s.col > 0 {
				s.col--
			}
		case '\t':
			s.col = min((s.col/8+1)*8, s.width-1)
		case 0x1b:
			i += s.escape(runes[i:])
		default:
			if ch < 0x20 {
				continue
			}
			s.put(ch)
		}
	}
}

// escape consumes one escape sequence starting at runes[0] (the ESC byte)
// and returns how many extra runes were used. CSI cursor motion and erase
// commands are interpreted; SGR and OSC sequences are skipped.
func (s *screen) escape(runes []rune) int {
	if len(runes) < 2 {
		return 0
	}
	switch runes[1] {
	case '[':
		return 1 + s.csi(runes[2:])
	case ']':
		return 1 + skipOSC(runes[2:])
	default:
		// Two-byte sequences such as ESC M or ESC 7; drop them.
		return 1
	}
}

func (s *screen) csi(runes []rune) int {
	var params strings.Builder
	for i := 0; i < len(runes); i++ {
		ch := runes[i]
		if ch >= '@' && ch <= '~' {
			s.applyCSI(ch, params.String())
			return i + 1
		}
		params.WriteRune(ch)
	}
	return len(runes)
}

func skipOSC(runes []rune) int {
	for i := 0; i < len(runes); i++ {
		if runes[i] == 0x07 {
			return i + 1
		}
		if runes[i] == 0x1b && i+1 < len(runes) && runes[i+1] == '\\' {
			return i + 2
		}
	}
	return len(runes)
}

func (s *screen) applyCSI(final rune, rawParams string) {
	p := csiParams(rawParams)
	switch final {
	case 'H', 'f': // cursor position, 1-based row;col
		s.row = clamp(p.at(0, 1)-1, 0, s.height-1)
		s.col = clamp(p.at(1, 1)-1, 0, s.width-1)
	case 'A':
		s.row = clamp(s.row-p.at(0, 1), 0, s.height-1)
	case 'B':
		s.row = clamp(s.row+p.at(0, 1), 0, s.height-1)
	case 'C':
		s.col = clamp(s.col+p.at(0, 1), 0, s.width-1)
	case 'D':
		s.col = clamp(s.col-p.at(0, 1), 0, s.width-1)
	case 'G':
		s.col = clamp(p.at(0, 1)-1, 0, s.width-1)
	case 'J':
		s.eraseDisplay(p.at(0, 0))
	case 'K':
		s.eraseLine(p.at(0, 0))
	}
	// Everything else (SGR colors, mode switches) leaves the grid alone.
}

func (s *screen) eraseDisplay(mode int) {
	switch mode {
	case 0:
		s.eraseLine(0)
		for r := s.row + 1; r < s.height; r++ {
			s.clearRow(r)
		}
	case 1:
		s.eraseLine(1)
		for r := 0; r < s.row; r++ {
			s.clearRow(r)
		}
	case 2, 3:
		for r := 0; r < s.height; r++ {
			s.clearRow(r)
		}
	}
}

func (s *screen) eraseLine(mode int) {
	switch mode {
	case 0:
		for c := s.col; c < s.width; c++ {
			s.cells[s.row][c] = ' '
		}
	case 1:
		for c := 0; c <= s.col && c < s.width; c++ {
			s.cells[s.row][c] = ' '
		}
	case 2:
		s.clearRow(s.row)
	}
}

func (s *screen) clearRow(r int) {
	for c := range s.cells[r] {
		s.cells[r][c] = ' '
	}
}

func (s *screen) put(ch rune) {
	if s.col >= s.width {
		s.col = 0
		s.lineFeed()
	}
	s.cells[s.row][s.col] = ch
	s.col++
}

func (s *screen) lineFeed() {
	if s.row < s.height-1 {
		s.row++
		return
	}
	// Scroll: discard the top row.
	copy(s.cells, s.cells[1:])
	last := make([]rune, s.width)
	for i := range last {
		last[i] = ' '
	}
	s.cells[s.height-1] = last
}

func (s *screen) text() string {
	lines := make([]string, 0, s.height)
	for _, row := range s.cells {
		lines = append(lines, strings.TrimRight(string(row), " "))
	}
	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return strings.Join(lines, "\n")
}

type intParams []int

func csiParams(raw string) intParams {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ";")
	out := make(intParams, 0, len(parts))
	for _, part := range parts {
		n := 0
		for _, ch := range part {
			if ch < '0' || ch > '9' {
				n = 0
				break
			}
			n = n*10 + int(ch-'0')
		}
		out = append(out, n)
	}
	return out
}

func (p intParams) at(idx, fallback int) int {
	if idx >= len(p) || p[idx] == 0 {
		return fallback
	}
	return p[idx]
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
