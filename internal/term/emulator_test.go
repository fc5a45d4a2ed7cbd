package term

import (
	"testing"
)

func TestRenderPlainLines(t *testing.T) {
	e := NewEmulator(80, 24)
	got := e.Render("hello\nworld\n")
	if got != "hello\nworld" {
		t.Fatalf("got %q", got)
	}
}

func TestRenderInsertsCRBeforeBareLF(t *testing.T) {
	// Without CR injection the second line would start at the previous
	// cursor column.
	e := NewEmulator(80, 24)
	got := e.Render("aaaa\nbb")
	if got != "aaaa\nbb" {
		t.Fatalf("got %q", got)
	}
}

func TestRenderCarriageReturnOverwrites(t *testing.T) {
	e := NewEmulator(80, 24)
	got := e.Render("progress 10%\rprogress 99%")
	if got != "progress 99%" {
		t.Fatalf("got %q", got)
	}
}

func TestRenderCursorMotionAndErase(t *testing.T) {
	e := NewEmulator(80, 24)
	// Write two lines, jump to row 1 col 1, clear to end of line, rewrite.
	raw := "first\r\nsecond\x1b[2;1Hredone\x1b[K"
	got := e.Render(raw)
	if got != "first\nredone" {
		t.Fatalf("got %q", got)
	}
}

func TestRenderSkipsSGRAndOSC(t *testing.T) {
	e := NewEmulator(80, 24)
	raw := "\x1b]0;window title\x07\x1b[1;32mok\x1b[0m done"
	got := e.Render(raw)
	if got != "ok done" {
		t.Fatalf("got %q", got)
	}
}

func TestRenderDropsTrailingBlankRows(t *testing.T) {
	e := NewEmulator(80, 24)
	got := e.Render("only\n\n\n\n")
	if got != "only" {
		t.Fatalf("got %q", got)
	}
}

func TestRenderScrollsPastBottom(t *testing.T) {
	e := NewEmulator(20, 3)
	got := e.Render("1\n2\n3\n4\n5")
	if got != "3\n4\n5" {
		t.Fatalf("got %q", got)
	}
}

func TestRenderDeterministic(t *testing.T) {
	e := NewEmulator(80, 24)
	raw := "x\x1b[2Ay\rzz\nend\x1b[0m"
	first := e.Render(raw)
	for i := 0; i < 3; i++ {
		if again := e.Render(raw); again != first {
			t.Fatalf("render diverged on pass %d: %q vs %q", i, again, first)
		}
	}
}

func TestRenderNormalizesRepaintedScreen(t *testing.T) {
	e := NewEmulator(80, 24)
	a := e.Render("line one   \nline two\n\n\n")
	b := e.Render("line one\nline two")
	if a != b {
		t.Fatalf("normalized forms differ: %q vs %q", a, b)
	}
}
