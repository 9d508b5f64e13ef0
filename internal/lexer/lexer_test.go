package lexer

import (
	"strings"
	"testing"
)

func scanAll(t *testing.T, src string) []Token {
	t.Helper()
	l := New([]byte(src))
	var toks []Token
	for {
		tok := l.Next()
		toks = append(toks, tok)
		if tok.Kind == EOF {
			break
		}
	}
	return toks
}

func TestKeywordsCaseInsensitive(t *testing.T) {
	toks := scanAll(t, "SeLeCt FROM where")
	if toks[0].Kind != SELECT {
		t.Fatalf("expected SELECT, got %v", toks[0].Kind)
	}
	if toks[1].Kind != FROM {
		t.Fatalf("expected FROM, got %v", toks[1].Kind)
	}
	if toks[2].Kind != WHERE {
		t.Fatalf("expected WHERE, got %v", toks[2].Kind)
	}
}

func TestDottedIdentifierIsOneToken(t *testing.T) {
	toks := scanAll(t, "schema.table.col")
	if toks[0].Kind != IDENT || toks[0].Text != "schema.table.col" {
		t.Fatalf("expected one IDENT token, got %+v", toks[0])
	}
}

func TestMultiCharOperators(t *testing.T) {
	toks := scanAll(t, "<= >= <>")
	want := []Kind{LE, GE, NE, EOF}
	for i, w := range want {
		if toks[i].Kind != w {
			t.Fatalf("token %d: got %v, want %v", i, toks[i].Kind, w)
		}
	}
}

func TestNumberVsReal(t *testing.T) {
	toks := scanAll(t, "123 1.5 2e10")
	if toks[0].Kind != NUMBER {
		t.Fatalf("expected NUMBER for 123, got %v", toks[0].Kind)
	}
	if toks[1].Kind != REAL {
		t.Fatalf("expected REAL for 1.5, got %v", toks[1].Kind)
	}
	if toks[2].Kind != REAL {
		t.Fatalf("expected REAL for 2e10, got %v", toks[2].Kind)
	}
}

func TestStringEscaping(t *testing.T) {
	toks := scanAll(t, `'it\'s a test'`)
	if toks[0].Kind != STRING {
		t.Fatalf("expected STRING, got %v (%v)", toks[0].Kind, toks[0])
	}
	if toks[0].Text != "it's a test" {
		t.Fatalf("got %q", toks[0].Text)
	}
}

func TestUnterminatedStringIsError(t *testing.T) {
	toks := scanAll(t, "'abc")
	if !toks[0].IsError() {
		t.Fatalf("expected an error token for unterminated string")
	}
}

func TestComments(t *testing.T) {
	toks := scanAll(t, "SELECT /* skip */ * // trailing\nFROM t")
	kinds := []Kind{}
	for _, tk := range toks {
		kinds = append(kinds, tk.Kind)
	}
	want := []Kind{SELECT, STAR, FROM, IDENT, EOF}
	if len(kinds) != len(want) {
		t.Fatalf("got %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("token %d: got %v, want %v", i, kinds[i], want[i])
		}
	}
}

func TestEmbeddedNULIsSoftEOF(t *testing.T) {
	src := []byte("SELECT")
	src = append(src, 0)
	src = append(src, []byte(" * FROM t")...)
	l := New(src)
	tok := l.Next()
	if tok.Kind != SELECT {
		t.Fatalf("expected SELECT, got %v", tok.Kind)
	}
	tok = l.Next()
	if tok.Kind != EOF {
		t.Fatalf("expected soft EOF at embedded NUL, got %v", tok.Kind)
	}
}

func TestDollarVariable(t *testing.T) {
	toks := scanAll(t, "$myvar")
	if toks[0].Kind != DOLLAR || toks[0].Text != "$myvar" {
		t.Fatalf("got %+v", toks[0])
	}
}

func TestPrintErrorHighlightsToken(t *testing.T) {
	src := []byte("SELECT FROM t;")
	l := New(src)
	l.Next() // SELECT
	tok := l.Next() // FROM
	msg := PrintError(src, tok, "expected column list")
	if msg == "" {
		t.Fatalf("expected non-empty error message")
	}
	if !strings.Contains(msg, "\x1b[7mFROM\x1b[0m") {
		t.Fatalf("expected the FROM token to be highlighted, got %q", msg)
	}
}
