// Package parser implements the single-pass, recursive-descent parser
// described in spec.md §4.2. There is no separate AST: the grammar
// productions build a *types.Query directly.
package parser

import (
	"strconv"
	"strings"

	"github.com/jonahharris/osdb-backplane-sub001/internal/dberr"
	"github.com/jonahharris/osdb-backplane-sub001/internal/lexer"
	"github.com/jonahharris/osdb-backplane-sub001/internal/types"
)

// Schema is the lookup surface the parser needs to resolve table/column
// names while building ColIs. internal/schema implements it against the
// live meta table; tests can supply a fake.
type Schema interface {
	LookupTable(schema, name string) (*types.TableDef, bool)
}

// Parser holds the full token stream for a statement (materialized up
// front, not lexed lazily) so that SELECT's column list can be parsed
// twice: once to discover which identifiers exist, and a second,
// authoritative pass after FROM's table list is known (spec.md §4.2:
// "the parser to save a second token cursor (redo) and re-scan the
// column list").
type Parser struct {
	src    []byte
	toks   []lexer.Token
	pos    int
	schema Schema
}

// ParseError is returned for any parse failure; Tok is the token the
// caller should pass to lexer.PrintError for source-location context.
type ParseError struct {
	Code dberr.Code
	Tok  lexer.Token
	Msg  string
}

func (e *ParseError) Error() string { return e.Msg }

// New constructs a Parser over src, resolving table/column references
// against schema.
func New(src []byte, schema Schema) *Parser {
	l := lexer.New(src)
	var toks []lexer.Token
	for {
		t := l.Next()
		toks = append(toks, t)
		if t.Kind == lexer.EOF {
			break
		}
	}
	return &Parser{src: src, toks: toks, schema: schema}
}

func (p *Parser) cur() lexer.Token  { return p.toks[p.pos] }
func (p *Parser) mark() int         { return p.pos }
func (p *Parser) reset(mark int)    { p.pos = mark }
func (p *Parser) advance() lexer.Token {
	t := p.toks[p.pos]
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *Parser) errf(code dberr.Code, msg string) error {
	return &ParseError{Code: code, Tok: p.cur(), Msg: msg}
}

func (p *Parser) expect(k lexer.Kind) (lexer.Token, error) {
	if p.cur().Kind != k {
		return lexer.Token{}, p.errf(dberr.ErrUnexpectedToken, "expected "+k.String()+", got "+p.cur().Kind.String())
	}
	return p.advance(), nil
}

// Parse parses one statement from the token stream and returns the
// compiled Query plan.
func (p *Parser) Parse() (*types.Query, error) {
	switch p.cur().Kind {
	case lexer.SELECT:
		return p.parseSelect()
	case lexer.HISTORY:
		return p.parseSelectLike(types.StmtHistory)
	case lexer.COUNT:
		return p.parseSelectLike(types.StmtCount)
	case lexer.INSERT:
		return p.parseInsert()
	case lexer.DELETE:
		return p.parseDelete()
	case lexer.UPDATE:
		return p.parseUpdateOrClone(types.StmtUpdate)
	case lexer.CLONE:
		return p.parseUpdateOrClone(types.StmtClone)
	case lexer.CREATE:
		return p.parseCreateTable()
	case lexer.ALTER:
		return p.parseAlterTable()
	case lexer.DROP:
		return p.parseDropTable()
	default:
		return nil, p.errf(dberr.ErrUnexpectedToken, "unexpected token "+p.cur().Kind.String())
	}
}

// parseSelect handles SELECT specifically (wildcard allowed);
// parseSelectLike shares the same tail grammar for COUNT/HISTORY.
func (p *Parser) parseSelect() (*types.Query, error) {
	return p.parseSelectLike(types.StmtSelect)
}

// parseSelectLike implements:
//
//	SELECT|COUNT|HISTORY [cols|*] FROM tabs [WHERE expr]
//	                              [ORDER BY col[DESC](,col)*] [LIMIT n[,n]]
//
// Tables are parsed first so that the column-list pass below has every
// candidate TableI in hand to resolve bare column names against.
func (p *Parser) parseSelectLike(kind types.StmtKind) (*types.Query, error) {
	p.advance() // SELECT/COUNT/HISTORY

	colsMark := p.mark()
	if err := p.skipColumnListShallow(); err != nil {
		return nil, err
	}

	if _, err := p.expect(lexer.FROM); err != nil {
		return nil, err
	}

	q := &types.Query{Kind: kind}
	tabs, err := p.parseTableList()
	if err != nil {
		return nil, err
	}
	q.Tables = tabs

	// Redo: re-scan the column list now that tables are resolvable.
	afterFrom := p.mark()
	p.reset(colsMark)
	wild := kind == types.StmtSelect || kind == types.StmtHistory || kind == types.StmtCount
	cols, err := p.parseColumnList(q, wild)
	if err != nil {
		return nil, err
	}
	q.Show = cols
	p.reset(afterFrom)

	if p.cur().Kind == lexer.WHERE {
		p.advance()
		ranges, err := p.parseWhere(q)
		if err != nil {
			return nil, err
		}
		q.Ranges = ranges
	}

	if p.cur().Kind == lexer.ORDER {
		p.advance()
		if _, err := p.expect(lexer.BY); err != nil {
			return nil, err
		}
		sort, err := p.parseOrderBy(q)
		if err != nil {
			return nil, err
		}
		q.Sort = sort
	}

	if p.cur().Kind == lexer.LIMIT {
		p.advance()
		n, _, err := p.parseIntLiteral()
		if err != nil {
			return nil, err
		}
		q.Limit = n
		if p.cur().Kind == lexer.COMMA {
			p.advance()
			m, _, err := p.parseIntLiteral()
			if err != nil {
				return nil, err
			}
			q.Offset = n
			q.Limit = m
		}
	}

	if p.cur().Kind == lexer.SEMI {
		p.advance()
	}
	return q, nil
}

// skipColumnListShallow advances past the column list without resolving
// anything, just far enough to find the FROM keyword — this is the
// first ("blind") pass before table resolution.
func (p *Parser) skipColumnListShallow() error {
	if p.cur().Kind == lexer.STAR {
		p.advance()
		return nil
	}
	for {
		if p.cur().Kind != lexer.IDENT {
			return p.errf(dberr.ErrBadIdentifier, "expected column name")
		}
		p.advance()
		if p.cur().Kind != lexer.COMMA {
			break
		}
		p.advance()
	}
	return nil
}

func (p *Parser) parseTableList() ([]*types.TableI, error) {
	var tabs []*types.TableI
	for {
		ti, err := p.parseOneTable()
		if err != nil {
			return nil, err
		}
		tabs = append(tabs, ti)
		if p.cur().Kind != lexer.COMMA {
			break
		}
		p.advance()
	}
	return tabs, nil
}

// parseOneTable handles `[schema.]name ['=' alias]`.
func (p *Parser) parseOneTable() (*types.TableI, error) {
	nameTok, err := p.expect(lexer.IDENT)
	if err != nil {
		return nil, err
	}
	schemaName, tableName := splitDotted(strings.ToLower(nameTok.Text))

	alias := tableName
	if p.cur().Kind == lexer.EQ {
		p.advance()
		aliasTok, err := p.expect(lexer.IDENT)
		if err != nil {
			return nil, err
		}
		alias = strings.ToLower(aliasTok.Text)
	}

	var def *types.TableDef
	if p.schema != nil {
		d, ok := p.schema.LookupTable(schemaName, tableName)
		if !ok {
			return nil, &ParseError{Code: dberr.ErrTableNotFound, Tok: nameTok, Msg: "table not found: " + nameTok.Text}
		}
		def = d
	} else {
		def = &types.TableDef{Name: tableName, Schema: schemaName}
	}
	return &types.TableI{Alias: alias, Def: def}, nil
}

func splitDotted(s string) (schema, name string) {
	i := strings.LastIndexByte(s, '.')
	if i < 0 {
		return "", s
	}
	return s[:i], s[i+1:]
}

// parseColumnList handles `cols|*`; wild permits '*' only when the
// caller set CIF_WILD-equivalent (the wild argument), matching spec.md
// §4.2's "'*' is accepted only where the CIF_WILD flag is set".
func (p *Parser) parseColumnList(q *types.Query, wild bool) ([]*types.ColI, error) {
	if p.cur().Kind == lexer.STAR {
		if !wild {
			return nil, p.errf(dberr.ErrWildcardIllegal, "wildcard not permitted here")
		}
		p.advance()
		return p.expandWildcard(q), nil
	}
	var cols []*types.ColI
	for {
		tok, err := p.expect(lexer.IDENT)
		if err != nil {
			return nil, err
		}
		ci, err := p.resolveColumn(q, tok)
		if err != nil {
			return nil, err
		}
		cols = append(cols, ci)
		if p.cur().Kind != lexer.COMMA {
			break
		}
		p.advance()
	}
	return cols, nil
}

func (p *Parser) expandWildcard(q *types.Query) []*types.ColI {
	var cols []*types.ColI
	for _, ti := range q.Tables {
		if ti.Def == nil {
			continue
		}
		for _, cd := range ti.Def.Columns {
			ci := &types.ColI{Table: ti, ID: cd.ID, Name: cd.Name, Type: cd.Type, Flags: cd.Flags | types.ColFlagWild}
			ti.Cols = append(ti.Cols, ci)
			cols = append(cols, ci)
		}
	}
	return cols
}

// resolveColumn binds an `alias.col` or bare `col` identifier to a
// TableI in q.Tables, classifying an unqualified reference as belonging
// to the unique table instance that defines it.
func (p *Parser) resolveColumn(q *types.Query, tok lexer.Token) (*types.ColI, error) {
	aliasPart, colPart := splitDotted(strings.ToLower(tok.Text))
	var candidates []*types.TableI
	if aliasPart != "" {
		for _, ti := range q.Tables {
			if ti.Alias == aliasPart {
				candidates = append(candidates, ti)
			}
		}
	} else {
		candidates = q.Tables
	}
	for _, ti := range candidates {
		if ti.Def == nil {
			continue
		}
		if cd, ok := ti.Def.ColumnByName(colPart); ok {
			ci := &types.ColI{Table: ti, ID: cd.ID, Name: cd.Name, Type: cd.Type, Flags: cd.Flags}
			ti.Cols = append(ti.Cols, ci)
			return ci, nil
		}
	}
	return nil, &ParseError{Code: dberr.ErrColumnNotFound, Tok: tok, Msg: "column not found: " + tok.Text}
}

// parseWhere handles `expr := data op data (AND data op data)*`. Exactly
// one side of each comparison must resolve to a column; the other must
// be a constant (literal, $var, or parenthesized C-expression token --
// represented here as an opaque literal, since this module does not
// execute foreign expressions).
func (p *Parser) parseWhere(q *types.Query) ([]*types.Range, error) {
	var ranges []*types.Range
	for {
		r, err := p.parseOneClause(q)
		if err != nil {
			return nil, err
		}
		ranges = append(ranges, r)
		if p.cur().Kind != lexer.AND {
			break
		}
		p.advance()
	}
	return ranges, nil
}

func (p *Parser) parseOneClause(q *types.Query) (*types.Range, error) {
	leftCol, leftConst, err := p.parseOperand(q)
	if err != nil {
		return nil, err
	}
	op, err := p.parseOp()
	if err != nil {
		return nil, err
	}
	rightCol, rightConst, err := p.parseOperand(q)
	if err != nil {
		return nil, err
	}

	if leftCol == nil && rightCol == nil {
		return nil, p.errf(dberr.ErrTwoConstants, "cannot have two constants in a comparison")
	}

	r := &types.Range{Op: op}
	switch {
	case leftCol != nil && rightCol != nil:
		r.Left, r.Right = leftCol, rightCol
	case leftCol != nil:
		r.Left, r.Const = leftCol, rightConst
	default:
		// constant op column: normalize so Left is always the column.
		r.Left, r.Const = rightCol, leftConst
		r.Op = flipOp(op)
	}
	return r, nil
}

func flipOp(op types.OpCode) types.OpCode {
	switch op {
	case types.OpLT:
		return types.OpGT
	case types.OpLE:
		return types.OpGE
	case types.OpGT:
		return types.OpLT
	case types.OpGE:
		return types.OpLE
	default:
		return op
	}
}

// parseOperand returns either a resolved column (col, nil) or a
// constant (nil, bytes). `data := STRING | NULL | '(' cexp ')' | id`.
func (p *Parser) parseOperand(q *types.Query) (*types.ColI, []byte, error) {
	switch p.cur().Kind {
	case lexer.STRING:
		t := p.advance()
		return nil, []byte(t.Text), nil
	case lexer.NUMBER, lexer.REAL:
		t := p.advance()
		return nil, []byte(t.Text), nil
	case lexer.NULLKW:
		p.advance()
		return nil, nil, nil
	case lexer.DOLLAR:
		t := p.advance()
		return nil, []byte(t.Text), nil
	case lexer.LPAREN:
		p.advance()
		depth := 1
		var raw []byte
		for depth > 0 {
			if p.cur().Kind == lexer.EOF {
				return nil, nil, p.errf(dberr.ErrUnexpectedToken, "unterminated expression")
			}
			if p.cur().Kind == lexer.LPAREN {
				depth++
			}
			if p.cur().Kind == lexer.RPAREN {
				depth--
				if depth == 0 {
					p.advance()
					break
				}
			}
			raw = append(raw, []byte(p.cur().Text)...)
			p.advance()
		}
		return nil, raw, nil
	case lexer.IDENT:
		// Ambiguous: could be a column reference or a bare `$var`-like
		// identifier constant. Try column resolution first; only a
		// genuine schema miss downgrades it to a constant (matches the
		// original's "side classified as column or constant" rule).
		tok := p.cur()
		ci, err := p.resolveColumn(q, tok)
		if err == nil {
			p.advance()
			return ci, nil, nil
		}
		p.advance()
		return nil, []byte(tok.Text), nil
	default:
		return nil, nil, p.errf(dberr.ErrUnexpectedToken, "expected a value")
	}
}

func (p *Parser) parseOp() (types.OpCode, error) {
	switch p.cur().Kind {
	case lexer.EQ:
		p.advance()
		return types.OpEQ, nil
	case lexer.LT:
		p.advance()
		return types.OpLT, nil
	case lexer.LE:
		p.advance()
		return types.OpLE, nil
	case lexer.GT:
		p.advance()
		return types.OpGT, nil
	case lexer.GE:
		p.advance()
		return types.OpGE, nil
	case lexer.NE:
		p.advance()
		return types.OpNE, nil
	case lexer.LIKE:
		p.advance()
		return types.OpLike, nil
	case lexer.SAME:
		p.advance()
		return types.OpSame, nil
	default:
		return 0, p.errf(dberr.ErrUnexpectedToken, "expected a comparison operator")
	}
}

func (p *Parser) parseOrderBy(q *types.Query) ([]*types.SortCol, error) {
	var sort []*types.SortCol
	for {
		tok, err := p.expect(lexer.IDENT)
		if err != nil {
			return nil, err
		}
		ci, err := p.resolveColumn(q, tok)
		if err != nil {
			return nil, err
		}
		desc := false
		if p.cur().Kind == lexer.DESC {
			p.advance()
			desc = true
		} else if p.cur().Kind == lexer.ASC {
			p.advance()
		}
		sort = append(sort, &types.SortCol{Col: ci, Desc: desc})
		if p.cur().Kind != lexer.COMMA {
			break
		}
		p.advance()
	}
	return sort, nil
}

func (p *Parser) parseIntLiteral() (int, lexer.Token, error) {
	if p.cur().Kind != lexer.NUMBER {
		return 0, lexer.Token{}, p.errf(dberr.ErrUnexpectedToken, "expected integer")
	}
	tok := p.advance()
	n, err := strconv.Atoi(tok.Text)
	if err != nil {
		return 0, tok, p.errf(dberr.ErrUnexpectedToken, "bad integer literal")
	}
	return n, tok, nil
}
