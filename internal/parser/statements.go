package parser

import (
	"strings"

	"github.com/jonahharris/osdb-backplane-sub001/internal/dberr"
	"github.com/jonahharris/osdb-backplane-sub001/internal/lexer"
	"github.com/jonahharris/osdb-backplane-sub001/internal/types"
)

// parseInsert handles:
//
//	INSERT INTO tab [(col(,col)*)] VALUES (val(,val)*)
func (p *Parser) parseInsert() (*types.Query, error) {
	p.advance() // INSERT
	if _, err := p.expect(lexer.INTO); err != nil {
		return nil, err
	}
	ti, err := p.parseOneTable()
	if err != nil {
		return nil, err
	}
	q := &types.Query{Kind: types.StmtInsert, Tables: []*types.TableI{ti}}

	var explicitCols []*types.ColI
	if p.cur().Kind == lexer.LPAREN {
		p.advance()
		for {
			tok, err := p.expect(lexer.IDENT)
			if err != nil {
				return nil, err
			}
			ci, err := p.resolveColumn(q, tok)
			if err != nil {
				return nil, err
			}
			explicitCols = append(explicitCols, ci)
			if p.cur().Kind != lexer.COMMA {
				break
			}
			p.advance()
		}
		if _, err := p.expect(lexer.RPAREN); err != nil {
			return nil, err
		}
	} else if ti.Def != nil {
		for _, cd := range ti.Def.Columns {
			explicitCols = append(explicitCols, &types.ColI{Table: ti, ID: cd.ID, Name: cd.Name, Type: cd.Type, Flags: cd.Flags})
		}
	}

	if _, err := p.expect(lexer.VALUES); err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.LPAREN); err != nil {
		return nil, err
	}
	var vals [][]byte
	for {
		v, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		vals = append(vals, v)
		if p.cur().Kind != lexer.COMMA {
			break
		}
		p.advance()
	}
	if _, err := p.expect(lexer.RPAREN); err != nil {
		return nil, err
	}
	if len(vals) != len(explicitCols) {
		return nil, p.errf(dberr.ErrDataTooSmall, "value count does not match column count")
	}

	q.SetCols = explicitCols
	q.SetVals = vals

	if p.cur().Kind == lexer.SEMI {
		p.advance()
	}
	return q, nil
}

// parseLiteral reads one constant value: STRING, NUMBER, REAL, DOLLAR or
// NULL. Unlike parseOperand, a bare identifier is never accepted here —
// VALUES lists are all-constant by construction.
func (p *Parser) parseLiteral() ([]byte, error) {
	switch p.cur().Kind {
	case lexer.NULLKW:
		p.advance()
		return nil, nil
	case lexer.STRING, lexer.NUMBER, lexer.REAL, lexer.DOLLAR:
		t := p.advance()
		return []byte(t.Text), nil
	default:
		return nil, p.errf(dberr.ErrUnexpectedToken, "expected a literal value")
	}
}

// parseDelete handles `DELETE FROM tab WHERE expr` (WHERE mandatory).
func (p *Parser) parseDelete() (*types.Query, error) {
	p.advance() // DELETE
	if _, err := p.expect(lexer.FROM); err != nil {
		return nil, err
	}
	ti, err := p.parseOneTable()
	if err != nil {
		return nil, err
	}
	q := &types.Query{Kind: types.StmtDelete, Tables: []*types.TableI{ti}}

	if p.cur().Kind != lexer.WHERE {
		return nil, p.errf(dberr.ErrMissingWhere, "DELETE requires a WHERE clause")
	}
	p.advance()
	ranges, err := p.parseWhere(q)
	if err != nil {
		return nil, err
	}
	q.Ranges = ranges

	if p.cur().Kind == lexer.SEMI {
		p.advance()
	}
	return q, nil
}

// parseUpdateOrClone handles both:
//
//	UPDATE tab SET col = val (, col = val)* WHERE expr
//	CLONE  tab SET col = val (, col = val)* WHERE expr
//
// CLONE differs only in the StmtKind tag it produces; the engine applies
// it as a DELETE+INSERT pair sharing one stamp either way (SPEC_FULL.md
// Open Questions).
func (p *Parser) parseUpdateOrClone(kind types.StmtKind) (*types.Query, error) {
	p.advance() // UPDATE/CLONE
	ti, err := p.parseOneTable()
	if err != nil {
		return nil, err
	}
	q := &types.Query{Kind: kind, Tables: []*types.TableI{ti}}

	if _, err := p.expect(lexer.SET); err != nil {
		return nil, err
	}
	for {
		tok, err := p.expect(lexer.IDENT)
		if err != nil {
			return nil, err
		}
		ci, err := p.resolveColumn(q, tok)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.EQ); err != nil {
			return nil, err
		}
		val, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		q.SetCols = append(q.SetCols, ci)
		q.SetVals = append(q.SetVals, val)
		if p.cur().Kind != lexer.COMMA {
			break
		}
		p.advance()
	}

	if p.cur().Kind != lexer.WHERE {
		return nil, p.errf(dberr.ErrMissingWhere, kind.String()+" requires a WHERE clause")
	}
	p.advance()
	ranges, err := p.parseWhere(q)
	if err != nil {
		return nil, err
	}
	q.Ranges = ranges

	if p.cur().Kind == lexer.SEMI {
		p.advance()
	}
	return q, nil
}

// parseCreateTable handles:
//
//	CREATE TABLE tab (col type [NOT NULL] [PRIMARY KEY] [UNIQUE] (, ...)*)
func (p *Parser) parseCreateTable() (*types.Query, error) {
	p.advance() // CREATE
	if _, err := p.expect(lexer.TABLE); err != nil {
		return nil, err
	}
	nameTok, err := p.expect(lexer.IDENT)
	if err != nil {
		return nil, err
	}
	schemaName, tableName := splitDotted(strings.ToLower(nameTok.Text))
	def := &types.TableDef{Schema: schemaName, Name: tableName}

	if _, err := p.expect(lexer.LPAREN); err != nil {
		return nil, err
	}
	nextID := types.FirstUserCol
	for {
		cd, err := p.parseColumnDef(nextID)
		if err != nil {
			return nil, err
		}
		def.Columns = append(def.Columns, cd)
		nextID++
		if p.cur().Kind != lexer.COMMA {
			break
		}
		p.advance()
	}
	if _, err := p.expect(lexer.RPAREN); err != nil {
		return nil, err
	}
	if p.cur().Kind == lexer.SEMI {
		p.advance()
	}
	return &types.Query{Kind: types.StmtCreateTable, NewTable: def}, nil
}

func (p *Parser) parseColumnDef(id types.Col) (*types.ColumnDef, error) {
	nameTok, err := p.expect(lexer.IDENT)
	if err != nil {
		return nil, err
	}
	typeTok, err := p.expect(lexer.IDENT)
	if err != nil {
		return nil, err
	}
	dt, ok := types.ParseDataType(strings.ToLower(typeTok.Text))
	if !ok {
		return nil, &ParseError{Code: dberr.ErrUnknownType, Tok: typeTok, Msg: "unrecognized type: " + typeTok.Text}
	}
	cd := &types.ColumnDef{ID: id, Name: strings.ToLower(nameTok.Text), Type: dt}

	for {
		switch p.cur().Kind {
		case lexer.NOTKW:
			p.advance()
			if _, err := p.expect(lexer.NULLKW); err != nil {
				return nil, err
			}
			cd.Flags |= types.ColFlagNotNull
			continue
		case lexer.PRIMARY:
			p.advance()
			if _, err := p.expect(lexer.KEY); err != nil {
				return nil, err
			}
			cd.Flags |= types.ColFlagKey | types.ColFlagNotNull
			continue
		case lexer.UNIQUE:
			p.advance()
			cd.Flags |= types.ColFlagUnique
			continue
		}
		break
	}
	return cd, nil
}

// parseAlterTable handles:
//
//	ALTER TABLE tab ADD COLUMN col type
//	ALTER TABLE tab DROP COLUMN col
func (p *Parser) parseAlterTable() (*types.Query, error) {
	p.advance() // ALTER
	if _, err := p.expect(lexer.TABLE); err != nil {
		return nil, err
	}
	ti, err := p.parseOneTable()
	if err != nil {
		return nil, err
	}
	q := &types.Query{Kind: types.StmtAlterTable, Tables: []*types.TableI{ti}}

	switch p.cur().Kind {
	case lexer.ADD:
		p.advance()
		if p.cur().Kind == lexer.COLUMN {
			p.advance()
		}
		var nextID types.Col
		if ti.Def != nil {
			nextID = ti.Def.NextUserColID()
		} else {
			nextID = types.FirstUserCol
		}
		cd, err := p.parseColumnDef(nextID)
		if err != nil {
			return nil, err
		}
		q.AlterAdd = cd
	case lexer.DROP:
		p.advance()
		if p.cur().Kind == lexer.COLUMN {
			p.advance()
		}
		tok, err := p.expect(lexer.IDENT)
		if err != nil {
			return nil, err
		}
		q.AlterDrop = strings.ToLower(tok.Text)
	default:
		return nil, p.errf(dberr.ErrUnexpectedToken, "expected ADD or DROP")
	}

	if p.cur().Kind == lexer.SEMI {
		p.advance()
	}
	return q, nil
}

// parseDropTable handles `DROP TABLE tab`.
func (p *Parser) parseDropTable() (*types.Query, error) {
	p.advance() // DROP
	if _, err := p.expect(lexer.TABLE); err != nil {
		return nil, err
	}
	ti, err := p.parseOneTable()
	if err != nil {
		return nil, err
	}
	q := &types.Query{Kind: types.StmtDropTable, Tables: []*types.TableI{ti}}
	if p.cur().Kind == lexer.SEMI {
		p.advance()
	}
	return q, nil
}
