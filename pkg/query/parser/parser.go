package parser

import (
	"strconv"

	"github.com/dyedgreen/cqlite-sub000/pkg/value"
)

// Parser turns a token stream into a Query AST via recursive descent.
// Precedence, lowest to highest: OR, AND, NOT, comparison, primary.
type Parser struct {
	lex  *Lexer
	tok  Token
	peek *Token
}

// Parse parses a complete query statement.
func Parse(src string) (*Query, error) {
	p := &Parser{lex: NewLexer(src)}
	if err := p.next(); err != nil {
		return nil, err
	}
	return p.parseQuery()
}

func (p *Parser) next() error {
	if p.peek != nil {
		p.tok = *p.peek
		p.peek = nil
		return nil
	}
	t, err := p.lex.Next()
	if err != nil {
		return err
	}
	p.tok = t
	return nil
}

func (p *Parser) expectKeyword(kw string) error {
	if p.tok.Kind != TokKeyword || p.tok.Text != kw {
		return &SyntaxError{Pos: p.tok.Pos, Expected: kw}
	}
	return p.next()
}

func (p *Parser) atKeyword(kw string) bool {
	return p.tok.Kind == TokKeyword && p.tok.Text == kw
}

func (p *Parser) expect(kind TokenKind, desc string) (Token, error) {
	if p.tok.Kind != kind {
		return Token{}, &SyntaxError{Pos: p.tok.Pos, Expected: desc}
	}
	t := p.tok
	return t, p.next()
}

func (p *Parser) parseQuery() (*Query, error) {
	q := &Query{}

	if p.atKeyword("MATCH") {
		if err := p.next(); err != nil {
			return nil, err
		}
		patterns, err := p.parsePatternList()
		if err != nil {
			return nil, err
		}
		q.Matches = patterns
	}

	if p.atKeyword("WHERE") {
		if err := p.next(); err != nil {
			return nil, err
		}
		expr, err := p.parseOrExpr()
		if err != nil {
			return nil, err
		}
		q.Where = expr
	}

	if p.atKeyword("CREATE") {
		if err := p.next(); err != nil {
			return nil, err
		}
		patterns, err := p.parsePatternList()
		if err != nil {
			return nil, err
		}
		q.Creates = patterns
	}

	if p.atKeyword("SET") {
		if err := p.next(); err != nil {
			return nil, err
		}
		for {
			item, err := p.parseSetItem()
			if err != nil {
				return nil, err
			}
			q.Sets = append(q.Sets, item)
			if p.tok.Kind != TokComma {
				break
			}
			if err := p.next(); err != nil {
				return nil, err
			}
		}
	}

	if p.atKeyword("DELETE") {
		if err := p.next(); err != nil {
			return nil, err
		}
		for {
			name, err := p.expect(TokIdent, "identifier")
			if err != nil {
				return nil, err
			}
			q.Deletes = append(q.Deletes, DeleteItem{Entity: name.Text})
			if p.tok.Kind != TokComma {
				break
			}
			if err := p.next(); err != nil {
				return nil, err
			}
		}
	}

	if p.atKeyword("RETURN") {
		if err := p.next(); err != nil {
			return nil, err
		}
		for {
			item, err := p.parseReturnItem()
			if err != nil {
				return nil, err
			}
			q.Returns = append(q.Returns, item)
			if p.tok.Kind != TokComma {
				break
			}
			if err := p.next(); err != nil {
				return nil, err
			}
		}
	}

	if p.tok.Kind != TokEOF {
		return nil, &SyntaxError{Pos: p.tok.Pos, Expected: "end of query"}
	}
	return q, nil
}

func (p *Parser) parsePatternList() ([]Pattern, error) {
	var patterns []Pattern
	for {
		pat, err := p.parsePattern()
		if err != nil {
			return nil, err
		}
		patterns = append(patterns, pat)
		if p.tok.Kind != TokComma {
			break
		}
		if err := p.next(); err != nil {
			return nil, err
		}
	}
	return patterns, nil
}

func (p *Parser) parsePattern() (Pattern, error) {
	var pat Pattern
	node, err := p.parseNodePattern()
	if err != nil {
		return pat, err
	}
	pat.Nodes = append(pat.Nodes, node)
	for p.tok.Kind == TokDash || p.tok.Kind == TokArrowLDash {
		edge, err := p.parseEdgePattern()
		if err != nil {
			return pat, err
		}
		node, err := p.parseNodePattern()
		if err != nil {
			return pat, err
		}
		pat.Edges = append(pat.Edges, edge)
		pat.Nodes = append(pat.Nodes, node)
	}
	return pat, nil
}

func (p *Parser) parseNodePattern() (NodePattern, error) {
	var np NodePattern
	if _, err := p.expect(TokLParen, "'('"); err != nil {
		return np, err
	}
	if p.tok.Kind == TokIdent {
		np.Name = p.tok.Text
		if err := p.next(); err != nil {
			return np, err
		}
	}
	if p.tok.Kind == TokColon {
		if err := p.next(); err != nil {
			return np, err
		}
		label, err := p.expect(TokIdent, "label")
		if err != nil {
			return np, err
		}
		np.Label = label.Text
	}
	if p.tok.Kind == TokLBrace {
		props, err := p.parsePropMap()
		if err != nil {
			return np, err
		}
		np.Props = props
	}
	if _, err := p.expect(TokRParen, "')'"); err != nil {
		return np, err
	}
	return np, nil
}

func (p *Parser) parseEdgeDetail() (EdgePattern, error) {
	var ep EdgePattern
	if p.tok.Kind != TokLBracket {
		return ep, nil
	}
	if err := p.next(); err != nil {
		return ep, err
	}
	if p.tok.Kind == TokIdent {
		ep.Name = p.tok.Text
		if err := p.next(); err != nil {
			return ep, err
		}
	}
	if p.tok.Kind == TokColon {
		if err := p.next(); err != nil {
			return ep, err
		}
		label, err := p.expect(TokIdent, "label")
		if err != nil {
			return ep, err
		}
		ep.Label = label.Text
	}
	if p.tok.Kind == TokLBrace {
		props, err := p.parsePropMap()
		if err != nil {
			return ep, err
		}
		ep.Props = props
	}
	if _, err := p.expect(TokRBracket, "']'"); err != nil {
		return ep, err
	}
	return ep, nil
}

// parseEdgePattern parses one of the three directional forms:
// `-[...]->` (DirRight), `<-[...]-` (DirLeft), `-[...]-` (DirEither).
func (p *Parser) parseEdgePattern() (EdgePattern, error) {
	if p.tok.Kind == TokArrowLDash {
		if err := p.next(); err != nil {
			return EdgePattern{}, err
		}
		ep, err := p.parseEdgeDetail()
		if err != nil {
			return ep, err
		}
		if _, err := p.expect(TokDash, "'-'"); err != nil {
			return ep, err
		}
		ep.Direction = DirLeft
		return ep, nil
	}
	if _, err := p.expect(TokDash, "'-'"); err != nil {
		return EdgePattern{}, err
	}
	ep, err := p.parseEdgeDetail()
	if err != nil {
		return ep, err
	}
	switch p.tok.Kind {
	case TokDashArrowR:
		if err := p.next(); err != nil {
			return ep, err
		}
		ep.Direction = DirRight
	case TokDash:
		if err := p.next(); err != nil {
			return ep, err
		}
		ep.Direction = DirEither
	default:
		return ep, &SyntaxError{Pos: p.tok.Pos, Expected: "'->' or '-' to close edge pattern"}
	}
	return ep, nil
}

func (p *Parser) parsePropMap() (map[string]Expr, error) {
	props := map[string]Expr{}
	if _, err := p.expect(TokLBrace, "'{'"); err != nil {
		return nil, err
	}
	if p.tok.Kind == TokRBrace {
		return props, p.next()
	}
	for {
		key, err := p.expect(TokIdent, "property key")
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokColon, "':'"); err != nil {
			return nil, err
		}
		val, err := p.parseOrExpr()
		if err != nil {
			return nil, err
		}
		props[key.Text] = val
		if p.tok.Kind != TokComma {
			break
		}
		if err := p.next(); err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(TokRBrace, "'}'"); err != nil {
		return nil, err
	}
	return props, nil
}

func (p *Parser) parseSetItem() (SetItem, error) {
	entity, err := p.expect(TokIdent, "identifier")
	if err != nil {
		return SetItem{}, err
	}
	if _, err := p.expect(TokDot, "'.'"); err != nil {
		return SetItem{}, err
	}
	key, err := p.expect(TokIdent, "property key")
	if err != nil {
		return SetItem{}, err
	}
	if _, err := p.expect(TokEq, "'='"); err != nil {
		return SetItem{}, err
	}
	value, err := p.parseOrExpr()
	if err != nil {
		return SetItem{}, err
	}
	return SetItem{Entity: entity.Text, Key: key.Text, Value: value}, nil
}

func (p *Parser) parseReturnItem() (ReturnItem, error) {
	expr, err := p.parseOrExpr()
	if err != nil {
		return ReturnItem{}, err
	}
	item := ReturnItem{Expr: expr}
	if p.atKeyword("AS") {
		if err := p.next(); err != nil {
			return item, err
		}
		alias, err := p.expect(TokIdent, "alias")
		if err != nil {
			return item, err
		}
		item.Alias = alias.Text
	}
	return item, nil
}

// --- expressions: OR -> AND -> NOT -> comparison -> primary ---------

func (p *Parser) parseOrExpr() (Expr, error) {
	left, err := p.parseAndExpr()
	if err != nil {
		return nil, err
	}
	for p.atKeyword("OR") {
		if err := p.next(); err != nil {
			return nil, err
		}
		right, err := p.parseAndExpr()
		if err != nil {
			return nil, err
		}
		left = BinaryOp{Op: "OR", Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseAndExpr() (Expr, error) {
	left, err := p.parseNotExpr()
	if err != nil {
		return nil, err
	}
	for p.atKeyword("AND") {
		if err := p.next(); err != nil {
			return nil, err
		}
		right, err := p.parseNotExpr()
		if err != nil {
			return nil, err
		}
		left = BinaryOp{Op: "AND", Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseNotExpr() (Expr, error) {
	if p.atKeyword("NOT") {
		if err := p.next(); err != nil {
			return nil, err
		}
		inner, err := p.parseNotExpr()
		if err != nil {
			return nil, err
		}
		return Not{Expr: inner}, nil
	}
	return p.parseComparison()
}

var comparisonOps = map[TokenKind]string{
	TokEq: "=", TokNeq: "<>", TokLt: "<", TokGt: ">", TokLte: "<=", TokGte: ">=",
}

func (p *Parser) parseComparison() (Expr, error) {
	left, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	if op, ok := comparisonOps[p.tok.Kind]; ok {
		if err := p.next(); err != nil {
			return nil, err
		}
		right, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		return BinaryOp{Op: op, Left: left, Right: right}, nil
	}
	return left, nil
}

func (p *Parser) parsePrimary() (Expr, error) {
	switch p.tok.Kind {
	case TokLParen:
		if err := p.next(); err != nil {
			return nil, err
		}
		inner, err := p.parseOrExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokRParen, "')'"); err != nil {
			return nil, err
		}
		return inner, nil
	case TokInteger:
		n, err := strconv.ParseInt(p.tok.Text, 10, 64)
		if err != nil {
			return nil, &SyntaxError{Pos: p.tok.Pos, Expected: "integer literal"}
		}
		if err := p.next(); err != nil {
			return nil, err
		}
		return Literal{Value: value.Integer(n)}, nil
	case TokReal:
		f, err := strconv.ParseFloat(p.tok.Text, 64)
		if err != nil {
			return nil, &SyntaxError{Pos: p.tok.Pos, Expected: "real literal"}
		}
		if err := p.next(); err != nil {
			return nil, err
		}
		return Literal{Value: value.Real(f)}, nil
	case TokString:
		text := p.tok.Text
		if err := p.next(); err != nil {
			return nil, err
		}
		return Literal{Value: value.Text(text)}, nil
	case TokParameter:
		name := p.tok.Text
		if err := p.next(); err != nil {
			return nil, err
		}
		return Parameter{Name: name}, nil
	case TokKeyword:
		switch p.tok.Text {
		case "TRUE":
			if err := p.next(); err != nil {
				return nil, err
			}
			return Literal{Value: value.Boolean(true)}, nil
		case "FALSE":
			if err := p.next(); err != nil {
				return nil, err
			}
			return Literal{Value: value.Boolean(false)}, nil
		case "NULL":
			if err := p.next(); err != nil {
				return nil, err
			}
			return Literal{Value: value.Null}, nil
		}
		return nil, &SyntaxError{Pos: p.tok.Pos, Expected: "expression"}
	case TokIdent:
		name := p.tok.Text
		if err := p.next(); err != nil {
			return nil, err
		}
		if p.tok.Kind == TokDot {
			if err := p.next(); err != nil {
				return nil, err
			}
			key, err := p.expect(TokIdent, "property key")
			if err != nil {
				return nil, err
			}
			return PropertyAccess{Entity: name, Key: key.Text}, nil
		}
		return Identifier{Name: name}, nil
	default:
		return nil, &SyntaxError{Pos: p.tok.Pos, Expected: "expression"}
	}
}
