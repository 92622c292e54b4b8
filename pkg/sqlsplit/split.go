package sqlsplit

import "strings"

// mode is the lexical state of the scanner. Exactly one is active at a time.
type mode int

const (
	modeDefault mode = iota
	modeLineComment
	modeBlockComment
	modeSingleQuote
	modeDoubleQuote
	modeDollarQuote
)

// Split divides text into statements. It never fails: unterminated quotes,
// comments and dollar bodies simply extend to the end of the input.
//
// Line endings are normalised to \n. Each returned statement is trimmed and
// keeps its terminating semicolon when it had one.
func Split(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	s := &scanner{text: text}
	s.run()
	return s.out
}

type scanner struct {
	text string
	pos  int

	mode mode
	// tag is the closing delimiter while mode is modeDollarQuote.
	tag string
	// doBlock is set when the open dollar body belongs to a DO statement.
	doBlock bool

	// start is the offset of the statement being accumulated.
	start int
	// hasCode is set once the current chunk holds anything besides
	// whitespace, comments and semicolons.
	hasCode bool

	out []string
}

func (s *scanner) run() {
	n := len(s.text)
	for s.pos < n {
		c := s.text[s.pos]
		switch s.mode {
		case modeLineComment:
			if c == '\n' {
				s.mode = modeDefault
			}
			s.pos++

		case modeBlockComment:
			if c == '*' && s.peek(1) == '/' {
				s.mode = modeDefault
				s.pos += 2
				continue
			}
			s.pos++

		case modeSingleQuote:
			if c == '\'' {
				if s.peek(1) == '\'' {
					s.pos += 2
					continue
				}
				s.mode = modeDefault
			}
			s.pos++

		case modeDoubleQuote:
			// An embedded "" closes and immediately reopens, which is harmless.
			if c == '"' {
				s.mode = modeDefault
			}
			s.pos++

		case modeDollarQuote:
			if c == '$' && strings.HasPrefix(s.text[s.pos:], s.tag) {
				s.pos += len(s.tag)
				s.mode = modeDefault
				s.tag = ""
				if s.doBlock {
					s.doBlock = false
					s.closeDoBlock()
				}
				continue
			}
			s.pos++

		default:
			s.scanDefault(c)
		}
	}
	s.emit(n)
}

func (s *scanner) scanDefault(c byte) {
	switch {
	case c == '-' && s.peek(1) == '-':
		s.mode = modeLineComment
		s.pos += 2
	case c == '/' && s.peek(1) == '*':
		s.mode = modeBlockComment
		s.pos += 2
	case c == '\'':
		s.hasCode = true
		s.mode = modeSingleQuote
		s.pos++
	case c == '"':
		s.hasCode = true
		s.mode = modeDoubleQuote
		s.pos++
	case c == '$':
		s.hasCode = true
		tag := s.dollarTag()
		if tag == "" {
			s.pos++
			return
		}
		s.doBlock = endsWithDo(s.text[s.start:s.pos])
		s.tag = tag
		s.mode = modeDollarQuote
		s.pos += len(tag)
	case c == ';':
		s.pos++
		s.emit(s.pos)
	default:
		if !isSpace(c) {
			s.hasCode = true
		}
		s.pos++
	}
}

// closeDoBlock ends the current statement right after a DO body. A
// LANGUAGE clause and a semicolon written on the same line are kept with
// the block.
func (s *scanner) closeDoBlock() {
	j := s.skipBlanks(s.pos)
	if k := s.languageClause(j); k > j {
		s.pos = k
		j = s.skipBlanks(k)
	}
	if j < len(s.text) && s.text[j] == ';' {
		s.pos = j + 1
	}
	s.emit(s.pos)
}

// skipBlanks returns the first offset from i that is not a space or tab.
func (s *scanner) skipBlanks(i int) int {
	for i < len(s.text) && (s.text[i] == ' ' || s.text[i] == '\t') {
		i++
	}
	return i
}

// languageClause returns the offset just past "LANGUAGE <ident>" starting
// at i, or i when the clause is absent or continues on another line.
func (s *scanner) languageClause(i int) int {
	const kw = "language"
	if len(s.text)-i <= len(kw) || !strings.EqualFold(s.text[i:i+len(kw)], kw) {
		return i
	}
	j := i + len(kw)
	if c := s.text[j]; c != ' ' && c != '\t' {
		return i
	}
	j = s.skipBlanks(j)
	if j >= len(s.text) || !isIdentStart(s.text[j]) {
		return i
	}
	for j < len(s.text) && isIdentChar(s.text[j]) {
		j++
	}
	return j
}

// dollarTag returns the dollar-quote delimiter starting at pos ("$$" or
// "$ident$"), or "" when pos does not open one. A '$' inside an identifier
// (foo$bar) or a positional parameter ($1) is not a delimiter.
func (s *scanner) dollarTag() string {
	if s.pos > 0 && isIdentChar(s.text[s.pos-1]) {
		return ""
	}
	j := s.pos + 1
	if j < len(s.text) && s.text[j] == '$' {
		return "$$"
	}
	if j >= len(s.text) || !isIdentStart(s.text[j]) {
		return ""
	}
	for j < len(s.text) && isIdentChar(s.text[j]) {
		j++
	}
	if j < len(s.text) && s.text[j] == '$' {
		return s.text[s.pos : j+1]
	}
	return ""
}

func (s *scanner) peek(offset int) byte {
	if i := s.pos + offset; i < len(s.text) {
		return s.text[i]
	}
	return 0
}

// emit closes the chunk ending at end and starts a new one.
func (s *scanner) emit(end int) {
	if s.hasCode {
		if stmt := strings.TrimSpace(s.text[s.start:end]); stmt != "" {
			s.out = append(s.out, stmt)
		}
	}
	s.start = end
	s.hasCode = false
}

// endsWithDo reports whether the statement text so far ends with the DO
// keyword, ignoring trailing whitespace.
func endsWithDo(prefix string) bool {
	prefix = strings.TrimRight(prefix, " \t\n")
	if len(prefix) < 2 {
		return false
	}
	if !strings.EqualFold(prefix[len(prefix)-2:], "do") {
		return false
	}
	return len(prefix) == 2 || !isIdentChar(prefix[len(prefix)-3])
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\f' || c == '\v'
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c >= 0x80
}

func isIdentChar(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}
