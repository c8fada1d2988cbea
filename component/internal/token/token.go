package token

import (
	"unicode"
)

type Type int

const (
	Ident Type = iota
	LBrace
	RBrace
	LParen
	RParen
	LAngle
	RAngle
	Colon
	Semicolon
	Comma
	Equals
	Arrow
	Underscore
	Invalid
)

func (t Type) String() string {
	switch t {
	case Ident:
		return "identifier"
	case LBrace:
		return "'{'"
	case RBrace:
		return "'}'"
	case LParen:
		return "'('"
	case RParen:
		return "')'"
	case LAngle:
		return "'<'"
	case RAngle:
		return "'>'"
	case Colon:
		return "':'"
	case Semicolon:
		return "';'"
	case Comma:
		return "','"
	case Equals:
		return "'='"
	case Arrow:
		return "'->'"
	case Underscore:
		return "'_'"
	}
	return "invalid character"
}

type Token struct {
	Value string
	Type  Type
	Line  int
}

var punct = map[rune]Type{
	'{': LBrace,
	'}': RBrace,
	'(': LParen,
	')': RParen,
	'<': LAngle,
	'>': RAngle,
	';': Semicolon,
	',': Comma,
	'=': Equals,
}

// Tokenize splits world text into tokens. Identifiers may carry path and
// version separators (cli/stdout@0.2.0) and method brackets
// ([method]output-stream.write). A leading % escapes a keyword. The colon of
// a package name is a separate token.
func Tokenize(input string) []Token {
	var tokens []Token
	line := 1
	runes := []rune(input)

	for i := 0; i < len(runes); i++ {
		r := runes[i]

		if r == '\n' {
			line++
			continue
		}
		if unicode.IsSpace(r) {
			continue
		}

		// Line comment
		if r == '/' && i+1 < len(runes) && runes[i+1] == '/' {
			for i < len(runes) && runes[i] != '\n' {
				i++
			}
			line++
			continue
		}

		// Block comment
		if r == '/' && i+1 < len(runes) && runes[i+1] == '*' {
			i += 2
			for i < len(runes) && !(runes[i] == '*' && i+1 < len(runes) && runes[i+1] == '/') {
				if runes[i] == '\n' {
					line++
				}
				i++
			}
			i++
			continue
		}

		if r == '-' && i+1 < len(runes) && runes[i+1] == '>' {
			tokens = append(tokens, Token{"->", Arrow, line})
			i++
			continue
		}

		if r == ':' {
			tokens = append(tokens, Token{":", Colon, line})
			continue
		}

		if typ, ok := punct[r]; ok {
			tokens = append(tokens, Token{string(r), typ, line})
			continue
		}

		if r == '_' && (i+1 == len(runes) || !isIdentRune(runes[i+1])) {
			tokens = append(tokens, Token{"_", Underscore, line})
			continue
		}

		if r == '%' || r == '[' || isIdentRune(r) {
			if r == '%' {
				i++
			}
			start := i
			for i < len(runes) {
				c := runes[i]
				if c == '-' && i+1 < len(runes) && runes[i+1] == '>' {
					break
				}
				if isIdentRune(c) || c == '[' || c == ']' || c == '/' || c == '@' || c == '.' {
					i++
					continue
				}
				break
			}
			tokens = append(tokens, Token{string(runes[start:i]), Ident, line})
			i--
			continue
		}

		tokens = append(tokens, Token{string(r), Invalid, line})
	}

	return tokens
}

func isIdentRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_'
}
