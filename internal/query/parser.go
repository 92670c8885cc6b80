// Package query parses the interactive shell's command language.
package query

import (
	"fmt"
	"strings"
	"time"
	"unicode"
)

type Kind int

const (
	KindGet Kind = iota
	KindSet
	KindExists
	KindKeys
	KindNodes
	KindRefresh
	KindHelp
	KindExit
)

// Command is one parsed shell line. Keys holds the key arguments of
// GET/EXISTS and the single key of SET; Value and TTL are SET-only.
type Command struct {
	Kind  Kind
	Keys  []string
	Value string
	TTL   time.Duration
}

type parser struct {
	tokens []string
	pos    int
}

// Parse parses one shell line. Verbs are case-insensitive; values may
// be double-quoted to include spaces.
func Parse(input string) (*Command, error) {
	tokens, err := tokenize(input)
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return nil, fmt.Errorf("empty command")
	}

	p := &parser{tokens: tokens}
	cmd, err := p.parseCommand()
	if err != nil {
		return nil, err
	}
	if p.pos != len(p.tokens) {
		return nil, fmt.Errorf("unexpected tokens at end of input")
	}
	return cmd, nil
}

func (p *parser) parseCommand() (*Command, error) {
	verb := strings.ToUpper(p.tokens[p.pos])
	p.pos++

	switch verb {
	case "GET":
		keys, err := p.parseKeyList()
		if err != nil {
			return nil, err
		}
		return &Command{Kind: KindGet, Keys: keys}, nil

	case "SET":
		return p.parseSet()

	case "EXISTS":
		keys, err := p.parseKeyList()
		if err != nil {
			return nil, err
		}
		return &Command{Kind: KindExists, Keys: keys}, nil

	case "KEYS":
		return &Command{Kind: KindKeys}, nil

	case "NODES":
		return &Command{Kind: KindNodes}, nil

	case "REFRESH":
		return &Command{Kind: KindRefresh}, nil

	case "HELP":
		return &Command{Kind: KindHelp}, nil

	case "EXIT", "QUIT":
		return &Command{Kind: KindExit}, nil

	default:
		return nil, fmt.Errorf("unknown command: %s", verb)
	}
}

func (p *parser) parseSet() (*Command, error) {
	key, err := p.parseWord("key")
	if err != nil {
		return nil, err
	}
	value, err := p.parseWord("value")
	if err != nil {
		return nil, err
	}

	cmd := &Command{Kind: KindSet, Keys: []string{key}, Value: value}

	if p.pos < len(p.tokens) && strings.EqualFold(p.tokens[p.pos], "TTL") {
		p.pos++
		raw, err := p.parseWord("ttl duration")
		if err != nil {
			return nil, err
		}
		ttl, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid ttl: %v", err)
		}
		if ttl <= 0 {
			return nil, fmt.Errorf("ttl must be positive, got %s", ttl)
		}
		cmd.TTL = ttl
	}

	return cmd, nil
}

func (p *parser) parseKeyList() ([]string, error) {
	key, err := p.parseWord("key")
	if err != nil {
		return nil, err
	}
	keys := []string{key}

	for p.pos < len(p.tokens) {
		key, err := p.parseWord("key")
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, nil
}

func (p *parser) parseWord(what string) (string, error) {
	if p.pos >= len(p.tokens) {
		return "", fmt.Errorf("expected %s", what)
	}
	word := p.tokens[p.pos]
	p.pos++
	return word, nil
}

// tokenize splits input on whitespace, keeping double-quoted spans as
// single tokens with the quotes stripped.
func tokenize(input string) ([]string, error) {
	tokens := []string{}
	var current strings.Builder
	inQuote := false
	hasToken := false

	flush := func() {
		if hasToken {
			tokens = append(tokens, current.String())
			current.Reset()
			hasToken = false
		}
	}

	for _, ch := range input {
		switch {
		case ch == '"':
			inQuote = !inQuote
			hasToken = true
		case unicode.IsSpace(ch) && !inQuote:
			flush()
		default:
			current.WriteRune(ch)
			hasToken = true
		}
	}
	if inQuote {
		return nil, fmt.Errorf("unterminated quote")
	}
	flush()

	return tokens, nil
}
