package graph

import (
	"errors"
	"sync/atomic"
)

// ErrNoTokens indicates the pool was constructed empty.
var ErrNoTokens = errors.New("graph: no access tokens configured")

// TokenPool hands out access tokens round-robin so that concurrent
// workers spread request quota across all configured tokens.
type TokenPool struct {
	tokens []string
	next   atomic.Uint64
}

func NewTokenPool(tokens []string) (*TokenPool, error) {
	if len(tokens) == 0 {
		return nil, ErrNoTokens
	}
	cp := make([]string, len(tokens))
	copy(cp, tokens)
	return &TokenPool{tokens: cp}, nil
}

// Next returns the next token in rotation. Safe for concurrent use.
func (p *TokenPool) Next() string {
	n := p.next.Add(1) - 1
	return p.tokens[n%uint64(len(p.tokens))]
}

// Size reports how many tokens the pool rotates over.
func (p *TokenPool) Size() int {
	return len(p.tokens)
}
