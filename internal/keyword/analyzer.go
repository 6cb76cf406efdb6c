// Package keyword provides the BM25 sparse encoder used for lexical (fabric) matching.
package keyword

import (
	"fmt"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
)

type textAnalyzer interface {
	Analyze(input []byte) analysis.TokenStream
}

// Tokenizer turns text into normalized terms: unicode word split, possessive removal,
// lowercasing, English stop word removal and Snowball stemming.
type Tokenizer struct {
	analyzer textAnalyzer
}

// NewTokenizer builds a tokenizer on bleve's English analyzer.
func NewTokenizer() (*Tokenizer, error) {
	a := bleve.NewIndexMapping().AnalyzerNamed(en.AnalyzerName)
	if a == nil {
		return nil, fmt.Errorf("analyzer %q not registered", en.AnalyzerName)
	}
	return &Tokenizer{analyzer: a}, nil
}

// Tokens returns the analyzed terms of text in order, duplicates included.
func (t *Tokenizer) Tokens(text string) []string {
	stream := t.analyzer.Analyze([]byte(text))
	out := make([]string, 0, len(stream))
	for _, tok := range stream {
		if len(tok.Term) == 0 {
			continue
		}
		out = append(out, string(tok.Term))
	}
	return out
}
