package keyword

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/airrygarments/stylematch/internal/models"
)

// Default BM25 parameters.
const (
	DefaultK1        = 1.2
	DefaultB         = 0.75
	DefaultHashSpace = uint32(1 << 29)
)

// BM25Params is the fitted corpus statistics plus the scoring parameters.
type BM25Params struct {
	K1        float64            `json:"k1"`
	B         float64            `json:"b"`
	HashSpace uint32             `json:"hash_space"`
	NumDocs   int                `json:"n_docs"`
	AvgDocLen float64            `json:"avgdl"`
	DocFreq   map[uint32]float64 `json:"doc_freq"`
}

// BM25Encoder produces sparse vectors with BM25 weighting. It must be fitted exactly once
// before documents or queries can be encoded. Safe for concurrent encoding after Fit.
type BM25Encoder struct {
	tokenizer *Tokenizer
	k1        float64
	b         float64
	hashSpace uint32

	mu     sync.RWMutex
	fitted bool
	params BM25Params
}

// Option configures a BM25Encoder.
type Option func(*BM25Encoder)

// WithParams overrides k1 and b. Zero values keep the defaults.
func WithParams(k1, b float64) Option {
	return func(e *BM25Encoder) {
		if k1 > 0 {
			e.k1 = k1
		}
		if b > 0 {
			e.b = b
		}
	}
}

// WithHashSpace sets the modulus applied to term hashes. Zero keeps the default.
func WithHashSpace(n uint32) Option {
	return func(e *BM25Encoder) {
		if n > 0 {
			e.hashSpace = n
		}
	}
}

// NewBM25Encoder creates an unfitted encoder.
func NewBM25Encoder(opts ...Option) (*BM25Encoder, error) {
	tok, err := NewTokenizer()
	if err != nil {
		return nil, err
	}
	e := &BM25Encoder{tokenizer: tok, k1: DefaultK1, b: DefaultB, hashSpace: DefaultHashSpace}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Fitted reports whether Fit (or LoadParams) has run.
func (e *BM25Encoder) Fitted() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.fitted
}

// Fit computes document frequencies and average document length over corpus.
func (e *BM25Encoder) Fit(corpus []string) error {
	if len(corpus) == 0 {
		return fmt.Errorf("%w: empty corpus", models.ErrInvalidArgument)
	}
	docFreq := make(map[uint32]float64)
	var totalLen int
	for _, doc := range corpus {
		tf := e.termFrequencies(doc)
		for idx, n := range tf {
			totalLen += n
			docFreq[idx]++
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.fitted {
		return models.ErrAlreadyFitted
	}
	e.params = BM25Params{
		K1:        e.k1,
		B:         e.b,
		HashSpace: e.hashSpace,
		NumDocs:   len(corpus),
		AvgDocLen: float64(totalLen) / float64(len(corpus)),
		DocFreq:   docFreq,
	}
	e.fitted = true
	return nil
}

// EncodeDocuments returns the BM25 term-frequency weights of text:
// tf / (k1*(1-b+b*dl/avgdl) + tf) per hashed term.
func (e *BM25Encoder) EncodeDocuments(text string) (models.SparseVector, error) {
	p, err := e.snapshot()
	if err != nil {
		return models.SparseVector{}, err
	}
	tf := e.termFrequencies(text)
	var docLen int
	for _, n := range tf {
		docLen += n
	}
	avgdl := p.AvgDocLen
	if avgdl <= 0 {
		avgdl = 1
	}
	norm := p.K1 * (1 - p.B + p.B*float64(docLen)/avgdl)

	weights := make(map[uint32]float64, len(tf))
	for idx, n := range tf {
		f := float64(n)
		weights[idx] = f / (norm + f)
	}
	return toSparse(weights), nil
}

// EncodeQueries returns idf weights ln((N+1)/(df+0.5)) of the distinct terms in text,
// normalized to sum to 1. Terms never seen during Fit count as df=1.
func (e *BM25Encoder) EncodeQueries(text string) (models.SparseVector, error) {
	p, err := e.snapshot()
	if err != nil {
		return models.SparseVector{}, err
	}
	tf := e.termFrequencies(text)
	weights := make(map[uint32]float64, len(tf))
	var sum float64
	for idx := range tf {
		df, ok := p.DocFreq[idx]
		if !ok {
			df = 1
		}
		idf := math.Log((float64(p.NumDocs) + 1) / (df + 0.5))
		weights[idx] = idf
		sum += idf
	}
	if sum != 0 {
		for idx, w := range weights {
			weights[idx] = w / sum
		}
	}
	return toSparse(weights), nil
}

// Params returns a copy of the fitted statistics.
func (e *BM25Encoder) Params() (BM25Params, error) {
	p, err := e.snapshot()
	if err != nil {
		return BM25Params{}, err
	}
	df := make(map[uint32]float64, len(p.DocFreq))
	for k, v := range p.DocFreq {
		df[k] = v
	}
	p.DocFreq = df
	return p, nil
}

// LoadParams marks the encoder fitted with previously computed statistics.
func (e *BM25Encoder) LoadParams(p BM25Params) error {
	if p.NumDocs <= 0 || p.HashSpace == 0 {
		return fmt.Errorf("%w: bm25 params without corpus statistics", models.ErrInvalidArgument)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.fitted {
		return models.ErrAlreadyFitted
	}
	if p.DocFreq == nil {
		p.DocFreq = map[uint32]float64{}
	}
	e.params = p
	e.hashSpace = p.HashSpace
	e.fitted = true
	return nil
}

// SaveParams writes the fitted statistics to path as JSON.
func (e *BM25Encoder) SaveParams(path string) error {
	p, err := e.Params()
	if err != nil {
		return err
	}
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal bm25 params: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create params directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write bm25 params: %w", err)
	}
	return nil
}

// LoadParamsFile reads statistics written by SaveParams.
func (e *BM25Encoder) LoadParamsFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read bm25 params: %w", err)
	}
	var p BM25Params
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("failed to parse bm25 params: %w", err)
	}
	return e.LoadParams(p)
}

// TermIndex maps an analyzed term to its sparse dimension.
func (e *BM25Encoder) TermIndex(term string) uint32 {
	return uint32(xxhash.Sum64String(term) % uint64(e.hashSpace))
}

func (e *BM25Encoder) snapshot() (BM25Params, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.fitted {
		return BM25Params{}, models.ErrNotFitted
	}
	return e.params, nil
}

func (e *BM25Encoder) termFrequencies(text string) map[uint32]int {
	tf := make(map[uint32]int)
	for _, tok := range e.tokenizer.Tokens(text) {
		tf[e.TermIndex(tok)]++
	}
	return tf
}

// toSparse emits indices in ascending order so encodings are deterministic.
func toSparse(weights map[uint32]float64) models.SparseVector {
	indices := make([]uint32, 0, len(weights))
	for idx := range weights {
		indices = append(indices, idx)
	}
	sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })
	out := models.SparseVector{
		Indices: indices,
		Values:  make([]float32, len(indices)),
	}
	for i, idx := range indices {
		out.Values[i] = float32(weights[idx])
	}
	return out
}
