package embedding

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"math"
	"os"
	"regexp"
	"strings"
	"sync"
)

// ClipContextLength is the fixed sequence length of the CLIP text encoder.
const ClipContextLength = 77

// Token ids of the published CLIP vocabulary.
const (
	ClipStartOfText int64 = 49406
	ClipEndOfText   int64 = 49407
)

const clipMergeCount = 49152 - 256 - 2

// Tokenizer produces CLIP text-encoder inputs padded to contextLength.
// Padding positions carry the end-of-text id with a zero attention mask.
type Tokenizer interface {
	Tokenize(text string, contextLength int) (inputIDs, attentionMask []int64)
}

var clipPattern = regexp.MustCompile(`<\|startoftext\|>|<\|endoftext\|>|'s|'t|'re|'ve|'m|'ll|'d|\p{L}+|\p{N}|[^\s\p{L}\p{N}]+`)

// BPETokenizer is CLIP's byte-level BPE tokenizer built from a merges file
// (bpe_simple_vocab_16e6.txt, plain or gzipped).
type BPETokenizer struct {
	encoder   map[string]int64
	ranks     map[[2]string]int
	byteRunes [256]rune
	sot, eot  int64

	mu    sync.Mutex
	cache map[string][]string
}

// LoadBPETokenizer reads the merges file at path.
func LoadBPETokenizer(path string) (*BPETokenizer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open vocabulary: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("failed to open gzipped vocabulary: %w", err)
		}
		defer gz.Close()
		r = gz
	}
	return NewBPETokenizer(r)
}

// NewBPETokenizer builds the vocabulary from merges: the first line is a version header,
// every following line one "left right" merge in priority order.
func NewBPETokenizer(r io.Reader) (*BPETokenizer, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	var merges [][2]string
	header := true
	for scanner.Scan() {
		if header {
			header = false
			continue
		}
		if len(merges) >= clipMergeCount {
			break
		}
		parts := strings.Fields(scanner.Text())
		if len(parts) != 2 {
			continue
		}
		merges = append(merges, [2]string{parts[0], parts[1]})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read vocabulary: %w", err)
	}
	if len(merges) == 0 {
		return nil, fmt.Errorf("vocabulary has no merges")
	}

	byteRunes, order := bytesToUnicode()
	vocab := make([]string, 0, 2*len(order)+len(merges)+2)
	for _, b := range order {
		vocab = append(vocab, string(byteRunes[b]))
	}
	for _, b := range order {
		vocab = append(vocab, string(byteRunes[b])+"</w>")
	}
	for _, m := range merges {
		vocab = append(vocab, m[0]+m[1])
	}
	vocab = append(vocab, "<|startoftext|>", "<|endoftext|>")

	t := &BPETokenizer{
		encoder:   make(map[string]int64, len(vocab)),
		ranks:     make(map[[2]string]int, len(merges)),
		byteRunes: byteRunes,
		cache:     make(map[string][]string),
	}
	for i, v := range vocab {
		t.encoder[v] = int64(i)
	}
	for i, m := range merges {
		t.ranks[m] = i
	}
	t.sot = t.encoder["<|startoftext|>"]
	t.eot = t.encoder["<|endoftext|>"]
	return t, nil
}

// Tokenize lowercases and collapses whitespace, splits words, applies BPE and wraps the
// ids in start/end markers. Sequences longer than contextLength are truncated, keeping the end marker.
func (t *BPETokenizer) Tokenize(text string, contextLength int) (inputIDs, attentionMask []int64) {
	if contextLength <= 2 {
		contextLength = ClipContextLength
	}
	ids := []int64{t.sot}
	clean := strings.ToLower(strings.Join(strings.Fields(text), " "))
	for _, word := range clipPattern.FindAllString(clean, -1) {
		if id, ok := t.encoder[word]; ok && (id == t.sot || id == t.eot) {
			ids = append(ids, id)
			continue
		}
		var sb strings.Builder
		for _, b := range []byte(word) {
			sb.WriteRune(t.byteRunes[b])
		}
		for _, piece := range t.bpe(sb.String()) {
			if id, ok := t.encoder[piece]; ok {
				ids = append(ids, id)
			}
		}
	}
	if len(ids) > contextLength-1 {
		ids = ids[:contextLength-1]
	}
	ids = append(ids, t.eot)
	return pad(ids, contextLength, t.eot)
}

func (t *BPETokenizer) bpe(token string) []string {
	t.mu.Lock()
	if cached, ok := t.cache[token]; ok {
		t.mu.Unlock()
		return cached
	}
	t.mu.Unlock()

	runes := []rune(token)
	if len(runes) == 0 {
		return nil
	}
	word := make([]string, len(runes))
	for i, r := range runes {
		word[i] = string(r)
	}
	word[len(word)-1] += "</w>"

	for len(word) > 1 {
		best, bestRank := -1, math.MaxInt
		for i := 0; i < len(word)-1; i++ {
			if r, ok := t.ranks[[2]string{word[i], word[i+1]}]; ok && r < bestRank {
				best, bestRank = i, r
			}
		}
		if best < 0 {
			break
		}
		first, second := word[best], word[best+1]
		merged := make([]string, 0, len(word))
		for i := 0; i < len(word); {
			if i < len(word)-1 && word[i] == first && word[i+1] == second {
				merged = append(merged, first+second)
				i += 2
				continue
			}
			merged = append(merged, word[i])
			i++
		}
		word = merged
	}

	t.mu.Lock()
	t.cache[token] = word
	t.mu.Unlock()
	return word
}

// bytesToUnicode maps every byte to a printable rune: printable Latin-1 bytes map to
// themselves, the rest to code points from 256 upward. order is the vocabulary order.
func bytesToUnicode() (table [256]rune, order []byte) {
	var seen [256]bool
	add := func(lo, hi int) {
		for b := lo; b <= hi; b++ {
			table[b] = rune(b)
			seen[b] = true
			order = append(order, byte(b))
		}
	}
	add('!', '~')
	add(0xA1, 0xAC)
	add(0xAE, 0xFF)
	n := 0
	for b := 0; b < 256; b++ {
		if !seen[b] {
			table[b] = rune(256 + n)
			n++
			order = append(order, byte(b))
		}
	}
	return table, order
}

// HashTokenizer is a whitespace tokenizer with hash-based ids in the CLIP id range,
// used when no vocabulary file is available.
type HashTokenizer struct{}

// Tokenize splits text into words and produces padded token ids up to contextLength.
func (HashTokenizer) Tokenize(text string, contextLength int) (inputIDs, attentionMask []int64) {
	if contextLength <= 2 {
		contextLength = ClipContextLength
	}
	ids := []int64{ClipStartOfText}
	for _, word := range strings.Fields(strings.ToLower(text)) {
		if len(ids) >= contextLength-1 {
			break
		}
		ids = append(ids, int64(HashString(word)%int(ClipStartOfText)))
	}
	ids = append(ids, ClipEndOfText)
	return pad(ids, contextLength, ClipEndOfText)
}

func pad(ids []int64, contextLength int, padID int64) (inputIDs, attentionMask []int64) {
	inputIDs = make([]int64, contextLength)
	attentionMask = make([]int64, contextLength)
	for i := range inputIDs {
		if i < len(ids) {
			inputIDs[i] = ids[i]
			attentionMask[i] = 1
		} else {
			inputIDs[i] = padID
		}
	}
	return inputIDs, attentionMask
}

// HashString returns a deterministic non-negative hash for use as a simple token id.
func HashString(s string) int {
	h := 0
	for _, c := range s {
		h = 31*h + int(c)
	}
	if h < 0 {
		h = -h
	}
	if h < 0 {
		h = 0
	}
	return h
}
