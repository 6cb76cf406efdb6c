//go:build cgo
// +build cgo

package embedding

import (
	"context"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

var (
	ortOnce    sync.Once
	ortInitErr error
)

// CLIPOptions configures the CLIP embedder. Models are the text and vision towers exported
// with projection heads (inputs input_ids/attention_mask and pixel_values, outputs
// text_embeds and image_embeds).
type CLIPOptions struct {
	TextModelPath   string
	VisionModelPath string
	Tokenizer       Tokenizer
	Dimensions      int
	ContextLength   int
	ImageSize       int
	CacheSize       int
}

// CLIPEmbedder runs CLIP towers through ONNX Runtime. It requires CGO and the onnxruntime
// shared library.
type CLIPEmbedder struct {
	opts  CLIPOptions
	cache *EmbeddingCache

	textMu        sync.Mutex
	textSession   *ort.AdvancedSession
	inputIDs      *ort.Tensor[int64]
	attentionMask *ort.Tensor[int64]
	textOut       *ort.Tensor[float32]

	visionMu      sync.Mutex
	visionSession *ort.AdvancedSession
	pixels        *ort.Tensor[float32]
	visionOut     *ort.Tensor[float32]
}

// NewCLIPEmbedder creates both ONNX sessions. The runtime environment is initialized on first use.
func NewCLIPEmbedder(opts CLIPOptions) (*CLIPEmbedder, error) {
	if opts.Tokenizer == nil {
		opts.Tokenizer = HashTokenizer{}
	}
	if opts.Dimensions <= 0 {
		opts.Dimensions = 512
	}
	if opts.ContextLength <= 0 {
		opts.ContextLength = ClipContextLength
	}
	if opts.ImageSize <= 0 {
		opts.ImageSize = 224
	}
	ortOnce.Do(func() { ortInitErr = ort.InitializeEnvironment() })
	if ortInitErr != nil {
		return nil, fmt.Errorf("failed to initialize ONNX runtime: %w", ortInitErr)
	}

	e := &CLIPEmbedder{opts: opts, cache: NewEmbeddingCache(opts.CacheSize)}
	if err := e.initText(); err != nil {
		_ = e.Close()
		return nil, err
	}
	if err := e.initVision(); err != nil {
		_ = e.Close()
		return nil, err
	}
	return e, nil
}

func (e *CLIPEmbedder) initText() error {
	n := int64(e.opts.ContextLength)
	ids, mask := e.opts.Tokenizer.Tokenize("", e.opts.ContextLength)
	var err error
	if e.inputIDs, err = ort.NewTensor(ort.NewShape(1, n), ids); err != nil {
		return fmt.Errorf("failed to create input_ids tensor: %w", err)
	}
	if e.attentionMask, err = ort.NewTensor(ort.NewShape(1, n), mask); err != nil {
		return fmt.Errorf("failed to create attention_mask tensor: %w", err)
	}
	if e.textOut, err = ort.NewTensor(ort.NewShape(1, int64(e.opts.Dimensions)), make([]float32, e.opts.Dimensions)); err != nil {
		return fmt.Errorf("failed to create text output tensor: %w", err)
	}
	e.textSession, err = ort.NewAdvancedSession(
		e.opts.TextModelPath,
		[]string{"input_ids", "attention_mask"},
		[]string{"text_embeds"},
		[]ort.ArbitraryTensor{e.inputIDs, e.attentionMask},
		[]ort.ArbitraryTensor{e.textOut},
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to create CLIP text session: %w", err)
	}
	return nil
}

func (e *CLIPEmbedder) initVision() error {
	s := int64(e.opts.ImageSize)
	var err error
	if e.pixels, err = ort.NewTensor(ort.NewShape(1, 3, s, s), make([]float32, 3*s*s)); err != nil {
		return fmt.Errorf("failed to create pixel_values tensor: %w", err)
	}
	if e.visionOut, err = ort.NewTensor(ort.NewShape(1, int64(e.opts.Dimensions)), make([]float32, e.opts.Dimensions)); err != nil {
		return fmt.Errorf("failed to create image output tensor: %w", err)
	}
	e.visionSession, err = ort.NewAdvancedSession(
		e.opts.VisionModelPath,
		[]string{"pixel_values"},
		[]string{"image_embeds"},
		[]ort.ArbitraryTensor{e.pixels},
		[]ort.ArbitraryTensor{e.visionOut},
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to create CLIP vision session: %w", err)
	}
	return nil
}

// EmbedText returns the unit-length text embedding, using the cache when available.
func (e *CLIPEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	key := "text:" + text
	if cached, ok := e.cache.Get(key); ok {
		return cached, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ids, mask := e.opts.Tokenizer.Tokenize(text, e.opts.ContextLength)

	e.textMu.Lock()
	defer e.textMu.Unlock()
	copy(e.inputIDs.GetData(), ids)
	copy(e.attentionMask.GetData(), mask)
	if err := e.textSession.Run(); err != nil {
		return nil, fmt.Errorf("text inference failed: %w", err)
	}
	emb := make([]float32, e.opts.Dimensions)
	copy(emb, e.textOut.GetData())
	NormalizeL2Slice(emb)
	e.cache.Set(key, emb)
	return emb, nil
}

// EmbedImage returns the unit-length image embedding of the file at path.
func (e *CLIPEmbedder) EmbedImage(ctx context.Context, path string) ([]float32, error) {
	key := "image:" + path
	if cached, ok := e.cache.Get(key); ok {
		return cached, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pixels, err := LoadImagePixels(path, e.opts.ImageSize)
	if err != nil {
		return nil, err
	}

	e.visionMu.Lock()
	defer e.visionMu.Unlock()
	copy(e.pixels.GetData(), pixels)
	if err := e.visionSession.Run(); err != nil {
		return nil, fmt.Errorf("image inference failed: %w", err)
	}
	emb := make([]float32, e.opts.Dimensions)
	copy(emb, e.visionOut.GetData())
	NormalizeL2Slice(emb)
	e.cache.Set(key, emb)
	return emb, nil
}

// Dimensions returns the embedding dimension.
func (e *CLIPEmbedder) Dimensions() int {
	return e.opts.Dimensions
}

// Close destroys the sessions and tensors.
func (e *CLIPEmbedder) Close() error {
	var err error
	if e.textSession != nil {
		err = e.textSession.Destroy()
		e.textSession = nil
	}
	if e.visionSession != nil {
		if verr := e.visionSession.Destroy(); err == nil {
			err = verr
		}
		e.visionSession = nil
	}
	if e.inputIDs != nil {
		_ = e.inputIDs.Destroy()
	}
	if e.attentionMask != nil {
		_ = e.attentionMask.Destroy()
	}
	if e.textOut != nil {
		_ = e.textOut.Destroy()
	}
	if e.pixels != nil {
		_ = e.pixels.Destroy()
	}
	if e.visionOut != nil {
		_ = e.visionOut.Destroy()
	}
	e.inputIDs, e.attentionMask, e.textOut, e.pixels, e.visionOut = nil, nil, nil, nil, nil
	return err
}

var _ DenseEmbedder = (*CLIPEmbedder)(nil)
