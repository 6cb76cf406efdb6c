package embedding

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/airrygarments/stylematch/internal/config"
)

// NewDenseEmbedder builds the embedder named by cfg.Provider. For CLIP, a missing vocabulary
// file falls back to HashTokenizer with a warning.
func NewDenseEmbedder(cfg config.DenseConfig, logger *zap.Logger) (DenseEmbedder, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Provider {
	case "mock":
		return NewMockEmbedder(cfg.Dimensions), nil
	case "", "clip":
		var tok Tokenizer = HashTokenizer{}
		if cfg.VocabPath != "" {
			if _, err := os.Stat(cfg.VocabPath); err == nil {
				bpe, err := LoadBPETokenizer(cfg.VocabPath)
				if err != nil {
					return nil, err
				}
				tok = bpe
			} else {
				logger.Warn("CLIP vocabulary not found, using hash tokenizer", zap.String("path", cfg.VocabPath))
			}
		}
		emb, err := NewCLIPEmbedder(CLIPOptions{
			TextModelPath:   cfg.TextModelPath,
			VisionModelPath: cfg.VisionModelPath,
			Tokenizer:       tok,
			Dimensions:      cfg.Dimensions,
			ContextLength:   cfg.MaxTokens,
			ImageSize:       cfg.ImageSize,
			CacheSize:       cfg.CacheSize,
		})
		if err != nil {
			return nil, err
		}
		logger.Info("CLIP embedder ready",
			zap.String("model", cfg.Model),
			zap.Int("dimensions", emb.Dimensions()))
		return emb, nil
	default:
		return nil, fmt.Errorf("unknown dense embedding provider %q", cfg.Provider)
	}
}
