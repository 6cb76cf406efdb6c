package outreach

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/airrygarments/stylematch/internal/config"
	"github.com/airrygarments/stylematch/internal/embedding"
	"github.com/airrygarments/stylematch/internal/keyword"
	"github.com/airrygarments/stylematch/internal/models"
	"github.com/airrygarments/stylematch/internal/search"
	"github.com/airrygarments/stylematch/internal/vector"
)

type fakePages map[string]string

func (p fakePages) Fetch(ctx context.Context, rawURL string) (string, error) {
	text, ok := p[rawURL]
	if !ok {
		return "", fmt.Errorf("failed to fetch %s: status 404", rawURL)
	}
	return text, nil
}

func newTestEngine(t *testing.T) *search.Engine {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()

	idx, err := vector.NewMemoryStore().EnsureIndex(ctx, vector.IndexSpec{Name: "styles", Dimension: 32})
	if err != nil {
		t.Fatal(err)
	}
	dense := embedding.NewMockEmbedder(32)
	descs := map[string]string{
		"S1": "Shell: 100% Cotton, Lining: 100% Polyester",
		"S2": "Shell: 70% Wool, Lining: 30% Silk",
		"S3": "Shell: 100% Linen, Lining: 100% Cotton",
	}
	corpus := make([]string, 0, len(descs))
	for _, d := range descs {
		corpus = append(corpus, d)
	}
	bm25, err := keyword.NewBM25Encoder()
	if err != nil {
		t.Fatal(err)
	}
	if err := bm25.Fit(corpus); err != nil {
		t.Fatal(err)
	}
	for id, desc := range descs {
		path := filepath.Join(dir, id+".jpg")
		if err := os.WriteFile(path, []byte("image "+id), 0644); err != nil {
			t.Fatal(err)
		}
		d, err := dense.EmbedImage(ctx, path)
		if err != nil {
			t.Fatal(err)
		}
		s, err := bm25.EncodeDocuments(desc)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := idx.Upsert(ctx, &models.InventoryItem{
			ID: id, Dense: d, Sparse: s,
			Metadata: models.Metadata{models.MetaStyle: id, models.MetaImage: id + ".jpg", models.MetaDescription: desc},
		}); err != nil {
			t.Fatal(err)
		}
	}
	return search.NewEngine(idx, dense, bm25, nil)
}

func outreachReplies() map[string]string {
	return map[string]string{
		OpExtractProduct: `{"brand":"Dudalina","fabric composition":"100% Cotton","garment description":"Velvet blazer"}`,
		OpExtractClient:  `{"company":"Dudalina","about":"Brazilian menswear brand"}`,
		OpComposeEmail:   "Dear Dudalina team,\nMay we send you catalogs and samples?",
	}
}

func TestPipeline_Run(t *testing.T) {
	llm := newFakeLLM(outreachReplies())
	pages := fakePages{
		"https://shop.example/p/1":  "Blazer de veludo. 100% Algodão.",
		"https://shop.example/about": "Quem somos",
	}
	p, err := NewPipeline(newTestEngine(t), llm, &config.OutreachConfig{SampleProducts: 2}, WithPageSource(pages))
	if err != nil {
		t.Fatal(err)
	}

	res, err := p.Run(context.Background(), "https://shop.example/p/1", "https://shop.example/about")
	if err != nil {
		t.Fatal(err)
	}
	if res.Email != "Dear Dudalina team,\nMay we send you catalogs and samples?" {
		t.Errorf("email = %q", res.Email)
	}
	if res.Query != "Fabric: 100% Cotton; Description: Velvet blazer" {
		t.Errorf("query = %q", res.Query)
	}
	if len(res.Matches) != 2 || res.Collected.Len() != 2 {
		t.Fatalf("matches = %d, collected = %d, want 2", len(res.Matches), res.Collected.Len())
	}
	for i, m := range res.Matches {
		if res.Collected.Styles[i] != m.ID {
			t.Errorf("collected style %d = %s, match id %s", i, res.Collected.Styles[i], m.ID)
		}
	}
	if res.Client["company"] != "Dudalina" {
		t.Errorf("client = %v", res.Client)
	}

	if !strings.Contains(llm.prompt(OpExtractProduct), "Blazer de veludo") {
		t.Error("product prompt should carry the product page text")
	}
	if !strings.Contains(llm.prompt(OpExtractClient), "Quem somos") {
		t.Error("client prompt should carry the client page text")
	}
	prompt := llm.prompt(OpComposeEmail)
	for _, want := range []string{"AIRRY GARMENTS CO., LTD.", "- " + res.Collected.Styles[0], res.Collected.Descriptions[1], "Brazilian menswear brand"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("email prompt missing %q", want)
		}
	}
}

func TestPipeline_Run_companyDescriptionFromConfig(t *testing.T) {
	llm := newFakeLLM(outreachReplies())
	pages := fakePages{"https://a.example": "a", "https://b.example": "b"}
	p, err := NewPipeline(newTestEngine(t), llm, &config.OutreachConfig{CompanyDescription: "Tiny atelier."}, WithPageSource(pages))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.Run(context.Background(), "https://a.example", "https://b.example"); err != nil {
		t.Fatal(err)
	}
	prompt := llm.prompt(OpComposeEmail)
	if !strings.Contains(prompt, "Tiny atelier.") || strings.Contains(prompt, "AIRRY GARMENTS CO., LTD.") {
		t.Error("configured company description should replace the default")
	}
}

func TestPipeline_Run_errors(t *testing.T) {
	engine := newTestEngine(t)
	pages := fakePages{"https://a.example": "a"}

	t.Run("missing urls", func(t *testing.T) {
		p, err := NewPipeline(engine, newFakeLLM(outreachReplies()), &config.OutreachConfig{}, WithPageSource(pages))
		if err != nil {
			t.Fatal(err)
		}
		if _, err := p.Run(context.Background(), "", "https://a.example"); !errors.Is(err, models.ErrInvalidArgument) {
			t.Errorf("err = %v, want ErrInvalidArgument", err)
		}
	})
	t.Run("client page fails", func(t *testing.T) {
		p, err := NewPipeline(engine, newFakeLLM(outreachReplies()), &config.OutreachConfig{}, WithPageSource(pages))
		if err != nil {
			t.Fatal(err)
		}
		_, err = p.Run(context.Background(), "https://a.example", "https://missing.example")
		if err == nil || !strings.Contains(err.Error(), "client page") {
			t.Errorf("err = %v, want client page error", err)
		}
	})
	t.Run("malformed product", func(t *testing.T) {
		replies := outreachReplies()
		replies[OpExtractProduct] = `{"brand":"X"}`
		p, err := NewPipeline(engine, newFakeLLM(replies), &config.OutreachConfig{}, WithPageSource(pages))
		if err != nil {
			t.Fatal(err)
		}
		if _, err := p.Run(context.Background(), "https://a.example", "https://a.example"); !errors.Is(err, ErrMalformedResponse) {
			t.Errorf("err = %v, want ErrMalformedResponse", err)
		}
	})
}

func TestNewPipeline_requiresDependencies(t *testing.T) {
	if _, err := NewPipeline(nil, newFakeLLM(nil), &config.OutreachConfig{}); !errors.Is(err, models.ErrInvalidArgument) {
		t.Errorf("err = %v, want ErrInvalidArgument", err)
	}
}
