package outreach

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/template"
)

// ErrMalformedResponse is returned when a model reply does not hold the expected JSON object.
var ErrMalformedResponse = errors.New("malformed model response")

// Keys the product extraction prompt asks for.
const (
	KeyBrand              = "brand"
	KeyFabricComposition  = "fabric composition"
	KeyGarmentDescription = "garment description"
)

// ProductInfo is the product a prospective client sells, as extracted from its store page.
type ProductInfo struct {
	Brand              string         `json:"brand"`
	FabricComposition  string         `json:"fabric composition"`
	GarmentDescription string         `json:"garment description"`
	Raw                map[string]any `json:"-"`
}

// SearchQuery builds the inventory query text from the fabric and garment description.
func (p *ProductInfo) SearchQuery() string {
	return fmt.Sprintf("Fabric: %s; Description: %s", p.FabricComposition, p.GarmentDescription)
}

// ClientInfo is whatever structured description the model returned for the client's about page.
type ClientInfo map[string]any

var productPrompt = template.Must(template.New("product").Parse(`### SCRAPED TEXT FROM WEBSITE:
{{.}}


### INSTRUCTION:
The scraped text is from a retailer's online store.

1. You will first translate the web content into English.
2. You will then extract the key product information and
return them in JSON format containing the following keys:
'brand', 'fabric composition', 'garment description'.
Only return the valid JSON.


### VALID JSON (NO PREAMBLE): Do not include anything else in the response, no extra text, no explanations. If you need to provide explanations, put them as JSON fields within the JSON object.
`))

var clientPrompt = template.Must(template.New("client").Parse(`### SCRAPED TEXT FROM WEBSITE:
{{.}}

### INSTRUCTION:
The scraped text the about section of a company's website.
The company is a potential client.

1. You will first translate the web content into English.

### VALID JSON (NO PREAMBLE): Do not include anything else in the response, no extra text, no explanations. If you need to provide explanations, put them as JSON fields within the JSON object.
`))

// Extractor turns scraped page text into structured product and client information.
type Extractor struct {
	llm Completer
}

// NewExtractor returns an extractor that uses llm for the translation and extraction.
func NewExtractor(llm Completer) *Extractor {
	return &Extractor{llm: llm}
}

// ExtractProduct asks the model for the brand, fabric composition and garment description
// of the product on the page. Both the fabric composition and the garment description must
// be present.
func (e *Extractor) ExtractProduct(ctx context.Context, page string) (*ProductInfo, error) {
	prompt, err := render(productPrompt, page)
	if err != nil {
		return nil, err
	}
	reply, err := e.llm.Complete(ctx, OpExtractProduct, prompt)
	if err != nil {
		return nil, err
	}
	raw, err := parseJSONObject(reply)
	if err != nil {
		return nil, fmt.Errorf("product info: %w", err)
	}

	info := &ProductInfo{Raw: raw}
	info.Brand, _ = field(raw, KeyBrand)
	var ok bool
	if info.FabricComposition, ok = field(raw, KeyFabricComposition); !ok {
		return nil, fmt.Errorf("%w: product info missing %q", ErrMalformedResponse, KeyFabricComposition)
	}
	if info.GarmentDescription, ok = field(raw, KeyGarmentDescription); !ok {
		return nil, fmt.Errorf("%w: product info missing %q", ErrMalformedResponse, KeyGarmentDescription)
	}
	return info, nil
}

// ExtractClient asks the model for an English JSON summary of the client's about page.
func (e *Extractor) ExtractClient(ctx context.Context, page string) (ClientInfo, error) {
	prompt, err := render(clientPrompt, page)
	if err != nil {
		return nil, err
	}
	reply, err := e.llm.Complete(ctx, OpExtractClient, prompt)
	if err != nil {
		return nil, err
	}
	raw, err := parseJSONObject(reply)
	if err != nil {
		return nil, fmt.Errorf("client info: %w", err)
	}
	return ClientInfo(raw), nil
}

func render(tmpl *template.Template, data any) (string, error) {
	var b strings.Builder
	if err := tmpl.Execute(&b, data); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", tmpl.Name(), err)
	}
	return b.String(), nil
}

// parseJSONObject extracts the first JSON object from a model reply, ignoring markdown code
// fences and any text around the object.
func parseJSONObject(reply string) (map[string]any, error) {
	s := strings.TrimSpace(reply)
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return nil, fmt.Errorf("%w: no JSON object in reply", ErrMalformedResponse)
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(s[start:end+1]), &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return out, nil
}

// field returns raw[key] as text. Non-string values are rendered as JSON.
func field(raw map[string]any, key string) (string, bool) {
	v, ok := raw[key]
	if !ok || v == nil {
		return "", false
	}
	if s, ok := v.(string); ok {
		s = strings.TrimSpace(s)
		return s, s != ""
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v), true
	}
	return string(data), true
}
