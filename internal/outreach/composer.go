package outreach

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"
)

// EmailInput is everything the cold email prompt is built from.
type EmailInput struct {
	CompanyDescription string
	Client             ClientInfo
	Product            *ProductInfo
	Styles             []string
	FabricDescriptions []string
}

var emailPrompt = template.Must(template.New("email").Funcs(template.FuncMap{
	"json": toJSON,
	"list": toList,
}).Parse(`### INSTRUCTION:
You are a business development executive at Airry Garments., LTD. Your job is to write a cold email to a prospective client.

### DESCRIPTION ABOUT AIRRY GARMENTS:
{{.CompanyDescription}}

### INFORMATION ABOUT THE CLIENT:
{{json .Client}}

### SAMPLE CLIENT PRODUCTS:
{{json .Product}}

### RELEVANT PRODUCTS MATCHING CLIENT'S NEEDS:
{{list .Styles}}
{{- if .FabricDescriptions}}
Here are addtional information about the fabrics (OPTIONAL MENTION):
{{list .FabricDescriptions}}
{{- end}}

### IMPORTANT RULES:
1. BE CONCISE
2. INCLUDE A CALL TO ACTION (PROPOSE TO SEND CATALOGS AND SAMPLES)
3. CUSTOMIZE THE MESSAGE TO THE CLIENT

### EMAIL (NO PREAMBLE):
`))

// BuildEmailPrompt renders the cold email prompt.
func BuildEmailPrompt(in *EmailInput) (string, error) {
	if in == nil {
		return "", fmt.Errorf("email input is nil")
	}
	return render(emailPrompt, in)
}

// Composer writes the cold email with a language model.
type Composer struct {
	llm Completer
}

// NewComposer returns a composer backed by llm.
func NewComposer(llm Completer) *Composer {
	return &Composer{llm: llm}
}

// Compose renders the prompt for in and returns the model's email, trimmed.
func (c *Composer) Compose(ctx context.Context, in *EmailInput) (string, error) {
	prompt, err := BuildEmailPrompt(in)
	if err != nil {
		return "", err
	}
	email, err := c.llm.Complete(ctx, OpComposeEmail, prompt)
	if err != nil {
		return "", err
	}
	email = strings.TrimSpace(email)
	if email == "" {
		return "", fmt.Errorf("%w: empty email", ErrMalformedResponse)
	}
	return email, nil
}

func toJSON(v any) string {
	if p, ok := v.(*ProductInfo); ok && p != nil && len(p.Raw) > 0 {
		v = p.Raw
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

func toList(items []string) string {
	var b strings.Builder
	for _, s := range items {
		b.WriteString("- ")
		b.WriteString(s)
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}
