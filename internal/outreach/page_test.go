package outreach

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/airrygarments/stylematch/internal/models"
)

const productHTML = `<!DOCTYPE html>
<html><head><title>Blazer</title><style>body{color:red}</style></head>
<body>
<script>var tracking = "ignore me";</script>
<h1>Blazer de veludo</h1>
<p>Composição:   100% Algodão</p>
<ul><li>Cinza</li><li>Bolsos</li></ul>
<noscript>enable javascript</noscript>
</body></html>`

func TestExtractText_html(t *testing.T) {
	got, err := ExtractText([]byte(productHTML), "text/html; charset=utf-8", "/p")
	if err != nil {
		t.Fatal(err)
	}
	want := "Blazer de veludo\nComposição: 100% Algodão\nCinza\nBolsos"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestExtractText_sniffsHTML(t *testing.T) {
	got, err := ExtractText([]byte(productHTML), "", "/p")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(got, "tracking") || !strings.Contains(got, "Blazer de veludo") {
		t.Errorf("got %q", got)
	}
}

func TestExtractText_plain(t *testing.T) {
	got, err := ExtractText([]byte("  About   us \n\n we  sell shirts "), "text/plain", "/about.txt")
	if err != nil {
		t.Fatal(err)
	}
	if got != "About us\nwe sell shirts" {
		t.Errorf("got %q", got)
	}
}

func TestExtractText_plainInvalidUTF8(t *testing.T) {
	got, err := ExtractText([]byte{'a', 0xff, 'b'}, "text/plain", "")
	if err != nil {
		t.Fatal(err)
	}
	if got != "a\ufffdb" {
		t.Errorf("got %q", got)
	}
}

func TestExtractText_invalidPDF(t *testing.T) {
	if _, err := ExtractText([]byte("not a pdf"), "application/pdf", "/brochure.pdf"); err == nil {
		t.Error("expected error for invalid PDF")
	}
}

func TestPageFetcher_Fetch(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/product", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") == "" {
			t.Error("missing User-Agent")
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(productHTML))
	})
	mux.HandleFunc("/empty", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><script>x()</script></html>"))
	})
	mux.HandleFunc("/long", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte(strings.Repeat("a", 100)))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	f := NewPageFetcher(5*time.Second, 10)
	ctx := context.Background()

	t.Run("html", func(t *testing.T) {
		got, err := NewPageFetcher(5*time.Second, 0).Fetch(ctx, srv.URL+"/product")
		if err != nil {
			t.Fatal(err)
		}
		if !strings.HasPrefix(got, "Blazer de veludo") {
			t.Errorf("got %q", got)
		}
	})
	t.Run("truncated", func(t *testing.T) {
		got, err := f.Fetch(ctx, srv.URL+"/long")
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 10 {
			t.Errorf("len = %d, want 10", len(got))
		}
	})
	t.Run("no text", func(t *testing.T) {
		if _, err := f.Fetch(ctx, srv.URL+"/empty"); err == nil {
			t.Error("expected error for page without text")
		}
	})
	t.Run("not found", func(t *testing.T) {
		_, err := f.Fetch(ctx, srv.URL+"/missing")
		if err == nil || !strings.Contains(err.Error(), "404") {
			t.Errorf("err = %v, want status 404", err)
		}
	})
	t.Run("invalid url", func(t *testing.T) {
		for _, u := range []string{"", "ftp://example.com/x", "not a url", "http://"} {
			if _, err := f.Fetch(ctx, u); !errors.Is(err, models.ErrInvalidArgument) {
				t.Errorf("Fetch(%q) err = %v, want ErrInvalidArgument", u, err)
			}
		}
	})
}
