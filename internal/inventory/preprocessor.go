package inventory

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/airrygarments/stylematch/internal/models"
)

// Inventory column headers.
const (
	ColStyle  = models.MetaStyle
	ColImage  = models.MetaImage
	ColFabric = "fabric composition"
	ColLining = "lining composition"
)

// Item is a prepared inventory row ready for embedding.
type Item struct {
	Style       string
	ImagePath   string // resolved against the image root
	Description string
	Metadata    models.Metadata
}

// BuildDescription renders the shell and lining compositions as one normalized description.
func BuildDescription(fabric, lining string) string {
	return NormalizeDescription(fmt.Sprintf("Shell: %s, Lining: %s", fabric, lining))
}

// NormalizeDescription spaces out "%" and "," then collapses whitespace and trims.
func NormalizeDescription(text string) string {
	text = strings.ReplaceAll(text, "%", "% ")
	text = strings.ReplaceAll(text, ",", ", ")
	return collapseSpace(text)
}

func collapseSpace(text string) string {
	text = strings.TrimSpace(text)
	var b strings.Builder
	wasSpace := false
	for _, r := range text {
		if unicode.IsSpace(r) {
			if !wasSpace {
				b.WriteRune(' ')
				wasSpace = true
			}
		} else {
			b.WriteRune(r)
			wasSpace = false
		}
	}
	return b.String()
}

// Prepare validates the table and derives one Item per row. The composition columns are
// folded into Description and dropped from metadata; every other column is carried over.
func Prepare(t *Table, imageRoot string) ([]*Item, error) {
	for _, col := range []string{ColStyle, ColImage, ColFabric, ColLining} {
		if !hasColumn(t.Columns, col) {
			return nil, fmt.Errorf("%w: inventory is missing column %q", models.ErrInvalidArgument, col)
		}
	}
	items := make([]*Item, 0, len(t.Records))
	for i, rec := range t.Records {
		style := rec[ColStyle]
		if style == "" {
			return nil, fmt.Errorf("%w: row %d has no style", models.ErrInvalidArgument, i+2)
		}
		image := rec[ColImage]
		if image == "" {
			return nil, fmt.Errorf("%w: style %s has no image", models.ErrInvalidArgument, style)
		}
		desc := BuildDescription(rec[ColFabric], rec[ColLining])

		md := make(models.Metadata, len(rec))
		for k, v := range rec {
			if k == ColFabric || k == ColLining {
				continue
			}
			md[k] = v
		}
		md[models.MetaDescription] = desc

		items = append(items, &Item{
			Style:       style,
			ImagePath:   resolveImage(image, imageRoot),
			Description: desc,
			Metadata:    md,
		})
	}
	return items, nil
}

// Descriptions returns the descriptions of items in order, the BM25 fitting corpus.
func Descriptions(items []*Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Description
	}
	return out
}

func resolveImage(image, root string) string {
	if root == "" || filepath.IsAbs(image) || strings.Contains(image, "://") {
		return image
	}
	return filepath.Join(root, image)
}

func hasColumn(cols []string, want string) bool {
	for _, c := range cols {
		if c == want {
			return true
		}
	}
	return false
}
