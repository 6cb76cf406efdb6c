// Package cli formats stylematch command output.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/airrygarments/stylematch/internal/inventory"
	"github.com/airrygarments/stylematch/internal/models"
	"github.com/airrygarments/stylematch/internal/outreach"
	"github.com/airrygarments/stylematch/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputCompact prints one tab-separated line per record.
	OutputCompact OutputFormat = "compact"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

const descriptionWidth = 120

// ParseOutputFormat validates a --output flag value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(s)); f {
	case OutputText, OutputCompact, OutputJSON:
		return f, nil
	case "":
		return OutputText, nil
	default:
		return "", fmt.Errorf("unknown output format %q; use text, compact, or json", s)
	}
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteSearchResults writes a search response to w in the given format.
func WriteSearchResults(w io.Writer, response *models.SearchResponse, format OutputFormat) error {
	switch format {
	case OutputJSON:
		return writeJSON(w, response)
	case OutputCompact:
		for i, m := range response.Matches {
			fmt.Fprintf(w, "%d\t%s\t%.4f\t%s\t%s\n", i+1, m.ID, m.Score,
				metaString(m.Metadata, models.MetaImage), metaString(m.Metadata, models.MetaDescription))
		}
		return nil
	default:
		writeSearchResultsText(w, response)
		return nil
	}
}

func writeSearchResultsText(w io.Writer, response *models.SearchResponse) {
	fmt.Fprintf(w, "\nFound %d styles in %dms (mode: %s, style similarity %.2f)\n\n",
		len(response.Matches), response.QueryTime, response.Mode, response.Weight)
	for i, m := range response.Matches {
		writeOneMatch(w, i+1, m)
	}
}

func writeOneMatch(w io.Writer, rank int, m *models.Match) {
	fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
	fmt.Fprintf(w, "Rank: %d | Style: %s | Score: %.4f\n", rank, m.ID, m.Score)
	if img := metaString(m.Metadata, models.MetaImage); img != "" {
		fmt.Fprintf(w, "Image: %s\n", img)
	}
	if desc := metaString(m.Metadata, models.MetaDescription); desc != "" {
		fmt.Fprintf(w, "\n%s\n", utils.Truncate(desc, descriptionWidth))
	}
	fmt.Fprintln(w)
}

// WriteItem writes one stored inventory item. Embeddings are summarised in text formats.
func WriteItem(w io.Writer, item *models.InventoryItem, format OutputFormat) error {
	switch format {
	case OutputJSON:
		return writeJSON(w, item)
	case OutputCompact:
		fmt.Fprintf(w, "%s\t%s\t%s\n", item.ID,
			metaString(item.Metadata, models.MetaImage), metaString(item.Metadata, models.MetaDescription))
		return nil
	default:
		fmt.Fprintf(w, "Style: %s\n", item.ID)
		fmt.Fprintf(w, "Dense: %d dims | Sparse: %d terms\n", len(item.Dense), item.Sparse.Len())
		for _, key := range sortedKeys(item.Metadata) {
			fmt.Fprintf(w, "%s: %v\n", key, item.Metadata[key])
		}
		return nil
	}
}

// WriteStatus writes index status in the given format.
func WriteStatus(w io.Writer, status *models.Status, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, status)
	}
	if format == OutputCompact {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%d\n", status.Index, status.Backend, status.Dimension, status.Metric, status.Records)
		return nil
	}
	fmt.Fprintf(w, "index:              %s\n", status.Index)
	fmt.Fprintf(w, "backend:            %s\n", status.Backend)
	fmt.Fprintf(w, "dimension:          %d\n", status.Dimension)
	fmt.Fprintf(w, "metric:             %s\n", status.Metric)
	fmt.Fprintf(w, "records:            %d   # inventory items in the index\n", status.Records)
	if status.DiskUsageBytes != nil {
		fmt.Fprintf(w, "disk_usage_bytes:   %d\n", *status.DiskUsageBytes)
	}
	if c := status.Config; c != nil {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "# configuration")
		fmt.Fprintf(w, "dense_provider:     %s\n", c.DenseProvider)
		if c.DenseModel != "" {
			fmt.Fprintf(w, "dense_model:        %s\n", c.DenseModel)
		}
		fmt.Fprintf(w, "sparse_hash_space:  %d\n", c.SparseHashSpace)
		fmt.Fprintf(w, "default_top_k:      %d\n", c.DefaultTopK)
		fmt.Fprintf(w, "style_similarity:   %.2f\n", c.StyleSimilarity)
		if c.DatabasePath != "" {
			fmt.Fprintf(w, "database_path:      %s\n", c.DatabasePath)
		}
		if c.LanguageModel != "" {
			fmt.Fprintf(w, "language_model:     %s\n", c.LanguageModel)
		}
		for _, f := range c.WatchedFiles {
			fmt.Fprintf(w, "watched_file:       %s\n", f)
		}
	}
	return nil
}

// WriteIngestReport writes the outcome of an ingest run.
func WriteIngestReport(w io.Writer, report *inventory.IngestReport, format OutputFormat) error {
	switch format {
	case OutputJSON:
		return writeJSON(w, report)
	case OutputCompact:
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\n", report.RunID, report.Total, report.Inserted, report.Skipped)
		return nil
	default:
		fmt.Fprintf(w, "Ingested %d item(s) in %s: %d inserted, %d already present (run %s)\n",
			report.Total, report.Duration.Round(time.Millisecond), report.Inserted, report.Skipped, report.RunID)
		return nil
	}
}

// WriteOutreach writes a generated email; text and compact print the email only.
func WriteOutreach(w io.Writer, result *outreach.Result, format OutputFormat) error {
	switch format {
	case OutputJSON:
		return writeJSON(w, result)
	case OutputCompact:
		fmt.Fprintln(w, result.Email)
		return nil
	default:
		fmt.Fprintf(w, "Query: %s\n", result.Query)
		if result.Collected != nil {
			fmt.Fprintf(w, "Matched styles: %s\n", utils.JoinNonEmpty(", ", result.Collected.Styles...))
		}
		fmt.Fprintf(w, "\n--- GENERATED EMAIL ---\n\n%s\n", result.Email)
		return nil
	}
}

func metaString(md models.Metadata, key string) string {
	v, ok := md[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func sortedKeys(md models.Metadata) []string {
	keys := make([]string, 0, len(md))
	for k := range md {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
