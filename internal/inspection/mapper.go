package inspection

import (
	"fmt"
	"strings"

	"github.com/Jeffail/gabs/v2"

	"search-analytics-node/internal/table"
)

// The API omits keys it has no value for; these are filled with null (or an
// empty list) so every row carries the same shape.
var (
	indexStatusKeys     = []string{"coverageState", "crawledAs", "googleCanonical", "indexingState", "lastCrawlTime", "pageFetchState", "robotsTxtState", "userCanonical", "verdict"}
	indexStatusListKeys = []string{"referringUrls", "sitemap"}

	ampKeys = []string{"ampIndexStatusVerdict", "ampUrl", "indexingState", "lastCrawlTime", "pageFetchState", "robotsTxtState", "verdict"}
)

var (
	indexStatusColumns = []string{
		"IS: Coverage State",
		"IS: Crawled As",
		"IS: Google Canonical",
		"IS: Indexing State",
		"IS: Last Crawl Time",
		"IS: Page Fetch State",
		"IS: Referring URLs",
		"IS: robots.txt State",
		"IS: Sitemaps",
		"IS: User Canonical",
		"IS: Verdict",
	}
	mobileUsabilityColumns = []string{"MU: Issues", "MU: Verdict"}
	ampColumns             = []string{
		"AMP: Index Status Verdict",
		"AMP: URL",
		"AMP: Indexing State",
		"AMP: Issues",
		"AMP: Last Crawl Time",
		"AMP: Page Fetch State",
		"AMP: robots.txt State",
		"AMP: Verdict",
	}
)

const (
	ColumnURL     = "URL"
	ColumnWebLink = "Web Link"
	ColumnError   = "Error"
)

// Columns returns the output columns for the request, in order.
func (r Request) Columns() []string {
	m := r.modules()
	cols := []string{ColumnURL}
	if r.WebLink {
		cols = append(cols, ColumnWebLink)
	}
	if m.IndexStatus {
		cols = appendModule(cols, r.JSON, "IS", indexStatusColumns)
	}
	if m.MobileUsability {
		cols = appendModule(cols, r.JSON, "MU", mobileUsabilityColumns)
	}
	if m.AMP {
		cols = appendModule(cols, r.JSON, "AMP", ampColumns)
	}
	if m.RichResults {
		cols = append(cols, "RR: JSON")
	}
	return append(cols, ColumnError)
}

func appendModule(cols []string, asJSON bool, prefix string, flat []string) []string {
	if asJSON {
		return append(cols, prefix+": JSON")
	}
	return append(cols, flat...)
}

func buildRow(url string, raw []byte, req Request) (table.Row, error) {
	parsed, err := gabs.ParseJSON(raw)
	if err != nil {
		return nil, fmt.Errorf("decode inspection response: %w", err)
	}
	result := parsed.Search("inspectionResult")

	row := table.Row{ColumnURL: url, ColumnError: nil}
	m := req.modules()

	if req.WebLink {
		link, _ := result.Search("inspectionResultLink").Data().(string)
		row[ColumnWebLink] = link
	}

	if m.IndexStatus {
		isr := ensureKeys(section(result, "indexStatusResult"), indexStatusKeys, indexStatusListKeys)
		if req.JSON {
			row["IS: JSON"] = isr
		} else {
			row["IS: Coverage State"] = isr["coverageState"]
			row["IS: Crawled As"] = isr["crawledAs"]
			row["IS: Google Canonical"] = isr["googleCanonical"]
			row["IS: Indexing State"] = isr["indexingState"]
			row["IS: Last Crawl Time"] = isr["lastCrawlTime"]
			row["IS: Page Fetch State"] = isr["pageFetchState"]
			row["IS: Referring URLs"] = joinLines(isr["referringUrls"])
			row["IS: robots.txt State"] = isr["robotsTxtState"]
			row["IS: Sitemaps"] = joinLines(isr["sitemap"])
			row["IS: User Canonical"] = isr["userCanonical"]
			row["IS: Verdict"] = isr["verdict"]
		}
	}

	if m.MobileUsability {
		mur := ensureKeys(section(result, "mobileUsabilityResult"), []string{"verdict"}, []string{"issues"})
		if req.JSON {
			row["MU: JSON"] = mur
		} else {
			row["MU: Issues"] = issueLines(mur["issues"], "issueType", "message")
			row["MU: Verdict"] = mur["verdict"]
		}
	}

	if m.AMP {
		ampr := ensureKeys(section(result, "ampResult"), ampKeys, []string{"issues"})
		if req.JSON {
			row["AMP: JSON"] = ampr
		} else {
			row["AMP: Index Status Verdict"] = ampr["ampIndexStatusVerdict"]
			row["AMP: URL"] = ampr["ampUrl"]
			row["AMP: Indexing State"] = ampr["indexingState"]
			row["AMP: Issues"] = issueLines(ampr["issues"], "issueMessage")
			row["AMP: Last Crawl Time"] = ampr["lastCrawlTime"]
			row["AMP: Page Fetch State"] = ampr["pageFetchState"]
			row["AMP: robots.txt State"] = ampr["robotsTxtState"]
			row["AMP: Verdict"] = ampr["verdict"]
		}
	}

	if m.RichResults {
		row["RR: JSON"] = ensureKeys(section(result, "richResultsResult"), []string{"verdict"}, []string{"detectedItems"})
	}

	return row, nil
}

func errorRow(url string, req Request, err error) table.Row {
	row := make(table.Row)
	for _, c := range req.Columns() {
		row[c] = nil
	}
	row[ColumnURL] = url
	row[ColumnError] = err.Error()
	return row
}

func section(result *gabs.Container, key string) map[string]any {
	m, ok := result.Search(key).Data().(map[string]any)
	if !ok || m == nil {
		return map[string]any{}
	}
	return m
}

func ensureKeys(m map[string]any, noneKeys, listKeys []string) map[string]any {
	for _, k := range noneKeys {
		if _, ok := m[k]; !ok {
			m[k] = nil
		}
	}
	for _, k := range listKeys {
		if _, ok := m[k]; !ok {
			m[k] = []any{}
		}
	}
	return m
}

// joinLines renders a list of strings one per line, or nil when empty.
func joinLines(v any) any {
	items, _ := v.([]any)
	lines := make([]string, 0, len(items))
	for _, it := range items {
		if s, ok := it.(string); ok {
			lines = append(lines, s)
		} else if it != nil {
			lines = append(lines, fmt.Sprint(it))
		}
	}
	if len(lines) == 0 {
		return nil
	}
	return strings.Join(lines, "\n")
}

// issueLines renders "<severity> <field>..." per issue with MISSING_*
// placeholders for absent fields.
func issueLines(v any, fields ...string) any {
	items, _ := v.([]any)
	lines := make([]string, 0, len(items))
	for _, it := range items {
		issue, _ := it.(map[string]any)
		parts := []string{stringOr(issue, "severity", "MISSING_SEVERITY")}
		for _, f := range fields {
			parts = append(parts, stringOr(issue, f, placeholder(f)))
		}
		lines = append(lines, strings.Join(parts, " "))
	}
	if len(lines) == 0 {
		return nil
	}
	return strings.Join(lines, "\n")
}

func placeholder(field string) string {
	if field == "issueType" {
		return "MISSING_TYPE"
	}
	return "MISSING_MESSAGE"
}

func stringOr(m map[string]any, key, def string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return def
}
