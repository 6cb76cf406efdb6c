package models

// Match is a single ranked hit from the inventory index.
type Match struct {
	ID       string   `json:"id"`
	Score    float64  `json:"score"`
	Metadata Metadata `json:"metadata"`
}

// Collected holds parallel, rank-ordered views of a match list: position i in every slice
// refers to the same match.
type Collected struct {
	Styles       []string `json:"styles"`
	Images       []string `json:"images"`
	Descriptions []string `json:"descriptions"`
}

// Len returns the number of collected matches.
func (c *Collected) Len() int {
	return len(c.Styles)
}

// SearchResponse is the response for a search request.
type SearchResponse struct {
	Query     string    `json:"query"`
	Mode      string    `json:"mode"`
	Weight    float64   `json:"weight"`
	Matches   []*Match  `json:"matches"`
	Collected Collected `json:"collected"`
	QueryTime int64     `json:"query_time_ms"`
}
