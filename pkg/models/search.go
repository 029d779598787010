package models

// SearchQuery is free text ranked against one rung of every trace in a
// workspace. Intent, when set, keeps only traces with an event of that
// intent.
type SearchQuery struct {
	Text   string `json:"text"`
	TopK   int    `json:"top_k,omitempty"`
	Intent string `json:"intent,omitempty"`
}

// SearchHit is one trace matching a query.
type SearchHit struct {
	Rank    int      `json:"rank"`
	TraceID string   `json:"trace_id"`
	Score   float64  `json:"score"`
	Intent  string   `json:"intent,omitempty"`
	Matched []string `json:"matched,omitempty"`
}

// SearchResult is the ranked answer to a SearchQuery. Searched counts the
// traces that survived the intent filter and had text at the rung.
type SearchResult struct {
	Query    string      `json:"query"`
	Rung     Rung        `json:"rung"`
	Intent   string      `json:"intent,omitempty"`
	Searched int         `json:"searched"`
	Hits     []SearchHit `json:"hits"`
}
