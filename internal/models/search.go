package models

// SearchFilter narrows a search query to records whose property matches one of values.
type SearchFilter struct {
	Property string   `json:"property"`
	Values   []string `json:"values"`
}

// SearchInput is one query sent to the search backend.
type SearchInput struct {
	Keywords     []string       `json:"keywords"`
	Filters      []SearchFilter `json:"filters"`
	RelatedKinds []string       `json:"relatedKinds,omitempty"`
	Limit        int            `json:"limit,omitempty"`
}

// RelatedGroup holds the related records of one kind.
type RelatedGroup struct {
	Kind  string              `json:"kind"`
	Items []RawResourceRecord `json:"items"`
}

// SearchResult is one entry of the backend's searchResult array.
type SearchResult struct {
	Items   []RawResourceRecord `json:"items"`
	Related []RelatedGroup      `json:"related"`
}

// SearchResponse is the decoded backend payload.
type SearchResponse struct {
	Data struct {
		SearchResult []SearchResult `json:"searchResult"`
	} `json:"data"`
	Errors []SearchError `json:"errors,omitempty"`
}

// SearchError is a GraphQL error entry.
type SearchError struct {
	Message string `json:"message"`
}
