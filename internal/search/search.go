package search

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultBoard ResultType = "board"
	ResultCard  ResultType = "card"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type    ResultType `json:"type"`
	ID      int64      `json:"id"`
	Title   string     `json:"title"`
	Snippet string     `json:"snippet"`
	BoardID int64      `json:"board_id"`
	ListID  int64      `json:"list_id,omitempty"`
}

// Query describes a search request. Unless All is set, hits are limited
// to BoardIDs.
type Query struct {
	Text       string
	FilterType ResultType // empty = all types
	BoardIDs   []int64
	All        bool
	Limit      int
	Offset     int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// BoardRecord is the data indexed for a board.
type BoardRecord struct {
	ID          int64  `json:"id"`
	BoardID     int64  `json:"boardId"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// CardRecord is the data indexed for a card.
type CardRecord struct {
	ID          int64  `json:"id"`
	BoardID     int64  `json:"boardId"`
	ListID      int64  `json:"listId"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (q Query) limit() int {
	if q.Limit <= 0 || q.Limit > 100 {
		return 20
	}
	return q.Limit
}

func (q Query) offset() int {
	if q.Offset < 0 {
		return 0
	}
	return q.Offset
}

// scoped reports whether the query can match anything at all.
func (q Query) scoped() bool {
	return q.All || len(q.BoardIDs) > 0
}
