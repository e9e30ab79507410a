package pagination

const (
	// DefaultLimit is the standard page size when a limit is not provided.
	DefaultLimit = 10
	// MaxLimit caps how many rows any page can request.
	MaxLimit = 50
)

// Params holds offset pagination inputs from controllers or services. Page is 1-based.
type Params struct {
	Page  int
	Limit int
}

// Meta describes the page returned alongside a list response.
type Meta struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
}

// NormalizeLimit enforces the configured default and maximum limits.
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// Normalize clamps the page to 1 and the limit to [1, MaxLimit].
func (p Params) Normalize() Params {
	if p.Page < 1 {
		p.Page = 1
	}
	p.Limit = NormalizeLimit(p.Limit)
	return p
}

// Offset returns the number of rows to skip for the normalized page.
func (p Params) Offset() int {
	n := p.Normalize()
	return (n.Page - 1) * n.Limit
}

// NewMeta builds page metadata for a total row count.
func NewMeta(p Params, total int64) Meta {
	n := p.Normalize()
	pages := int((total + int64(n.Limit) - 1) / int64(n.Limit))
	return Meta{Page: n.Page, Limit: n.Limit, Total: total, TotalPages: pages}
}
