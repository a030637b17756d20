package shared

import (
	"net/http"
	"strconv"
)

// Page is a limit/offset window over a listing.
type Page struct {
	Limit  int
	Offset int
}

// ParsePagination reads limit and offset from the query. Missing or bad
// values fall back to defaultLimit and 0; limit is capped at maxLimit.
func ParsePagination(r *http.Request, defaultLimit, maxLimit int) Page {
	q := r.URL.Query()
	page := Page{Limit: defaultLimit}
	if n, err := strconv.Atoi(q.Get("limit")); err == nil && n > 0 {
		page.Limit = min(n, maxLimit)
	}
	if n, err := strconv.Atoi(q.Get("offset")); err == nil && n > 0 {
		page.Offset = n
	}
	return page
}

// SetTotalCount reports the unpaged size of a listing.
func SetTotalCount(w http.ResponseWriter, total int) {
	w.Header().Set("X-Total-Count", strconv.Itoa(total))
}
