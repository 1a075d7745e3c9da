// Package models holds the types shared by every service: backend ids and
// the list query of the dashboard tables.
package models

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/event-admin-services/common/pagination"
)

// ID is a backend identifier. The backend answers numeric or string ids
// depending on the resource; both decode into the same string form.
type ID string

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string { return string(id) }

// ListQuery is the search and page state of a dashboard table
type ListQuery struct {
	Search   string
	Status   string
	Page     int
	PageSize int
}

// ParseListQuery reads search, status, page and pageSize query parameters
func ParseListQuery(query map[string]string, defaultSize int) ListQuery {
	page, size := pagination.ParseParams(query, defaultSize)
	return ListQuery{
		Search:   strings.TrimSpace(query["search"]),
		Status:   strings.TrimSpace(query["status"]),
		Page:     page,
		PageSize: size,
	}
}

// Matches reports whether any of fields contains the search term (case-insensitive)
func (q ListQuery) Matches(fields ...string) bool {
	if q.Search == "" {
		return true
	}
	term := strings.ToLower(q.Search)
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), term) {
			return true
		}
	}
	return false
}

// MatchesStatus reports whether status passes the status filter
func (q ListQuery) MatchesStatus(status string) bool {
	return q.Status == "" || strings.EqualFold(q.Status, status)
}

// Filter keeps the items accepted by keep
func Filter[T any](items []T, keep func(T) bool) []T {
	out := make([]T, 0, len(items))
	for _, it := range items {
		if keep(it) {
			out = append(out, it)
		}
	}
	return out
}
