package services

import (
	"strings"
)

const (
	defaultBlockPerPage     = 10
	defaultViolationPerPage = 25
	maxPerPage              = 100
)

// Pagination describes the page returned by a listing.
type Pagination struct {
	Total    int64 `json:"total"`
	Page     int   `json:"page"`
	PerPage  int   `json:"per_page"`
	LastPage int   `json:"last_page"`
}

func paginate(page, perPage, defaultPerPage int, total int64) Pagination {
	if perPage < 1 {
		perPage = defaultPerPage
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}
	if page < 1 {
		page = 1
	}
	last := int((total + int64(perPage) - 1) / int64(perPage))
	if last < 1 {
		last = 1
	}
	return Pagination{Total: total, Page: page, PerPage: perPage, LastPage: last}
}

func (p Pagination) offset() int {
	return (p.Page - 1) * p.PerPage
}

// orderClause builds an ORDER BY from a whitelisted column, newest first by
// default.
func orderClause(sort, direction string, allowed map[string]bool) string {
	if !allowed[sort] {
		sort = "created_at"
	}
	dir := "desc"
	if strings.EqualFold(direction, "asc") {
		dir = "asc"
	}
	return sort + " " + dir + ", id " + dir
}
