package utils

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
)

// Pagination holds limit/offset paging parameters.
type Pagination struct {
	Limit  int   `json:"limit"`
	Offset int   `json:"offset"`
	Total  int64 `json:"total"`
}

// GetPagination reads limit and offset from the query string. A page
// parameter is accepted as an alternative to offset.
func GetPagination(c *fiber.Ctx, defaultLimit int) Pagination {
	limit, err := strconv.Atoi(c.Query("limit"))
	if err != nil || limit < 1 {
		limit = defaultLimit
	}

	offset, err := strconv.Atoi(c.Query("offset"))
	if err != nil || offset < 0 {
		offset = 0
	}
	if page, err := strconv.Atoi(c.Query("page")); err == nil && page > 1 && c.Query("offset") == "" {
		offset = (page - 1) * limit
	}

	return Pagination{Limit: limit, Offset: offset}
}

type PaginatedResponse struct {
	Data       interface{} `json:"data"`
	Pagination Pagination  `json:"pagination"`
}

func NewPaginatedResponse(data interface{}, p Pagination, total int64) PaginatedResponse {
	p.Total = total
	return PaginatedResponse{Data: data, Pagination: p}
}
