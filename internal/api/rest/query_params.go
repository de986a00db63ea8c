package rest

import (
	"fmt"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/element-scan/holders-indexer/internal/holders"
)

// listParams holds the parsed query parameters for the holders list endpoint
type listParams struct {
	Page     int
	PageSize int
	Refresh  bool
}

// parseListParams parses and validates pagination query parameters
func parseListParams(c *gin.Context) (listParams, error) {
	params := listParams{
		Page:     1,
		PageSize: holders.DefaultPageSize,
	}

	if raw := c.Query("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil || page < 1 {
			return params, fmt.Errorf("page must be a positive integer, got %q", raw)
		}
		params.Page = page
	}

	if raw := c.Query("page_size"); raw != "" {
		pageSize, err := strconv.Atoi(raw)
		if err != nil || pageSize < 1 {
			return params, fmt.Errorf("page_size must be a positive integer, got %q", raw)
		}
		if pageSize > holders.MaxPageSize {
			return params, fmt.Errorf("page_size must be at most %d, got %d", holders.MaxPageSize, pageSize)
		}
		params.PageSize = pageSize
	}

	if raw := c.Query("refresh"); raw != "" {
		refresh, err := strconv.ParseBool(raw)
		if err != nil {
			return params, fmt.Errorf("refresh must be a boolean, got %q", raw)
		}
		params.Refresh = refresh
	}

	return params, nil
}
