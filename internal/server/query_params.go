package server

import (
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

func parseOptionalInt(value string) (*int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	parsed, err := strconv.Atoi(trimmed)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

// parsePathID reads a snowflake id from the named path parameter.
func parsePathID(c *gin.Context, name string) (snowflake.ID, error) {
	parsed, err := snowflake.ParseString(strings.TrimSpace(c.Param(name)))
	if err != nil || parsed <= 0 {
		return 0, newValidationError(name, "invalid_id", "invalid id")
	}
	return parsed, nil
}

// parsePagination reads limit and offset, clamping limit to the page maximum.
func parsePagination(c *gin.Context) (int, int, error) {
	limit, err := parseOptionalInt(c.Query("limit"))
	if err != nil || (limit != nil && *limit <= 0) {
		return 0, 0, newValidationError("limit", "invalid_limit", "limit must be a positive integer")
	}
	offset, err := parseOptionalInt(c.Query("offset"))
	if err != nil || (offset != nil && *offset < 0) {
		return 0, 0, newValidationError("offset", "invalid_offset", "offset must not be negative")
	}

	l := defaultPageLimit
	if limit != nil {
		l = *limit
	}
	if l > maxPageLimit {
		l = maxPageLimit
	}
	o := 0
	if offset != nil {
		o = *offset
	}
	return l, o, nil
}
