package helpers

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

func StringToInt(s string) (int, error) {
	return strconv.Atoi(strings.TrimSpace(s))
}

// ParseIDParam reads a positive integer path parameter.
func ParseIDParam(c *gin.Context, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return uint(id), nil
}

// ParseNumberList parses "1,2,3". An empty string is an empty list.
func ParseNumberList(s string) ([]int, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var out []int
	for _, part := range strings.Split(s, ",") {
		n, err := StringToInt(part)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", part)
		}
		out = append(out, n)
	}
	return out, nil
}

// FirstNonEmpty returns the first non-blank value.
func FirstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
