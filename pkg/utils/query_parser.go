package utils

import (
	"net/url"
	"strconv"
	"strings"

	"delivery-system/pkg/types"
)

const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// ParseFilterFromQuery extracts search/sort/filter/pagination parameters from
// a query string of the form:
//
//	?search=abc&sort[created_at]=desc&filter[status]=confirmed,preparing&limit=10&offset=0
func ParseFilterFromQuery(values url.Values) types.Filter {
	filter := types.Filter{
		Search: values.Get("search"),
		Sort:   map[string]string{},
		Filter: map[string]interface{}{},
		Limit:  DefaultLimit,
	}

	for key, vals := range values {
		if len(vals) == 0 {
			continue
		}
		if strings.HasPrefix(key, "sort[") && strings.HasSuffix(key, "]") {
			field := key[len("sort[") : len(key)-1]
			filter.Sort[field] = vals[0]
		}
		if strings.HasPrefix(key, "filter[") && strings.HasSuffix(key, "]") {
			field := key[len("filter[") : len(key)-1]
			filter.Filter[field] = vals[0]
		}
	}

	if v, err := strconv.Atoi(values.Get("limit")); err == nil && v > 0 {
		if v > MaxLimit {
			v = MaxLimit
		}
		filter.Limit = v
	}
	if v, err := strconv.Atoi(values.Get("offset")); err == nil && v >= 0 {
		filter.Offset = v
	}
	if v, err := strconv.Atoi(values.Get("page")); err == nil && v > 0 {
		filter.Page = v
		filter.Offset = (v - 1) * filter.Limit
	}
	filter.WithPagination = values.Get("withPagination") != "false"

	return filter
}
