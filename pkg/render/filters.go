// Copyright © 2026 OrKa Contributors - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package render

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Filter is a pure transformation applied to a resolved template value.
// The arg comes from the filter invocation, e.g. truncate:80.
type Filter func(value any, arg string) (any, error)

// builtinFilters returns the filter registry seeded at renderer
// construction.
func builtinFilters() map[string]Filter {
	return map[string]Filter{
		"length":   filterLength,
		"default":  filterDefault,
		"upper":    filterUpper,
		"lower":    filterLower,
		"tojson":   filterToJSON,
		"truncate": filterTruncate,
		"date":     filterDate,
	}
}

func filterLength(value any, _ string) (any, error) {
	switch tv := value.(type) {
	case string:
		return len(tv), nil
	case []any:
		return len(tv), nil
	case map[string]any:
		return len(tv), nil
	case nil:
		return 0, nil
	default:
		return len(stringify(value)), nil
	}
}

func filterDefault(value any, arg string) (any, error) {
	if value == nil || stringify(value) == "" {
		return arg, nil
	}
	return value, nil
}

func filterUpper(value any, _ string) (any, error) {
	return strings.ToUpper(stringify(value)), nil
}

func filterLower(value any, _ string) (any, error) {
	return strings.ToLower(stringify(value)), nil
}

func filterToJSON(value any, _ string) (any, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func filterTruncate(value any, arg string) (any, error) {
	n, err := strconv.Atoi(arg)
	if err != nil || n < 0 {
		return nil, fmt.Errorf("truncate requires a non-negative integer, got %q", arg)
	}
	s := stringify(value)
	if len(s) <= n {
		return s, nil
	}
	return s[:n] + "...", nil
}

// filterDate formats a time value. Accepts time.Time or an RFC 3339
// string; the arg is a Go reference layout (default 2006-01-02).
func filterDate(value any, arg string) (any, error) {
	layout := arg
	if layout == "" {
		layout = "2006-01-02"
	}
	switch tv := value.(type) {
	case time.Time:
		return tv.Format(layout), nil
	case string:
		t, err := time.Parse(time.RFC3339, tv)
		if err != nil {
			return nil, fmt.Errorf("not a timestamp: %q", tv)
		}
		return t.Format(layout), nil
	default:
		return nil, fmt.Errorf("date filter requires a time value")
	}
}
