// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package host

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/jsonc"

	"github.com/bureau-foundation/msgbridge/protocol"
)

// ParseBatchQueries converts the JSON query strings of a
// loadBatchMessages request into protocol queries. Each string is an
// object {"topic", "limit", "before", "after"}; comments and trailing
// commas are tolerated. The numeric fields may be numbers or numeric
// strings, with before and after in unix milliseconds. A value that
// does not parse is logged and left unset; zero and negative values
// mean unset. A query without a topic is an error.
func ParseBatchQueries(queries []string, logger *slog.Logger) ([]protocol.BatchQuery, error) {
	result := make([]protocol.BatchQuery, 0, len(queries))
	for index, query := range queries {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(jsonc.ToJSON([]byte(query)), &fields); err != nil {
			return nil, fmt.Errorf("batch query %d: %w", index, err)
		}

		var topic string
		if raw, ok := fields["topic"]; ok {
			json.Unmarshal(raw, &topic)
		}
		if topic == "" {
			return nil, fmt.Errorf("batch query %d: topic is required", index)
		}

		page := protocol.Pagination{}
		if limit, ok := batchNumber(fields, "limit", topic, logger); ok && limit > 0 {
			page.Limit = int(limit)
		}
		if before, ok := batchNumber(fields, "before", topic, logger); ok && before > 0 {
			page.Before = time.UnixMilli(before)
		}
		if after, ok := batchNumber(fields, "after", topic, logger); ok && after > 0 {
			page.After = time.UnixMilli(after)
		}
		result = append(result, protocol.BatchQuery{Topic: topic, Page: page})
	}
	return result, nil
}

// batchNumber reads an integer field given as a JSON number or a
// numeric string. Absent and null fields are unset without logging.
func batchNumber(fields map[string]json.RawMessage, name, topic string, logger *slog.Logger) (int64, bool) {
	raw, ok := fields[name]
	if !ok || string(raw) == "null" {
		return 0, false
	}
	text := strings.Trim(string(raw), `"`)
	value, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		logger.Warn("ignoring invalid pagination value", "topic", topic, "field", name, "value", string(raw))
		return 0, false
	}
	return value, true
}
