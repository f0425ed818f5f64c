package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseError explains why a raw record was rejected. Carrying the field and
// reason (rather than returning a bare nil) lets callers count drops by cause
// without re-deriving the failure.
type ParseError struct {
	Field  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %s", e.Field, e.Reason)
}

func reject(field, reason string) error {
	return &ParseError{Field: field, Reason: reason}
}

// ParseEmission decodes one untrusted record into an Emission. It never
// panics; any structurally invalid input yields a ParseError so batch loads
// can keep the valid subset. Validation is asymmetric: a missing or empty
// required field rejects the whole record, while a malformed nested scope or
// progress field is silently dropped and the record kept.
func ParseEmission(raw any) (Emission, error) {
	obj, ok := raw.(map[string]any)
	if !ok {
		return Emission{}, reject("record", "not an object")
	}

	var e Emission
	for _, f := range []struct {
		key string
		dst *string
	}{
		{"id", &e.ID},
		{"source_type", &e.SourceType},
		{"source_id", &e.SourceID},
		{"summary", &e.Summary},
	} {
		v := stringField(obj, f.key)
		if v == "" {
			return Emission{}, reject(f.key, "missing or empty")
		}
		*f.dst = v
	}

	kind := stringField(obj, "kind")
	if kind == "" {
		return Emission{}, reject("kind", "missing or empty")
	}
	e.Kind = Kind(kind)

	ts, ok := timeField(obj["timestamp"])
	if !ok {
		return Emission{}, reject("timestamp", "missing or unparseable")
	}
	e.Timestamp = ts

	e.Detail = stringField(obj, "detail")
	e.Scope = parseScope(obj["scope"])
	e.Progress = parseProgress(obj["progress"])
	return e, nil
}

// ParseEmissions decodes a batch, keeping the valid subset in input order.
// The second return value maps rejection reasons to drop counts.
func ParseEmissions(raws []any) ([]Emission, map[string]int) {
	out := make([]Emission, 0, len(raws))
	var dropped map[string]int
	for _, raw := range raws {
		e, err := ParseEmission(raw)
		if err != nil {
			if dropped == nil {
				dropped = make(map[string]int)
			}
			dropped[dropReason(err)]++
			continue
		}
		out = append(out, e)
	}
	return out, dropped
}

// ParseNotification decodes one untrusted server-shaped notification record.
// The server emits camelCase keys; producers that predate the rename still
// send snake_case, so both spellings are accepted per field.
func ParseNotification(raw any) (Notification, error) {
	obj, ok := raw.(map[string]any)
	if !ok {
		return Notification{}, reject("record", "not an object")
	}

	var n Notification
	if n.ID = stringField(obj, "id"); n.ID == "" {
		return Notification{}, reject("id", "missing or empty")
	}
	n.Type = NotificationType(stringField(obj, "type"))
	if !ValidNotificationType(n.Type) {
		return Notification{}, reject("type", "unrecognized")
	}
	if n.Title = stringField(obj, "title"); n.Title == "" {
		return Notification{}, reject("title", "missing or empty")
	}
	if n.Message = stringField(obj, "message"); n.Message == "" {
		return Notification{}, reject("message", "missing or empty")
	}
	created, ok := timeField(firstOf(obj, "created_at", "createdAt"))
	if !ok {
		return Notification{}, reject("created_at", "missing or unparseable")
	}
	n.CreatedAt = created

	n.Read, _ = firstOf(obj, "read").(bool)
	n.SourceURL = stringFieldAny(obj, "source_url", "sourceUrl")
	n.SourceID = stringFieldAny(obj, "source_id", "sourceId")
	n.SourceType = stringFieldAny(obj, "source_type", "sourceType")
	n.ActorName = stringFieldAny(obj, "actor_name", "actorName")
	n.ActorAvatar = stringFieldAny(obj, "actor_avatar", "actorAvatar")
	return n, nil
}

// ParseNotifications decodes a batch, keeping the valid subset in input order.
func ParseNotifications(raws []any) ([]Notification, map[string]int) {
	out := make([]Notification, 0, len(raws))
	var dropped map[string]int
	for _, raw := range raws {
		n, err := ParseNotification(raw)
		if err != nil {
			if dropped == nil {
				dropped = make(map[string]int)
			}
			dropped[dropReason(err)]++
			continue
		}
		out = append(out, n)
	}
	return out, dropped
}

// dropReason extracts a low-cardinality label from a parse failure, suitable
// as a metric attribute.
func dropReason(err error) string {
	if pe, ok := err.(*ParseError); ok {
		return pe.Field
	}
	return "unknown"
}

func parseScope(raw any) Scope {
	obj, ok := raw.(map[string]any)
	if !ok {
		return Scope{}
	}
	s := Scope{
		ProjectID: stringField(obj, "project_id"),
		IssueID:   stringField(obj, "issue_id"),
	}
	// A malformed issue_number drops only itself.
	if n, ok := intField(obj["issue_number"]); ok && n > 0 {
		s.IssueNumber = n
	}
	return s
}

func parseProgress(raw any) *Progress {
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil
	}
	current, okC := intField(obj["current"])
	total, okT := intField(obj["total"])
	if !okC || !okT || total <= 0 || current < 0 || current > total {
		return nil
	}
	return &Progress{
		Current: current,
		Total:   total,
		Unit:    stringField(obj, "unit"),
	}
}

// stringField returns the trimmed string value for key, or "" when the value
// is absent, not a string, or whitespace-only. Empty and absent are the same
// thing for every string field in this model.
func stringField(obj map[string]any, key string) string {
	v, _ := obj[key].(string)
	return strings.TrimSpace(v)
}

func stringFieldAny(obj map[string]any, keys ...string) string {
	for _, k := range keys {
		if v := stringField(obj, k); v != "" {
			return v
		}
	}
	return ""
}

func firstOf(obj map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := obj[k]; ok {
			return v
		}
	}
	return nil
}

// intField coerces a JSON value into an int. JSON numbers arrive as float64;
// numeric-looking strings are accepted too. Fractional values are rejected
// rather than rounded.
func intField(raw any) (int, bool) {
	switch v := raw.(type) {
	case float64:
		n := int(v)
		if float64(n) != v {
			return 0, false
		}
		return n, true
	case int:
		return v, true
	case int64:
		return int(v), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

// timestampLayouts are tried in order after the RFC 3339 forms. Layouts
// without a zone are interpreted as UTC.
var timestampLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// timeField coerces a JSON value into a UTC time. Strings are tried against
// RFC 3339 and the bare layouts above; numbers are Unix epoch seconds, or
// milliseconds when the magnitude says so.
func timeField(raw any) (time.Time, bool) {
	switch v := raw.(type) {
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return time.Time{}, false
		}
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return t.UTC(), true
		}
		for _, layout := range timestampLayouts {
			if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
				return t, true
			}
		}
		return time.Time{}, false
	case float64:
		if v <= 0 {
			return time.Time{}, false
		}
		// Epoch milliseconds start being plausible around 2001-09 in
		// millisecond units; anything this large cannot be seconds.
		if v >= 1e12 {
			return time.UnixMilli(int64(v)).UTC(), true
		}
		return time.Unix(int64(v), 0).UTC(), true
	case time.Time:
		if v.IsZero() {
			return time.Time{}, false
		}
		return v.UTC(), true
	}
	return time.Time{}, false
}
