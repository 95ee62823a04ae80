package jotform

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/ajitpratap0/tap-jotform/pkg/connector/core"
	"github.com/ajitpratap0/tap-jotform/pkg/errors"
	"github.com/ajitpratap0/tap-jotform/pkg/json"
)

// Integer fields per entity.
var (
	formIntegerFields       = []string{"height", "new", "count", "favorite", "archived"}
	questionIntegerFields   = []string{"order"}
	submissionIntegerFields = []string{"flag", "new"}
	reportIntegerFields     = []string{"form_count"}
	historyIntegerFields    = []string{"timestamp"}
	folderFormIntegerFields = []string{"new", "count", "favorite", "archived", "height"}
)

// coerceIntegers normalizes fields in row: empty or absent becomes nil,
// anything else must parse as an integer.
func coerceIntegers(stream string, row map[string]interface{}, fields []string) error {
	for _, field := range fields {
		v, err := toInteger(row[field])
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeData, "integer field could not be parsed").
				WithDetail("stream", stream).
				WithDetail("field", field).
				WithDetail("value", row[field])
		}
		row[field] = v
	}
	return nil
}

// truncInt64 drops the fraction of f; values outside the int64 range fail.
func truncInt64(f float64) (interface{}, error) {
	f = math.Trunc(f)
	if math.IsNaN(f) || f < math.MinInt64 || f >= -math.MinInt64 {
		return nil, errors.Newf(errors.ErrorTypeData, "integer %g is out of range", f)
	}
	return int64(f), nil
}

func toInteger(v interface{}) (interface{}, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			if t == "" {
				return nil, nil
			}
			return nil, errors.Newf(errors.ErrorTypeData, "invalid integer %q", t)
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, err
		}
		return n, nil
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n, nil
		}
		f, err := t.Float64()
		if err != nil {
			return nil, err
		}
		return truncInt64(f)
	case float64:
		return truncInt64(t)
	case int64:
		return t, nil
	case int:
		return int64(t), nil
	case bool:
		if t {
			return int64(1), nil
		}
		return int64(0), nil
	default:
		return nil, errors.Newf(errors.ErrorTypeData, "cannot convert %T to integer", v)
	}
}

// isFalsy treats nil, "" and absent values as unset.
func isFalsy(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	}
	return false
}

// fallbackUpdatedAt sets updated_at to created_at when updated_at is unset.
func fallbackUpdatedAt(row map[string]interface{}) {
	if isFalsy(row["updated_at"]) {
		row["updated_at"] = row["created_at"]
	}
}

func transformForm(row map[string]interface{}) (map[string]interface{}, error) {
	if err := coerceIntegers(StreamForms, row, formIntegerFields); err != nil {
		return nil, err
	}
	fallbackUpdatedAt(row)
	return row, nil
}

func transformQuestion(row map[string]interface{}) (map[string]interface{}, error) {
	if err := coerceIntegers(StreamQuestions, row, questionIntegerFields); err != nil {
		return nil, err
	}
	return row, nil
}

// transformSubmission turns the answers map into a list ordered by
// question id. Each entry keeps its own fields plus qid; answer holds the
// JSON text of the raw answer and answer_object the raw value.
func transformSubmission(row map[string]interface{}) (map[string]interface{}, error) {
	if err := coerceIntegers(StreamSubmissions, row, submissionIntegerFields); err != nil {
		return nil, err
	}
	fallbackUpdatedAt(row)

	raw, _ := row[rawAnswersKey].(map[string]json.RawMessage)
	delete(row, rawAnswersKey)

	entries, err := keyedObjects(row["answers"])
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "invalid answers").
			WithDetail("stream", StreamSubmissions).
			WithDetail("id", row["id"])
	}

	answers := make([]interface{}, 0, len(entries))
	for _, qid := range sortedIDs(entries) {
		entry := entries[qid]
		out := make(map[string]interface{}, len(entry)+2)
		for k, v := range entry {
			out[k] = v
		}

		answer := entry["answer"]
		if answer == nil {
			out["answer"] = nil
		} else {
			encoded, err := encodeAnswer(raw[qid], answer)
			if err != nil {
				return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to encode answer").
					WithDetail("qid", qid)
			}
			out["answer"] = encoded
		}
		out["answer_object"] = answer
		out["qid"] = qid
		answers = append(answers, out)
	}
	row["answers"] = answers
	return row, nil
}

// encodeAnswer renders an answer as JSON text with ASCII escapes, from its
// raw bytes when the parser kept them.
func encodeAnswer(raw json.RawMessage, value interface{}) (string, error) {
	if len(raw) == 0 {
		var err error
		if raw, err = json.Marshal(value); err != nil {
			return "", err
		}
	}
	return json.ReencodeASCII(raw)
}

// transformReport splits the comma separated fields string. An empty or
// missing value yields a single empty string.
func transformReport(row map[string]interface{}) (map[string]interface{}, error) {
	if err := coerceIntegers(StreamReports, row, reportIntegerFields); err != nil {
		return nil, err
	}

	var fields string
	switch v := row["fields"].(type) {
	case nil:
	case string:
		fields = v
	default:
		return nil, errors.Newf(errors.ErrorTypeData, "reports: fields must be a string, got %T", v).
			WithDetail("id", row["id"])
	}

	parts := strings.Split(fields, ",")
	list := make([]interface{}, len(parts))
	for i, p := range parts {
		list[i] = p
	}
	row["fields"] = list
	return row, nil
}

func transformHistory(row map[string]interface{}) (map[string]interface{}, error) {
	if err := coerceIntegers(StreamUserHistory, row, historyIntegerFields); err != nil {
		return nil, err
	}
	return row, nil
}

// transformFolder normalizes every embedded form like a top-level form.
func transformFolder(row map[string]interface{}) (map[string]interface{}, error) {
	forms, err := keyedObjects(row["forms"])
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "invalid folder forms").
			WithDetail("stream", StreamFolders).
			WithDetail("id", row["id"])
	}

	out := make(map[string]interface{}, len(forms))
	for id, form := range forms {
		if err := coerceIntegers(StreamFolders, form, folderFormIntegerFields); err != nil {
			return nil, err
		}
		fallbackUpdatedAt(form)
		out[id] = form
	}
	row["forms"] = out
	return row, nil
}

// keyedObjects reads a map of objects keyed by id. The API encodes an empty
// map as [], and a map with keys 0..n-1 as a list, so lists are accepted
// and keyed by index.
func keyedObjects(v interface{}) (map[string]map[string]interface{}, error) {
	out := make(map[string]map[string]interface{})
	switch t := v.(type) {
	case nil:
	case map[string]interface{}:
		for k, item := range t {
			obj, ok := item.(map[string]interface{})
			if !ok {
				return nil, errors.Newf(errors.ErrorTypeData, "entry %q is %T, not an object", k, item)
			}
			out[k] = obj
		}
	case []interface{}:
		for i, item := range t {
			obj, ok := item.(map[string]interface{})
			if !ok {
				return nil, errors.Newf(errors.ErrorTypeData, "entry %d is %T, not an object", i, item)
			}
			out[strconv.Itoa(i)] = obj
		}
	default:
		return nil, errors.Newf(errors.ErrorTypeData, "expected an object, got %T", v)
	}
	return out, nil
}

// sortedIDs orders ids numerically when they are numbers, then by text.
func sortedIDs[T any](m map[string]T) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, errA := strconv.ParseInt(ids[i], 10, 64)
		b, errB := strconv.ParseInt(ids[j], 10, 64)
		switch {
		case errA == nil && errB == nil:
			return a < b
		case errA == nil:
			return true
		case errB == nil:
			return false
		default:
			return ids[i] < ids[j]
		}
	})
	return ids
}

// formContext hands the form id to child streams.
func formContext(record map[string]interface{}) (core.Context, error) {
	id, ok := record["id"].(string)
	if !ok || id == "" {
		return nil, errors.New(errors.ErrorTypeData, "form record has no id").
			WithDetail("stream", StreamForms)
	}
	return core.Context{"form_id": id}, nil
}
