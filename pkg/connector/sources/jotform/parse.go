package jotform

import (
	"bytes"
	"strconv"

	"github.com/ajitpratap0/tap-jotform/pkg/errors"
	"github.com/ajitpratap0/tap-jotform/pkg/json"
)

// parseRecords reads list content. Each array element is a row; an object
// is a single row.
func parseRecords(content json.RawMessage) ([]map[string]interface{}, error) {
	var v interface{}
	if err := json.UnmarshalUseNumber(content, &v); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to decode content")
	}

	switch t := v.(type) {
	case []interface{}:
		rows := make([]map[string]interface{}, 0, len(t))
		for i, item := range t {
			row, ok := item.(map[string]interface{})
			if !ok {
				return nil, errors.Newf(errors.ErrorTypeData, "content[%d] is %T, not an object", i, item)
			}
			rows = append(rows, row)
		}
		return rows, nil
	case map[string]interface{}:
		return []map[string]interface{}{t}, nil
	default:
		return nil, errors.Newf(errors.ErrorTypeData, "content is %T, not an array or object", v)
	}
}

// rawAnswersKey carries the undecoded answer values of a submission from
// parseSubmissions to transformSubmission.
const rawAnswersKey = "\x00answers"

// parseSubmissions reads submission rows like parseRecords and also keeps
// each answer value as raw JSON, so its text form follows the key order the
// API sent.
func parseSubmissions(content json.RawMessage) ([]map[string]interface{}, error) {
	rows, err := parseRecords(content)
	if err != nil {
		return nil, err
	}

	type rawSubmission struct {
		Answers json.RawMessage `json:"answers"`
	}
	var raws []rawSubmission
	if trimmed := bytes.TrimSpace(content); len(trimmed) > 0 && trimmed[0] == '{' {
		var one rawSubmission
		if err := json.Unmarshal(trimmed, &one); err != nil {
			return rows, nil
		}
		raws = []rawSubmission{one}
	} else if err := json.Unmarshal(trimmed, &raws); err != nil {
		return rows, nil
	}
	if len(raws) != len(rows) {
		return rows, nil
	}

	for i, raw := range raws {
		if answers := rawAnswerValues(raw.Answers); len(answers) > 0 {
			rows[i][rawAnswersKey] = answers
		}
	}
	return rows, nil
}

// rawAnswerValues maps question ids to the raw "answer" value of each entry.
// Shapes keyedObjects rejects yield nil and are reported by the transform.
func rawAnswerValues(raw json.RawMessage) map[string]json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil
	}
	out := make(map[string]json.RawMessage)
	switch trimmed[0] {
	case '{':
		var entries map[string]map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &entries); err != nil {
			return nil
		}
		for qid, entry := range entries {
			if v, ok := entry["answer"]; ok {
				out[qid] = v
			}
		}
	case '[':
		var entries []map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &entries); err != nil {
			return nil
		}
		for i, entry := range entries {
			if v, ok := entry["answer"]; ok {
				out[strconv.Itoa(i)] = v
			}
		}
	}
	return out
}

// parseQuestions turns the question map keyed by question id into rows
// ordered by id.
func parseQuestions(content json.RawMessage) ([]map[string]interface{}, error) {
	var v interface{}
	if err := json.UnmarshalUseNumber(content, &v); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to decode questions")
	}

	questions, err := keyedObjects(v)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "invalid questions content")
	}

	rows := make([]map[string]interface{}, 0, len(questions))
	for _, qid := range sortedIDs(questions) {
		q := questions[qid]
		for _, key := range []string{"type", "order"} {
			if _, ok := q[key]; !ok {
				return nil, errors.Newf(errors.ErrorTypeData, "question %s has no %s", qid, key).
					WithDetail("qid", qid)
			}
		}
		rows = append(rows, map[string]interface{}{
			"qid":      qid,
			"type":     q["type"],
			"order":    q["order"],
			"question": q,
		})
	}
	return rows, nil
}
