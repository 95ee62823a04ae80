package jotform

import (
	"net/url"

	"github.com/ajitpratap0/tap-jotform/pkg/connector/core"
	"github.com/ajitpratap0/tap-jotform/pkg/schema"
)

// Stream names.
const (
	StreamForms       = "forms"
	StreamQuestions   = "questions"
	StreamSubmissions = "submissions"
	StreamReports     = "reports"
	StreamUserHistory = "user_history"
	StreamFolders     = "folders"
)

// ReplicationKey is the bookmark field of the incremental streams.
const ReplicationKey = "updated_at"

// AllStreams returns every stream definition in sync order.
func AllStreams() []*core.Stream {
	return []*core.Stream{
		{
			Name:           StreamForms,
			Path:           "/user/forms",
			PrimaryKeys:    []string{"id"},
			ReplicationKey: ReplicationKey,
			Paginated:      true,
			Schema:         formsSchema,
			Parse:          parseRecords,
			Transform:      transformForm,
			ChildContext:   formContext,
		},
		{
			Name:        StreamQuestions,
			Path:        "/form/{form_id}/questions",
			PrimaryKeys: []string{"form_id", "qid"},
			Parent:      StreamForms,
			Schema:      questionsSchema,
			Parse:       parseQuestions,
			Transform:   transformQuestion,
		},
		{
			Name:           StreamSubmissions,
			Path:           "/user/submissions",
			PrimaryKeys:    []string{"id"},
			ReplicationKey: ReplicationKey,
			Paginated:      true,
			Schema:         submissionsSchema,
			Parse:          parseSubmissions,
			Transform:      transformSubmission,
		},
		{
			Name:        StreamReports,
			Path:        "/user/reports",
			PrimaryKeys: []string{"id"},
			Schema:      reportsSchema,
			Parse:       parseRecords,
			Transform:   transformReport,
		},
		{
			Name:        StreamUserHistory,
			Path:        "/user/history",
			PrimaryKeys: []string{"username", "timestamp", "type"},
			Schema:      userHistorySchema,
			FixedParams: url.Values{
				"action": {"all"},
				"date":   {"lastWeek"},
				"sortBy": {"ASC"},
			},
			Parse:     parseRecords,
			Transform: transformHistory,
		},
		{
			Name:        StreamFolders,
			Path:        "/user/folders",
			PrimaryKeys: []string{"id"},
			Deprecated:  true,
			Schema:      foldersSchema,
			Conformance: schema.ConformRootOnly,
			Parse:       parseRecords,
			Transform:   transformFolder,
		},
	}
}

// Streams returns the streams in sync order, dropping deprecated ones
// unless includeDeprecated is set.
func Streams(includeDeprecated bool) []*core.Stream {
	all := AllStreams()
	out := make([]*core.Stream, 0, len(all))
	for _, s := range all {
		if s.Deprecated && !includeDeprecated {
			continue
		}
		out = append(out, s)
	}
	return out
}
