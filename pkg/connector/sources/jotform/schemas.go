package jotform

import (
	"github.com/ajitpratap0/tap-jotform/pkg/schema"
)

var (
	createdAt = schema.Prop("created_at", schema.DateTime())
	updatedAt = schema.Prop("updated_at", schema.DateTime())
)

var formsSchema = schema.New(
	schema.Prop("id", schema.String()).Describe("The Form ID"),
	schema.Prop("username", schema.String()),
	schema.Prop("title", schema.String()),
	schema.Prop("height", schema.Integer()),
	schema.Prop("url", schema.String()),
	schema.Prop("status", schema.String().Enum("ENABLED", "DISABLED", "DELETED")),
	createdAt,
	updatedAt,
	schema.Prop("last_submission", schema.DateTime()),
	schema.Prop("new", schema.Integer()).Describe("Total number of unread submissions"),
	schema.Prop("count", schema.Integer()).Describe("Total number of submissions"),
	schema.Prop("type", schema.String().Enum("LEGACY", "CARD")),
	schema.Prop("favorite", schema.Integer()),
	schema.Prop("archived", schema.Integer()),
)

var questionsSchema = schema.New(
	schema.Prop("qid", schema.String()).MarkRequired().Describe("Question ID"),
	schema.Prop("form_id", schema.String()).MarkRequired().Describe("Form ID"),
	schema.Prop("type", schema.String()).MarkRequired().Describe("Question type such as textbox or dropdown"),
	schema.Prop("order", schema.Integer()).MarkRequired().Describe("Question order in the form"),
	schema.Prop("question", schema.Object()).MarkRequired().Describe("Question data"),
)

var submissionsSchema = schema.New(
	schema.Prop("id", schema.String()).Describe("The Submission ID"),
	schema.Prop("form_id", schema.String()),
	schema.Prop("ip", schema.String()),
	schema.Prop("flag", schema.Integer()),
	schema.Prop("notes", schema.String()),
	createdAt,
	updatedAt,
	schema.Prop("status", schema.String().Enum("ACTIVE", "OVERQUOTA", "DELETED", "ARCHIVED", "CUSTOM")),
	schema.Prop("new", schema.Integer()).Describe("Total number of unread submissions"),
	schema.Prop("answers", schema.ArrayOf(schema.Object(
		schema.Prop("qid", schema.String()).MarkRequired(),
		schema.Prop("answer", schema.String()).MarkDeprecated(),
		schema.Prop("answer_object", schema.Any()).Describe("The answer object"),
	))),
)

var reportsSchema = schema.New(
	schema.Prop("id", schema.String()).Describe("The Report ID"),
	schema.Prop("form_id", schema.String()),
	schema.Prop("title", schema.String()),
	createdAt,
	updatedAt,
	schema.Prop("fields", schema.ArrayOf(schema.String())),
	schema.Prop("list_type", schema.String().Enum("excel", "csv", "grid", "table", "calendar", "rss", "visual")),
	schema.Prop("status", schema.String().Enum("ENABLED", "DELETED")),
	schema.Prop("url", schema.String()),
	schema.Prop("isProtected", schema.Boolean()),
	schema.Prop("type", schema.String()),
	schema.Prop("form_title", schema.String()),
	schema.Prop("form_count", schema.Integer()),
	schema.Prop("form_url", schema.String()),
	schema.Prop("last_submission", schema.DateTime()),
)

var userHistorySchema = schema.New(
	schema.Prop("type", schema.String().Enum(
		"userCreation",
		"userLogin",
		"userLogout",
		"formCreation",
		"formUpdate",
		"formDelete",
		"formPurge",
		"lastUpdate",
		"passwordChanged",
		"portalCreated",
		"portalUpdated",
		"reportCreated",
		"reportUpdated",
		"submissionDeleteAll",
	)),
	schema.Prop("username", schema.String()),
	schema.Prop("ip", schema.String()),
	schema.Prop("server", schema.String()),
	schema.Prop("timestamp", schema.Integer()),
	schema.Prop("email", schema.String()),
	schema.Prop("parent", schema.String()),
	schema.Prop("subuser", schema.String()),
)

// folderFormSchema is a form embedded in a folder. Status is not
// constrained here.
var folderFormSchema = schema.Object(
	schema.Prop("id", schema.String()),
	schema.Prop("username", schema.String()),
	schema.Prop("title", schema.String()),
	schema.Prop("height", schema.Integer()),
	schema.Prop("status", schema.String()),
	createdAt,
	updatedAt,
	schema.Prop("last_submission", schema.DateTime()),
	schema.Prop("new", schema.Integer()),
	schema.Prop("count", schema.Integer()),
	schema.Prop("type", schema.String()),
	schema.Prop("favorite", schema.Integer()),
	schema.Prop("archived", schema.Integer()),
	schema.Prop("url", schema.String()),
)

var foldersSchema = schema.New(
	schema.Prop("id", schema.String()),
	schema.Prop("path", schema.String()),
	schema.Prop("owner", schema.String()),
	schema.Prop("name", schema.String()),
	schema.Prop("parent", schema.String()),
	schema.Prop("color", schema.String()),
	schema.Prop("forms", schema.MapOf(folderFormSchema)),
	schema.Prop("subfolders", schema.ArrayOf(schema.Object())),
)
