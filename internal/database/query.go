package database

import "strings"

// column is an SQL identifier. Only package constants are used as columns;
// values always travel as bound parameters.
type column string

const (
	colProjectID     column = "project_id"
	colComponentID   column = "component_id"
	colProblemID     column = "problem_id"
	colFileHash      column = "file_hash"
	colFileType      column = "file_type"
	colAttachmentID  column = "attachment_id"
	colUserReviewed  column = "user_reviewed"
	colUserDesc      column = "user_description"
	colTags          column = "tags"
	colAIDescription column = "ai_description"
	colAISummary     column = "ai_summary"
	colExtracted     column = "content_extracted"
	colUpdatedAt     column = "updated_at"
	colIndexedAt     column = "indexed_at"
	colRemoteURL     column = "remote_url"
	colLastSyncAt    column = "last_sync_at"
	colLastSyncHash  column = "last_sync_commit"
	colPending       column = "pending_changes"
	colHasConflicts  column = "has_conflicts"
	colDescription   column = "description"
	colSnippet       column = "snippet"
)

// qualified prefixes a column with a table alias.
func qualified(alias string, c column) column {
	if alias == "" {
		return c
	}
	return column(alias + "." + string(c))
}

// selectQuery accumulates optional filters for a SELECT.
type selectQuery struct {
	base    string
	where   []string
	args    []any
	orderBy string
	limit   int
}

func newSelect(base string) *selectQuery {
	return &selectQuery{base: base}
}

// whereEq adds "c = ?" for v.
func (q *selectQuery) whereEq(c column, v any) *selectQuery {
	q.where = append(q.where, string(c)+" = ?")
	q.args = append(q.args, v)
	return q
}

// whereEqIfSet adds "c = ?" only when v is non-nil.
func (q *selectQuery) whereEqIfSet(c column, v *int64) *selectQuery {
	if v == nil {
		return q
	}
	return q.whereEq(c, *v)
}

// whereIn adds "c IN (?, ...)". An empty list adds nothing.
func (q *selectQuery) whereIn(c column, vs []string) *selectQuery {
	if len(vs) == 0 {
		return q
	}
	q.where = append(q.where, string(c)+" IN ("+placeholders(len(vs))+")")
	for _, v := range vs {
		q.args = append(q.args, v)
	}
	return q
}

// whereContains adds a case-insensitive substring match against any of cols.
// LIKE wildcards in text are escaped so they match literally.
func (q *selectQuery) whereContains(text string, cols ...column) *selectQuery {
	pattern := "%" + escapeLike(text) + "%"
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = string(c) + ` LIKE ? ESCAPE '\'`
		q.args = append(q.args, pattern)
	}
	q.where = append(q.where, "("+strings.Join(parts, " OR ")+")")
	return q
}

func (q *selectQuery) order(clause string) *selectQuery {
	q.orderBy = clause
	return q
}

// limitTo caps the result size; n <= 0 means no limit.
func (q *selectQuery) limitTo(n int) *selectQuery {
	q.limit = n
	return q
}

func (q *selectQuery) build() (string, []any) {
	var sb strings.Builder
	sb.WriteString(q.base)
	if len(q.where) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(q.where, " AND "))
	}
	if q.orderBy != "" {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(q.orderBy)
	}
	args := q.args
	if q.limit > 0 {
		sb.WriteString(" LIMIT ?")
		args = append(args, q.limit)
	}
	return sb.String(), args
}

// updateQuery accumulates SET clauses for an UPDATE of one row by id.
type updateQuery struct {
	table string
	sets  []string
	args  []any
}

func newUpdate(table string) *updateQuery {
	return &updateQuery{table: table}
}

func (u *updateQuery) set(c column, v any) *updateQuery {
	u.sets = append(u.sets, string(c)+" = ?")
	u.args = append(u.args, v)
	return u
}

func (u *updateQuery) build(id int64) (string, []any) {
	query := "UPDATE " + u.table + " SET " + strings.Join(u.sets, ", ") + " WHERE id = ?"
	return query, append(u.args, id)
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
