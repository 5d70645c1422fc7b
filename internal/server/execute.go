package server

import (
	"database/sql"
	"strings"
)

// QueryResult is the caller-supplied container ExecuteQuery populates.
type QueryResult struct {
	ColumnNames  []string
	Rows         [][]any
	RowsAffected int64
}

// reset clears a result container before reuse.
func (r *QueryResult) reset() {
	r.ColumnNames = nil
	r.Rows = nil
	r.RowsAffected = 0
}

// RowCount returns the number of rows in the result.
func (r *QueryResult) RowCount() int {
	return len(r.Rows)
}

// ExecuteQuery runs a query under a session and populates result. A nil
// result discards the rows. columnFilter is a comma-separated list of
// column names to keep ("" keeps all); firstN and atMostN cap returned rows
// (-1 means unlimited). Failures are reported as *QueryError.
func (h *Handler) ExecuteQuery(result *QueryResult, id SessionID, query string, allowMultifrag bool, columnFilter string, firstN, atMostN int64) error {
	h.mu.Lock()
	s, qerr := h.lookupSession(id)
	if qerr != nil {
		h.mu.Unlock()
		return qerr
	}
	dbName := s.dbName
	h.mu.Unlock()

	if result != nil {
		result.reset()
	}

	stmt := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(query), ";"))
	if stmt == "" {
		return parseError("Empty query.")
	}

	// Verify the session's database still exists before touching storage;
	// a catalog reset may have dropped it underneath the session.
	if _, err := h.cat.Database(dbName); err != nil {
		return semanticError("Database '%s' does not exist.", dbName)
	}

	store, err := h.store(dbName)
	if err != nil {
		return runtimeError("%s", err.Error())
	}

	keyword := strings.ToUpper(firstWord(stmt))

	if keyword == "SHOW" {
		return h.executeShow(result, dbName, stmt)
	}

	if h.cfg.ReadOnly && isWriteStatement(keyword) {
		return runtimeError("Server is in read-only mode.")
	}

	if isRowStatement(keyword) {
		return h.executeRows(result, store, stmt, columnFilter, firstN, atMostN)
	}

	res, err := store.Exec(stmt)
	if err != nil {
		return translateStorageError(err)
	}
	if result != nil {
		if n, err := res.RowsAffected(); err == nil {
			result.RowsAffected = n
		}
	}
	return nil
}

// executeRows runs a row-returning statement and fills result.
func (h *Handler) executeRows(result *QueryResult, store *sql.DB, stmt, columnFilter string, firstN, atMostN int64) error {
	rows, err := store.Query(stmt)
	if err != nil {
		return translateStorageError(err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return runtimeError("%s", err.Error())
	}

	keep := columnKeepMask(cols, columnFilter)
	limit := rowLimit(firstN, atMostN)

	var out [][]any
	var count int64
	for rows.Next() {
		if limit >= 0 && count >= limit {
			break
		}
		raw := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return runtimeError("%s", err.Error())
		}

		row := make([]any, 0, len(cols))
		for i, v := range raw {
			if !keep[i] {
				continue
			}
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			row = append(row, v)
		}
		out = append(out, row)
		count++
	}
	if err := rows.Err(); err != nil {
		return translateStorageError(err)
	}

	if result != nil {
		for i, c := range cols {
			if keep[i] {
				result.ColumnNames = append(result.ColumnNames, c)
			}
		}
		result.Rows = out
	}
	return nil
}

// executeShow serves SHOW statements from catalog metadata.
func (h *Handler) executeShow(result *QueryResult, dbName, stmt string) error {
	rest := strings.TrimSpace(strings.TrimPrefix(strings.ToUpper(stmt), "SHOW"))
	switch rest {
	case "TABLES":
		tables, err := h.cat.TableNames(dbName)
		if err != nil {
			return runtimeError("%s", err.Error())
		}
		if result != nil {
			result.ColumnNames = []string{"table_name"}
			for _, t := range tables {
				result.Rows = append(result.Rows, []any{t})
			}
		}
		return nil
	case "DATABASES":
		dbs, err := h.cat.ListDatabases()
		if err != nil {
			return runtimeError("%s", err.Error())
		}
		if result != nil {
			result.ColumnNames = []string{"database_name", "owner"}
			for _, d := range dbs {
				result.Rows = append(result.Rows, []any{d.Name, d.Owner})
			}
		}
		return nil
	default:
		return parseError("SHOW statement not supported: %s", stmt)
	}
}

// rowLimit combines the firstN and atMostN caps; -1 means unlimited.
func rowLimit(firstN, atMostN int64) int64 {
	limit := int64(-1)
	if firstN >= 0 {
		limit = firstN
	}
	if atMostN >= 0 && (limit < 0 || atMostN < limit) {
		limit = atMostN
	}
	return limit
}

// columnKeepMask marks which result columns pass the filter.
func columnKeepMask(cols []string, columnFilter string) []bool {
	keep := make([]bool, len(cols))
	if strings.TrimSpace(columnFilter) == "" {
		for i := range keep {
			keep[i] = true
		}
		return keep
	}

	wanted := make(map[string]bool)
	for _, c := range strings.Split(columnFilter, ",") {
		wanted[strings.ToLower(strings.TrimSpace(c))] = true
	}
	for i, c := range cols {
		keep[i] = wanted[strings.ToLower(c)]
	}
	return keep
}

func firstWord(stmt string) string {
	for i, r := range stmt {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '(' {
			return stmt[:i]
		}
	}
	return stmt
}

// isRowStatement reports whether a statement produces rows.
func isRowStatement(keyword string) bool {
	switch keyword {
	case "SELECT", "WITH", "VALUES", "EXPLAIN", "PRAGMA":
		return true
	}
	return false
}

// isWriteStatement reports whether a statement mutates storage.
func isWriteStatement(keyword string) bool {
	switch keyword {
	case "CREATE", "DROP", "ALTER", "INSERT", "UPDATE", "DELETE", "TRUNCATE", "COPY", "REPLACE":
		return true
	}
	return false
}

// translateStorageError maps storage-engine errors onto the messages the
// query surface reports. Missing objects get stable, exact messages; parse
// failures and everything else keep the engine's text.
func translateStorageError(err error) *QueryError {
	msg := err.Error()

	if name, ok := extractAfter(msg, "no such table: "); ok {
		return semanticError("Table '%s' does not exist.", name)
	}
	if name, ok := extractAfter(msg, "no such column: "); ok {
		return semanticError("Column '%s' does not exist.", name)
	}
	if strings.Contains(msg, "syntax error") {
		return parseError("%s", msg)
	}
	return runtimeError("%s", msg)
}

// extractAfter returns the identifier following marker in a driver error
// message, trimming the trailing "(code)" suffix the driver appends.
func extractAfter(msg, marker string) (string, bool) {
	idx := strings.Index(msg, marker)
	if idx < 0 {
		return "", false
	}
	rest := msg[idx+len(marker):]
	if p := strings.Index(rest, " ("); p >= 0 {
		rest = rest[:p]
	}
	rest = strings.TrimSpace(rest)
	if rest == "" {
		return "", false
	}
	return rest, true
}
