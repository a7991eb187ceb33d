package http

import (
	"context"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/nexushost/portal/internal/apperr"
	"github.com/nexushost/portal/internal/repository"
)

const (
	defaultPageSize = 50
	maxPageSize     = 100
)

// DBBrowser serves read-only table listings for the admin dashboard.
type DBBrowser struct {
	db     repository.DB
	schema string
	fail   func(*gin.Context, error)
}

// NewDBBrowser creates a browser over the tables of schema.
func NewDBBrowser(db repository.DB, schema string, fail func(*gin.Context, error)) *DBBrowser {
	return &DBBrowser{db: db, schema: schema, fail: fail}
}

var sensitivePatterns = []string{"password", "hash", "secret", "api_key", "token", "private_key"}

func isSensitiveColumn(name string) bool {
	lower := strings.ToLower(name)
	for _, p := range sensitivePatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

type tableInfo struct {
	Name     string `json:"name"`
	RowCount int    `json:"row_count"`
}

// ListTables returns every base table with its approximate row count.
func (b *DBBrowser) ListTables(c *gin.Context) {
	rows, err := b.db.Query(c.Request.Context(), `
		SELECT t.table_name, COALESCE(s.n_live_tup, 0)::int AS row_count
		FROM information_schema.tables t
		LEFT JOIN pg_stat_user_tables s
		  ON s.schemaname = t.table_schema AND s.relname = t.table_name
		WHERE t.table_schema = $1 AND t.table_type = 'BASE TABLE'
		ORDER BY t.table_name
	`, b.schema)
	if err != nil {
		b.fail(c, fmt.Errorf("list tables: %w", err))
		return
	}
	defer rows.Close()

	tables := []tableInfo{}
	for rows.Next() {
		var t tableInfo
		if err := rows.Scan(&t.Name, &t.RowCount); err != nil {
			b.fail(c, fmt.Errorf("scan table: %w", err))
			return
		}
		tables = append(tables, t)
	}
	if err := rows.Err(); err != nil {
		b.fail(c, fmt.Errorf("list tables: %w", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"tables": tables})
}

type columnInfo struct {
	Name      string  `json:"name"`
	Type      string  `json:"type"`
	Nullable  bool    `json:"nullable"`
	Default   *string `json:"default,omitempty"`
	MaxLength *int    `json:"max_length,omitempty"`
	IsPrimary bool    `json:"is_primary"`
}

// TableSchema returns the column definitions of one table.
func (b *DBBrowser) TableSchema(c *gin.Context) {
	ctx := c.Request.Context()
	table := c.Param("table")
	if err := b.requireTable(ctx, table); err != nil {
		b.fail(c, err)
		return
	}

	pks, err := b.primaryKeys(ctx, table)
	if err != nil {
		b.fail(c, err)
		return
	}

	rows, err := b.db.Query(ctx, `
		SELECT column_name, data_type, is_nullable, column_default, character_maximum_length
		FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position
	`, b.schema, table)
	if err != nil {
		b.fail(c, fmt.Errorf("read columns: %w", err))
		return
	}
	defer rows.Close()

	columns := []columnInfo{}
	for rows.Next() {
		var col columnInfo
		var nullable string
		if err := rows.Scan(&col.Name, &col.Type, &nullable, &col.Default, &col.MaxLength); err != nil {
			b.fail(c, fmt.Errorf("scan column: %w", err))
			return
		}
		col.Nullable = nullable == "YES"
		col.IsPrimary = pks[col.Name]
		columns = append(columns, col)
	}
	if err := rows.Err(); err != nil {
		b.fail(c, fmt.Errorf("read columns: %w", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"table": table, "columns": columns})
}

// rowQuery holds the parsed ?page=&page_size=&search=&sort_by=&sort_order= params.
type rowQuery struct {
	page      int
	pageSize  int
	search    string
	sortBy    string
	sortOrder string
}

func parseRowQuery(c *gin.Context) rowQuery {
	q := rowQuery{
		search:    c.Query("search"),
		sortBy:    c.Query("sort_by"),
		sortOrder: c.DefaultQuery("sort_order", "desc"),
	}
	q.page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	q.pageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", strconv.Itoa(defaultPageSize)))
	if q.page < 1 {
		q.page = 1
	}
	if q.pageSize < 1 || q.pageSize > maxPageSize {
		q.pageSize = defaultPageSize
	}
	if q.sortOrder != "asc" && q.sortOrder != "desc" {
		q.sortOrder = "desc"
	}
	return q
}

// buildRowSQL returns the count and page queries for table. Identifiers are
// checked against cols before being quoted into the statement.
func buildRowSQL(schema, table string, cols []colMeta, q rowQuery) (countSQL, pageSQL string, args []any, err error) {
	if q.sortBy != "" && !hasColumn(cols, q.sortBy) {
		return "", "", nil, apperr.Invalid(fmt.Sprintf("invalid sort_by column: %q", q.sortBy))
	}

	qualified := fmt.Sprintf("%q.%q", schema, table)
	where := ""
	if q.search != "" {
		var conds []string
		for _, col := range cols {
			if col.isText {
				conds = append(conds, fmt.Sprintf("%q::text ILIKE '%%' || $1 || '%%'", col.name))
			}
		}
		if len(conds) > 0 {
			where = "WHERE (" + strings.Join(conds, " OR ") + ")"
			args = append(args, q.search)
		}
	}

	order := ""
	if q.sortBy != "" {
		order = fmt.Sprintf("ORDER BY %q %s", q.sortBy, q.sortOrder)
	}

	n := len(args)
	countSQL = strings.TrimSpace(fmt.Sprintf("SELECT COUNT(*) FROM %s %s", qualified, where))
	pageSQL = fmt.Sprintf("SELECT * FROM %s %s %s LIMIT $%d OFFSET $%d", qualified, where, order, n+1, n+2)
	pageSQL = strings.Join(strings.Fields(pageSQL), " ")
	args = append(args, q.pageSize, (q.page-1)*q.pageSize)
	return countSQL, pageSQL, args, nil
}

// QueryRows returns one page of a table with sensitive columns masked.
func (b *DBBrowser) QueryRows(c *gin.Context) {
	ctx := c.Request.Context()
	table := c.Param("table")
	if err := b.requireTable(ctx, table); err != nil {
		b.fail(c, err)
		return
	}

	cols, err := b.columns(ctx, table)
	if err != nil {
		b.fail(c, err)
		return
	}
	q := parseRowQuery(c)
	countSQL, pageSQL, args, err := buildRowSQL(b.schema, table, cols, q)
	if err != nil {
		b.fail(c, err)
		return
	}

	var total int
	countArgs := args[:len(args)-2]
	if err := b.db.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		b.fail(c, fmt.Errorf("count rows: %w", err))
		return
	}

	rows, err := b.db.Query(ctx, pageSQL, args...)
	if err != nil {
		b.fail(c, fmt.Errorf("query rows: %w", err))
		return
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	results := []map[string]any{}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			b.fail(c, fmt.Errorf("read row: %w", err))
			return
		}
		row := make(map[string]any, len(fields))
		for i, fd := range fields {
			if isSensitiveColumn(fd.Name) {
				row[fd.Name] = "***"
			} else {
				row[fd.Name] = formatValue(values[i])
			}
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		b.fail(c, fmt.Errorf("query rows: %w", err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"table":     table,
		"rows":      results,
		"total":     total,
		"page":      q.page,
		"page_size": q.pageSize,
	})
}

// formatValue renders uuid columns, which pgx returns as [16]byte.
func formatValue(v any) any {
	if u, ok := v.([16]byte); ok {
		h := hex.EncodeToString(u[:])
		return h[:8] + "-" + h[8:12] + "-" + h[12:16] + "-" + h[16:20] + "-" + h[20:]
	}
	return v
}

func (b *DBBrowser) requireTable(ctx context.Context, table string) error {
	var exists bool
	err := b.db.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM information_schema.tables
			WHERE table_schema = $1 AND table_name = $2 AND table_type = 'BASE TABLE'
		)
	`, b.schema, table).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check table: %w", err)
	}
	if !exists {
		return apperr.NotFound(fmt.Sprintf("table %q", table))
	}
	return nil
}

func (b *DBBrowser) primaryKeys(ctx context.Context, table string) (map[string]bool, error) {
	rows, err := b.db.Query(ctx, `
		SELECT kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
		  ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
		WHERE tc.table_schema = $1 AND tc.table_name = $2 AND tc.constraint_type = 'PRIMARY KEY'
	`, b.schema, table)
	if err != nil {
		return nil, fmt.Errorf("read primary keys: %w", err)
	}
	defer rows.Close()

	pks := make(map[string]bool)
	for rows.Next() {
		var col string
		if err := rows.Scan(&col); err != nil {
			return nil, fmt.Errorf("scan primary key: %w", err)
		}
		pks[col] = true
	}
	return pks, rows.Err()
}

type colMeta struct {
	name   string
	isText bool
}

func hasColumn(cols []colMeta, name string) bool {
	for _, c := range cols {
		if c.name == name {
			return true
		}
	}
	return false
}

func (b *DBBrowser) columns(ctx context.Context, table string) ([]colMeta, error) {
	rows, err := b.db.Query(ctx, `
		SELECT column_name, data_type
		FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position
	`, b.schema, table)
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}
	defer rows.Close()

	var cols []colMeta
	for rows.Next() {
		var name, dtype string
		if err := rows.Scan(&name, &dtype); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		isText := strings.Contains(dtype, "char") || strings.Contains(dtype, "text") || dtype == "uuid"
		cols = append(cols, colMeta{name: name, isText: isText})
	}
	return cols, rows.Err()
}
