package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// PgSearch implements Searcher with ILIKE matching against key names,
// namespaces and translation values.
type PgSearch struct {
	db *sql.DB
}

func NewPgSearch(db *sql.DB) *PgSearch {
	return &PgSearch{db: db}
}

// Healthy is always true; without Postgres nothing else works either.
func (p *PgSearch) Healthy() bool {
	return true
}

func (p *PgSearch) Search(ctx context.Context, q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	query, args, err := searchKeysQuery(q)
	if err != nil {
		return nil, 0, fmt.Errorf("build search query: %w", err)
	}
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pg search query: %w", err)
	}
	defer rows.Close()

	results := make([]Result, 0)
	total := 0
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.KeyID, &r.Namespace, &r.Name, &r.Snippet, &total); err != nil {
			return nil, 0, fmt.Errorf("pg search scan: %w", err)
		}
		results = append(results, r)
	}
	return results, total, rows.Err()
}

func searchKeysQuery(q Query) (string, []any, error) {
	pattern := "%" + escapeLike(strings.TrimSpace(q.Text)) + "%"
	return psql.
		Select("k.id", "k.namespace", "k.name").
		Column(sq.Expr("COALESCE((SELECT t.value FROM translations t WHERE t.key_id = k.id AND t.value ILIKE ? ORDER BY t.language LIMIT 1), '')", pattern)).
		Column("COUNT(*) OVER()").
		From("translation_keys k").
		Where(sq.Eq{"k.branch_id": q.BranchID}).
		Where(sq.Or{
			sq.ILike{"k.name": pattern},
			sq.ILike{"k.namespace": pattern},
			sq.Expr("EXISTS (SELECT 1 FROM translations t WHERE t.key_id = k.id AND t.value ILIKE ?)", pattern),
		}).
		OrderBy("k.namespace", "k.name").
		Limit(uint64(q.limit())).
		Offset(uint64(q.offset())).
		ToSql()
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(text string) string {
	return likeEscaper.Replace(text)
}

// LoadBranchRecords returns every key of a branch with its translations
// for reindexing.
func (p *PgSearch) LoadBranchRecords(ctx context.Context, branchID string) ([]KeyRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT k.id, k.branch_id, b.project_id, k.namespace, k.name, t.language, t.value
		FROM translation_keys k
		JOIN branches b ON b.id = k.branch_id
		LEFT JOIN translations t ON t.key_id = k.id
		WHERE k.branch_id = $1
		ORDER BY k.id
	`, branchID)
	if err != nil {
		return nil, fmt.Errorf("load branch keys: %w", err)
	}
	defer rows.Close()

	records := make([]KeyRecord, 0)
	for rows.Next() {
		var (
			rec             KeyRecord
			language, value sql.NullString
		)
		if err := rows.Scan(&rec.ID, &rec.BranchID, &rec.ProjectID, &rec.Namespace, &rec.Name, &language, &value); err != nil {
			return nil, fmt.Errorf("scan branch key: %w", err)
		}
		if n := len(records); n == 0 || records[n-1].ID != rec.ID {
			rec.Values = map[string]string{}
			records = append(records, rec)
		}
		if language.Valid {
			records[len(records)-1].Values[language.String] = value.String
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate branch keys: %w", err)
	}
	return records, nil
}
