package store

import (
	sq "github.com/Masterminds/squirrel"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// upsertBatchSize keeps each multi-row insert well under the 65535 bind
// parameter limit of the Postgres protocol.
const upsertBatchSize = 5000

func keysWithTranslationsQuery(branchID string) (string, []any, error) {
	return psql.
		Select("k.id", "k.namespace", "k.name", "t.language", "t.value").
		From("translation_keys k").
		LeftJoin("translations t ON t.key_id = k.id").
		Where(sq.Eq{"k.branch_id": branchID}).
		OrderBy("k.namespace", "k.name", "t.language").
		ToSql()
}

func candidateTranslationsQuery(branchID string, ids []string) (string, []any, error) {
	query := psql.
		Select("t.id", "t.key_id", "t.language", "t.value", "q.translation_id", "q.score", "q.evaluation_type", "q.content_hash", "q.evaluated_at").
		From("translations t").
		Join("translation_keys k ON k.id = t.key_id").
		LeftJoin("quality_scores q ON q.translation_id = t.id").
		Where(sq.Eq{"k.branch_id": branchID})
	if len(ids) > 0 {
		query = query.Where(sq.Expr("t.id = ANY(?)", ids))
	}
	return query.OrderBy("k.namespace", "k.name", "t.language").ToSql()
}

func sourceValuesQuery(keyIDs []string, sourceLanguage string) (string, []any, error) {
	return psql.
		Select("key_id", "value").
		From("translations").
		Where(sq.Eq{"language": sourceLanguage}).
		Where(sq.Expr("key_id = ANY(?)", keyIDs)).
		ToSql()
}

func glossaryTermsQuery(projectID, targetLanguage string) (string, []any, error) {
	return psql.
		Select("g.id", "g.source_term", "COALESCE(gt.term, '')").
		From("glossary_terms g").
		LeftJoin("glossary_translations gt ON gt.term_id = g.id AND gt.language = ?", targetLanguage).
		Where(sq.Eq{"g.project_id": projectID}).
		OrderBy("g.source_term").
		ToSql()
}

func deleteKeysQuery(branchID string, keyIDs []string) (string, []any, error) {
	return psql.
		Delete("translation_keys").
		Where(sq.Eq{"branch_id": branchID}).
		Where(sq.Expr("id = ANY(?)", keyIDs)).
		ToSql()
}

type translationRow struct {
	ID       string
	KeyID    string
	Language string
	Value    string
}

// chunkTranslationRows splits rows into batches of at most size rows.
func chunkTranslationRows(rows []translationRow, size int) [][]translationRow {
	if size <= 0 {
		size = upsertBatchSize
	}
	var chunks [][]translationRow
	for start := 0; start < len(rows); start += size {
		end := min(start+size, len(rows))
		chunks = append(chunks, rows[start:end])
	}
	return chunks
}

// upsertTranslationsQuery writes rows in one statement; an existing
// (key_id, language) row keeps its ID and takes the new value.
func upsertTranslationsQuery(rows []translationRow) (string, []any, error) {
	insert := psql.Insert("translations").Columns("id", "key_id", "language", "value")
	for _, row := range rows {
		insert = insert.Values(row.ID, row.KeyID, row.Language, row.Value)
	}
	return insert.
		Suffix("ON CONFLICT (key_id, language) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()").
		ToSql()
}
