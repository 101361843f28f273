package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"localeforge/api/internal/access"
	"localeforge/api/internal/branchdiff"
	"localeforge/api/internal/evaluation"
	"localeforge/api/internal/failure"
	"localeforge/api/internal/quality"
	"localeforge/api/internal/util"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) GetBranch(ctx context.Context, branchID string) (Branch, error) {
	var branch Branch
	err := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, name, is_default, created_at
		FROM branches WHERE id = $1
	`, branchID).Scan(&branch.ID, &branch.ProjectID, &branch.Name, &branch.IsDefault, &branch.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Branch{}, failure.NotFound("get branch", "branch", branchID)
	}
	if err != nil {
		return Branch{}, fmt.Errorf("get branch: %w", err)
	}
	return branch, nil
}

func (s *PostgresStore) BranchExists(ctx context.Context, branchID string) (bool, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM branches WHERE id = $1)`, branchID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check branch: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) GetBranchProject(ctx context.Context, branchID string) (access.ProjectInfo, error) {
	var info access.ProjectInfo
	err := s.db.QueryRowContext(ctx, `
		SELECT p.id, p.space_id, p.default_language
		FROM branches b
		JOIN projects p ON p.id = b.project_id
		WHERE b.id = $1
	`, branchID).Scan(&info.ProjectID, &info.SpaceID, &info.DefaultLanguage)
	if errors.Is(err, sql.ErrNoRows) {
		return access.ProjectInfo{}, failure.NotFound("get branch project", "branch", branchID)
	}
	if err != nil {
		return access.ProjectInfo{}, fmt.Errorf("get branch project: %w", err)
	}

	languages, err := s.projectLanguages(ctx, info.ProjectID)
	if err != nil {
		return access.ProjectInfo{}, err
	}
	info.Languages = languages
	return info, nil
}

func (s *PostgresStore) projectLanguages(ctx context.Context, projectID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT language FROM project_languages WHERE project_id = $1 ORDER BY language`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list project languages: %w", err)
	}
	defer rows.Close()

	languages := make([]string, 0)
	for rows.Next() {
		var language string
		if err := rows.Scan(&language); err != nil {
			return nil, fmt.Errorf("scan project language: %w", err)
		}
		languages = append(languages, language)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate project languages: %w", err)
	}
	return languages, nil
}

func (s *PostgresStore) GetProjectRole(ctx context.Context, projectID, userID string) (string, bool, error) {
	var role string
	err := s.db.QueryRowContext(ctx, `SELECT role FROM project_members WHERE project_id = $1 AND user_id = $2`, projectID, userID).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get project role: %w", err)
	}
	return role, true, nil
}

func (s *PostgresStore) FindKeysWithTranslations(ctx context.Context, branchID string) ([]branchdiff.Key, error) {
	query, args, err := keysWithTranslationsQuery(branchID)
	if err != nil {
		return nil, fmt.Errorf("build keys query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list keys with translations: %w", err)
	}
	defer rows.Close()

	keys := make([]branchdiff.Key, 0)
	index := map[string]int{}
	for rows.Next() {
		var (
			keyID, namespace, name string
			language, value        sql.NullString
		)
		if err := rows.Scan(&keyID, &namespace, &name, &language, &value); err != nil {
			return nil, fmt.Errorf("scan key translation: %w", err)
		}
		pos, ok := index[keyID]
		if !ok {
			pos = len(keys)
			index[keyID] = pos
			keys = append(keys, branchdiff.Key{
				ID:           keyID,
				Namespace:    namespace,
				Name:         name,
				Translations: map[string]string{},
			})
		}
		if language.Valid {
			keys[pos].Translations[language.String] = value.String
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate key translations: %w", err)
	}
	return keys, nil
}

// ApplyMerge writes a merge plan into targetBranchID in one transaction.
func (s *PostgresStore) ApplyMerge(ctx context.Context, targetBranchID string, plan branchdiff.MergePlan) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin merge tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows := make([]translationRow, 0, len(plan.SetTranslations))
	for _, key := range plan.CreateKeys {
		keyID := util.NewID("key")
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO translation_keys (id, branch_id, namespace, name)
			VALUES ($1, $2, $3, $4)
		`, keyID, targetBranchID, key.Namespace, key.Name); err != nil {
			return fmt.Errorf("insert merged key %s/%s: %w", key.Namespace, key.Name, err)
		}
		for language, value := range key.Translations {
			rows = append(rows, translationRow{ID: util.NewID("tr"), KeyID: keyID, Language: language, Value: value})
		}
	}
	for _, update := range plan.SetTranslations {
		rows = append(rows, translationRow{ID: util.NewID("tr"), KeyID: update.KeyID, Language: update.Language, Value: update.Value})
	}

	for _, batch := range chunkTranslationRows(rows, upsertBatchSize) {
		query, args, err := upsertTranslationsQuery(batch)
		if err != nil {
			return fmt.Errorf("build translation upsert: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("upsert merged translations: %w", err)
		}
	}

	if len(plan.DeleteKeyIDs) > 0 {
		query, args, err := deleteKeysQuery(targetBranchID, plan.DeleteKeyIDs)
		if err != nil {
			return fmt.Errorf("build key delete: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("delete removed keys: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit merge: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindCandidateTranslations(ctx context.Context, branchID string, ids []string) ([]evaluation.Candidate, error) {
	query, args, err := candidateTranslationsQuery(branchID, ids)
	if err != nil {
		return nil, fmt.Errorf("build candidates query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list candidate translations: %w", err)
	}
	defer rows.Close()

	candidates := make([]evaluation.Candidate, 0)
	for rows.Next() {
		var (
			candidate      evaluation.Candidate
			scoredID       sql.NullString
			score          sql.NullInt64
			evaluationType sql.NullString
			contentHash    sql.NullString
			evaluatedAt    sql.NullTime
		)
		if err := rows.Scan(&candidate.TranslationID, &candidate.KeyID, &candidate.Language, &candidate.Value,
			&scoredID, &score, &evaluationType, &contentHash, &evaluatedAt); err != nil {
			return nil, fmt.Errorf("scan candidate translation: %w", err)
		}
		if scoredID.Valid {
			candidate.Cached = &evaluation.ScoreRecord{
				TranslationID:  scoredID.String,
				Score:          int(score.Int64),
				EvaluationType: quality.EvaluationType(evaluationType.String),
				ContentHash:    nullableString(contentHash),
				EvaluatedAt:    evaluatedAt.Time,
			}
		}
		candidates = append(candidates, candidate)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candidate translations: %w", err)
	}
	return candidates, nil
}

func (s *PostgresStore) FindSourceValuesForKeys(ctx context.Context, keyIDs []string, sourceLanguage string) (map[string]string, error) {
	values := make(map[string]string, len(keyIDs))
	if len(keyIDs) == 0 {
		return values, nil
	}
	query, args, err := sourceValuesQuery(keyIDs, sourceLanguage)
	if err != nil {
		return nil, fmt.Errorf("build source values query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list source values: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var keyID, value string
		if err := rows.Scan(&keyID, &value); err != nil {
			return nil, fmt.Errorf("scan source value: %w", err)
		}
		values[keyID] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate source values: %w", err)
	}
	return values, nil
}

func (s *PostgresStore) GetTranslationForEvaluation(ctx context.Context, translationID string) (evaluation.TranslationContext, error) {
	var (
		tc              evaluation.TranslationContext
		sourceValue     sql.NullString
		scoredID        sql.NullString
		score           sql.NullInt64
		evaluationType  sql.NullString
		accuracy        sql.NullInt64
		fluency         sql.NullInt64
		terminology     sql.NullInt64
		format          sql.NullInt64
		glossaryPenalty sql.NullInt64
		issues          []byte
		contentHash     sql.NullString
		evaluatedAt     sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT t.id, t.key_id, k.branch_id, b.project_id, t.language, t.value, p.default_language,
			src.value,
			q.translation_id, q.score, q.evaluation_type, q.accuracy, q.fluency, q.terminology, q.format,
			q.glossary_penalty, q.issues, q.content_hash, q.evaluated_at
		FROM translations t
		JOIN translation_keys k ON k.id = t.key_id
		JOIN branches b ON b.id = k.branch_id
		JOIN projects p ON p.id = b.project_id
		LEFT JOIN translations src ON src.key_id = t.key_id AND src.language = p.default_language
		LEFT JOIN quality_scores q ON q.translation_id = t.id
		WHERE t.id = $1
	`, translationID).Scan(
		&tc.TranslationID, &tc.KeyID, &tc.BranchID, &tc.ProjectID, &tc.Language, &tc.Value, &tc.SourceLanguage,
		&sourceValue,
		&scoredID, &score, &evaluationType, &accuracy, &fluency, &terminology, &format,
		&glossaryPenalty, &issues, &contentHash, &evaluatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return evaluation.TranslationContext{}, failure.NotFound("get translation", "translation", translationID)
	}
	if err != nil {
		return evaluation.TranslationContext{}, fmt.Errorf("get translation for evaluation: %w", err)
	}

	tc.SourceValue = nullableString(sourceValue)
	if scoredID.Valid {
		record := &evaluation.ScoreRecord{
			TranslationID:   scoredID.String,
			Score:           int(score.Int64),
			EvaluationType:  quality.EvaluationType(evaluationType.String),
			GlossaryPenalty: int(glossaryPenalty.Int64),
			ContentHash:     nullableString(contentHash),
			EvaluatedAt:     evaluatedAt.Time,
			Issues:          []quality.Issue{},
		}
		if accuracy.Valid || fluency.Valid || terminology.Valid || format.Valid {
			record.AI = &quality.AIScores{
				Accuracy:    nullableInt(accuracy),
				Fluency:     nullableInt(fluency),
				Terminology: nullableInt(terminology),
				Format:      nullableInt(format),
			}
		}
		if len(issues) > 0 {
			if err := json.Unmarshal(issues, &record.Issues); err != nil {
				return evaluation.TranslationContext{}, fmt.Errorf("decode quality issues: %w", err)
			}
		}
		tc.Cached = record
	}
	return tc, nil
}

func (s *PostgresStore) UpsertQualityScore(ctx context.Context, record evaluation.ScoreRecord) error {
	issues := record.Issues
	if issues == nil {
		issues = []quality.Issue{}
	}
	issuesJSON, err := json.Marshal(issues)
	if err != nil {
		return fmt.Errorf("encode quality issues: %w", err)
	}
	var accuracy, fluency, terminology, format *int
	if record.AI != nil {
		accuracy, fluency, terminology, format = record.AI.Accuracy, record.AI.Fluency, record.AI.Terminology, record.AI.Format
	}
	evaluatedAt := record.EvaluatedAt
	if evaluatedAt.IsZero() {
		evaluatedAt = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO quality_scores (
			translation_id, score, evaluation_type, accuracy, fluency, terminology, format,
			glossary_penalty, issues, content_hash, evaluated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (translation_id) DO UPDATE SET
			score = EXCLUDED.score,
			evaluation_type = EXCLUDED.evaluation_type,
			accuracy = EXCLUDED.accuracy,
			fluency = EXCLUDED.fluency,
			terminology = EXCLUDED.terminology,
			format = EXCLUDED.format,
			glossary_penalty = EXCLUDED.glossary_penalty,
			issues = EXCLUDED.issues,
			content_hash = EXCLUDED.content_hash,
			evaluated_at = EXCLUDED.evaluated_at
	`, record.TranslationID, record.Score, string(record.EvaluationType), accuracy, fluency, terminology, format,
		record.GlossaryPenalty, string(issuesJSON), record.ContentHash, evaluatedAt)
	if err != nil {
		return fmt.Errorf("upsert quality score: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindTermsWithTranslations(ctx context.Context, projectID, targetLanguage string) ([]quality.GlossaryTerm, error) {
	query, args, err := glossaryTermsQuery(projectID, targetLanguage)
	if err != nil {
		return nil, fmt.Errorf("build glossary query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list glossary terms: %w", err)
	}
	defer rows.Close()

	terms := make([]quality.GlossaryTerm, 0)
	for rows.Next() {
		var term quality.GlossaryTerm
		if err := rows.Scan(&term.ID, &term.SourceTerm, &term.TargetTerm); err != nil {
			return nil, fmt.Errorf("scan glossary term: %w", err)
		}
		terms = append(terms, term)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate glossary terms: %w", err)
	}
	return terms, nil
}

func nullableString(value sql.NullString) *string {
	if !value.Valid {
		return nil
	}
	v := value.String
	return &v
}

func nullableInt(value sql.NullInt64) *int {
	if !value.Valid {
		return nil
	}
	v := int(value.Int64)
	return &v
}
