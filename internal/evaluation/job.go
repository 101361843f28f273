package evaluation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

type ItemFailure struct {
	TranslationID string `json:"translationId"`
	Err           error  `json:"-"`
	Message       string `json:"error"`
}

type BatchOutcome struct {
	Evaluated int           `json:"evaluated"`
	Failed    []ItemFailure `json:"failed"`
}

// JobHandler runs quality.batch_evaluate jobs.
type JobHandler struct {
	evaluator *Evaluator
}

func NewJobHandler(evaluator *Evaluator) *JobHandler {
	return &JobHandler{evaluator: evaluator}
}

// Handle evaluates every translation in the payload, continuing past
// individual failures. It returns an error only when the payload is invalid
// or every item failed.
func (h *JobHandler) Handle(ctx context.Context, payload []byte) (BatchOutcome, error) {
	var body BatchPayload
	if err := json.Unmarshal(payload, &body); err != nil {
		return BatchOutcome{}, fmt.Errorf("decode batch payload: %w", err)
	}

	outcome := BatchOutcome{Failed: []ItemFailure{}}
	errs := make([]error, 0)
	for _, id := range body.TranslationIDs {
		if err := ctx.Err(); err != nil {
			return outcome, err
		}
		_, err := h.evaluator.EvaluateTranslation(ctx, id, EvaluateOptions{Force: true, ForceAI: body.ForceAI})
		if err != nil {
			outcome.Failed = append(outcome.Failed, ItemFailure{TranslationID: id, Err: err, Message: err.Error()})
			errs = append(errs, fmt.Errorf("translation %s: %w", id, err))
			continue
		}
		outcome.Evaluated++
	}

	if len(body.TranslationIDs) > 0 && outcome.Evaluated == 0 {
		return outcome, fmt.Errorf("batch evaluation failed for all %d translations: %w", len(body.TranslationIDs), errors.Join(errs...))
	}
	return outcome, nil
}
