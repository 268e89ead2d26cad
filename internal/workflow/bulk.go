package workflow

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Hunyo07/doc-track-gerona-lgu-sub000/internal/access"
)

// ItemError reports why one document of a bulk request failed.
type ItemError struct {
	DocumentID uuid.UUID `json:"document_id"`
	Kind       Kind      `json:"kind"`
	Message    string    `json:"message"`
}

type BulkResult struct {
	Action       Action      `json:"action"`
	SuccessCount int         `json:"success_count"`
	Succeeded    []uuid.UUID `json:"succeeded"`
	Items        []ItemError `json:"errors"`
}

// BulkPerform runs action on each document in its own unit of work. A failed
// item is reported and the batch continues; committed items stay committed.
// The returned error is only set when the request itself is unusable.
func (e *Engine) BulkPerform(ctx context.Context, action Action, documentIDs []uuid.UUID, actor access.Actor, params Params) (BulkResult, error) {
	if !action.IsValid() {
		return BulkResult{}, invalidInput("unknown action %q", action)
	}

	ids := dedupeIDs(documentIDs)
	if len(ids) == 0 {
		return BulkResult{}, invalidInput("no documents given")
	}
	if len(ids) > e.bulkLimit {
		return BulkResult{}, invalidInput("at most %d documents per request, got %d", e.bulkLimit, len(ids))
	}

	result := BulkResult{Action: action, Succeeded: []uuid.UUID{}, Items: []ItemError{}}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			result.Items = append(result.Items, ItemError{DocumentID: id, Kind: KindOf(classify(err)), Message: err.Error()})
			continue
		}
		if _, err := e.Perform(ctx, action, id, actor, params); err != nil {
			result.Items = append(result.Items, ItemError{DocumentID: id, Kind: KindOf(err), Message: err.Error()})
			continue
		}
		result.SuccessCount++
		result.Succeeded = append(result.Succeeded, id)
	}

	e.metrics.observeBulk(action, result.SuccessCount, len(result.Items))
	e.logger.Info("Bulk action finished",
		zap.String("action", string(action)),
		zap.String("actor_id", actor.ID.String()),
		zap.Int("requested", len(ids)),
		zap.Int("succeeded", result.SuccessCount),
		zap.Int("failed", len(result.Items)),
	)
	return result, nil
}

func dedupeIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
