// Package service implements the point ledger: the allocation and
// cancellation engines, the idempotency bookkeeping, and the
// optimistic-concurrency retry orchestration around them.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/punchamoorthee/pointops/internal/models"
	"github.com/punchamoorthee/pointops/internal/pointkey"
	"github.com/punchamoorthee/pointops/internal/store"
)

const (
	// Bounded retry for optimistic-lock conflicts: 3 attempts, backoff
	// starting at 100ms and doubling.
	maxRetryAttempts = 3
	retryBaseDelay   = 100 * time.Millisecond

	idempotencyTTL = 24 * time.Hour
)

var (
	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pointops_optimistic_retries_total",
		Help: "Operations re-executed after an optimistic-version conflict",
	}, []string{"operation"})

	operationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pointops_operations_total",
		Help: "Point operations processed, labeled by outcome",
	}, []string{"operation", "outcome"})
)

type ctxKey int

const requestIDKey ctxKey = 0

// WithRequestID attaches a request id to the context for log correlation.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestID returns the request id attached to the context, if any.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// Result is the outcome of a mutating operation: the exact bytes and status
// to return to the caller. Replayed marks an idempotent replay of a
// previously committed execution.
type Result struct {
	Body     []byte
	Status   int
	Replayed bool
}

// PointService orchestrates the four mutating operations and the two
// queries. Each mutation runs as one store transaction guarded by the
// idempotency record, wrapped in the bounded conflict-retry loop.
type PointService struct {
	store store.Store
	cfg   *ConfigProvider
	keys  pointkey.Generator
	now   func() time.Time
}

func NewPointService(s store.Store, cfg *ConfigProvider, keys pointkey.Generator) *PointService {
	return &PointService{store: s, cfg: cfg, keys: keys, now: time.Now}
}

// execute runs fn inside one store transaction with idempotency bookkeeping:
// a hit on the idempotency key short-circuits fn entirely; otherwise fn's
// response is serialized and inserted as the idempotency record in the same
// transaction, making that insert the commit point that decides the winner
// among concurrent identical requests. Version conflicts re-run the whole
// sequence from scratch.
func (s *PointService) execute(ctx context.Context, operation, idempotencyKey string, fn func(tx store.Tx, now time.Time) (any, error)) (*Result, error) {
	if idempotencyKey == "" {
		return nil, errInvalidRequest("idempotency key is required")
	}

	var lastConflict *BusinessError
	for attempt := 0; attempt < maxRetryAttempts; attempt++ {
		if attempt > 0 {
			retriesTotal.WithLabelValues(operation).Inc()
			if err := sleepCtx(ctx, retryBaseDelay<<(attempt-1)); err != nil {
				return nil, err
			}
		}

		var result *Result
		err := s.store.WithinTx(ctx, func(tx store.Tx) error {
			record, err := tx.GetIdempotencyRecord(ctx, idempotencyKey)
			if err == nil {
				result = &Result{Body: record.ResponseBody, Status: record.HTTPStatus, Replayed: true}
				return nil
			}
			if !errors.Is(err, store.ErrNotFound) {
				return err
			}

			now := s.now()
			response, err := fn(tx, now)
			if err != nil {
				return err
			}
			body, err := json.Marshal(response)
			if err != nil {
				return err
			}
			if err := tx.InsertIdempotencyRecord(ctx, &models.IdempotencyRecord{
				IdempotencyKey: idempotencyKey,
				ResponseBody:   body,
				HTTPStatus:     http.StatusOK,
				CreatedAt:      now,
				ExpiresAt:      now.Add(idempotencyTTL),
			}); err != nil {
				return err
			}
			result = &Result{Body: body, Status: http.StatusOK}
			return nil
		})

		switch {
		case err == nil:
			outcome := "ok"
			if result.Replayed {
				outcome = "replayed"
			}
			operationsTotal.WithLabelValues(operation, outcome).Inc()
			return result, nil

		case errors.Is(err, store.ErrVersionConflict):
			log.Printf("[%s] %s: optimistic conflict on attempt %d", RequestID(ctx), operation, attempt+1)
			lastConflict = errConcurrencyConflict()
			continue

		case errors.Is(err, store.ErrDuplicateKey):
			// A concurrent request won a unique-insert race. If it was the
			// idempotency record, hand back the winner's committed response;
			// otherwise re-run so the explicit checks report it properly.
			if record, rerr := s.store.GetIdempotencyRecord(ctx, idempotencyKey); rerr == nil {
				operationsTotal.WithLabelValues(operation, "replayed").Inc()
				return &Result{Body: record.ResponseBody, Status: record.HTTPStatus, Replayed: true}, nil
			}
			log.Printf("[%s] %s: lost a unique-insert race on attempt %d", RequestID(ctx), operation, attempt+1)
			lastConflict = errDuplicateIdempotencyKey(idempotencyKey)
			continue

		default:
			var business *BusinessError
			if errors.As(err, &business) {
				operationsTotal.WithLabelValues(operation, "rejected").Inc()
				log.Printf("[%s] %s rejected: %s", RequestID(ctx), operation, business.Error())
				return nil, business
			}
			operationsTotal.WithLabelValues(operation, "error").Inc()
			log.Printf("[%s] %s failed: %v", RequestID(ctx), operation, err)
			return nil, errInternal()
		}
	}

	operationsTotal.WithLabelValues(operation, "conflict").Inc()
	return nil, lastConflict
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// CleanupExpiredIdempotencyRecords reclaims records past their TTL. Called
// periodically by the server's background sweeper.
func (s *PointService) CleanupExpiredIdempotencyRecords(ctx context.Context) (int64, error) {
	return s.store.DeleteExpiredIdempotencyRecords(ctx, s.now())
}

// getOrNewSummary loads the user's summary, falling back to a fresh
// zero-balance one. The second return reports whether the summary is new
// and still needs an insert.
func getOrNewSummary(ctx context.Context, tx store.Tx, userID string) (*models.UserPointSummary, bool, error) {
	summary, err := tx.GetSummary(ctx, userID)
	if err == nil {
		return summary, false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, false, err
	}
	return &models.UserPointSummary{UserID: userID, TotalBalance: 0}, true, nil
}
