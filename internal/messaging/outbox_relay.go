package messaging

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const claimWindow = 30 * time.Second

// OutboxRelay drains webhook_outbox and publishes each staged summary,
// retrying failed publishes with exponential backoff. Rows are claimed with
// SKIP LOCKED so multiple replicas can relay concurrently.
type OutboxRelay struct {
	pool      *pgxpool.Pool
	publisher Publisher
	interval  time.Duration
	batchSize int
	logger    *slog.Logger
}

type outboxRow struct {
	ID       int64
	Payload  []byte
	Attempts int
}

func NewOutboxRelay(pool *pgxpool.Pool, publisher Publisher, interval time.Duration, batch int, logger *slog.Logger) *OutboxRelay {
	return &OutboxRelay{
		pool:      pool,
		publisher: publisher,
		interval:  interval,
		batchSize: batch,
		logger:    logger,
	}
}

func (r *OutboxRelay) Start(ctx context.Context) {
	go r.loop(ctx)
}

func (r *OutboxRelay) loop(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if err := r.relay(ctx); err != nil {
			r.logger.Error("outbox relay failed", "err", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (r *OutboxRelay) relay(ctx context.Context) error {
	rows, err := r.claimRows(ctx)
	if err != nil {
		return err
	}

	for _, row := range rows {
		if err := r.publishOne(ctx, row); err != nil {
			r.logger.Warn("publish summary failed", "row_id", row.ID, "err", err)
		}
	}
	return nil
}

func (r *OutboxRelay) claimRows(ctx context.Context) ([]outboxRow, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	// next_retry gates pending rows too: a failed publish goes back to
	// pending with a future next_retry, and must not be reclaimed before it.
	// Processing rows past next_retry are stale claims from a dead relay.
	rows, err := tx.Query(ctx, `
		SELECT id, payload, attempts
		FROM webhook_outbox
		WHERE status IN ('pending', 'processing') AND next_retry <= NOW()
		ORDER BY id
		LIMIT $1
		FOR UPDATE SKIP LOCKED`,
		r.batchSize,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []outboxRow
	for rows.Next() {
		var row outboxRow
		if err := rows.Scan(&row.ID, &row.Payload, &row.Attempts); err != nil {
			return nil, err
		}
		items = append(items, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	releaseAt := time.Now().Add(claimWindow)
	for _, row := range items {
		_, err := tx.Exec(ctx, `
			UPDATE webhook_outbox
			SET status = 'processing', next_retry = $2, updated_at = NOW()
			WHERE id = $1`,
			row.ID, releaseAt,
		)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *OutboxRelay) publishOne(ctx context.Context, row outboxRow) error {
	pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := r.publisher.Publish(pubCtx, "", row.Payload); err != nil {
		return r.markFailure(ctx, row, err)
	}

	_, err := r.pool.Exec(ctx, `
		UPDATE webhook_outbox
		SET status = 'sent', updated_at = NOW()
		WHERE id = $1`,
		row.ID,
	)
	return err
}

func (r *OutboxRelay) markFailure(ctx context.Context, row outboxRow, publishErr error) error {
	nextRetry := time.Now().Add(retryDelay(row.Attempts + 1))
	_, err := r.pool.Exec(ctx, `
		UPDATE webhook_outbox
		SET status = 'pending',
		    attempts = attempts + 1,
		    next_retry = $2,
		    updated_at = NOW()
		WHERE id = $1`,
		row.ID, nextRetry,
	)
	if err != nil {
		return err
	}
	return publishErr
}

func retryDelay(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if attempts > 5 {
		attempts = 5
	}
	delay := time.Duration(1<<attempts) * time.Second
	if delay > time.Minute {
		delay = time.Minute
	}
	return delay
}
