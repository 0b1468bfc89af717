package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/maheshrc27/clipcast/internal/models"
)

// PublishLedger writes a publish record and the matching job completion in
// one transaction.
type PublishLedger interface {
	RecordPublish(ctx context.Context, jobID string, rec *models.PublishRecord) error
}

type publishLedger struct {
	db *sql.DB
	jr DispatchJobRepository
	pr PublishRecordRepository
}

func NewPublishLedger(db *sql.DB, jr DispatchJobRepository, pr PublishRecordRepository) PublishLedger {
	return &publishLedger{db: db, jr: jr, pr: pr}
}

func (l *publishLedger) RecordPublish(ctx context.Context, jobID string, rec *models.PublishRecord) (err error) {
	tx, err := l.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		} else if err != nil {
			tx.Rollback()
		}
	}()

	// A conflicting record means another run already published this pair;
	// completing the job is still correct.
	if _, err = l.pr.Create(ctx, tx, rec); err != nil {
		return fmt.Errorf("error writing publish record: %w", err)
	}

	if err = l.jr.MarkCompleted(ctx, tx, jobID, rec.PublishedAt); err != nil {
		return fmt.Errorf("error completing job %s: %w", jobID, err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
