package inmemdb

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/reportcardpro/backend/core/report"
)

type batchRepository struct {
	db *batchTable
}

var _ report.Repository = (*batchRepository)(nil)

func NewBatchRepository(db *DB) report.Repository {
	return &batchRepository{db: db.batch}
}

func storageKey(accountID string) string {
	return "reportCardBatches_" + accountID
}

func (repo *batchRepository) LoadBatches(_ context.Context, accountID string) ([]report.Batch, error) {
	repo.db.mutex.RLock()
	doc, ok := repo.db.table[storageKey(accountID)]
	repo.db.mutex.RUnlock()

	if !ok {
		return []report.Batch{}, nil
	}
	var batches []report.Batch
	if err := json.Unmarshal(doc, &batches); err != nil {
		return nil, errors.Wrap(err, "decoding batches")
	}
	return batches, nil
}

func (repo *batchRepository) SaveBatches(_ context.Context, accountID string, batches []report.Batch) error {
	if batches == nil {
		batches = []report.Batch{}
	}
	doc, err := json.Marshal(batches)
	if err != nil {
		return errors.Wrap(err, "encoding batches")
	}

	repo.db.mutex.Lock()
	repo.db.table[storageKey(accountID)] = doc
	repo.db.mutex.Unlock()
	return nil
}
