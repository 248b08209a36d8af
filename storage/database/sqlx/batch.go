package sqlxrepos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/reportcardpro/backend/core/report"
)

type (
	batchRow struct {
		ID         string `db:"id"`
		AccountID  string `db:"account_id"`
		Position   int    `db:"position"`
		FileName   string `db:"file_name"`
		UploadDate string `db:"upload_date"`
		Grade      string `db:"grade"`
		ClassName  string `db:"class_name"`
	}

	studentRow struct {
		ID         string `db:"id"`
		BatchID    string `db:"batch_id"`
		Position   int    `db:"position"`
		Name       string `db:"name"`
		LearnerID  string `db:"learner_id"`
		Comments   string `db:"comments"`
		GradeLevel string `db:"grade_level"`
		Term       string `db:"term"`
		Year       int    `db:"year"`
		DateIssued string `db:"date_issued"`
	}

	subjectRow struct {
		StudentID string   `db:"student_id"`
		Position  int      `db:"position"`
		Name      string   `db:"name"`
		Score     null.Int `db:"score"`
	}
)

type batchRepository struct {
	db *sqlx.DB
}

var _ report.Repository = (*batchRepository)(nil)

func NewBatchRepository(db *sqlx.DB) report.Repository {
	return &batchRepository{db: db}
}

func (repo *batchRepository) LoadBatches(ctx context.Context, accountID string) ([]report.Batch, error) {
	batches := make([]report.Batch, 0)
	err := withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		var bRows []batchRow
		q := tx.Rebind("SELECT * FROM batches WHERE account_id = ? ORDER BY position")
		if err := tx.SelectContext(ctx, &bRows, q, accountID); err != nil {
			return errors.Wrap(err, "selecting batches")
		}
		if len(bRows) == 0 {
			return nil
		}

		var sRows []studentRow
		q = tx.Rebind(`SELECT s.* FROM students s JOIN batches b ON b.id = s.batch_id
			WHERE b.account_id = ? ORDER BY b.position, s.position`)
		if err := tx.SelectContext(ctx, &sRows, q, accountID); err != nil {
			return errors.Wrap(err, "selecting students")
		}

		var subRows []subjectRow
		q = tx.Rebind(`SELECT sub.* FROM subjects sub
			JOIN students s ON s.id = sub.student_id
			JOIN batches b ON b.id = s.batch_id
			WHERE b.account_id = ? ORDER BY b.position, s.position, sub.position`)
		if err := tx.SelectContext(ctx, &subRows, q, accountID); err != nil {
			return errors.Wrap(err, "selecting subjects")
		}

		subjects := make(map[string][]report.Subject, len(sRows))
		for _, r := range subRows {
			subjects[r.StudentID] = append(subjects[r.StudentID], report.Subject{Name: r.Name, Score: r.Score})
		}
		students := make(map[string][]report.StudentRecord, len(bRows))
		for _, r := range sRows {
			subs := subjects[r.ID]
			if subs == nil {
				subs = []report.Subject{}
			}
			students[r.BatchID] = append(students[r.BatchID], report.StudentRecord{
				ID:         r.ID,
				Name:       r.Name,
				LearnerID:  r.LearnerID,
				Subjects:   subs,
				Comments:   r.Comments,
				GradeLevel: r.GradeLevel,
				Term:       r.Term,
				Year:       r.Year,
				DateIssued: r.DateIssued,
			})
		}
		for _, r := range bRows {
			uploaded, err := parseTime(r.UploadDate)
			if err != nil {
				return err
			}
			studs := students[r.ID]
			if studs == nil {
				studs = []report.StudentRecord{}
			}
			batches = append(batches, report.Batch{
				ID:         r.ID,
				FileName:   r.FileName,
				UploadDate: uploaded,
				Grade:      r.Grade,
				ClassName:  r.ClassName,
				Students:   studs,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return batches, nil
}

// SaveBatches replaces every stored batch of the account in one transaction.
func (repo *batchRepository) SaveBatches(ctx context.Context, accountID string, batches []report.Batch) error {
	return withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		deletes := []string{
			`DELETE FROM subjects WHERE student_id IN (
				SELECT s.id FROM students s JOIN batches b ON b.id = s.batch_id WHERE b.account_id = ?)`,
			"DELETE FROM students WHERE batch_id IN (SELECT id FROM batches WHERE account_id = ?)",
			"DELETE FROM batches WHERE account_id = ?",
		}
		for _, q := range deletes {
			if _, err := tx.ExecContext(ctx, tx.Rebind(q), accountID); err != nil {
				return errors.Wrap(err, "deleting batches")
			}
		}

		for bi, b := range batches {
			bRow := batchRow{
				ID:         b.ID,
				AccountID:  accountID,
				Position:   bi,
				FileName:   b.FileName,
				UploadDate: formatTime(b.UploadDate),
				Grade:      b.Grade,
				ClassName:  b.ClassName,
			}
			if _, err := tx.NamedExecContext(ctx, `INSERT INTO batches (id, account_id, position, file_name, upload_date, grade, class_name)
				VALUES (:id, :account_id, :position, :file_name, :upload_date, :grade, :class_name)`, bRow); err != nil {
				return errors.Wrapf(err, "inserting batch %s", b.ID)
			}

			for si, s := range b.Students {
				sRow := studentRow{
					ID:         s.ID,
					BatchID:    b.ID,
					Position:   si,
					Name:       s.Name,
					LearnerID:  s.LearnerID,
					Comments:   s.Comments,
					GradeLevel: s.GradeLevel,
					Term:       s.Term,
					Year:       s.Year,
					DateIssued: s.DateIssued,
				}
				if _, err := tx.NamedExecContext(ctx, `INSERT INTO students
					(id, batch_id, position, name, learner_id, comments, grade_level, term, year, date_issued)
					VALUES (:id, :batch_id, :position, :name, :learner_id, :comments, :grade_level, :term, :year, :date_issued)`, sRow); err != nil {
					return errors.Wrapf(err, "inserting student %s", s.ID)
				}

				for pi, sub := range s.Subjects {
					subRow := subjectRow{StudentID: s.ID, Position: pi, Name: sub.Name, Score: sub.Score}
					if _, err := tx.NamedExecContext(ctx, `INSERT INTO subjects (student_id, position, name, score)
						VALUES (:student_id, :position, :name, :score)`, subRow); err != nil {
						return errors.Wrapf(err, "inserting subject %s of student %s", sub.Name, s.ID)
					}
				}
			}
		}
		return nil
	})
}
