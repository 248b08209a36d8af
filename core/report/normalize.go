package report

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/reportcardpro/backend/core/tabular"
)

// Normalizer builds Batches from parsed rows. Clock and id generator are injectable for tests.
type Normalizer struct {
	NewID func() string
	Now   func() time.Time
}

// NewNormalizer returns a Normalizer generating UUIDs and reading the system clock.
func NewNormalizer() Normalizer {
	return Normalizer{NewID: uuid.NewString, Now: time.Now}
}

// Validate checks that every column named by res is one of the table headers.
func (n Normalizer) Validate(tbl tabular.Table, res ColumnResolution) error {
	var missing []string
	for _, col := range res.columns() {
		if !tbl.HasHeader(col) {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return &IngestError{
			Kind:    KindStructuralMismatch,
			Message: MsgStructureMismatch,
			Missing: missing,
			Err:     missingColumnsError(missing),
		}
	}
	return nil
}

// Normalize validates res against the table then builds one StudentRecord per row carrying both a name and a learner ID.
// Nothing is built when validation fails.
func (n Normalizer) Normalize(fileName string, tbl tabular.Table, res ColumnResolution) (Batch, error) {
	if err := n.Validate(tbl, res); err != nil {
		return Batch{}, err
	}

	now := n.Now()
	gradeLevel := res.Grade + " " + res.ClassName

	students := make([]StudentRecord, 0, len(tbl.Rows))
	for _, row := range tbl.Rows {
		name := strings.TrimSpace(row[res.NameColumn])
		learnerID := strings.TrimSpace(row[res.LearnerIDColumn])
		if name == "" || learnerID == "" {
			continue
		}

		subjects := make([]Subject, len(res.SubjectColumns))
		for i, col := range res.SubjectColumns {
			subjects[i] = NewSubject(col, row[col])
		}

		students = append(students, StudentRecord{
			ID:         n.NewID(),
			Name:       name,
			LearnerID:  learnerID,
			Subjects:   subjects,
			Comments:   DefaultComments,
			GradeLevel: gradeLevel,
			Term:       DefaultTerm,
			Year:       now.Year(),
			DateIssued: now.Format(DateLayout),
		})
	}

	return Batch{
		ID:         n.NewID(),
		FileName:   fileName,
		UploadDate: now.UTC(),
		Grade:      res.Grade,
		ClassName:  res.ClassName,
		Students:   students,
	}, nil
}

type missingColumnsError []string

func (e missingColumnsError) Error() string {
	return "columns not found in headers: " + strings.Join(e, ", ")
}
