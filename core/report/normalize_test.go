package report_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"github.com/reportcardpro/backend/core/report"
	"github.com/reportcardpro/backend/core/tabular"
	"github.com/reportcardpro/backend/tests"
)

var testNow = time.Date(2026, 10, 14, 10, 0, 0, 0, time.UTC)

func newTestNormalizer() report.Normalizer {
	return report.Normalizer{NewID: testutil.SequentialIDs("id-"), Now: testutil.FixedClock(testNow)}
}

func mustParse(t *testing.T, text string) tabular.Table {
	t.Helper()
	tbl, err := tabular.Parse(text)
	require.NoError(t, err)
	return tbl
}

var mathResolution = report.ColumnResolution{
	NameColumn:      "Name",
	LearnerIDColumn: "ID",
	SubjectColumns:  []string{"Math"},
	Grade:           "9",
	ClassName:       "A",
}

func TestNormalizer_Normalize(t *testing.T) {
	tbl := mustParse(t, "Name,ID,Math\nAlice,S1,95\nBob,S2,\n,S3,70")

	batch, err := newTestNormalizer().Normalize("marks.csv", tbl, mathResolution)
	require.NoError(t, err)

	want := report.Batch{
		ID:         "id-3",
		FileName:   "marks.csv",
		UploadDate: testNow,
		Grade:      "9",
		ClassName:  "A",
		Students: []report.StudentRecord{
			{
				ID: "id-1", Name: "Alice", LearnerID: "S1",
				Subjects:   []report.Subject{{Name: "Math", Score: null.IntFrom(95)}},
				Comments:   "Achieved",
				GradeLevel: "9 A",
				Term:       "3",
				Year:       2026,
				DateIssued: "2026-10-14",
			},
			{
				ID: "id-2", Name: "Bob", LearnerID: "S2",
				Subjects:   []report.Subject{{Name: "Math"}},
				Comments:   "Achieved",
				GradeLevel: "9 A",
				Term:       "3",
				Year:       2026,
				DateIssued: "2026-10-14",
			},
		},
	}
	if diff := cmp.Diff(want, batch); diff != "" {
		t.Errorf("Normalize() mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 7, batch.Students[0].Subjects[0].Code())
	assert.Equal(t, 0, batch.Students[1].Subjects[0].Value())
	assert.Equal(t, 0, batch.Students[1].Subjects[0].Code())

	data, err := json.Marshal(batch.Students[1].Subjects)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"name":"Math","score":0,"code":0}]`, string(data))
}

func TestNormalizer_Normalize_idempotent(t *testing.T) {
	tbl := mustParse(t, "Learner,Number,Math,English\n Thabo ,L1,55,81\nLerato,L2,abs,49\n")
	res := report.ColumnResolution{
		NameColumn: "Learner", LearnerIDColumn: "Number", SubjectColumns: []string{"English", "Math"},
		Grade: "11", ClassName: "C",
	}

	n := report.NewNormalizer()
	first, err := n.Normalize("f.csv", tbl, res)
	require.NoError(t, err)
	second, err := n.Normalize("f.csv", tbl, res)
	require.NoError(t, err)

	opts := cmp.Options{
		cmpopts.IgnoreFields(report.Batch{}, "ID", "UploadDate"),
		cmpopts.IgnoreFields(report.StudentRecord{}, "ID"),
	}
	if diff := cmp.Diff(first, second, opts); diff != "" {
		t.Errorf("Normalize() not idempotent (-first +second):\n%s", diff)
	}
	assert.NotEqual(t, first.ID, second.ID)

	// subjects follow the resolution order
	assert.Equal(t, "English", first.Students[0].Subjects[0].Name)
	assert.Equal(t, "Thabo", first.Students[0].Name)
	assert.False(t, first.Students[1].Subjects[1].Score.Valid)
}

func TestNormalizer_Validate(t *testing.T) {
	tbl := mustParse(t, "Name,ID,Math\nAlice,S1,95\n")

	tests := []struct {
		name        string
		res         report.ColumnResolution
		wantMissing []string
	}{
		{"valid", mathResolution, nil},
		{"unknown subject", report.ColumnResolution{NameColumn: "Name", LearnerIDColumn: "ID", SubjectColumns: []string{"Math", "Physics"}}, []string{"Physics"}},
		{"unknown name and ID", report.ColumnResolution{NameColumn: "Learner", LearnerIDColumn: "Number", SubjectColumns: []string{"Math"}}, []string{"Learner", "Number"}},
		{"case sensitive", report.ColumnResolution{NameColumn: "name", LearnerIDColumn: "ID", SubjectColumns: []string{"Math"}}, []string{"name"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := newTestNormalizer()
			err := n.Validate(tbl, tt.res)
			if tt.wantMissing == nil {
				assert.NoError(t, err)
				return
			}
			var iErr *report.IngestError
			require.ErrorAs(t, err, &iErr)
			assert.Equal(t, report.KindStructuralMismatch, iErr.Kind)
			assert.Equal(t, report.MsgStructureMismatch, iErr.Message)
			assert.Equal(t, tt.wantMissing, iErr.Missing)

			batch, err := n.Normalize("f.csv", tbl, tt.res)
			assert.Error(t, err)
			assert.Equal(t, report.Batch{}, batch)
		})
	}
}

func TestNormalizer_Normalize_rowFiltering(t *testing.T) {
	tbl := mustParse(t, "Name,ID,Math\n,,\n   ,S1,50\nNomsa,  ,60\nSipho,S4,\n")

	batch, err := newTestNormalizer().Normalize("f.csv", tbl, mathResolution)
	require.NoError(t, err)
	require.Len(t, batch.Students, 1)
	assert.Equal(t, "Sipho", batch.Students[0].Name)
	for _, s := range batch.Students {
		assert.NotEmpty(t, s.Name)
		assert.NotEmpty(t, s.LearnerID)
	}
}
