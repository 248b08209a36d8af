package exportsvc

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/reportcardpro/backend/core"
	"github.com/reportcardpro/backend/core/report"
)

type zapLogger struct{ *zap.SugaredLogger }

func (l zapLogger) Debug(msg string, args ...interface{}) { l.Debugw(msg, "args", args) }
func (l zapLogger) Info(msg string, args ...interface{})  { l.Infow(msg, "args", args) }
func (l zapLogger) Warn(msg string, args ...interface{})  { l.Warnw(msg, "args", args) }
func (l zapLogger) Error(msg string, args ...interface{}) { l.Errorw(msg, "args", args) }
func (l zapLogger) Fatal(msg string, args ...interface{}) { l.Errorw(msg, "args", args) }

func newTestExporter() *Exporter {
	conf := core.NewTestConfig()
	conf.Report.SchoolClosesOn = "2026/12/09"
	conf.Report.SchoolReopensOn = "2027/01/14"
	e := NewExporter(conf, zapLogger{zap.NewNop().Sugar()})
	e.compress = false
	e.now = func() time.Time { return time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC) }
	return e
}

var school = School{Name: "Murray High School", Province: "Western Cape"}

func student(id, name, learnerID string) report.StudentRecord {
	return report.StudentRecord{
		ID:        id,
		Name:      name,
		LearnerID: learnerID,
		Subjects: []report.Subject{
			{Name: "Mathematics", Score: null.IntFrom(95)},
			{Name: "Life Skills", Score: null.IntFrom(12)},
			{Name: "Art"},
		},
		Comments:   report.DefaultComments,
		GradeLevel: "10 A",
		Term:       report.DefaultTerm,
		Year:       2026,
		DateIssued: "2026-10-14",
	}
}

func TestCardFileName(t *testing.T) {
	assert.Equal(t, "report-card-Alice_van_der_Merwe.pdf", CardFileName(report.StudentRecord{Name: "Alice  van der\tMerwe"}))
	assert.Equal(t, "report-card-Bob.pdf", CardFileName(report.StudentRecord{Name: "Bob"}))
}

func TestArchiveFileName(t *testing.T) {
	assert.Equal(t, "report-cards-Grade 10A Marks.zip", ArchiveFileName("Grade 10A Marks.csv"))
	assert.Equal(t, "report-cards-marks.zip", ArchiveFileName("marks.2026.xlsx"))
	assert.Equal(t, "report-cards-all.zip", ArchiveFileName(".csv"))
	assert.Equal(t, "report-cards-all.zip", ArchiveFileName(""))
}

func TestFormatScore(t *testing.T) {
	tests := []struct {
		sub       report.Subject
		wantScore string
		wantCode  string
	}{
		{report.Subject{Score: null.IntFrom(95)}, "95", "7"},
		{report.Subject{Score: null.IntFrom(0)}, "0", "1"},
		{report.Subject{Score: null.IntFrom(-3)}, "-3", ""},
		{report.Subject{}, "0", ""},
	}
	for _, tt := range tests {
		score, code := formatScore(tt.sub)
		assert.Equal(t, tt.wantScore, score)
		assert.Equal(t, tt.wantCode, code)
	}
}

func TestExporter_RenderCard(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, newTestExporter().RenderCard(&buf, school, student("s1", "Alice", "S1")))

	out := buf.String()
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))
	for _, want := range []string{
		"Western Cape Government",
		"MURRAY HIGH SCHOOL",
		"2026 TERM 3 REPORT CARD: GRADE 10 A",
		"Learner Cemis No:",
		"Mathematics",
		"TERM 3 COMMENTS",
		"Achieved",
		"2026/12/09",
		"Level 4 \\(50-59%\\)",
		"Outstanding achievement",
	} {
		assert.Contains(t, out, want)
	}
}

func TestEntryNames(t *testing.T) {
	names := entryNames([]report.StudentRecord{
		{Name: "Bob", LearnerID: "S2"},
		{Name: "Alice", LearnerID: "S1"},
		{Name: "Bob", LearnerID: "S3"},
		{Name: "Bob", LearnerID: "S3"},
	})
	assert.Equal(t, []string{
		"report-card-Bob_S2.pdf",
		"report-card-Alice.pdf",
		"report-card-Bob_S3.pdf",
		"report-card-Bob_S3_2.pdf",
	}, names)
}

func TestExporter_RenderArchive(t *testing.T) {
	defer goleak.VerifyNone(t)

	batch := report.Batch{ID: "b1", FileName: "Grade 10A Marks.csv"}
	for i, name := range []string{"Alice", "Bob", "Cara", "Dumi", "Emma", "Femi"} {
		batch.Students = append(batch.Students, student(name, name, "S"+string(rune('1'+i))))
	}

	var buf bytes.Buffer
	require.NoError(t, newTestExporter().RenderArchive(context.Background(), &buf, school, batch))

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	require.Len(t, zr.File, len(batch.Students))
	for i, f := range zr.File {
		assert.Equal(t, CardFileName(batch.Students[i]), f.Name)

		rc, err := f.Open()
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		_ = rc.Close()
		require.NoError(t, err)
		assert.True(t, bytes.HasPrefix(data, []byte("%PDF-")))
		assert.Contains(t, string(data), "Surname & Name of Learner:")
	}
}

func TestExporter_RenderArchive_canceled(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	batch := report.Batch{ID: "b1", Students: []report.StudentRecord{student("s1", "Alice", "S1")}}
	var buf bytes.Buffer
	err := newTestExporter().RenderArchive(ctx, &buf, school, batch)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, buf.Len())
}

func TestExporter_RenderArchive_empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, newTestExporter().RenderArchive(context.Background(), &buf, school, report.Batch{ID: "b0"}))
	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	assert.Empty(t, zr.File)
}
