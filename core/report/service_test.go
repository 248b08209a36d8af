package report_test

import (
	"context"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reportcardpro/backend/core"
	"github.com/reportcardpro/backend/core/report"
	resolversvc "github.com/reportcardpro/backend/services/resolver"
	"github.com/reportcardpro/backend/storage/database/inmem"
	"github.com/reportcardpro/backend/tests"
)

type resolverFunc func(ctx context.Context, filename, sample string) (report.ColumnResolution, error)

func (f resolverFunc) ResolveColumns(ctx context.Context, filename, sample string) (report.ColumnResolution, error) {
	return f(ctx, filename, sample)
}

var marksCSV = "Name,ID,Math,English\nAlice,S1,95,71\nBob,S2,40,\n,S3,70,60\n"

func marksResolution() report.ColumnResolution {
	return report.ColumnResolution{
		NameColumn:      "Name",
		LearnerIDColumn: "ID",
		SubjectColumns:  []string{"Math", "English"},
		Grade:           "Grade 10",
		ClassName:       "10A",
	}
}

func setup(t *testing.T, resolver report.Resolver, conf ...*core.Config) (*report.Service, report.Repository) {
	t.Helper()
	cfg := core.NewTestConfig()
	if len(conf) > 0 {
		cfg = conf[0]
	}
	repo := inmemdb.NewBatchRepository(inmemdb.Open())
	validate, _ := core.NewValidator()
	svc, err := report.NewService(repo, resolver, validate, testutil.NewLogger(t), cfg)
	require.NoError(t, err)
	svc.SetNormalizer(newTestNormalizer())
	return svc, repo
}

func TestNewService_requiresDeps(t *testing.T) {
	validate, _ := core.NewValidator()
	_, err := report.NewService(nil, &testutil.FakeResolver{}, validate, testutil.NewLogger(t), core.NewTestConfig())
	assert.Error(t, err)
	_, err = report.NewService(inmemdb.NewBatchRepository(inmemdb.Open()), nil, validate, testutil.NewLogger(t), core.NewTestConfig())
	assert.Error(t, err)
}

func TestNewService_disabledResolver(t *testing.T) {
	validate, _ := core.NewValidator()
	svc, err := report.NewService(inmemdb.NewBatchRepository(inmemdb.Open()), resolversvc.Disabled{}, validate, testutil.NewLogger(t), core.NewTestConfig())
	require.NoError(t, err)

	_, err = svc.Ingest(context.Background(), report.Session{AccountID: "acc"}, report.Upload{FileName: "m.csv", Data: []byte(marksCSV)})
	assert.Equal(t, report.KindResolution, report.KindOf(err))
	assert.ErrorIs(t, err, resolversvc.ErrNotConfigured)
}

func TestService_Ingest(t *testing.T) {
	ctx := context.Background()
	resolver := &testutil.FakeResolver{Resolution: marksResolution()}
	svc, repo := setup(t, resolver)
	sess := report.Session{AccountID: "acc-1"}

	batch, err := svc.Ingest(ctx, sess, report.Upload{FileName: "Grade 10A Marks.csv", Data: []byte(marksCSV)})
	require.NoError(t, err)

	assert.Equal(t, "Grade 10A Marks.csv", batch.FileName)
	assert.Equal(t, "10", batch.Grade)
	assert.Equal(t, "A", batch.ClassName)
	require.Len(t, batch.Students, 2)
	assert.Equal(t, "Alice", batch.Students[0].Name)
	assert.Equal(t, "10 A", batch.Students[0].GradeLevel)
	assert.Equal(t, 7, batch.Students[0].Subjects[0].Code())
	assert.Equal(t, 5, batch.Students[0].Subjects[1].Code())
	assert.Equal(t, 0, batch.Students[1].Subjects[1].Code())

	calls := resolver.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "Grade 10A Marks.csv", calls[0].FileName)
	assert.Equal(t, "Name,ID,Math,English\nAlice,S1,95,71\nBob,S2,40,\n,S3,70,60\n", calls[0].Sample)

	stored, err := repo.LoadBatches(ctx, sess.AccountID)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, batch.ID, stored[0].ID)

	// a second upload is appended
	second, err := svc.Ingest(ctx, sess, report.Upload{FileName: "marks.CSV", Data: []byte(marksCSV)})
	require.NoError(t, err)
	assert.Equal(t, "Grade 10", second.Grade)
	assert.Equal(t, "10A", second.ClassName)

	batches, err := svc.List(ctx, sess)
	require.NoError(t, err)
	require.Len(t, batches, 2)
	assert.Equal(t, []string{batch.ID, second.ID}, []string{batches[0].ID, batches[1].ID})

	// accounts are isolated
	batches, err = svc.List(ctx, report.Session{AccountID: "acc-2"})
	require.NoError(t, err)
	assert.NotNil(t, batches)
	assert.Empty(t, batches)
}

func TestService_Ingest_paddedHeaders(t *testing.T) {
	ctx := context.Background()
	res := report.ColumnResolution{
		NameColumn:      "Learner Name ",
		LearnerIDColumn: " ID",
		SubjectColumns:  []string{"Math "},
		Grade:           "9",
		ClassName:       "A",
	}
	svc, _ := setup(t, &testutil.FakeResolver{Resolution: res})
	sess := report.Session{AccountID: "acc"}

	batch, err := svc.Ingest(ctx, sess, report.Upload{FileName: "marks.csv", Data: []byte("Learner Name , ID,Math \nAlice,S1,95\n")})
	require.NoError(t, err)
	require.Len(t, batch.Students, 1)
	assert.Equal(t, "Alice", batch.Students[0].Name)
	assert.Equal(t, "S1", batch.Students[0].LearnerID)
	assert.Equal(t, "Math ", batch.Students[0].Subjects[0].Name)
	assert.Equal(t, 7, batch.Students[0].Subjects[0].Code())

	// names are matched exactly
	res.NameColumn = "Learner Name"
	svc, _ = setup(t, &testutil.FakeResolver{Resolution: res})
	_, err = svc.Ingest(ctx, sess, report.Upload{FileName: "marks.csv", Data: []byte("Learner Name , ID,Math \nAlice,S1,95\n")})
	var iErr *report.IngestError
	require.ErrorAs(t, err, &iErr)
	assert.Equal(t, report.KindStructuralMismatch, iErr.Kind)
	assert.Equal(t, []string{"Learner Name"}, iErr.Missing)
}

func TestService_Ingest_sampleIsLimited(t *testing.T) {
	resolver := &testutil.FakeResolver{Resolution: marksResolution()}
	svc, _ := setup(t, resolver)

	data := "Name,ID,Math,English\nA,1,1,1\nB,2,2,2\nC,3,3,3\nD,4,4,4\nE,5,5,5\nF,6,6,6\n"
	batch, err := svc.Ingest(context.Background(), report.Session{AccountID: "acc"}, report.Upload{FileName: "m.csv", Data: []byte(data)})
	require.NoError(t, err)
	assert.Len(t, batch.Students, 6)
	assert.Equal(t, "Name,ID,Math,English\nA,1,1,1\nB,2,2,2\nC,3,3,3\nD,4,4,4", resolver.Calls()[0].Sample)
}

func TestService_Ingest_errors(t *testing.T) {
	noSubjects := marksResolution()
	noSubjects.SubjectColumns = nil
	unknownColumn := marksResolution()
	unknownColumn.SubjectColumns = []string{"Math", "Physics"}

	tests := []struct {
		name        string
		upload      report.Upload
		resolution  *report.ColumnResolution
		resolverErr error
		wantKind    report.Kind
		wantMsg     string
		wantMissing []string
		wantCalls   int
	}{
		{
			name:     "unsupported extension",
			upload:   report.Upload{FileName: "marks.pdf", Data: []byte(marksCSV)},
			wantKind: report.KindUnsupportedInput, wantMsg: report.MsgUnsupportedInput,
		},
		{
			name:     "empty file",
			upload:   report.Upload{FileName: "marks.csv", Data: []byte(" \n\n")},
			wantKind: report.KindRead, wantMsg: report.MsgEmptyFile,
		},
		{
			name:     "not text",
			upload:   report.Upload{FileName: "marks.csv", Data: []byte{0xff, 0xfe, 0x00, 0x41}},
			wantKind: report.KindRead, wantMsg: report.MsgReadFailure,
		},
		{
			name:     "broken spreadsheet",
			upload:   report.Upload{FileName: "marks.xlsx", Data: []byte("not a zip")},
			wantKind: report.KindRead, wantMsg: report.MsgReadFailure,
		},
		{
			name:     "malformed rows",
			upload:   report.Upload{FileName: "marks.csv", Data: []byte("Name,ID,Math\nAlice,S1\n")},
			wantKind: report.KindParse, wantMsg: report.MsgParseFailure,
		},
		{
			name:        "resolver failure",
			upload:      report.Upload{FileName: "marks.csv", Data: []byte(marksCSV)},
			resolverErr: errors.New("connection reset"),
			wantKind:    report.KindResolution, wantMsg: report.MsgResolverFailure, wantCalls: 1,
		},
		{
			name:        "invalid resolver answer",
			upload:      report.Upload{FileName: "marks.csv", Data: []byte(marksCSV)},
			resolverErr: errors.Wrap(report.ErrInvalidResolution, "not json"),
			wantKind:    report.KindResolution, wantMsg: report.MsgInvalidResolution, wantCalls: 1,
		},
		{
			name:       "resolution without subjects",
			upload:     report.Upload{FileName: "marks.csv", Data: []byte(marksCSV)},
			resolution: &noSubjects,
			wantKind:   report.KindResolution, wantMsg: report.MsgInvalidResolution, wantCalls: 1,
		},
		{
			name:       "column not in headers",
			upload:     report.Upload{FileName: "marks.csv", Data: []byte(marksCSV)},
			resolution: &unknownColumn,
			wantKind:   report.KindStructuralMismatch, wantMsg: report.MsgStructureMismatch,
			wantMissing: []string{"Physics"}, wantCalls: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			res := marksResolution()
			if tt.resolution != nil {
				res = *tt.resolution
			}
			resolver := &testutil.FakeResolver{Resolution: res, Err: tt.resolverErr}
			svc, repo := setup(t, resolver)
			sess := report.Session{AccountID: "acc"}

			_, err := svc.Ingest(ctx, sess, tt.upload)
			var iErr *report.IngestError
			require.ErrorAs(t, err, &iErr)
			assert.Equal(t, tt.wantKind, iErr.Kind)
			assert.Equal(t, tt.wantKind, report.KindOf(err))
			assert.Equal(t, tt.wantMsg, iErr.Message)
			assert.Equal(t, tt.wantMissing, iErr.Missing)
			assert.Len(t, resolver.Calls(), tt.wantCalls)

			stored, err := repo.LoadBatches(ctx, sess.AccountID)
			require.NoError(t, err)
			assert.Empty(t, stored)
		})
	}
}

func TestService_Ingest_resolverTimeout(t *testing.T) {
	conf := core.NewTestConfig()
	conf.Resolver.Timeout = 20 * time.Millisecond
	blocking := resolverFunc(func(ctx context.Context, _, _ string) (report.ColumnResolution, error) {
		<-ctx.Done()
		return report.ColumnResolution{}, ctx.Err()
	})
	svc, _ := setup(t, blocking, conf)

	_, err := svc.Ingest(context.Background(), report.Session{AccountID: "acc"}, report.Upload{FileName: "m.csv", Data: []byte(marksCSV)})
	assert.Equal(t, report.KindResolution, report.KindOf(err))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func ingest(t *testing.T, svc *report.Service, sess report.Session, fileName string) report.Batch {
	t.Helper()
	batch, err := svc.Ingest(context.Background(), sess, report.Upload{FileName: fileName, Data: []byte(marksCSV)})
	require.NoError(t, err)
	return batch
}

func TestService_GetAndDelete(t *testing.T) {
	ctx := context.Background()
	svc, _ := setup(t, &testutil.FakeResolver{Resolution: marksResolution()})
	sess := report.Session{AccountID: "acc"}

	b1 := ingest(t, svc, sess, "Grade 10A.csv")
	b2 := ingest(t, svc, sess, "Grade 10B.csv")

	got, err := svc.Get(ctx, sess, b2.ID)
	require.NoError(t, err)
	assert.Equal(t, "B", got.ClassName)

	_, err = svc.Get(ctx, report.Session{AccountID: "other"}, b2.ID)
	assert.Equal(t, report.ErrBatchNotFound, err)

	student, err := svc.GetStudent(ctx, sess, b1.ID, b1.Students[1].ID)
	require.NoError(t, err)
	assert.Equal(t, "Bob", student.Name)
	_, err = svc.GetStudent(ctx, sess, b1.ID, "unknown")
	assert.Equal(t, report.ErrStudentNotFound, err)

	require.NoError(t, svc.Delete(ctx, sess, b1.ID))
	assert.Equal(t, report.ErrBatchNotFound, svc.Delete(ctx, sess, b1.ID))

	batches, err := svc.List(ctx, sess)
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, b2.ID, batches[0].ID)
}

func TestService_UpdateStudent(t *testing.T) {
	ctx := context.Background()
	svc, _ := setup(t, &testutil.FakeResolver{Resolution: marksResolution()})
	sess := report.Session{AccountID: "acc"}
	batch := ingest(t, svc, sess, "Grade 10A.csv")
	bob := batch.Students[1]

	strPtr := func(s string) *string { return &s }

	t.Run("scores and fields", func(t *testing.T) {
		got, err := svc.UpdateStudent(ctx, sess, batch.ID, bob.ID, report.StudentUpdate{
			Name:     strPtr(" Bob Mokoena "),
			Comments: strPtr("Progressed"),
			Scores:   map[string]string{"English": "45", "Math": "81"},
		})
		require.NoError(t, err)
		assert.Equal(t, "Bob Mokoena", got.Name)
		assert.Equal(t, "S2", got.LearnerID)
		assert.Equal(t, "Progressed", got.Comments)
		assert.Equal(t, 7, got.Subjects[0].Code())
		assert.Equal(t, 3, got.Subjects[1].Code())

		stored, err := svc.GetStudent(ctx, sess, batch.ID, bob.ID)
		require.NoError(t, err)
		assert.Equal(t, got, stored)
	})

	t.Run("score cleared", func(t *testing.T) {
		got, err := svc.UpdateStudent(ctx, sess, batch.ID, bob.ID, report.StudentUpdate{Scores: map[string]string{"English": ""}})
		require.NoError(t, err)
		assert.False(t, got.Subjects[1].Score.Valid)
		assert.Equal(t, 0, got.Subjects[1].Code())
	})

	t.Run("unknown subject", func(t *testing.T) {
		_, err := svc.UpdateStudent(ctx, sess, batch.ID, bob.ID, report.StudentUpdate{Scores: map[string]string{"Physics": "50", "Math": "10"}})
		var vErr *core.ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Equal(t, "scores.Physics", vErr.Fields[0].Field)

		stored, err := svc.GetStudent(ctx, sess, batch.ID, bob.ID)
		require.NoError(t, err)
		assert.Equal(t, 7, stored.Subjects[0].Code(), "nothing is saved on error")
	})

	t.Run("blank name", func(t *testing.T) {
		_, err := svc.UpdateStudent(ctx, sess, batch.ID, bob.ID, report.StudentUpdate{Name: strPtr("  ")})
		var vErrs validator.ValidationErrors
		require.ErrorAs(t, err, &vErrs)
		assert.Equal(t, "name", vErrs[0].Field())
	})

	t.Run("not found", func(t *testing.T) {
		_, err := svc.UpdateStudent(ctx, sess, "unknown", bob.ID, report.StudentUpdate{})
		assert.Equal(t, report.ErrBatchNotFound, err)
		_, err = svc.UpdateStudent(ctx, sess, batch.ID, "unknown", report.StudentUpdate{})
		assert.Equal(t, report.ErrStudentNotFound, err)
	})
}

func TestGroupByGrade(t *testing.T) {
	batches := []report.Batch{
		{ID: "1", Grade: "10", ClassName: "B"},
		{ID: "2", Grade: "R", ClassName: "A"},
		{ID: "3", Grade: "9", ClassName: "A", Students: []report.StudentRecord{{ID: "s"}}},
		{ID: "4", Grade: "10", ClassName: "A"},
		{ID: "5", Grade: "12", ClassName: ""},
	}
	groups := report.GroupByGrade(batches)

	var labels []string
	for _, g := range groups {
		labels = append(labels, g.Label)
	}
	assert.Equal(t, []string{"Grade 9", "Grade 10", "Grade 12", "Grade R"}, labels)
	assert.Equal(t, 1, groups[0].Batches[0].StudentCount)
	assert.Equal(t, "4", groups[1].Batches[0].ID)
	assert.Equal(t, "1", groups[1].Batches[1].ID)

	assert.Empty(t, report.GroupByGrade(nil))
}

func TestService_ClassReportsAndStats(t *testing.T) {
	ctx := context.Background()
	svc, _ := setup(t, &testutil.FakeResolver{Resolution: marksResolution()})
	sess := report.Session{AccountID: "acc"}

	stats, err := svc.Stats(ctx, sess)
	require.NoError(t, err)
	assert.Equal(t, report.Stats{}, stats)

	ingest(t, svc, sess, "Grade 11B.csv")
	ingest(t, svc, sess, "Grade 8C.csv")
	ingest(t, svc, sess, "Grade 11A.csv")

	groups, err := svc.ClassReports(ctx, sess)
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, "8", groups[0].Grade)
	assert.Equal(t, "11", groups[1].Grade)
	assert.Equal(t, "A", groups[1].Batches[0].ClassName)

	stats, err = svc.Stats(ctx, sess)
	require.NoError(t, err)
	assert.Equal(t, report.Stats{Batches: 3, ReportCards: 6}, stats)
}
