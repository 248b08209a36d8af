package testutil

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/reportcardpro/backend/core"
	"github.com/reportcardpro/backend/core/report"
	"github.com/reportcardpro/backend/core/user"
	"github.com/reportcardpro/backend/storage/database"
)

// PrepareDB opens a migrated private in-memory SQLite database, closed at the end of the test.
func PrepareDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := database.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err = database.Migrate(db); err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	return db
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, email, pwd string,
	createdAt ...time.Time,
) user.User {
	t.Helper()
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		ID:        uuid.NewString(),
		Name:      name,
		Email:     email,
		School:    "Test High School",
		Province:  "Western Cape",
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("createUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("createUser() failed: %v", err)
	}
	return usr
}

// FakeResolver answers every call with Resolution and Err, recording the calls it receives.
type FakeResolver struct {
	Resolution report.ColumnResolution
	Err        error

	mu    sync.Mutex
	calls []ResolveCall
}

type ResolveCall struct {
	FileName string
	Sample   string
}

var _ report.Resolver = (*FakeResolver)(nil)

func (r *FakeResolver) ResolveColumns(ctx context.Context, filename, sample string) (report.ColumnResolution, error) {
	r.mu.Lock()
	r.calls = append(r.calls, ResolveCall{FileName: filename, Sample: sample})
	r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return report.ColumnResolution{}, err
	}
	if r.Err != nil {
		return report.ColumnResolution{}, r.Err
	}
	res := r.Resolution
	res.SubjectColumns = append([]string(nil), res.SubjectColumns...)
	return res, nil
}

func (r *FakeResolver) Calls() []ResolveCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ResolveCall(nil), r.calls...)
}

// SequentialIDs returns an id generator yielding "<prefix>1", "<prefix>2", ...
func SequentialIDs(prefix string) func() string {
	var (
		mu sync.Mutex
		n  int
	)
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return prefix + strconv.Itoa(n)
	}
}

// FixedClock returns a clock always reading t.
func FixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// Logger writes to the test log through zap.
type Logger struct {
	std *zap.SugaredLogger
}

var _ core.Logger = (*Logger)(nil)

func NewLogger(t *testing.T) *Logger {
	return &Logger{std: zaptest.NewLogger(t).Sugar()}
}

func (l *Logger) Debug(msg string, args ...interface{}) { l.std.Debugw(msg, fields(args)...) }
func (l *Logger) Info(msg string, args ...interface{})  { l.std.Infow(msg, fields(args)...) }
func (l *Logger) Warn(msg string, args ...interface{})  { l.std.Warnw(msg, fields(args)...) }
func (l *Logger) Error(msg string, args ...interface{}) { l.std.Errorw(msg, fields(args)...) }
func (l *Logger) Fatal(msg string, args ...interface{}) { l.std.Errorw(msg, fields(args)...) }

func fields(args []interface{}) []interface{} {
	flds := make([]interface{}, 0, 2*len(args))
	for _, arg := range args {
		if m, ok := arg.(map[string]interface{}); ok {
			for k, v := range m {
				flds = append(flds, k, v)
			}
			continue
		}
		flds = append(flds, "extra", arg)
	}
	return flds
}
