package report_test

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"github.com/reportcardpro/backend/core/report"
)

func TestParseScore(t *testing.T) {
	tests := []struct {
		raw  string
		want null.Int
	}{
		{"95", null.IntFrom(95)},
		{" 71 ", null.IntFrom(71)},
		{"72.5", null.IntFrom(72)},
		{"72%", null.IntFrom(72)},
		{"0", null.IntFrom(0)},
		{"-5", null.IntFrom(-5)},
		{"120", null.IntFrom(120)},
		{"", null.Int{}},
		{"absent", null.Int{}},
		{"-", null.Int{}},
		{"%50", null.Int{}},
		{"99999999999999999999999", null.IntFrom(math.MaxInt)},
		{"-99999999999999999999999", null.IntFrom(math.MinInt)},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, report.ParseScore(tt.raw))
		})
	}
}

func TestSubject_Code(t *testing.T) {
	assert.Equal(t, 7, report.NewSubject("Math", "95").Code())
	assert.Equal(t, 1, report.NewSubject("Math", "0").Code())
	assert.Equal(t, 0, report.NewSubject("Math", "").Code())
	assert.Equal(t, 0, report.NewSubject("Math", "").Value())
}

func TestSubject_JSON(t *testing.T) {
	data, err := json.Marshal([]report.Subject{report.NewSubject("Math", "65"), report.NewSubject("Art", "")})
	require.NoError(t, err)
	assert.JSONEq(t, `[{"name":"Math","score":65,"code":5},{"name":"Art","score":0,"code":0}]`, string(data))

	var subs []report.Subject
	require.NoError(t, json.Unmarshal(data, &subs))
	assert.Equal(t, []report.Subject{report.NewSubject("Math", "65"), report.NewSubject("Art", "")}, subs)

	// a real zero keeps its code
	data, err = json.Marshal(report.NewSubject("Math", "0"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"Math","score":0,"code":1}`, string(data))
	var zero report.Subject
	require.NoError(t, json.Unmarshal(data, &zero))
	assert.Equal(t, null.IntFrom(0), zero.Score)

	// the code sent by a client never overrides the score's
	var sub report.Subject
	require.NoError(t, json.Unmarshal([]byte(`{"name":"Math","score":81,"code":2}`), &sub))
	assert.Equal(t, null.IntFrom(81), sub.Score)
	assert.Equal(t, 7, sub.Code())
}

func TestBatch_Summary(t *testing.T) {
	b := report.Batch{
		ID: "b1", FileName: "f.csv", Grade: "9", ClassName: "A",
		Students: []report.StudentRecord{{ID: "s1"}, {ID: "s2"}},
	}
	sum := b.Summary()
	assert.Equal(t, 2, sum.StudentCount)
	assert.Equal(t, "f.csv", sum.FileName)
	assert.Equal(t, 1, b.Student("s2"))
	assert.Equal(t, -1, b.Student("s3"))
}
