package report_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reportcardpro/backend/core/report"
)

func TestFilenameHint(t *testing.T) {
	tests := []struct {
		filename  string
		wantGrade string
		wantClass string
	}{
		{"Grade 10A Marks.csv", "10", "A"},
		{"grade_9_b.xlsx", "9", "B"},
		{"Gr.12-C term3.csv", "12", "C"},
		{"gr8.csv", "8", ""},
		{"Marks Class 7D.csv", "", "7D"},
		{"Grade 11 class blue.csv", "11", "BLUE"},
		{"grade 9 class b.csv", "9", "B"},
		{"grade 9b.csv", "9", "B"},
		{"Classroom marks.csv", "", ""},
		{"marks.csv", "", ""},
		{"Upgrade 5.csv", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			grade, class := report.FilenameHint(tt.filename)
			assert.Equal(t, tt.wantGrade, grade)
			assert.Equal(t, tt.wantClass, class)
		})
	}
}

func TestColumnResolution_WithFilenameHint(t *testing.T) {
	res := report.ColumnResolution{Grade: "Grd 10", ClassName: "10 A", NameColumn: "Name"}

	got := res.WithFilenameHint("Grade 10A Marks.csv")
	assert.Equal(t, "10", got.Grade)
	assert.Equal(t, "A", got.ClassName)
	assert.Equal(t, "Name", got.NameColumn)

	got = res.WithFilenameHint("marks.csv")
	assert.Equal(t, res, got)
}

func TestDecodeResolution(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		res, err := report.DecodeResolution([]byte(` {"nameColumn":"Name","learnerIdColumn":"ID",
			"subjectColumns":["Math","English"],"grade":"10","className":"A"}
		`))
		require.NoError(t, err)
		assert.Equal(t, report.ColumnResolution{
			NameColumn:      "Name",
			LearnerIDColumn: "ID",
			SubjectColumns:  []string{"Math", "English"},
			Grade:           "10",
			ClassName:       "A",
		}, res)
	})

	tests := []struct {
		name    string
		data    string
		wantErr string
	}{
		{"not json", "Sure! Here are the columns", "decoding column resolution"},
		{"array", `["Name"]`, "decoding column resolution"},
		{"wrong type", `{"nameColumn":1,"learnerIdColumn":"ID","subjectColumns":[],"grade":"","className":""}`, "decoding column resolution"},
		{"subjects not strings", `{"nameColumn":"N","learnerIdColumn":"ID","subjectColumns":[1],"grade":"","className":""}`, "decoding column resolution"},
		{"unknown member", `{"nameColumn":"N","learnerIdColumn":"ID","subjectColumns":[],"grade":"","className":"","extra":1}`, "unknown field"},
		{"missing members", `{"nameColumn":"N","subjectColumns":[]}`, "missing learnerIdColumn, grade, className"},
		{"trailing data", `{"nameColumn":"N","learnerIdColumn":"ID","subjectColumns":[],"grade":"","className":""} {}`, "trailing data"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := report.DecodeResolution([]byte(tt.data))
			if assert.Error(t, err) {
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}
