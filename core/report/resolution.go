package report

import (
	"bytes"
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

// Resolver maps the header of a mark sheet to the roles ingestion needs.
// sample holds the header line and up to 4 data rows.
type Resolver interface {
	ResolveColumns(ctx context.Context, filename, sample string) (ColumnResolution, error)
}

// ColumnResolution names the columns holding each role, plus the grade and class of the whole file.
type ColumnResolution struct {
	NameColumn      string   `json:"nameColumn"`
	LearnerIDColumn string   `json:"learnerIdColumn"`
	SubjectColumns  []string `json:"subjectColumns"`
	Grade           string   `json:"grade"`
	ClassName       string   `json:"className"`
}

var (
	gradeRegex = regexp.MustCompile(`(?i)\b(?:grade|gr)[\s.-]*(\d{1,2})(?:[\s.-]*([a-z]))?\b`)
	classRegex = regexp.MustCompile(`(?i)\bclass[\s.-]+([a-z0-9]{1,10})\b`)
)

// FilenameHint extracts the grade and class embedded in a file name, e.g. "Grade 10A Marks.csv" gives "10" and "A".
// Either value is "" when the name does not carry it.
func FilenameHint(filename string) (grade, className string) {
	base := filename
	if i := strings.LastIndex(base, "."); i > 0 {
		base = base[:i]
	}
	base = strings.ReplaceAll(base, "_", " ")
	if m := gradeRegex.FindStringSubmatch(base); m != nil {
		grade = m[1]
		className = strings.ToUpper(m[2])
	}
	if className == "" {
		if m := classRegex.FindStringSubmatch(base); m != nil {
			className = strings.ToUpper(m[1])
		}
	}
	return grade, className
}

// WithFilenameHint returns res with the grade and class found in filename taking precedence.
func (res ColumnResolution) WithFilenameHint(filename string) ColumnResolution {
	grade, className := FilenameHint(filename)
	if grade != "" {
		res.Grade = grade
	}
	if className != "" {
		res.ClassName = className
	}
	return res
}

// contract checks that res names one name column, one learner ID column and at least one subject column.
// Repeated subject columns are collapsed, keeping the first occurrence.
// Column names are kept as written: they must match the header cells exactly.
func (res ColumnResolution) contract() (ColumnResolution, error) {
	res.Grade = strings.TrimSpace(res.Grade)
	res.ClassName = strings.TrimSpace(res.ClassName)

	switch {
	case strings.TrimSpace(res.NameColumn) == "":
		return res, errors.New("no name column")
	case strings.TrimSpace(res.LearnerIDColumn) == "":
		return res, errors.New("no learner ID column")
	}

	seen := make(map[string]bool, len(res.SubjectColumns))
	subjects := make([]string, 0, len(res.SubjectColumns))
	for _, col := range res.SubjectColumns {
		if strings.TrimSpace(col) == "" || seen[col] {
			continue
		}
		seen[col] = true
		subjects = append(subjects, col)
	}
	if len(subjects) == 0 {
		return res, errors.New("no subject columns")
	}
	res.SubjectColumns = subjects
	return res, nil
}

// columns lists every column named by res in role order.
func (res ColumnResolution) columns() []string {
	cols := make([]string, 0, len(res.SubjectColumns)+2)
	cols = append(cols, res.NameColumn, res.LearnerIDColumn)
	return append(cols, res.SubjectColumns...)
}

// rawResolution uses pointers to tell missing members from empty ones.
type rawResolution struct {
	NameColumn      *string   `json:"nameColumn"`
	LearnerIDColumn *string   `json:"learnerIdColumn"`
	SubjectColumns  *[]string `json:"subjectColumns"`
	Grade           *string   `json:"grade"`
	ClassName       *string   `json:"className"`
}

// DecodeResolution strictly decodes a resolver response: a JSON object with exactly the
// ColumnResolution members, all strings except subjectColumns which is an array of strings.
func DecodeResolution(data []byte) (ColumnResolution, error) {
	data = bytes.TrimSpace(data)
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var raw rawResolution
	if err := dec.Decode(&raw); err != nil {
		return ColumnResolution{}, errors.Wrap(err, "decoding column resolution")
	}
	if dec.More() {
		return ColumnResolution{}, errors.New("decoding column resolution: trailing data")
	}

	var missing []string
	if raw.NameColumn == nil {
		missing = append(missing, "nameColumn")
	}
	if raw.LearnerIDColumn == nil {
		missing = append(missing, "learnerIdColumn")
	}
	if raw.SubjectColumns == nil {
		missing = append(missing, "subjectColumns")
	}
	if raw.Grade == nil {
		missing = append(missing, "grade")
	}
	if raw.ClassName == nil {
		missing = append(missing, "className")
	}
	if len(missing) > 0 {
		return ColumnResolution{}, errors.Errorf("decoding column resolution: missing %s", strings.Join(missing, ", "))
	}

	return ColumnResolution{
		NameColumn:      *raw.NameColumn,
		LearnerIDColumn: *raw.LearnerIDColumn,
		SubjectColumns:  *raw.SubjectColumns,
		Grade:           *raw.Grade,
		ClassName:       *raw.ClassName,
	}, nil
}
