package report

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/reportcardpro/backend/core/grading"
)

// Defaults applied to every new StudentRecord.
const (
	DefaultComments = "Achieved"
	DefaultTerm     = "3"
	DateLayout      = "2006-01-02"
)

// Session identifies the account an operation acts for.
type Session struct {
	AccountID string
}

// Subject is one mark of a StudentRecord. Its code is derived from Score on every read.
// A cell that was empty or not a number leaves Score invalid: it reads and serializes as score 0 with code 0.
type Subject struct {
	Name  string
	Score null.Int
}

// NewSubject builds a Subject from a raw cell value.
func NewSubject(name, raw string) Subject {
	return Subject{Name: name, Score: ParseScore(raw)}
}

// Code returns the achievement code of the score, 0 when there is no score.
func (s Subject) Code() int {
	if !s.Score.Valid {
		return 0
	}
	return grading.AchievementCode(s.Score.Int)
}

// Value returns the score, 0 when there is none.
func (s Subject) Value() int {
	return s.Score.Int
}

type subjectJSON struct {
	Name  string   `json:"name"`
	Score null.Int `json:"score"`
	Code  null.Int `json:"code"`
}

func (s Subject) MarshalJSON() ([]byte, error) {
	return json.Marshal(subjectJSON{Name: s.Name, Score: null.IntFrom(s.Value()), Code: null.IntFrom(s.Code())})
}

// UnmarshalJSON derives the code from the score and ignores any other "code" member.
// A score of 0 with code 0 is how an unparsed score is written, and decodes back to one,
// since a real 0 always gets code 1.
func (s *Subject) UnmarshalJSON(data []byte) error {
	var sj subjectJSON
	if err := json.Unmarshal(data, &sj); err != nil {
		return err
	}
	s.Name = sj.Name
	s.Score = sj.Score
	if sj.Score.Valid && sj.Score.Int == 0 && sj.Code.Valid && sj.Code.Int == 0 {
		s.Score = null.Int{}
	}
	return nil
}

// ParseScore reads the leading integer of raw ("72.5" and "72%" both give 72).
// Anything without leading digits gives an invalid null.Int. Out of range values saturate.
func ParseScore(raw string) null.Int {
	raw = strings.TrimSpace(raw)
	end := 0
	if end < len(raw) && (raw[end] == '-' || raw[end] == '+') {
		end++
	}
	digits := end
	for end < len(raw) && raw[end] >= '0' && raw[end] <= '9' {
		end++
	}
	if end == digits {
		return null.Int{}
	}
	score, err := strconv.Atoi(raw[:end])
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return null.Int{}
	}
	return null.IntFrom(score)
}

type StudentRecord struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	LearnerID  string    `json:"learnerId"`
	Subjects   []Subject `json:"subjects"`
	Comments   string    `json:"comments"`
	GradeLevel string    `json:"gradeLevel"`
	Term       string    `json:"term"`
	Year       int       `json:"year"`
	DateIssued string    `json:"dateIssued"` // YYYY-MM-DD
}

// Subject returns the subject named name.
func (s *StudentRecord) Subject(name string) (*Subject, bool) {
	for i := range s.Subjects {
		if s.Subjects[i].Name == name {
			return &s.Subjects[i], true
		}
	}
	return nil, false
}

type Batch struct {
	ID         string          `json:"id"`
	FileName   string          `json:"fileName"`
	UploadDate time.Time       `json:"uploadDate"`
	Grade      string          `json:"grade"`
	ClassName  string          `json:"className"`
	Students   []StudentRecord `json:"students"`
}

// Student returns the index of the student with the given id, -1 if absent.
func (b *Batch) Student(id string) int {
	for i := range b.Students {
		if b.Students[i].ID == id {
			return i
		}
	}
	return -1
}

// BatchSummary is a Batch without its students, used in listings.
type BatchSummary struct {
	ID           string    `json:"id"`
	FileName     string    `json:"fileName"`
	UploadDate   time.Time `json:"uploadDate"`
	Grade        string    `json:"grade"`
	ClassName    string    `json:"className"`
	StudentCount int       `json:"studentCount"`
}

func (b Batch) Summary() BatchSummary {
	return BatchSummary{
		ID:           b.ID,
		FileName:     b.FileName,
		UploadDate:   b.UploadDate,
		Grade:        b.Grade,
		ClassName:    b.ClassName,
		StudentCount: len(b.Students),
	}
}

// GradeGroup gathers the batches of one grade.
type GradeGroup struct {
	Label   string         `json:"label"` // "Grade <grade>"
	Grade   string         `json:"grade"`
	Batches []BatchSummary `json:"batches"`
}

type Stats struct {
	Batches     int `json:"batches"`
	ReportCards int `json:"reportCards"`
}

// StudentUpdate holds the editable fields of a StudentRecord. Nil fields are left untouched.
// Scores are raw values keyed by subject name, parsed like uploaded cells.
type StudentUpdate struct {
	Name      *string           `json:"name" validate:"omitnil,notblank"`
	LearnerID *string           `json:"learnerId" validate:"omitnil,notblank"`
	Comments  *string           `json:"comments"`
	Scores    map[string]string `json:"scores"`
}
