package report

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies the reasons an ingestion is aborted.
type Kind int

const (
	KindUnsupportedInput Kind = iota + 1
	KindRead
	KindResolution
	KindStructuralMismatch
	KindParse
)

func (k Kind) String() string {
	switch k {
	case KindUnsupportedInput:
		return "unsupported input"
	case KindRead:
		return "read failure"
	case KindResolution:
		return "resolution failure"
	case KindStructuralMismatch:
		return "structural mismatch"
	case KindParse:
		return "parse failure"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// User facing messages.
const (
	MsgUnsupportedInput  = "Unsupported file type. Please upload a CSV or XLSX file."
	MsgEmptyFile         = "File is empty or could not be read."
	MsgReadFailure       = "Failed to read the file."
	MsgInvalidResolution = "The AI failed to return a valid file structure. Please ensure your file has clear headers and try again."
	MsgResolverFailure   = "An AI analysis error occurred. Please try again or check your file format."
	MsgStructureMismatch = "The structure identified by the AI does not match the file headers. Please check your file."
	MsgParseFailure      = "Error parsing data. Please check the file format."
)

var (
	ErrBatchNotFound   = errors.New("batch not found")
	ErrStudentNotFound = errors.New("student not found")

	// ErrInvalidResolution is wrapped by resolvers whose service answered with an unusable structure.
	ErrInvalidResolution = errors.New("invalid column resolution")
)

// IngestError aborts an ingestion. Message is safe to show to the user.
type IngestError struct {
	Kind    Kind
	Message string
	Missing []string // columns absent from the headers, for KindStructuralMismatch
	Err     error
}

func (e *IngestError) Error() string {
	if e.Err == nil {
		return e.Kind.String() + ": " + e.Message
	}
	return e.Kind.String() + ": " + e.Err.Error()
}

func (e *IngestError) Unwrap() error { return e.Err }

func newIngestError(kind Kind, msg string, err error) *IngestError {
	return &IngestError{Kind: kind, Message: msg, Err: err}
}

// KindOf returns the Kind of the IngestError in err's chain, 0 if there is none.
func KindOf(err error) Kind {
	var iErr *IngestError
	if errors.As(err, &iErr) {
		return iErr.Kind
	}
	return 0
}
