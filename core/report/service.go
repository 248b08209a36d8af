package report

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/reportcardpro/backend/core"
	"github.com/reportcardpro/backend/core/tabular"
)

// Repository persists the batch collection of each account as a whole.
// SaveBatches replaces the stored collection; LoadBatches returns it in saved order.
type Repository interface {
	LoadBatches(ctx context.Context, accountID string) ([]Batch, error)
	SaveBatches(ctx context.Context, accountID string, batches []Batch) error
}

// Upload is a mark sheet received from a teacher.
type Upload struct {
	FileName string
	Data     []byte
}

type Service struct {
	repo           Repository
	resolver       Resolver
	normalizer     Normalizer
	validate       *validator.Validate
	logger         core.Logger
	resolveTimeout time.Duration
}

func NewService(repo Repository, resolver Resolver, validate *validator.Validate, logger core.Logger, conf *core.Config) (*Service, error) {
	if resolver == nil {
		return nil, errors.New("resolver is required")
	}
	err := vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(validate, "validate"),
		vala.IsNotNil(logger, "logger"),
		vala.IsNotNil(conf, "conf"),
	).Check()
	if err != nil {
		return nil, err
	}
	return &Service{
		repo:           repo,
		resolver:       resolver,
		normalizer:     NewNormalizer(),
		validate:       validate,
		logger:         logger,
		resolveTimeout: conf.Resolver.Timeout,
	}, nil
}

// SetNormalizer replaces the normalizer, mostly to pin ids and clock in tests.
func (svc *Service) SetNormalizer(n Normalizer) { svc.normalizer = n }

// Ingest turns an uploaded mark sheet into a new Batch appended to the session account's collection.
// Every failure aborts the whole ingestion: either the batch is saved with all its students or nothing is.
func (svc *Service) Ingest(ctx context.Context, sess Session, up Upload) (Batch, error) {
	if !tabular.Supported(up.FileName) {
		return Batch{}, newIngestError(KindUnsupportedInput, MsgUnsupportedInput,
			errors.Errorf("extension %q not accepted", tabular.Extension(up.FileName)))
	}

	text, err := tabular.Decode(up.FileName, up.Data)
	if err != nil {
		msg := MsgReadFailure
		if err == tabular.ErrEmpty {
			msg = MsgEmptyFile
		}
		return Batch{}, newIngestError(KindRead, msg, err)
	}

	tbl, err := tabular.Parse(text)
	if err != nil {
		if err == tabular.ErrEmpty {
			return Batch{}, newIngestError(KindRead, MsgEmptyFile, err)
		}
		return Batch{}, newIngestError(KindParse, MsgParseFailure, err)
	}

	res, err := svc.resolve(ctx, up.FileName, tabular.Sample(text, tabular.SampleLines))
	if err != nil {
		return Batch{}, err
	}

	batch, err := svc.normalizer.Normalize(up.FileName, tbl, res)
	if err != nil {
		return Batch{}, err
	}

	batches, err := svc.repo.LoadBatches(ctx, sess.AccountID)
	if err != nil {
		return Batch{}, errors.Wrap(err, "loading batches")
	}
	if err = svc.repo.SaveBatches(ctx, sess.AccountID, append(batches, batch)); err != nil {
		return Batch{}, errors.Wrap(err, "saving batches")
	}

	svc.logger.Info("batch ingested", map[string]interface{}{
		"account":  sess.AccountID,
		"batch":    batch.ID,
		"file":     batch.FileName,
		"students": len(batch.Students),
		"rows":     len(tbl.Rows),
	})
	return batch, nil
}

func (svc *Service) resolve(ctx context.Context, fileName, sample string) (ColumnResolution, error) {
	if svc.resolveTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, svc.resolveTimeout)
		defer cancel()
	}

	res, err := svc.resolver.ResolveColumns(ctx, fileName, sample)
	if err != nil {
		msg := MsgResolverFailure
		if errors.Is(err, ErrInvalidResolution) {
			msg = MsgInvalidResolution
		}
		return ColumnResolution{}, newIngestError(KindResolution, msg, err)
	}

	res, err = res.WithFilenameHint(fileName).contract()
	if err != nil {
		return ColumnResolution{}, newIngestError(KindResolution, MsgInvalidResolution, err)
	}
	return res, nil
}

// List returns the session account's batches in upload order.
func (svc *Service) List(ctx context.Context, sess Session) ([]Batch, error) {
	batches, err := svc.repo.LoadBatches(ctx, sess.AccountID)
	if err != nil {
		return nil, errors.Wrap(err, "loading batches")
	}
	if batches == nil {
		batches = []Batch{}
	}
	return batches, nil
}

func (svc *Service) Get(ctx context.Context, sess Session, batchID string) (Batch, error) {
	batches, err := svc.List(ctx, sess)
	if err != nil {
		return Batch{}, err
	}
	for _, b := range batches {
		if b.ID == batchID {
			return b, nil
		}
	}
	return Batch{}, ErrBatchNotFound
}

func (svc *Service) Delete(ctx context.Context, sess Session, batchID string) error {
	batches, err := svc.List(ctx, sess)
	if err != nil {
		return err
	}
	kept := make([]Batch, 0, len(batches))
	for _, b := range batches {
		if b.ID != batchID {
			kept = append(kept, b)
		}
	}
	if len(kept) == len(batches) {
		return ErrBatchNotFound
	}
	return errors.Wrap(svc.repo.SaveBatches(ctx, sess.AccountID, kept), "saving batches")
}

// UpdateStudent applies upd to one record of a batch and saves the collection.
func (svc *Service) UpdateStudent(ctx context.Context, sess Session, batchID, studentID string, upd StudentUpdate) (StudentRecord, error) {
	if err := svc.validate.Struct(upd); err != nil {
		return StudentRecord{}, err
	}

	batches, err := svc.List(ctx, sess)
	if err != nil {
		return StudentRecord{}, err
	}
	bi := -1
	for i := range batches {
		if batches[i].ID == batchID {
			bi = i
			break
		}
	}
	if bi < 0 {
		return StudentRecord{}, ErrBatchNotFound
	}
	si := batches[bi].Student(studentID)
	if si < 0 {
		return StudentRecord{}, ErrStudentNotFound
	}

	student := batches[bi].Students[si]
	student.Subjects = append([]Subject(nil), student.Subjects...)

	var unknown []core.FieldError
	for name, raw := range upd.Scores {
		sub, ok := student.Subject(name)
		if !ok {
			unknown = append(unknown, core.FieldError{Field: "scores." + name, Error: "unknown subject"})
			continue
		}
		sub.Score = ParseScore(raw)
	}
	if len(unknown) > 0 {
		sort.Slice(unknown, func(i, j int) bool { return unknown[i].Field < unknown[j].Field })
		return StudentRecord{}, core.NewValidationError(nil, unknown...)
	}

	if upd.Name != nil {
		student.Name = strings.TrimSpace(*upd.Name)
	}
	if upd.LearnerID != nil {
		student.LearnerID = strings.TrimSpace(*upd.LearnerID)
	}
	if upd.Comments != nil {
		student.Comments = *upd.Comments
	}

	batches[bi].Students[si] = student
	if err = svc.repo.SaveBatches(ctx, sess.AccountID, batches); err != nil {
		return StudentRecord{}, errors.Wrap(err, "saving batches")
	}
	return student, nil
}

func (svc *Service) GetStudent(ctx context.Context, sess Session, batchID, studentID string) (StudentRecord, error) {
	batch, err := svc.Get(ctx, sess, batchID)
	if err != nil {
		return StudentRecord{}, err
	}
	si := batch.Student(studentID)
	if si < 0 {
		return StudentRecord{}, ErrStudentNotFound
	}
	return batch.Students[si], nil
}

// ClassReports groups the batches by grade. Groups are ordered by grade, batches by class name.
func (svc *Service) ClassReports(ctx context.Context, sess Session) ([]GradeGroup, error) {
	batches, err := svc.List(ctx, sess)
	if err != nil {
		return nil, err
	}
	return GroupByGrade(batches), nil
}

func GroupByGrade(batches []Batch) []GradeGroup {
	idx := make(map[string]int)
	groups := make([]GradeGroup, 0)
	for _, b := range batches {
		i, ok := idx[b.Grade]
		if !ok {
			i = len(groups)
			idx[b.Grade] = i
			groups = append(groups, GradeGroup{Label: "Grade " + b.Grade, Grade: b.Grade})
		}
		groups[i].Batches = append(groups[i].Batches, b.Summary())
	}

	for _, g := range groups {
		sort.SliceStable(g.Batches, func(i, j int) bool { return g.Batches[i].ClassName < g.Batches[j].ClassName })
	}
	sort.SliceStable(groups, func(i, j int) bool { return gradeLess(groups[i].Grade, groups[j].Grade) })
	return groups
}

// gradeLess orders numeric grades numerically and before non-numeric ones.
func gradeLess(a, b string) bool {
	na, errA := strconv.Atoi(a)
	nb, errB := strconv.Atoi(b)
	switch {
	case errA == nil && errB == nil:
		return na < nb
	case errA == nil:
		return true
	case errB == nil:
		return false
	}
	return a < b
}

func (svc *Service) Stats(ctx context.Context, sess Session) (Stats, error) {
	batches, err := svc.List(ctx, sess)
	if err != nil {
		return Stats{}, err
	}
	stats := Stats{Batches: len(batches)}
	for _, b := range batches {
		stats.ReportCards += len(b.Students)
	}
	return stats, nil
}
