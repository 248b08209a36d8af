package exportsvc

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/reportcardpro/backend/core/report"
)

// ArchiveFileName returns the download name of the archive built from the batch uploaded as fileName.
func ArchiveFileName(fileName string) string {
	base := fileName
	if i := strings.Index(base, "."); i >= 0 {
		base = base[:i]
	}
	if base == "" {
		base = "all"
	}
	return "report-cards-" + base + ".zip"
}

// entryNames returns one archive entry name per student, in order.
// Students sharing a name are told apart by their learner ID.
func entryNames(students []report.StudentRecord) []string {
	counts := make(map[string]int, len(students))
	names := make([]string, len(students))
	for i, s := range students {
		names[i] = CardFileName(s)
		counts[names[i]]++
	}
	used := make(map[string]bool, len(students))
	for i, s := range students {
		name := names[i]
		if counts[name] > 1 || used[name] {
			base := strings.TrimSuffix(name, ".pdf") + "_" + strings.Join(strings.Fields(s.LearnerID), "_")
			name = base + ".pdf"
			for n := 2; used[name]; n++ {
				name = base + "_" + strconv.Itoa(n) + ".pdf"
			}
		}
		used[name] = true
		names[i] = name
	}
	return names
}

// RenderArchive writes a ZIP archive holding the card of every student of batch to w.
// Cards are rendered concurrently; entries keep the batch order.
func (e *Exporter) RenderArchive(ctx context.Context, w io.Writer, school School, batch report.Batch) error {
	cards := make([]bytes.Buffer, len(batch.Students))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i := range batch.Students {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return e.RenderCard(&cards[i], school, batch.Students[i])
		})
	}
	if err := g.Wait(); err != nil {
		return errors.Wrapf(err, "rendering cards of batch %s", batch.ID)
	}

	zw := zip.NewWriter(w)
	modified := e.now()
	for i, name := range entryNames(batch.Students) {
		fw, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate, Modified: modified})
		if err != nil {
			return errors.Wrapf(err, "adding %s", name)
		}
		if _, err = cards[i].WriteTo(fw); err != nil {
			return errors.Wrapf(err, "writing %s", name)
		}
	}
	if err := zw.Close(); err != nil {
		return errors.Wrap(err, "closing archive")
	}

	e.logger.Info("report cards archived", map[string]interface{}{
		"batch": batch.ID,
		"cards": len(batch.Students),
	})
	return nil
}
