package echoapi

import (
	"bytes"
	"io"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/reportcardpro/backend/core"
	"github.com/reportcardpro/backend/core/report"
	"github.com/reportcardpro/backend/core/user"
	exportsvc "github.com/reportcardpro/backend/services/export"
)

const uploadField = "file"

type batchApi struct {
	conf     *core.Config
	svc      *report.Service
	usrSvc   *user.Service
	exporter *exportsvc.Exporter
}

func registerBatchAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := batchApi{
		conf:     deps.Conf,
		svc:      deps.ReportSvc,
		usrSvc:   deps.UserSvc,
		exporter: deps.Exporter,
	}

	ag := g.Group("", jwt, accountMiddleware(api.usrSvc))
	ag.GET("/dashboard", api.dashboard)
	ag.GET("/class-reports", api.classReports)

	bg := ag.Group("/batches")
	bg.POST("", api.upload)
	bg.GET("", api.query)
	bg.GET("/:id", api.retrieve)
	bg.DELETE("/:id", api.destroy)
	bg.GET("/:id/archive", api.archive)
	bg.GET("/:id/students/:studentId", api.retrieveStudent)
	bg.PUT("/:id/students/:studentId", api.updateStudent)
	bg.GET("/:id/students/:studentId/pdf", api.studentCard)
}

// Handlers

func (api *batchApi) upload(ctx echo.Context) error {
	sess, err := getSession(ctx)
	if err != nil {
		return err
	}

	req := ctx.Request()
	req.Body = http.MaxBytesReader(ctx.Response(), req.Body, api.conf.Server.MaxUploadSize)
	fh, err := ctx.FormFile(uploadField)
	if err != nil {
		return errors.Wrap(err, "reading form file")
	}
	f, err := fh.Open()
	if err != nil {
		return errors.Wrap(err, "opening form file")
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return errors.Wrap(err, "reading form file")
	}

	batch, err := api.svc.Ingest(req.Context(), sess, report.Upload{FileName: fh.Filename, Data: data})
	if err != nil {
		return errors.Wrap(err, "ingesting upload")
	}
	return ctx.JSON(http.StatusCreated, batch)
}

func (api *batchApi) query(ctx echo.Context) error {
	sess, err := getSession(ctx)
	if err != nil {
		return err
	}
	batches, err := api.svc.List(ctx.Request().Context(), sess)
	if err != nil {
		return errors.Wrap(err, "listing batches")
	}
	summaries := make([]report.BatchSummary, 0, len(batches))
	for _, b := range batches {
		summaries = append(summaries, b.Summary())
	}
	return ctx.JSON(http.StatusOK, summaries)
}

func (api *batchApi) retrieve(ctx echo.Context) error {
	sess, err := getSession(ctx)
	if err != nil {
		return err
	}
	batch, err := api.svc.Get(ctx.Request().Context(), sess, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting batch")
	}
	return ctx.JSON(http.StatusOK, batch)
}

func (api *batchApi) destroy(ctx echo.Context) error {
	sess, err := getSession(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.Delete(ctx.Request().Context(), sess, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting batch")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *batchApi) retrieveStudent(ctx echo.Context) error {
	sess, err := getSession(ctx)
	if err != nil {
		return err
	}
	student, err := api.svc.GetStudent(ctx.Request().Context(), sess, ctx.Param("id"), ctx.Param("studentId"))
	if err != nil {
		return errors.Wrap(err, "getting student")
	}
	return ctx.JSON(http.StatusOK, student)
}

func (api *batchApi) updateStudent(ctx echo.Context) error {
	sess, err := getSession(ctx)
	if err != nil {
		return err
	}
	var data report.StudentUpdate
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to StudentUpdate")
	}
	student, err := api.svc.UpdateStudent(ctx.Request().Context(), sess, ctx.Param("id"), ctx.Param("studentId"), data)
	if err != nil {
		return errors.Wrap(err, "updating student")
	}
	return ctx.JSON(http.StatusOK, student)
}

func (api *batchApi) studentCard(ctx echo.Context) error {
	sess, err := getSession(ctx)
	if err != nil {
		return err
	}
	student, err := api.svc.GetStudent(ctx.Request().Context(), sess, ctx.Param("id"), ctx.Param("studentId"))
	if err != nil {
		return errors.Wrap(err, "getting student")
	}
	school, err := api.school(ctx)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err = api.exporter.RenderCard(&buf, school, student); err != nil {
		return errors.Wrap(err, "rendering card")
	}
	return attachment(ctx, "application/pdf", exportsvc.CardFileName(student), buf.Bytes())
}

func (api *batchApi) archive(ctx echo.Context) error {
	sess, err := getSession(ctx)
	if err != nil {
		return err
	}
	rctx := ctx.Request().Context()
	batch, err := api.svc.Get(rctx, sess, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting batch")
	}
	school, err := api.school(ctx)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err = api.exporter.RenderArchive(rctx, &buf, school, batch); err != nil {
		return errors.Wrap(err, "rendering archive")
	}
	return attachment(ctx, "application/zip", exportsvc.ArchiveFileName(batch.FileName), buf.Bytes())
}

func (api *batchApi) classReports(ctx echo.Context) error {
	sess, err := getSession(ctx)
	if err != nil {
		return err
	}
	groups, err := api.svc.ClassReports(ctx.Request().Context(), sess)
	if err != nil {
		return errors.Wrap(err, "grouping batches")
	}
	return ctx.JSON(http.StatusOK, groups)
}

func (api *batchApi) dashboard(ctx echo.Context) error {
	sess, err := getSession(ctx)
	if err != nil {
		return err
	}
	stats, err := api.svc.Stats(ctx.Request().Context(), sess)
	if err != nil {
		return errors.Wrap(err, "computing stats")
	}
	return ctx.JSON(http.StatusOK, stats)
}

// school returns the school printed on the cards of the authenticated account.
func (api *batchApi) school(ctx echo.Context) (exportsvc.School, error) {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return exportsvc.School{}, errors.Wrap(err, "getting context user")
	}
	return exportsvc.School{Name: usr.School, Province: usr.Province}, nil
}

func attachment(ctx echo.Context, contentType, fileName string, data []byte) error {
	h := ctx.Response().Header()
	h.Set(echo.HeaderContentDisposition, "attachment; filename="+strconv.Quote(fileName))
	return ctx.Blob(http.StatusOK, contentType, data)
}
