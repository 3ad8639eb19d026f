package echoapi

import (
	"bytes"
	"mime"
	"net/http"
	"path"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/escola/core"
	"github.com/trezcool/escola/core/billing"
	"github.com/trezcool/escola/core/directory"
	exportsvc "github.com/trezcool/escola/services/export"
)

const (
	fileField     = "file"
	uploadSlack   = 1 << 20 // room for the other multipart fields
	exportName    = "boletos.xlsx"
	octetStream   = "application/octet-stream"
	formMaxMemory = 32 << 20
)

type (
	billingApi struct {
		billing       *billing.Service
		dir           *directory.Service
		maxUploadSize int64
	}

	BatchRequest struct {
		Month  int        `json:"month"`
		Year   int        `json:"year"`
		Amount core.Money `json:"amount"`
	}

	StatusRequest struct {
		Status billing.Status `json:"status"`
	}
)

func registerBillingAPI(admin, guardian *echo.Group, billingSvc *billing.Service, dir *directory.Service, maxUploadSize int64) {
	api := billingApi{billing: billingSvc, dir: dir, maxUploadSize: maxUploadSize}

	admin.POST("/boletos", api.create)
	admin.POST("/boletos/batch", api.batchGenerate)
	admin.GET("/boletos/export", api.export)
	admin.PUT("/boletos/:id/status", api.updateStatus)
	admin.DELETE("/boletos/:id", api.destroy)

	for _, g := range []*echo.Group{admin, guardian} {
		g.GET("/boletos", api.list)
		g.GET("/boletos/summary", api.summary)
		g.GET("/boletos/:id", api.retrieve)
		g.GET("/boletos/:id/file", api.download)
	}
}

func (api *billingApi) bindFilter(ctx echo.Context) (billing.Filter, error) {
	var filter billing.Filter
	if err := ctx.Bind(&filter); err != nil {
		return filter, errors.Wrap(err, "binding to billing.Filter")
	}
	var ord Ordering
	ord.Bind(ctx)
	filter.Orderings = ord.Orderings
	return filter, nil
}

func (api *billingApi) list(ctx echo.Context) error {
	filter, err := api.bindFilter(ctx)
	if err != nil {
		return err
	}
	boletos, err := api.billing.List(ctx.Request().Context(), viewerOf(ctx), filter)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, boletos)
}

func (api *billingApi) summary(ctx echo.Context) error {
	filter, err := api.bindFilter(ctx)
	if err != nil {
		return err
	}
	rows, err := api.billing.Summary(ctx.Request().Context(), viewerOf(ctx), filter)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, rows)
}

func (api *billingApi) retrieve(ctx echo.Context) error {
	b, err := api.billing.Get(ctx.Request().Context(), viewerOf(ctx), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, b)
}

// export writes the filtered ledger and its summary as a spreadsheet.
func (api *billingApi) export(ctx echo.Context) error {
	filter, err := api.bindFilter(ctx)
	if err != nil {
		return err
	}
	reqCtx, viewer := ctx.Request().Context(), viewerOf(ctx)

	boletos, err := api.billing.List(reqCtx, viewer, filter)
	if err != nil {
		return err
	}
	summary, err := api.billing.Summary(reqCtx, viewer, filter)
	if err != nil {
		return err
	}
	guardians, err := api.dir.ListGuardians(reqCtx)
	if err != nil {
		return err
	}
	names := make(map[string]string, len(guardians))
	for _, g := range guardians {
		names[g.ID] = g.Name
	}

	var buf bytes.Buffer
	if err := exportsvc.WriteBoletos(&buf, boletos, summary, names); err != nil {
		return errors.Wrap(err, "exporting boletos")
	}
	ctx.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+exportName+`"`)
	return ctx.Blob(http.StatusOK, exportsvc.ContentType, buf.Bytes())
}

// create accepts either a JSON NewBoleto or a multipart form carrying the attachment under "file".
func (api *billingApi) create(ctx echo.Context) error {
	if !strings.HasPrefix(ctx.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
		var data billing.NewBoleto
		if err := ctx.Bind(&data); err != nil {
			return errors.Wrap(err, "binding to NewBoleto")
		}
		b, err := api.billing.Create(ctx.Request().Context(), viewerOf(ctx), data, nil)
		if err != nil {
			return err
		}
		return ctx.JSON(http.StatusCreated, b)
	}

	if api.maxUploadSize > 0 {
		req := ctx.Request()
		req.Body = http.MaxBytesReader(ctx.Response(), req.Body, api.maxUploadSize+uploadSlack)
	}
	if err := ctx.Request().ParseMultipartForm(formMaxMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "attachment is too large")
		}
		return echo.NewHTTPError(http.StatusBadRequest, "invalid multipart form").SetInternal(err)
	}

	data, err := newBoletoFromForm(ctx)
	if err != nil {
		return err
	}

	var att *billing.Attachment
	fh, err := ctx.FormFile(fileField)
	switch {
	case errors.Is(err, http.ErrMissingFile):
	case err != nil:
		return echo.NewHTTPError(http.StatusBadRequest, "invalid attachment").SetInternal(err)
	default:
		if api.maxUploadSize > 0 && fh.Size > api.maxUploadSize {
			return core.NewValidationError(
				errors.New("attachment is too large"),
				core.FieldError{Field: fileField, Error: "attachment is too large"},
			)
		}
		f, err := fh.Open()
		if err != nil {
			return errors.Wrap(err, "opening attachment")
		}
		defer f.Close()
		att = &billing.Attachment{
			Filename:    fh.Filename,
			ContentType: fh.Header.Get(echo.HeaderContentType),
			Size:        fh.Size,
			Content:     f,
		}
	}

	b, err := api.billing.Create(ctx.Request().Context(), viewerOf(ctx), data, att)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, b)
}

func newBoletoFromForm(ctx echo.Context) (billing.NewBoleto, error) {
	data := billing.NewBoleto{GuardianID: ctx.FormValue("guardian_id")}
	var flds []core.FieldError
	if v := ctx.FormValue("amount"); v != "" {
		amount, err := core.ParseMoney(v)
		if err != nil {
			flds = append(flds, core.FieldError{Field: "amount", Error: err.Error()})
		}
		data.Amount = amount
	}
	if v := ctx.FormValue("due_date"); v != "" {
		due, err := core.ParseDate(v)
		if err != nil {
			flds = append(flds, core.FieldError{Field: "due_date", Error: err.Error()})
		}
		data.DueDate = due
	}
	if len(flds) > 0 {
		return data, core.NewValidationError(errors.New("invalid boleto"), flds...)
	}
	return data, nil
}

func (api *billingApi) batchGenerate(ctx echo.Context) error {
	var data BatchRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to BatchRequest")
	}
	res, err := api.billing.BatchGenerate(ctx.Request().Context(), viewerOf(ctx), data.Month, data.Year, data.Amount)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *billingApi) updateStatus(ctx echo.Context) error {
	var data StatusRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to StatusRequest")
	}
	b, err := api.billing.UpdateStatus(ctx.Request().Context(), viewerOf(ctx), ctx.Param("id"), data.Status)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, b)
}

func (api *billingApi) destroy(ctx echo.Context) error {
	if err := api.billing.Delete(ctx.Request().Context(), viewerOf(ctx), ctx.Param("id")); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *billingApi) download(ctx echo.Context) error {
	rc, b, err := api.billing.Download(ctx.Request().Context(), viewerOf(ctx), ctx.Param("id"))
	if err != nil {
		return err
	}
	defer rc.Close()

	name := path.Base(b.FilePath.String)
	contentType := mime.TypeByExtension(path.Ext(name))
	if contentType == "" {
		contentType = octetStream
	}
	ctx.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+name+`"`)
	return ctx.Stream(http.StatusOK, contentType, rc)
}
