package billing

import (
	"context"
	"io"
	"net/mail"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/trezcool/escola/core"
	"github.com/trezcool/escola/core/access"
	"github.com/trezcool/escola/core/directory"
)

type (
	Repository interface {
		QueryBoletos(ctx context.Context, filter Filter) ([]Boleto, error)
		GetBoleto(ctx context.Context, id string) (Boleto, error)
		CreateBoleto(ctx context.Context, b Boleto) (Boleto, error)
		UpdateBoletoStatus(ctx context.Context, id string, status Status, updatedAt time.Time) (Boleto, error)
		DeleteBoleto(ctx context.Context, id string) error
		// GuardiansBilledIn returns the ids of the guardians with a boleto due in (year, month).
		GuardiansBilledIn(ctx context.Context, year int, month time.Month) (map[string]bool, error)
		// MarkOverdue moves the pending boletos due before `asOf` to StatusOverdue.
		MarkOverdue(ctx context.Context, asOf core.Date, updatedAt time.Time) (int, error)
		Summarize(ctx context.Context, filter Filter) ([]SummaryRow, error)
	}

	GuardianLister interface {
		ListGuardians(ctx context.Context) ([]directory.Guardian, error)
		GetGuardian(ctx context.Context, id string) (directory.Guardian, error)
	}

	// Metrics records what happens to boletos.
	Metrics interface {
		BoletosCreated(n int)
		BatchGenerated(created, skipped int)
		BlobFailed(op string)
	}

	Service struct {
		repo      Repository
		guardians GuardianLister
		blobs     core.BlobStore
		mailSvc   core.EmailService
		validator *core.Validator
		metrics   Metrics
	}
)

func NewService(
	repo Repository,
	guardians GuardianLister,
	blobs core.BlobStore,
	mailSvc core.EmailService,
	validator *core.Validator,
	metrics Metrics,
) *Service {
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &Service{
		repo:      repo,
		guardians: guardians,
		blobs:     blobs,
		mailSvc:   mailSvc,
		validator: validator,
		metrics:   metrics,
	}
}

// Scope narrows `filter` to the boletos `viewer` may see. Every read goes through it.
func Scope(viewer access.Viewer, filter Filter) (Filter, error) {
	switch viewer.Capabilities().InvoiceScope {
	case access.ScopeAll:
		return filter, nil
	case access.ScopeOwn:
		if viewer.UserID == "" {
			return Filter{}, core.NewForbiddenError("view boletos")
		}
		filter.GuardianID = viewer.UserID
		return filter, nil
	default:
		return Filter{}, core.NewForbiddenError("view boletos")
	}
}

func canEdit(viewer access.Viewer) error {
	if !viewer.Capabilities().EditInvoices {
		return core.NewForbiddenError("edit boletos")
	}
	return nil
}

func (svc *Service) List(ctx context.Context, viewer access.Viewer, filter Filter) ([]Boleto, error) {
	filter.Clean()
	filter, err := Scope(viewer, filter)
	if err != nil {
		return nil, err
	}
	if err := validateOrderings(filter.Orderings); err != nil {
		return nil, err
	}
	if len(filter.Orderings) == 0 {
		filter.Orderings = defaultOrdering
	}
	return svc.repo.QueryBoletos(ctx, filter)
}

func (svc *Service) Get(ctx context.Context, viewer access.Viewer, id string) (Boleto, error) {
	scope, err := Scope(viewer, Filter{})
	if err != nil {
		return Boleto{}, err
	}
	b, err := svc.repo.GetBoleto(ctx, id)
	if err != nil {
		return Boleto{}, err
	}
	if !scope.Matches(b) {
		return Boleto{}, core.NewNotFoundError("boleto", id)
	}
	return b, nil
}

// Summary totals the boletos visible to `viewer` per status.
func (svc *Service) Summary(ctx context.Context, viewer access.Viewer, filter Filter) ([]SummaryRow, error) {
	filter.Clean()
	filter, err := Scope(viewer, filter)
	if err != nil {
		return nil, err
	}
	return svc.repo.Summarize(ctx, filter)
}

func (svc *Service) validateNew(ctx context.Context, nb *NewBoleto) error {
	nb.Clean()
	var flds []core.FieldError
	if err := svc.validator.Struct(nb); err != nil {
		var vErr *core.ValidationError
		if !errors.As(err, &vErr) {
			return err
		}
		flds = append(flds, vErr.Fields...)
	}
	if nb.DueDate.IsZero() {
		flds = append(flds, core.FieldError{Field: "due_date", Error: "this field is required"})
	}
	if len(flds) > 0 {
		return core.NewValidationError(errors.New("invalid boleto"), flds...)
	}

	if _, err := svc.guardians.GetGuardian(ctx, nb.GuardianID); err != nil {
		if core.IsNotFound(err) {
			return core.NewValidationError(err, core.FieldError{Field: "guardian_id", Error: "guardian does not exist"})
		}
		return err
	}
	return nil
}

func attachmentPath(guardianID string, att *Attachment) string {
	return guardianID + "/" + uuid.NewString() + att.Ext()
}

// Create stores the attachment (if any) and then the boleto.
// The uploaded file is removed again if the boleto cannot be written.
func (svc *Service) Create(ctx context.Context, viewer access.Viewer, nb NewBoleto, att *Attachment) (Boleto, error) {
	if err := canEdit(viewer); err != nil {
		return Boleto{}, err
	}
	if err := svc.validateNew(ctx, &nb); err != nil {
		return Boleto{}, err
	}
	if att != nil && (att.Content == nil || att.Filename == "") {
		return Boleto{}, core.NewValidationError(
			errors.New("invalid attachment"),
			core.FieldError{Field: "file", Error: "attachment is empty"},
		)
	}

	now := time.Now().UTC()
	b := Boleto{
		ID:         uuid.NewString(),
		GuardianID: nb.GuardianID,
		Amount:     nb.Amount,
		DueDate:    nb.DueDate,
		Status:     StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if att != nil {
		p := attachmentPath(nb.GuardianID, att)
		if err := svc.blobs.Upload(ctx, p, att.Content, att.Size, att.ContentType); err != nil {
			svc.metrics.BlobFailed("upload")
			return Boleto{}, core.NewStorageError("upload", p, err)
		}
		b.FilePath.SetValid(p)
	}

	created, err := svc.repo.CreateBoleto(ctx, b)
	if err != nil {
		err = errors.Wrap(err, "creating boleto")
		if b.HasAttachment() {
			if rmErr := svc.blobs.Remove(ctx, b.FilePath.String); rmErr != nil {
				svc.metrics.BlobFailed("remove")
				err = multierr.Append(err, core.NewStorageError("remove", b.FilePath.String, rmErr))
			}
		}
		return Boleto{}, err
	}

	svc.metrics.BoletosCreated(1)
	svc.notify(ctx, created)
	return created, nil
}

// BatchGenerate gives every guardian not yet billed in (year, month) a pending boleto due on their due date day.
func (svc *Service) BatchGenerate(ctx context.Context, viewer access.Viewer, month, year int, amount core.Money) (BatchResult, error) {
	result := BatchResult{Boletos: []Boleto{}}
	if err := canEdit(viewer); err != nil {
		return result, err
	}

	var flds []core.FieldError
	if month < 1 || month > 12 {
		flds = append(flds, core.FieldError{Field: "month", Error: "month must be between 1 and 12"})
	}
	if year < 2000 || year > 2100 {
		flds = append(flds, core.FieldError{Field: "year", Error: "year must be between 2000 and 2100"})
	}
	if amount <= 0 {
		flds = append(flds, core.FieldError{Field: "amount", Error: "amount must be greater than 0"})
	}
	if len(flds) > 0 {
		return result, core.NewValidationError(errors.New("invalid batch"), flds...)
	}

	guardians, err := svc.guardians.ListGuardians(ctx)
	if err != nil {
		return result, errors.Wrap(err, "listing guardians")
	}
	billed, err := svc.repo.GuardiansBilledIn(ctx, year, time.Month(month))
	if err != nil {
		return result, errors.Wrap(err, "listing billed guardians")
	}

	defer func() { svc.metrics.BatchGenerated(result.Created, result.Skipped) }()
	for _, g := range guardians {
		if billed[g.ID] {
			result.Skipped++
			continue
		}
		now := time.Now().UTC()
		b, err := svc.repo.CreateBoleto(ctx, Boleto{
			ID:         uuid.NewString(),
			GuardianID: g.ID,
			Amount:     amount,
			DueDate:    core.NewDate(year, time.Month(month), clampDay(g.DueDateDay)),
			Status:     StatusPending,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
		if err != nil {
			return result, errors.Wrapf(err, "creating boleto of guardian %s", g.ID)
		}
		result.Created++
		result.Boletos = append(result.Boletos, b)
		svc.notify(ctx, b, g)
	}
	svc.metrics.BoletosCreated(result.Created)
	return result, nil
}

func clampDay(day int) int {
	switch {
	case day < 1:
		return 1
	case day > 28:
		return 28
	}
	return day
}

// UpdateStatus sets the status of a boleto. Any transition is allowed.
func (svc *Service) UpdateStatus(ctx context.Context, viewer access.Viewer, id string, status Status) (Boleto, error) {
	if err := canEdit(viewer); err != nil {
		return Boleto{}, err
	}
	status = Status(core.CleanString(string(status), true /* lower */))
	if !status.Valid() {
		return Boleto{}, core.NewValidationError(
			errors.Errorf("invalid status %q", status),
			core.FieldError{Field: "status", Error: "status must be one of a_vencer, pago or vencido"},
		)
	}
	return svc.repo.UpdateBoletoStatus(ctx, id, status, time.Now().UTC())
}

// Delete removes the attachment and then the boleto. The boleto is kept if its attachment cannot be removed.
func (svc *Service) Delete(ctx context.Context, viewer access.Viewer, id string) error {
	if err := canEdit(viewer); err != nil {
		return err
	}
	b, err := svc.repo.GetBoleto(ctx, id)
	if err != nil {
		return err
	}
	if b.HasAttachment() {
		if err := svc.blobs.Remove(ctx, b.FilePath.String); err != nil {
			svc.metrics.BlobFailed("remove")
			return core.NewStorageError("remove", b.FilePath.String, err)
		}
	}
	return svc.repo.DeleteBoleto(ctx, id)
}

// Download opens the attachment of a boleto visible to `viewer`. The caller must close it.
func (svc *Service) Download(ctx context.Context, viewer access.Viewer, id string) (io.ReadCloser, Boleto, error) {
	b, err := svc.Get(ctx, viewer, id)
	if err != nil {
		return nil, Boleto{}, err
	}
	if !b.HasAttachment() {
		return nil, Boleto{}, core.NewNotFoundError("attachment", id)
	}
	rc, err := svc.blobs.Download(ctx, b.FilePath.String)
	if err != nil {
		svc.metrics.BlobFailed("download")
		return nil, Boleto{}, core.NewStorageError("download", b.FilePath.String, err)
	}
	return rc, b, nil
}

// MarkOverdue is an operator edit: pending boletos due before `asOf` become overdue.
func (svc *Service) MarkOverdue(ctx context.Context, asOf core.Date) (int, error) {
	if asOf.IsZero() {
		return 0, core.NewValidationError(errors.New("date is required"), core.FieldError{Field: "date", Error: "this field is required"})
	}
	return svc.repo.MarkOverdue(ctx, asOf, time.Now().UTC())
}

type boletoMailData struct {
	GuardianName string
	Amount       string
	DueDate      string
}

func (svc *Service) notify(ctx context.Context, b Boleto, guardian ...directory.Guardian) {
	if svc.mailSvc == nil {
		return
	}
	var g directory.Guardian
	if len(guardian) > 0 {
		g = guardian[0]
	} else {
		var err error
		if g, err = svc.guardians.GetGuardian(ctx, b.GuardianID); err != nil {
			return
		}
	}
	if g.Email == "" {
		return
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: g.Name, Address: g.Email}},
		Subject:      "New boleto",
		TemplateName: "boleto_created",
		TemplateData: boletoMailData{
			GuardianName: g.Name,
			Amount:       b.Amount.String(),
			DueDate:      b.DueDate.String(),
		},
	})
}

func validateOrderings(orderings []core.DBOrdering) error {
	for _, o := range orderings {
		if !OrderFields[o.Field] {
			return core.NewValidationError(
				errors.Errorf("cannot order by %q", o.Field),
				core.FieldError{Field: "ordering", Error: "unknown field " + o.Field},
			)
		}
	}
	return nil
}

// NopMetrics records nothing.
type NopMetrics struct{}

func (NopMetrics) BoletosCreated(int)      {}
func (NopMetrics) BatchGenerated(int, int) {}
func (NopMetrics) BlobFailed(string)       {}
