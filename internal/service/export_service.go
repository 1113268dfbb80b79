package service

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/fleet-presence-api/internal/models"
	appErrors "github.com/noah-isme/fleet-presence-api/pkg/errors"
	"github.com/noah-isme/fleet-presence-api/pkg/export"
	"github.com/noah-isme/fleet-presence-api/pkg/jobs"
	"github.com/noah-isme/fleet-presence-api/pkg/storage"
)

type reportProvider interface {
	Report(ctx context.Context, period models.ReportPeriod) ([]models.AttendanceEvent, error)
	Location() *time.Location
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

type archiveStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
}

type archiveQueue interface {
	Enqueue(job jobs.Job) error
}

// JobTypeArchiveExport tags export archival jobs on the background queue.
const JobTypeArchiveExport = "archive_export"

type archivePayload struct {
	Filename string
	Data     []byte
}

// ExportResult carries a rendered report plus a signed token for re-download.
type ExportResult struct {
	Filename      string
	ContentType   string
	Payload       []byte
	DownloadToken string
	ExpiresAt     time.Time
}

// ExportService renders attendance reports and archives a copy on disk. Each
// export is also reachable later through a signed, expiring download token.
type ExportService struct {
	reports reportProvider
	csv     csvRenderer
	pdf     pdfRenderer
	storage archiveStorage
	signer  *storage.SignedURLSigner
	queue   archiveQueue
	logger  *zap.Logger
	now     func() time.Time
}

// ExportServiceParams groups dependencies for NewExportService.
type ExportServiceParams struct {
	Reports reportProvider
	CSV     csvRenderer
	PDF     pdfRenderer
	Storage archiveStorage
	Signer  *storage.SignedURLSigner
	Queue   archiveQueue
	Logger  *zap.Logger
	Now     func() time.Time
}

// NewExportService constructs the export service.
func NewExportService(p ExportServiceParams) *ExportService {
	if p.Logger == nil {
		p.Logger = zap.NewNop()
	}
	if p.Now == nil {
		p.Now = time.Now
	}
	return &ExportService{
		reports: p.Reports,
		csv:     p.CSV,
		pdf:     p.PDF,
		storage: p.Storage,
		signer:  p.Signer,
		queue:   p.Queue,
		logger:  p.Logger,
		now:     p.Now,
	}
}

// Generate renders the report for the requested period and format. The
// payload is returned for immediate download and a copy is archived in the
// background.
func (s *ExportService) Generate(ctx context.Context, period models.ReportPeriod, format models.ReportFormat) (*ExportResult, error) {
	if !period.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid report period")
	}
	if !format.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid report format")
	}

	events, err := s.reports.Report(ctx, period)
	if err != nil {
		return nil, err
	}
	dataset := s.buildDataset(events)

	day := s.now().In(s.reports.Location()).Format("2006-01-02")
	filename := fmt.Sprintf("rapport_presence_%s.%s", day, format)

	var (
		payload     []byte
		contentType string
	)
	switch format {
	case models.FormatCSV:
		payload, err = s.csv.Render(dataset)
		contentType = "text/csv; charset=utf-8"
	case models.FormatPDF:
		payload, err = s.pdf.Render(dataset, "Rapport de présence")
		contentType = "application/pdf"
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render report")
	}

	exportID := uuid.NewString()
	s.archive(exportID, filename, payload)

	result := &ExportResult{
		Filename:    filename,
		ContentType: contentType,
		Payload:     payload,
	}
	if s.signer != nil {
		token, expiresAt, err := s.signer.Generate(exportID, filename)
		if err != nil {
			s.logger.Warn("export token generation failed", zap.Error(err))
		} else {
			result.DownloadToken = token
			result.ExpiresAt = expiresAt
		}
	}
	return result, nil
}

// OpenArchive resolves a signed download token to the archived file.
func (s *ExportService) OpenArchive(token string) (*os.File, string, error) {
	if s.signer == nil || s.storage == nil {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "export archive disabled")
	}
	_, relPath, _, err := s.signer.Parse(token)
	if err != nil {
		return nil, "", appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	}
	file, err := s.storage.Open(relPath)
	if err != nil {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "archived export not found")
	}
	return file, relPath, nil
}

// ArchiveHandler returns the queue handler that persists a rendered export.
func (s *ExportService) ArchiveHandler() jobs.Handler {
	return func(_ context.Context, job jobs.Job) error {
		payload, ok := job.Payload.(archivePayload)
		if !ok {
			return fmt.Errorf("unexpected payload for job %s", job.ID)
		}
		if _, err := s.storage.Save(payload.Filename, payload.Data); err != nil {
			return fmt.Errorf("archive export %s: %w", payload.Filename, err)
		}
		return nil
	}
}

func (s *ExportService) archive(exportID, filename string, payload []byte) {
	if s.queue == nil || s.storage == nil {
		return
	}
	err := s.queue.Enqueue(jobs.Job{
		ID:      exportID,
		Type:    JobTypeArchiveExport,
		Payload: archivePayload{Filename: filename, Data: payload},
	})
	if err != nil {
		s.logger.Warn("export archive enqueue failed", zap.String("filename", filename), zap.Error(err))
	}
}

func (s *ExportService) buildDataset(events []models.AttendanceEvent) export.Dataset {
	loc := s.reports.Location()
	headers := []string{"ID", "Nom", "Prénom", "Matricule", "Type", "Date", "Heure"}
	rows := make([]map[string]string, 0, len(events))
	for _, ev := range events {
		occurred := ev.OccurredAt.In(loc)
		row := map[string]string{
			"ID":        strconv.FormatInt(ev.ID, 10),
			"Nom":       derefString(ev.LastName),
			"Prénom":    derefString(ev.FirstName),
			"Matricule": ev.Matricule,
			"Type":      ev.Type.Label(),
			"Date":      occurred.Format("2006-01-02"),
			"Heure":     occurred.Format("15:04:05"),
		}
		rows = append(rows, row)
	}
	return export.Dataset{Headers: headers, Rows: rows}
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
