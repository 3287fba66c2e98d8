// Package ingest validates newspaper PDF uploads and creates edition records.
package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/broadsheet-archive/broadsheet/internal/blob"
	"github.com/broadsheet-archive/broadsheet/internal/store"
)

// ErrInvalidPDF rejects uploads that do not parse as a PDF.
var ErrInvalidPDF = errors.New("upload is not a readable PDF")

// Request contains the parameters for ingesting one edition.
type Request struct {
	PDF           []byte
	NewspaperName string
	EditionDate   string       // YYYY-MM-DD
	Logger        *slog.Logger // optional
}

// Ingest validates the upload, deduplicates by content hash, stores the PDF,
// and creates the Edition record. Processing is NOT started here; the caller
// triggers it explicitly.
func Ingest(ctx context.Context, st *store.Store, blobs *blob.Store, req Request) (*store.Edition, error) {
	log := req.Logger
	if log == nil {
		log = slog.Default()
	}

	if len(req.PDF) == 0 {
		return nil, fmt.Errorf("empty upload")
	}
	name := strings.TrimSpace(req.NewspaperName)
	if name == "" {
		return nil, fmt.Errorf("newspaper_name is required")
	}
	if _, err := time.Parse("2006-01-02", req.EditionDate); err != nil {
		return nil, fmt.Errorf("edition_date must be YYYY-MM-DD: %w", err)
	}

	// Cheap header check before handing bytes to the parser.
	if !bytes.HasPrefix(req.PDF, []byte("%PDF-")) {
		return nil, ErrInvalidPDF
	}
	conf := model.NewDefaultConfiguration()
	if err := api.Validate(bytes.NewReader(req.PDF), conf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPDF, err)
	}

	hash := blob.HashBytes(req.PDF)
	if existing, err := st.GetEditionByHash(ctx, hash); err == nil {
		log.Info("duplicate upload rejected", "edition_id", existing.ID, "hash", hash)
		return nil, store.ErrDuplicateEdition
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	key := blob.PDFKey(hash)
	if err := blobs.Put(blob.PrimaryBackend, key, req.PDF); err != nil {
		return nil, fmt.Errorf("failed to store PDF: %w", err)
	}

	e := &store.Edition{
		ID:             uuid.New().String(),
		NewspaperName:  name,
		EditionDate:    req.EditionDate,
		ContentHash:    hash,
		Status:         store.EditionUploaded,
		Stage:          store.StageQueued,
		ArchiveStatus:  store.ArchiveNotScheduled,
		StorageBackend: blob.PrimaryBackend,
		StorageKey:     key,
	}
	if err := st.CreateEdition(ctx, e); err != nil {
		return nil, err
	}

	log.Info("edition ingested", "edition_id", e.ID, "newspaper", name, "date", req.EditionDate, "bytes", len(req.PDF))
	return e, nil
}
