package pipeline

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/broadsheet-archive/broadsheet/internal/store"
)

// ScheduleArchive marks a READY edition for archival.
func (o *Orchestrator) ScheduleArchive(ctx context.Context, editionID string) error {
	e, err := o.st.GetEdition(ctx, editionID)
	if err != nil {
		return err
	}
	if e.Status != store.EditionReady {
		return fmt.Errorf("edition %s is not READY (status %s)", editionID, e.Status)
	}
	return o.st.SetArchiveStatus(ctx, editionID, store.ArchiveScheduled)
}

// ArchiveNow copies the edition's PDF and page assets to the archive
// backend and flips storage over to it. Retryable after ARCHIVE_FAILED.
// The archive state machine runs independently of the main status machine.
func (o *Orchestrator) ArchiveNow(ctx context.Context, editionID string) error {
	e, err := o.st.GetEdition(ctx, editionID)
	if err != nil {
		return err
	}
	switch e.ArchiveStatus {
	case store.ArchiveArchiving:
		return fmt.Errorf("edition %s is already archiving", editionID)
	case store.ArchiveArchived:
		return fmt.Errorf("edition %s is already archived", editionID)
	}
	if e.Status != store.EditionReady && e.Status != store.EditionArchived {
		return fmt.Errorf("edition %s is not READY (status %s)", editionID, e.Status)
	}

	target := o.cfgFn().Archive.Backend
	log := o.logger.With("edition_id", editionID, "backend", target)

	if err := o.st.SetArchiveStatus(ctx, editionID, store.ArchiveArchiving); err != nil {
		return err
	}

	archiveErr := func() error {
		if err := o.blobs.Copy(e.StorageBackend, target, e.StorageKey); err != nil {
			return fmt.Errorf("failed to copy PDF: %w", err)
		}
		// Rendered page images live under the edition's key prefix.
		prefix := filepath.Join("editions", editionID)
		if err := o.blobs.CopyPrefix(e.StorageBackend, target, prefix); err != nil {
			return fmt.Errorf("failed to copy page images: %w", err)
		}
		return o.st.SetEditionStorage(ctx, editionID, target, e.StorageKey)
	}()

	if archiveErr != nil {
		log.Error("archival failed", "error", archiveErr)
		o.st.SetArchiveStatus(ctx, editionID, store.ArchiveFailed)
		return archiveErr
	}

	if err := o.st.SetArchiveStatus(ctx, editionID, store.ArchiveArchived); err != nil {
		return err
	}
	if err := o.st.SetEditionStatus(ctx, editionID, store.EditionArchived, store.StageDone); err != nil {
		return err
	}
	log.Info("edition archived")
	return nil
}
