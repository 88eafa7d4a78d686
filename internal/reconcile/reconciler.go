// Package reconcile replays the durable FileEvent queue against the path
// tree, keeping a project's mirrored tree consistent with its linked
// repository. Events are applied strictly oldest-first and each event's
// failure is isolated: the row stays unprocessed for replay while later
// events still run.
package reconcile

import (
	"context"
	"fmt"
	"path"

	"github.com/cotex-app/cotex/internal/models"
	"github.com/cotex-app/cotex/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Reconciler struct {
	folders repository.FolderRepository
	files   repository.FileRepository
	events  repository.EventRepository
	logger  *zap.Logger
}

func New(
	folders repository.FolderRepository,
	files repository.FileRepository,
	events repository.EventRepository,
	logger *zap.Logger,
) *Reconciler {
	return &Reconciler{
		folders: folders,
		files:   files,
		events:  events,
		logger:  logger,
	}
}

// Reconcile processes every unprocessed event for the project in timestamp
// order and reports how many were applied and how many failed. Concurrent
// webhook deliveries for the same project may interleave passes — order is
// only guaranteed within one pass, and the tree is eventually consistent.
func (r *Reconciler) Reconcile(ctx context.Context, projectID uuid.UUID) (processed, failed int, err error) {
	events, err := r.events.ListUnprocessed(ctx, projectID)
	if err != nil {
		return 0, 0, fmt.Errorf("list unprocessed events: %w", err)
	}

	for _, event := range events {
		if err := r.apply(ctx, &event); err != nil {
			failed++
			r.logger.Error("event reconciliation failed",
				zap.String("event_id", event.ID.String()),
				zap.String("event_type", event.EventType),
				zap.String("path", event.FilePath),
				zap.Error(err),
			)
			continue
		}
		if err := r.events.MarkProcessed(ctx, event.ID); err != nil {
			failed++
			r.logger.Error("failed to mark event processed",
				zap.String("event_id", event.ID.String()),
				zap.Error(err),
			)
			continue
		}
		processed++
	}

	return processed, failed, nil
}

func (r *Reconciler) apply(ctx context.Context, event *models.FileEvent) error {
	switch event.EventType {
	case models.EventCreated, models.EventModified:
		return r.upsert(ctx, event)
	case models.EventDeleted:
		return r.remove(ctx, event)
	}
	return fmt.Errorf("unknown event type %q", event.EventType)
}

// upsert mirrors a created/modified path: get-or-create a flat root-level
// folder named after the path's directory component, then get-or-create the
// file under it. Both steps are upserts by natural key, so replaying the
// same event twice lands on the same rows.
func (r *Reconciler) upsert(ctx context.Context, event *models.FileEvent) error {
	folderID, _, err := r.folderFor(ctx, event, true)
	if err != nil {
		return err
	}
	if _, err := r.files.GetOrCreate(ctx, event.ProjectID, folderID, event.FileName); err != nil {
		return fmt.Errorf("upsert file %q: %w", event.FileName, err)
	}
	return nil
}

// remove deletes the mirrored file if the tree has it. A missing folder or
// file is a silent no-op: the tree may already reflect the deletion, or
// never observed the creation.
func (r *Reconciler) remove(ctx context.Context, event *models.FileEvent) error {
	folderID, found, err := r.folderFor(ctx, event, false)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}

	file, err := r.files.GetByName(ctx, event.ProjectID, folderID, event.FileName)
	if err != nil {
		return fmt.Errorf("resolve file %q: %w", event.FileName, err)
	}
	if file == nil {
		return nil
	}
	return r.files.Delete(ctx, file.ID)
}

// folderFor maps the event's directory component to a root-level folder.
// Multi-level paths collapse to their last directory name — the mirror is a
// flat tree, not a reconstruction of the repository's nesting. found is
// false only when create=false and the folder does not exist.
func (r *Reconciler) folderFor(ctx context.Context, event *models.FileEvent, create bool) (*uuid.UUID, bool, error) {
	dir := path.Dir(event.FilePath)
	if dir == "." || dir == "/" || dir == "" {
		return nil, true, nil
	}
	name := path.Base(dir)

	if create {
		folder, err := r.folders.GetOrCreateRoot(ctx, event.ProjectID, name)
		if err != nil {
			return nil, false, fmt.Errorf("upsert folder %q: %w", name, err)
		}
		return &folder.ID, true, nil
	}

	folder, err := r.folders.GetChild(ctx, event.ProjectID, nil, name)
	if err != nil {
		return nil, false, fmt.Errorf("resolve folder %q: %w", name, err)
	}
	if folder == nil {
		return nil, false, nil
	}
	return &folder.ID, true, nil
}
