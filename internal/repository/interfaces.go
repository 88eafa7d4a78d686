package repository

import (
	"context"

	"github.com/cotex-app/cotex/internal/models"
	"github.com/google/uuid"
)

// Every method takes a context so request cancellation propagates into the
// database driver, and almost every method is scoped by owner or project —
// the repository never trusts the caller to have filtered already.

// UserRepository handles account rows plus their profile sidecar.
type UserRepository interface {
	Create(ctx context.Context, email, displayName, passwordHash string) (*models.User, error)

	// GetByEmail returns nil, nil if no such user exists (login probe).
	GetByEmail(ctx context.Context, email string) (*models.User, error)

	GetByID(ctx context.Context, userID uuid.UUID) (*models.User, error)

	// CreateProfile inserts the sidecar row for a freshly created user.
	// Called explicitly by the signup flow, in visible order, right after
	// Create — never from an implicit hook.
	CreateProfile(ctx context.Context, userID uuid.UUID, bio string) error
}

// ProjectRepository handles project rows.
type ProjectRepository interface {
	Create(ctx context.Context, ownerID uuid.UUID, name, description string) (*models.Project, error)

	// GetByID returns nil, nil when the project does not exist or belongs to
	// a different owner.
	GetByID(ctx context.Context, ownerID, projectID uuid.UUID) (*models.Project, error)

	// GetByRepo looks a project up by its linked repository and branch.
	// Unscoped: webhook deliveries carry no user identity.
	GetByRepo(ctx context.Context, repo, branch string) (*models.Project, error)

	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Project, error)

	// LinkGithub flips a project to github-linked. The transition is
	// one-way and enforced by the store itself: an already-linked project
	// yields ErrGithubUnlink, so concurrent link requests cannot both win.
	LinkGithub(ctx context.Context, ownerID, projectID uuid.UUID, repo, branch string) (*models.Project, error)

	Delete(ctx context.Context, ownerID, projectID uuid.UUID) error
}

// FolderRepository handles folder nodes of the path tree.
type FolderRepository interface {
	// Create inserts a folder. A sibling name clash surfaces as
	// ErrNameCollision (unique constraint, not check-then-insert).
	Create(ctx context.Context, projectID uuid.UUID, parentID *uuid.UUID, name string) (*models.Folder, error)

	GetByID(ctx context.Context, folderID uuid.UUID) (*models.Folder, error)

	// GetChild resolves one path segment: the folder named name directly
	// under parentID (nil = project root). nil, nil when absent.
	GetChild(ctx context.Context, projectID uuid.UUID, parentID *uuid.UUID, name string) (*models.Folder, error)

	// GetOrCreateRoot upserts a root-level folder by name. Idempotent —
	// reconciliation replays events and must not duplicate folders.
	GetOrCreateRoot(ctx context.Context, projectID uuid.UUID, name string) (*models.Folder, error)

	ListByProject(ctx context.Context, projectID uuid.UUID) ([]models.Folder, error)

	// SetParent re-parents a folder. Cycle prevention happens above, in the
	// tree service; the store only moves the pointer.
	SetParent(ctx context.Context, folderID uuid.UUID, parentID *uuid.UUID) error

	// Delete removes the folder; descendants and contained files go with it
	// (cascading foreign keys).
	Delete(ctx context.Context, folderID uuid.UUID) error
}

// FileRepository handles file leaves of the path tree.
type FileRepository interface {
	// Create inserts a file. Sibling clash → ErrNameCollision; a second
	// is_main=true file in the project → ErrMainFileConflict.
	Create(ctx context.Context, projectID uuid.UUID, folderID *uuid.UUID, name, content string, isMain bool) (*models.File, error)

	GetByID(ctx context.Context, fileID uuid.UUID) (*models.File, error)

	// GetByName resolves a file by its natural key. nil, nil when absent.
	GetByName(ctx context.Context, projectID uuid.UUID, folderID *uuid.UUID, name string) (*models.File, error)

	// GetOrCreate upserts by natural key with empty content; returns the
	// existing row untouched apart from updated_at when it is already there.
	GetOrCreate(ctx context.Context, projectID uuid.UUID, folderID *uuid.UUID, name string) (*models.File, error)

	// GetMain returns the project's single main file, or nil, nil when no
	// file is flagged.
	GetMain(ctx context.Context, projectID uuid.UUID) (*models.File, error)

	ListByProject(ctx context.Context, projectID uuid.UUID) ([]models.File, error)

	UpdateContent(ctx context.Context, fileID uuid.UUID, content string) (*models.File, error)

	Delete(ctx context.Context, fileID uuid.UUID) error
}

// NoteRepository handles notes and their tags.
type NoteRepository interface {
	// Create inserts the note and its taggings; fills ID and timestamps on
	// the passed struct. A slug clash surfaces as ErrSlugTaken.
	Create(ctx context.Context, note *models.Note) error

	GetByID(ctx context.Context, noteID uuid.UUID) (*models.Note, error)

	GetBySlug(ctx context.Context, slug string) (*models.Note, error)

	ListByProject(ctx context.Context, projectID uuid.UUID) ([]models.Note, error)

	// Update rewrites content, rendered html and tags.
	Update(ctx context.Context, note *models.Note) error

	Delete(ctx context.Context, noteID uuid.UUID) error

	// ListTags returns the shared tag vocabulary, name-ordered.
	ListTags(ctx context.Context) ([]models.NoteTag, error)

	// ListByTag returns the owner's notes carrying the tag with that slug.
	ListByTag(ctx context.Context, ownerID uuid.UUID, tagSlug string) ([]models.Note, error)
}

// EventRepository is the durable work queue behind webhook reconciliation.
type EventRepository interface {
	Record(ctx context.Context, projectID uuid.UUID, filePath, fileName, eventType string) (*models.FileEvent, error)

	// ListUnprocessed returns pending events oldest first. Order matters:
	// later modified/deleted events assume earlier created events have been
	// applied.
	ListUnprocessed(ctx context.Context, projectID uuid.UUID) ([]models.FileEvent, error)

	// MarkProcessed flips the one-way processed flag.
	MarkProcessed(ctx context.Context, eventID uuid.UUID) error
}
