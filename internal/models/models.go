package models

import (
	"time"

	"github.com/google/uuid"
)

// User is an account holder. Authentication is deliberately thin here:
// the interesting parts of the system live below the auth layer.
type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"display_name"`
	PasswordHash string    `json:"-"`
	Verified     bool      `json:"verified"`
	CreatedAt    time.Time `json:"created_at"`
}

// Profile is the sidecar record for a user. It is created explicitly by the
// signup handler right after the user row, never by an implicit hook.
type Profile struct {
	UserID    uuid.UUID `json:"user_id"`
	Bio       string    `json:"bio"`
	CreatedAt time.Time `json:"created_at"`
}

// Project is the top-level ownership boundary. Folders, files, notes and
// file events all cascade from it.
//
// IsGithubRepo is a one-way flag: once a project is linked to a repository
// it stays linked. The store refuses the reverse transition.
type Project struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	OwnerID      uuid.UUID `json:"owner_id"`
	IsGithubRepo bool      `json:"is_github_repo"`
	GithubRepo   string    `json:"github_repo,omitempty"`
	GithubBranch string    `json:"github_branch"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Folder is a node in a project's path tree. ParentID == nil means the folder
// sits at the project root. The parent chain is acyclic by construction: the
// tree service refuses to re-parent a folder into its own subtree, so a
// full-path walk never loops.
type Folder struct {
	ID        uuid.UUID  `json:"id"`
	ProjectID uuid.UUID  `json:"project_id"`
	ParentID  *uuid.UUID `json:"parent_id,omitempty"`
	Name      string     `json:"name"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// File is a leaf in the path tree. FolderID == nil means project root.
// At most one file per project carries IsMain — enforced by a partial unique
// index, not application code.
type File struct {
	ID        uuid.UUID  `json:"id"`
	ProjectID uuid.UUID  `json:"project_id"`
	FolderID  *uuid.UUID `json:"folder_id,omitempty"`
	Name      string     `json:"name"`
	Content   string     `json:"content"`
	IsMain    bool       `json:"is_main"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Note attaches commentary (Markdown + LaTeX + fenced code) to exactly one of
// a file, a folder, or a project. RenderedHTML is the cached, sanitized output
// of the render pipeline; it is recomputed wholesale whenever Content changes.
type Note struct {
	ID           uuid.UUID  `json:"id"`
	Title        string     `json:"title"`
	Slug         string     `json:"slug"`
	Content      string     `json:"content"`
	RenderedHTML string     `json:"rendered_html"`
	FileID       *uuid.UUID `json:"file_id,omitempty"`
	FolderID     *uuid.UUID `json:"folder_id,omitempty"`
	ProjectID    *uuid.UUID `json:"project_id,omitempty"`
	Tags         []string   `json:"tags"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// NoteTag is a label shared across notes. Name and slug are both unique.
type NoteTag struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
	Slug string    `json:"slug"`
}

// Event kinds recorded from webhook deliveries.
const (
	EventCreated  = "created"
	EventModified = "modified"
	EventDeleted  = "deleted"
)

// FileEvent is one entry in the durable work queue that mirrors a linked
// repository into the path tree. Rows are written first, then consumed in
// timestamp order by the reconciler; Processed flips one way and a failed
// event simply stays unprocessed for replay.
type FileEvent struct {
	ID        uuid.UUID `json:"id"`
	ProjectID uuid.UUID `json:"project_id"`
	FilePath  string    `json:"file_path"`
	FileName  string    `json:"file_name"`
	EventType string    `json:"event_type"`
	Processed bool      `json:"processed"`
	Timestamp time.Time `json:"timestamp"`
}
