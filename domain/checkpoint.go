package domain

// FileStatus is the per-file lifecycle state tracked by a Checkpoint.
type FileStatus string

const (
	FileStatusPending   FileStatus = "pending"
	FileStatusExtracted FileStatus = "extracted"
	FileStatusFailed    FileStatus = "failed"
	FileStatusSkipped   FileStatus = "skipped"
)

// Checkpoint tracks per-file progress within a single ingestion run.
// Non-source files are recorded as Skipped at creation and never revisited.
type Checkpoint struct {
	CheckpointID string
	Files        map[string]FileStatus
}

// NewCheckpoint creates an empty checkpoint with the given id.
func NewCheckpoint(checkpointID string) *Checkpoint {
	return &Checkpoint{
		CheckpointID: checkpointID,
		Files:        make(map[string]FileStatus),
	}
}

// Pending returns the file paths currently in FileStatusPending.
func (c *Checkpoint) Pending() []string {
	var out []string
	for path, status := range c.Files {
		if status == FileStatusPending {
			out = append(out, path)
		}
	}
	return out
}

// RetryFailed resets every FileStatusFailed entry back to FileStatusPending.
func (c *Checkpoint) RetryFailed() {
	for path, status := range c.Files {
		if status == FileStatusFailed {
			c.Files[path] = FileStatusPending
		}
	}
}

// AllDone reports whether no file remains pending.
func (c *Checkpoint) AllDone() bool {
	for _, status := range c.Files {
		if status == FileStatusPending {
			return false
		}
	}
	return true
}

// ToMap renders the checkpoint as the persisted JSON shape: path -> status,
// plus a reserved "__checkpoint_id__" key.
func (c *Checkpoint) ToMap() map[string]string {
	out := make(map[string]string, len(c.Files)+1)
	for path, status := range c.Files {
		out[path] = string(status)
	}
	out["__checkpoint_id__"] = c.CheckpointID
	return out
}

// CheckpointFromMap reconstructs a Checkpoint from its persisted JSON shape.
func CheckpointFromMap(m map[string]string) *Checkpoint {
	id := m["__checkpoint_id__"]
	c := NewCheckpoint(id)
	for path, status := range m {
		if path == "__checkpoint_id__" {
			continue
		}
		c.Files[path] = FileStatus(status)
	}
	return c
}

// IngestionState is the run-level lifecycle state tracked by IngestionStatus,
// independent of the per-file Checkpoint above.
type IngestionState string

const (
	IngestionRunning   IngestionState = "running"
	IngestionCompleted IngestionState = "completed"
	IngestionFailed    IngestionState = "failed"
)

// IngestionStatus tracks one ingestion run across process restarts so a
// resumer can decide which thread_id to re-attach a driver to.
type IngestionStatus struct {
	ThreadID       string
	State          IngestionState
	TotalFiles     int
	ProcessedFiles int
	Error          string
	CreatedAt      int64 // unix seconds
	CompletedAt    *int64
}

// Resumable reports whether this run can be picked back up by a new driver.
func (s *IngestionStatus) Resumable() bool {
	return s.State == IngestionRunning || s.State == IngestionFailed
}
