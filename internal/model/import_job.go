package model

type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Terminal reports whether no further transition is allowed.
func (s JobStatus) Terminal() bool {
	return s == JobStatusSucceeded || s == JobStatusFailed || s == JobStatusCancelled
}

type JobStep string

const (
	JobStepNone       JobStep = ""
	JobStepValidating JobStep = "validating"
	JobStepExtracting JobStep = "extracting"
	JobStepParsing    JobStep = "parsing"
	JobStepImporting  JobStep = "importing"
	JobStepFinalizing JobStep = "finalizing"
)

type ImportJob struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	FileName     string    `json:"file_name"`
	SourcePath   string    `json:"-"`
	WorkDir      string    `json:"-"`
	Status       JobStatus `json:"status"`
	Step         JobStep   `json:"step"`
	Attempts     int       `json:"attempts"`
	ErrorKind    string    `json:"error_kind,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	PackageID    string    `json:"package_id,omitempty"`
	Warnings     []Warning `json:"warnings"`
	Seq          int64     `json:"-"`
	Ctime        int64     `json:"ctime"`
	Mtime        int64     `json:"mtime"`
}
