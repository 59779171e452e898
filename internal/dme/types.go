// Package dme drives the external HPCDME command-line client: it submits
// registration requests, decodes the client's textual responses and queries
// data object status.
package dme

import "context"

// Kind selects the registration command.
type Kind int

const (
	Collection Kind = iota
	DataObject
)

func (k Kind) String() string {
	if k == DataObject {
		return "dataobject"
	}
	return "collection"
}

// Request is one registration. SourcePath is only used for data objects.
type Request struct {
	Kind         Kind
	MetadataPath string
	ArchivePath  string
	SourcePath   string
}

// Outcome is how the archive reported a successful request.
type Outcome string

const (
	OutcomeCompleted Outcome = "COMPLETED"
	OutcomeNew       Outcome = "NEW"
	OutcomeUpdate    Outcome = "UPDATE"
	OutcomeDryRun    Outcome = "DRY_RUN"
)

// Confirmation is a successful registration.
type Confirmation struct {
	Outcome Outcome
	Message string
	Output  string
}

// TransferStatus is the data_transfer_status of a registered object, or one
// of the pseudo states StatusEmpty and StatusError.
type TransferStatus string

const (
	StatusEmpty      TransferStatus = "EMPTY"
	StatusError      TransferStatus = "ERROR"
	StatusArchived   TransferStatus = "ARCHIVED"
	StatusURLExpired TransferStatus = "URL_EXPIRED"
)

// NeedsRegistration reports whether an object in state s should be
// (re)submitted.
func (s TransferStatus) NeedsRegistration() bool {
	return s == StatusEmpty || s == StatusURLExpired
}

// Registrar is the boundary to the archive.
type Registrar interface {
	Submit(ctx context.Context, req Request) (Confirmation, error)
	DataObjectStatus(ctx context.Context, archivePath string) (TransferStatus, error)
}
