// Package pipeline runs the archive workflows: tar manifests, project
// directory trees and SCAF staging. Processing is sequential; one manifest
// line is finished before the next starts.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/eykd/dmearchive/internal/audit"
	"github.com/eykd/dmearchive/internal/dme"
	"github.com/eykd/dmearchive/internal/hierarchy"
	"github.com/eykd/dmearchive/internal/metadata"
	"github.com/eykd/dmearchive/internal/naming"
	"github.com/eykd/dmearchive/internal/notify"
)

// DefaultCacheSize bounds the set of collection paths remembered as
// registered during a run.
const DefaultCacheSize = 4096

// errSkipped marks an item that was handled by recording an exclusion.
var errSkipped = errors.New("skipped")

// Env is the shared state of one run.
type Env struct {
	Registrar dme.Registrar
	Session   *audit.Session
	Notifier  notify.Notifier
	Budget    *dme.ErrorBudget
	Logger    *zap.Logger
	Builder   *hierarchy.Builder
	Parser    *naming.Parser
	Assembler *metadata.Assembler

	DryRun bool
	// SkipArchived queries the archive before each data object and skips
	// objects that are already ARCHIVED.
	SkipArchived bool
	CacheSize    int

	registered *lru.Cache[string, struct{}]
}

func (e *Env) init() error {
	if e.Session == nil {
		return errors.New("pipeline: audit session is required")
	}
	if e.Logger == nil {
		e.Logger = zap.NewNop()
	}
	if e.Notifier == nil {
		e.Notifier = notify.Nop{}
	}
	if e.Budget == nil {
		e.Budget = dme.NewErrorBudget(dme.DefaultMaxErrors)
	}
	if e.Assembler == nil {
		e.Assembler = metadata.NewAssembler(nil)
	}
	if e.registered == nil {
		size := e.CacheSize
		if size <= 0 {
			size = DefaultCacheSize
		}
		c, err := lru.New[string, struct{}](size)
		if err != nil {
			return fmt.Errorf("creating collection cache: %w", err)
		}
		e.registered = c
	}
	return nil
}

func (e *Env) requireRegistrar() error {
	if e.Registrar == nil || e.Builder == nil || e.Parser == nil {
		return errors.New("pipeline: registrar, builder and parser are required")
	}
	return nil
}

type commandLiner interface {
	CommandLine(dme.Request) []string
}

func (e *Env) commandLine(req dme.Request) []string {
	if cl, ok := e.Registrar.(commandLiner); ok {
		return cl.CommandLine(req)
	}
	return dme.DefaultCommands().Argv(req)
}

func (e *Env) submit(ctx context.Context, req dme.Request) (dme.Confirmation, error) {
	if err := e.Session.RecordCommand(e.commandLine(req)); err != nil {
		return dme.Confirmation{}, err
	}
	return e.Registrar.Submit(ctx, req)
}

// registerCollection registers n once per run. With withParents the
// document carries metadata for every ancestor.
func (e *Env) registerCollection(ctx context.Context, n *hierarchy.Node, withParents bool) (dme.Confirmation, error) {
	path := n.Path()
	if e.registered.Contains(path) {
		return dme.Confirmation{Outcome: dme.OutcomeCompleted, Message: "already registered in this run"}, nil
	}
	doc, err := e.Assembler.CollectionDocument(n, withParents)
	if err != nil {
		return dme.Confirmation{}, err
	}
	metaPath, err := metadata.WriteDocument(e.Session.JSONDir(), metadata.CollectionFileName(n), doc)
	if err != nil {
		return dme.Confirmation{}, err
	}
	e.Logger.Info("registering collection", zap.String("type", string(n.Type)), zap.String("archive_path", path))
	conf, err := e.submit(ctx, dme.Request{Kind: dme.Collection, MetadataPath: metaPath, ArchivePath: path})
	if err != nil {
		return conf, fmt.Errorf("registering %s: %w", path, err)
	}
	e.registered.Add(path, struct{}{})
	return conf, nil
}

// registerObject registers a file below parent and returns its archive path.
func (e *Env) registerObject(ctx context.Context, parent *hierarchy.Node, obj metadata.Object, withParents bool) (string, dme.Confirmation, error) {
	archivePath := hierarchy.DataObjectPath(parent, obj.Name)
	doc, err := e.Assembler.ObjectDocument(parent, obj, withParents)
	if err != nil {
		return archivePath, dme.Confirmation{}, err
	}
	metaPath, err := metadata.WriteDocument(e.Session.JSONDir(), metadata.ObjectFileName(obj.Name), doc)
	if err != nil {
		return archivePath, dme.Confirmation{}, err
	}
	e.Logger.Info("registering data object", zap.String("archive_path", archivePath), zap.String("source", obj.SourcePath))
	conf, err := e.submit(ctx, dme.Request{Kind: dme.DataObject, MetadataPath: metaPath, ArchivePath: archivePath, SourcePath: obj.SourcePath})
	if err != nil {
		return archivePath, conf, fmt.Errorf("registering %s: %w", archivePath, err)
	}
	if withParents {
		for _, p := range append(parent.Ancestors(), parent) {
			e.registered.Add(p.Path(), struct{}{})
		}
	}
	return archivePath, conf, nil
}

// checkArchived returns errSkipped, after recording why, when the object at
// archivePath must not be registered again.
func (e *Env) checkArchived(ctx context.Context, source, item, archivePath string) error {
	if !e.SkipArchived {
		return nil
	}
	st, err := e.Registrar.DataObjectStatus(ctx, archivePath)
	if err != nil {
		return fmt.Errorf("checking %s: %w", archivePath, err)
	}
	switch {
	case st.NeedsRegistration():
		return nil
	case st == dme.StatusArchived:
		e.Logger.Info("already archived", zap.String("archive_path", archivePath))
		if err := e.Session.RecordExclusion(source, item, "Already archived"); err != nil {
			return err
		}
		return errSkipped
	case st == dme.StatusError:
		return fmt.Errorf("cannot retrieve status of %s", archivePath)
	}
	msg := fmt.Sprintf("The data object %s is in state %s and was not registered", archivePath, st)
	if err := e.Notifier.Notify(ctx, notify.Message{Subject: notify.SubjectWarning, Body: msg}); err != nil {
		e.Logger.Warn("notification failed", zap.Error(err))
	}
	if err := e.Session.RecordExclusion(source, item, "Transfer in progress: "+string(st)); err != nil {
		return err
	}
	return errSkipped
}

// fail decides what a failed item means for the run. Configuration errors
// and a missing client abort at once. Other failures are reported and
// counted; the run aborts when the error budget is exhausted, otherwise
// fail returns nil and processing continues.
func (e *Env) fail(ctx context.Context, what string, err error) error {
	if errors.Is(err, errSkipped) {
		return nil
	}
	if errors.Is(err, hierarchy.ErrInvalidCollectionType) || errors.Is(err, dme.ErrCommandUnavailable) {
		return err
	}
	e.Logger.Error("registration failed", zap.String("item", what), zap.Error(err), zap.Bool("retryable", dme.IsRetryable(err)))
	body := fmt.Sprintf("Registering %s returned the error message: %v", what, err)
	if nerr := e.Notifier.Notify(ctx, notify.Message{Subject: notify.SubjectError, Body: body}); nerr != nil {
		e.Logger.Warn("notification failed", zap.Error(nerr))
	}
	if berr := e.Budget.Record(err); berr != nil {
		e.Logger.Error("aborting run", zap.Int("errors", e.Budget.Count()))
		return berr
	}
	return nil
}

// finish writes the summary and sends the completion notice.
func (e *Env) finish(ctx context.Context, what string) error {
	if err := e.Session.WriteSummary(); err != nil {
		return err
	}
	sum := e.Session.Summary()
	body := fmt.Sprintf("%s: files registered = %d, bytes stored = %d, excluded = %d, errors = %d",
		what, sum.FilesRegistered, sum.BytesStored, sum.Excluded, e.Budget.Count())
	if err := e.Notifier.Notify(ctx, notify.Message{Subject: notify.SubjectCompleted, Body: body}); err != nil {
		e.Logger.Warn("notification failed", zap.Error(err))
	}
	return nil
}

func auditInclusion(source, extracted, archivePath string, id naming.Identity, size int64, conf dme.Confirmation) audit.Inclusion {
	return audit.Inclusion{
		Source:      source,
		Extracted:   extracted,
		ArchivePath: archivePath,
		Identity:    id,
		Size:        size,
		Result:      string(conf.Outcome),
	}
}

func baseName(p string) string {
	return filepath.Base(filepath.FromSlash(p))
}
