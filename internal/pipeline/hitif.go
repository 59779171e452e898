package pipeline

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/eykd/dmearchive/internal/audit"
	"github.com/eykd/dmearchive/internal/dme"
	"github.com/eykd/dmearchive/internal/hierarchy"
	"github.com/eykd/dmearchive/internal/metadata"
	"github.com/eykd/dmearchive/internal/naming"
	"github.com/eykd/dmearchive/internal/notify"
)

// DefaultMinAge is how long a directory must go unmodified before it is
// archived.
const DefaultMinAge = 7 * 24 * time.Hour

// Users file columns.
const (
	ColPIName     = "piname"
	ColPIEmail    = "nihpiusername"
	ColInstitute  = "institute"
	ColLab        = "lab"
	ColUserName   = "username"
	ColUserEmail  = "nihusername"
	ColBranch     = "branch"
	ColComments   = "comments"
	ColFolderName = "foldername"
)

// Ledger file names inside the archive database.
const (
	PILedger          = "registered_pis.txt"
	UserLedger        = "registered_users.txt"
	ExperimentLedger  = "registered_experiments.txt"
	MeasurementLedger = "registered_measurements.txt"
)

// Exclusion reasons written by RunHiTIF.
const (
	ReasonNoFolder       = "No foldername"
	ReasonUnreadableDir  = "Unreadable directory"
	ReasonAlreadyArchive = "Already archived"
)

// HiTIFIO is the file system boundary of the HiTIF pipeline.
type HiTIFIO interface {
	ReadUsers(path string) (*metadata.Table, error)
	// SettledDirs returns the names of the immediate subdirectories of dir
	// last modified before cutoff.
	SettledDirs(dir string, cutoff time.Time) ([]string, error)
	MkdirAll(path string) error
	Exists(path string) bool
	DirSize(path string) (int64, error)
	CreateTarball(ctx context.Context, dst, srcDir string) (int64, error)
	Remove(path string) error
}

// HiTIFOptions configures RunHiTIF.
type HiTIFOptions struct {
	// UsersFile is the CSV of PIs and users. User folders are resolved
	// relative to its directory.
	UsersFile string
	// Database mirrors the user folders and holds the ledgers.
	Database string
	MinAge   time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
}

type hitifRun struct {
	env    *Env
	io     HiTIFIO
	opts   HiTIFOptions
	cutoff time.Time
	users  *metadata.Table
	pis    *audit.Ledger
	people *audit.Ledger
}

// RunHiTIF archives imaging measurements. For every row of the users file
// it registers the PI and user collections, an experiment collection for
// each settled experiment directory and one gzipped tarball per settled
// measurement directory. Ledgers in the database remember what earlier
// runs registered.
func RunHiTIF(ctx context.Context, env *Env, hio HiTIFIO, opts HiTIFOptions) error {
	if err := env.init(); err != nil {
		return err
	}
	if err := env.requireRegistrar(); err != nil {
		return err
	}
	users, err := hio.ReadUsers(opts.UsersFile)
	if err != nil {
		return fmt.Errorf("reading users file: %w", err)
	}
	for _, col := range []string{ColPIName, ColUserName, ColFolderName} {
		if users.Column(col) < 0 {
			return fmt.Errorf("users file %s: missing column %q", opts.UsersFile, col)
		}
	}
	if opts.MinAge <= 0 {
		opts.MinAge = DefaultMinAge
	}
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}

	r := &hitifRun{env: env, io: hio, opts: opts, cutoff: now().Add(-opts.MinAge), users: users}
	if r.pis, err = audit.OpenLedger(filepath.Join(opts.Database, PILedger)); err != nil {
		return err
	}
	defer func() { _ = r.pis.Close() }()
	if r.people, err = audit.OpenLedger(filepath.Join(opts.Database, UserLedger)); err != nil {
		return err
	}
	defer func() { _ = r.people.Close() }()

	for _, row := range users.Rows {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.user(ctx, row); err != nil {
			return err
		}
	}
	return env.finish(ctx, "users file "+opts.UsersFile)
}

func (r *hitifRun) value(row []string, col string) string {
	return r.users.Value(row, col)
}

func underscored(s string) string {
	return strings.ReplaceAll(s, " ", "_")
}

// collection registers n unless ledger already holds item.
func (r *hitifRun) collection(ctx context.Context, ledger *audit.Ledger, item string, n *hierarchy.Node) error {
	if ledger.Has(item) {
		return nil
	}
	if _, err := r.env.registerCollection(ctx, n, false); err != nil {
		return err
	}
	if r.env.DryRun {
		return nil
	}
	return ledger.Add(item)
}

func (r *hitifRun) user(ctx context.Context, row []string) error {
	env := r.env
	folder := r.value(row, ColFolderName)
	piName := r.value(row, ColPIName)
	userName := r.value(row, ColUserName)
	if folder == "" {
		return env.Session.RecordExclusion(r.opts.UsersFile, userName, ReasonNoFolder)
	}

	pi, err := env.Builder.Named(hierarchy.PILab, nil, piName, underscored(piName))
	if err != nil {
		return err
	}
	pi.Identity = naming.Identity{PIName: piName}
	pi.Attributes = []hierarchy.Attribute{
		{Name: "pi_email", Value: r.value(row, ColPIEmail)},
		{Name: "institute", Value: r.value(row, ColInstitute)},
		{Name: "lab", Value: r.value(row, ColLab)},
	}
	if err := r.collection(ctx, r.pis, piName, pi); err != nil {
		return env.fail(ctx, pi.Path(), err)
	}

	usr, err := env.Builder.Named(hierarchy.Folder, pi, userName, underscored(userName))
	if err != nil {
		return err
	}
	usr.Attributes = []hierarchy.Attribute{
		{Name: "name", Value: userName},
		{Name: "email", Value: r.value(row, ColUserEmail)},
		{Name: "branch", Value: r.value(row, ColBranch)},
		{Name: "comment", Value: r.value(row, ColComments)},
	}
	if err := r.collection(ctx, r.people, userName, usr); err != nil {
		return env.fail(ctx, usr.Path(), err)
	}

	userDB := filepath.Join(r.opts.Database, folder)
	if err := r.io.MkdirAll(userDB); err != nil {
		return fmt.Errorf("creating %s: %w", userDB, err)
	}
	userDir := filepath.Join(filepath.Dir(r.opts.UsersFile), folder)
	exps, err := r.io.SettledDirs(userDir, r.cutoff)
	if err != nil {
		env.Logger.Warn("cannot list user directory", zap.String("dir", userDir), zap.Error(err))
		return env.Session.RecordExclusion(r.opts.UsersFile, userDir, ReasonUnreadableDir)
	}

	ledger, err := audit.OpenLedger(filepath.Join(userDB, ExperimentLedger))
	if err != nil {
		return err
	}
	defer func() { _ = ledger.Close() }()
	for _, exp := range exps {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.experiment(ctx, usr, ledger, userDir, userDB, exp); err != nil {
			return err
		}
	}
	return nil
}

func (r *hitifRun) experiment(ctx context.Context, usr *hierarchy.Node, ledger *audit.Ledger, userDir, userDB, name string) error {
	env := r.env
	expDB := filepath.Join(userDB, name)
	if err := r.io.MkdirAll(expDB); err != nil {
		return fmt.Errorf("creating %s: %w", expDB, err)
	}
	exp, err := env.Builder.Named(hierarchy.Run, usr, name, url.QueryEscape(underscored(name)))
	if err != nil {
		return err
	}
	exp.Attributes = []hierarchy.Attribute{{Name: "experiment_name", Value: name}}
	if err := r.collection(ctx, ledger, name, exp); err != nil {
		return env.fail(ctx, exp.Path(), err)
	}

	expDir := filepath.Join(userDir, name)
	measurements, err := r.io.SettledDirs(expDir, r.cutoff)
	if err != nil {
		env.Logger.Warn("cannot list experiment directory", zap.String("dir", expDir), zap.Error(err))
		return env.Session.RecordExclusion(r.opts.UsersFile, expDir, ReasonUnreadableDir)
	}
	done, err := audit.OpenLedger(filepath.Join(expDB, MeasurementLedger))
	if err != nil {
		return err
	}
	defer func() { _ = done.Close() }()
	for _, m := range measurements {
		if err := ctx.Err(); err != nil {
			return err
		}
		if done.Has(m) {
			continue
		}
		src := filepath.Join(expDir, m)
		if err := r.measurement(ctx, exp, done, src, expDB, m); err != nil {
			if ferr := env.fail(ctx, src, err); ferr != nil {
				return ferr
			}
		}
	}
	return nil
}

// measurement archives one measurement directory as <name>.tar.gz below exp.
func (r *hitifRun) measurement(ctx context.Context, exp *hierarchy.Node, done *audit.Ledger, src, expDB, name string) error {
	env := r.env
	tarName := underscored(name) + ".tar.gz"
	tarPath := filepath.Join(expDB, tarName)
	archivePath := hierarchy.DataObjectPath(exp, tarName)

	st, err := env.Registrar.DataObjectStatus(ctx, archivePath)
	if err != nil {
		return fmt.Errorf("checking %s: %w", archivePath, err)
	}
	switch {
	case st.NeedsRegistration():
		return r.register(ctx, exp, done, src, tarPath, tarName, name)
	case st == dme.StatusArchived:
		if !env.DryRun {
			if err := done.Add(name); err != nil {
				return err
			}
		}
		if r.io.Exists(tarPath) {
			r.warn(ctx, fmt.Sprintf("The tar file %s exists while the measurement is already ARCHIVED", tarPath))
		}
		if err := env.Session.RecordExclusion(src, name, ReasonAlreadyArchive); err != nil {
			return err
		}
		return errSkipped
	case st == dme.StatusError:
		return fmt.Errorf("cannot retrieve the transfer status of %s", archivePath)
	}
	r.warn(ctx, fmt.Sprintf("The transfer status of the measurement file %s is: %s", archivePath, st))
	if err := env.Session.RecordExclusion(src, name, "Transfer in progress: "+string(st)); err != nil {
		return err
	}
	return errSkipped
}

func (r *hitifRun) register(ctx context.Context, exp *hierarchy.Node, done *audit.Ledger, src, tarPath, tarName, name string) (err error) {
	env := r.env
	var size int64
	if env.DryRun {
		if size, err = r.io.DirSize(src); err != nil {
			return err
		}
	} else {
		env.Logger.Info("creating tarball", zap.String("source", src), zap.String("tarball", tarPath))
		if size, err = r.io.CreateTarball(ctx, tarPath, src); err != nil {
			return fmt.Errorf("creating %s: %w", tarPath, err)
		}
		defer func() {
			if rerr := r.io.Remove(tarPath); rerr != nil && err == nil {
				err = fmt.Errorf("removing %s: %w", tarPath, rerr)
			}
		}()
	}

	obj := metadata.Object{
		Name:       tarName,
		SourcePath: tarPath,
		Attributes: []metadata.Entry{{Attribute: "experiment_name", Value: name}},
	}
	archivePath, conf, err := env.registerObject(ctx, exp, obj, false)
	if err != nil {
		return err
	}
	if !env.DryRun {
		if err := done.Add(name); err != nil {
			return err
		}
	}
	return env.Session.RecordInclusion(auditInclusion(src, tarPath, archivePath, exp.Identity, size, conf))
}

func (r *hitifRun) warn(ctx context.Context, msg string) {
	r.env.Logger.Warn(msg)
	if err := r.env.Notifier.Notify(ctx, notify.Message{Subject: notify.SubjectWarning, Body: msg}); err != nil {
		r.env.Logger.Warn("notification failed", zap.Error(err))
	}
}
