package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eykd/dmearchive/internal/dme"
	"github.com/eykd/dmearchive/internal/hierarchy"
	"github.com/eykd/dmearchive/internal/metadata"
	"github.com/eykd/dmearchive/internal/naming"
	"github.com/eykd/dmearchive/internal/notify"
)

const (
	hitifPI   = "/HiTIF_Archive/PI_Smith_Jane"
	hitifUser = hitifPI + "/User_Roe_Jane"
	hitifExp  = hitifUser + "/Exp_plate_1"
)

type fakeHiTIFIO struct {
	users    string
	settled  map[string][]string
	sizes    map[string]int64
	existing map[string]bool
	created  []string
	removed  []string
}

func (f *fakeHiTIFIO) ReadUsers(string) (*metadata.Table, error) {
	return metadata.ReadTable(strings.NewReader(f.users))
}

func (f *fakeHiTIFIO) SettledDirs(dir string, _ time.Time) ([]string, error) {
	names, ok := f.settled[dir]
	if !ok {
		return nil, os.ErrNotExist
	}
	return names, nil
}

func (f *fakeHiTIFIO) MkdirAll(p string) error { return os.MkdirAll(p, 0o755) }

func (f *fakeHiTIFIO) Exists(p string) bool { return f.existing[p] }

func (f *fakeHiTIFIO) DirSize(p string) (int64, error) { return f.sizes[p], nil }

func (f *fakeHiTIFIO) CreateTarball(_ context.Context, dst, src string) (int64, error) {
	f.created = append(f.created, dst)
	return f.sizes[src], nil
}

func (f *fakeHiTIFIO) Remove(p string) error {
	f.removed = append(f.removed, p)
	return nil
}

const hitifUsers = "piname,nihpiusername,institute,lab,username,nihusername,branch,comments,foldername\n" +
	"Smith Jane,smithj,NCI,Imaging,Roe Jane,roej,LCB,,roe\n"

func newHiTIFIO() *fakeHiTIFIO {
	return &fakeHiTIFIO{
		users: hitifUsers,
		settled: map[string][]string{
			"/data/roe":         {"plate 1"},
			"/data/roe/plate 1": {"meas 1"},
		},
		sizes:    map[string]int64{"/data/roe/plate 1/meas 1": 2048},
		existing: map[string]bool{},
	}
}

func hitifOptions(db string) HiTIFOptions {
	return HiTIFOptions{UsersFile: "/data/users.csv", Database: db}
}

func newHiTIFEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnv(t, hierarchy.HiTIF(), naming.CCRSFRules())
}

func TestRunHiTIF_RegistersChainAndTarball(t *testing.T) {
	env := newHiTIFEnv(t)
	db := t.TempDir()
	hio := newHiTIFIO()

	require.NoError(t, RunHiTIF(context.Background(), env.Env, hio, hitifOptions(db)))

	assert.Equal(t, []string{hitifPI, hitifUser, hitifExp}, env.reg.paths(dme.Collection))
	assert.Equal(t, []string{hitifExp + "/meas_1.tar.gz"}, env.reg.paths(dme.DataObject))

	tarPath := filepath.Join(db, "roe", "plate 1", "meas_1.tar.gz")
	assert.Equal(t, []string{tarPath}, hio.created)
	assert.Equal(t, []string{tarPath}, hio.removed)

	sum := env.Session.Summary()
	assert.Equal(t, int64(1), sum.FilesRegistered)
	assert.Equal(t, int64(2048), sum.BytesStored)

	assert.Equal(t, "Smith Jane\n", readAudit(t, db, PILedger))
	assert.Equal(t, "Roe Jane\n", readAudit(t, db, UserLedger))
	assert.Equal(t, "plate 1\n", readAudit(t, filepath.Join(db, "roe"), ExperimentLedger))
	assert.Equal(t, "meas 1\n", readAudit(t, filepath.Join(db, "roe", "plate 1"), MeasurementLedger))
}

func TestRunHiTIF_CollectionMetadataFromUsersFile(t *testing.T) {
	env := newHiTIFEnv(t)
	require.NoError(t, RunHiTIF(context.Background(), env.Env, newHiTIFIO(), hitifOptions(t.TempDir())))

	pi, err := os.ReadFile(env.reg.requests[0].MetadataPath)
	require.NoError(t, err)
	assert.Contains(t, string(pi), `"pi_email"`)
	assert.Contains(t, string(pi), `"smithj"`)
	assert.Contains(t, string(pi), `"Imaging"`)

	user, err := os.ReadFile(env.reg.requests[1].MetadataPath)
	require.NoError(t, err)
	assert.Contains(t, string(user), `"roej"`)
	assert.NotContains(t, string(user), `"comment"`)

	obj, err := os.ReadFile(env.reg.requests[3].MetadataPath)
	require.NoError(t, err)
	assert.Contains(t, string(obj), `"experiment_name"`)
	assert.Contains(t, string(obj), `"meas 1"`)
}

func TestRunHiTIF_LedgersSkipEarlierWork(t *testing.T) {
	db := t.TempDir()
	first := newHiTIFEnv(t)
	require.NoError(t, RunHiTIF(context.Background(), first.Env, newHiTIFIO(), hitifOptions(db)))

	second := newHiTIFEnv(t)
	hio := newHiTIFIO()
	require.NoError(t, RunHiTIF(context.Background(), second.Env, hio, hitifOptions(db)))

	assert.Empty(t, second.reg.requests)
	assert.Empty(t, hio.created)
}

func TestRunHiTIF_LedgerMatchesWholeNames(t *testing.T) {
	db := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(db, PILedger), []byte("Smith Janet\n"), 0o644))
	env := newHiTIFEnv(t)

	require.NoError(t, RunHiTIF(context.Background(), env.Env, newHiTIFIO(), hitifOptions(db)))

	assert.Contains(t, env.reg.paths(dme.Collection), hitifPI)
}

func TestRunHiTIF_AlreadyArchived(t *testing.T) {
	env := newHiTIFEnv(t)
	env.reg.status[hitifExp+"/meas_1.tar.gz"] = dme.StatusArchived
	db := t.TempDir()
	hio := newHiTIFIO()
	tarPath := filepath.Join(db, "roe", "plate 1", "meas_1.tar.gz")
	hio.existing[tarPath] = true

	require.NoError(t, RunHiTIF(context.Background(), env.Env, hio, hitifOptions(db)))

	assert.Empty(t, env.reg.paths(dme.DataObject))
	assert.Empty(t, hio.created)
	assert.Equal(t, "meas 1\n", readAudit(t, filepath.Join(db, "roe", "plate 1"), MeasurementLedger))
	assert.Contains(t, readAudit(t, env.dir, "excluded.csv"), ReasonAlreadyArchive)
	assert.Contains(t, env.notifier.subjects(), notify.SubjectWarning)
	assert.Equal(t, 0, env.Budget.Count())
}

func TestRunHiTIF_TransferInProgressWarns(t *testing.T) {
	env := newHiTIFEnv(t)
	env.reg.status[hitifExp+"/meas_1.tar.gz"] = dme.TransferStatus("IN_PROGRESS")
	db := t.TempDir()

	require.NoError(t, RunHiTIF(context.Background(), env.Env, newHiTIFIO(), hitifOptions(db)))

	assert.Empty(t, env.reg.paths(dme.DataObject))
	assert.Contains(t, readAudit(t, env.dir, "excluded.csv"), "Transfer in progress: IN_PROGRESS")
	assert.Contains(t, env.notifier.subjects(), notify.SubjectWarning)
	assert.Equal(t, "", readAudit(t, filepath.Join(db, "roe", "plate 1"), MeasurementLedger))
}

func TestRunHiTIF_StatusErrorCountsAgainstBudget(t *testing.T) {
	env := newHiTIFEnv(t)
	env.reg.status[hitifExp+"/meas_1.tar.gz"] = dme.StatusError

	require.NoError(t, RunHiTIF(context.Background(), env.Env, newHiTIFIO(), hitifOptions(t.TempDir())))

	assert.Equal(t, 1, env.Budget.Count())
	assert.Contains(t, env.notifier.subjects(), notify.SubjectError)
}

func TestRunHiTIF_RegistrationFailureKeepsLedgerClean(t *testing.T) {
	env := newHiTIFEnv(t)
	env.reg.fail[hitifExp+"/meas_1.tar.gz"] = errors.New("CLI_5: Failed to process data file")
	db := t.TempDir()
	hio := newHiTIFIO()

	require.NoError(t, RunHiTIF(context.Background(), env.Env, hio, hitifOptions(db)))

	assert.Equal(t, 1, env.Budget.Count())
	assert.Len(t, hio.removed, 1)
	assert.Equal(t, "", readAudit(t, filepath.Join(db, "roe", "plate 1"), MeasurementLedger))
}

func TestRunHiTIF_DryRunLeavesLedgersEmpty(t *testing.T) {
	env := newHiTIFEnv(t)
	env.DryRun = true
	db := t.TempDir()
	hio := newHiTIFIO()

	require.NoError(t, RunHiTIF(context.Background(), env.Env, hio, hitifOptions(db)))

	assert.Empty(t, hio.created)
	assert.Len(t, env.reg.paths(dme.DataObject), 1)
	assert.Equal(t, int64(2048), env.Session.Summary().BytesStored)
	assert.Equal(t, "", readAudit(t, db, PILedger))
	assert.Equal(t, "", readAudit(t, filepath.Join(db, "roe", "plate 1"), MeasurementLedger))
}

func TestRunHiTIF_RowWithoutFolderIsExcluded(t *testing.T) {
	env := newHiTIFEnv(t)
	hio := newHiTIFIO()
	hio.users = "piname,username,foldername\nSmith Jane,Roe Jane,\n"

	require.NoError(t, RunHiTIF(context.Background(), env.Env, hio, hitifOptions(t.TempDir())))

	assert.Empty(t, env.reg.requests)
	assert.Contains(t, readAudit(t, env.dir, "excluded.csv"), ReasonNoFolder)
}

func TestRunHiTIF_MissingUserDirectoryIsExcluded(t *testing.T) {
	env := newHiTIFEnv(t)
	hio := newHiTIFIO()
	delete(hio.settled, "/data/roe")

	require.NoError(t, RunHiTIF(context.Background(), env.Env, hio, hitifOptions(t.TempDir())))

	assert.Equal(t, []string{hitifPI, hitifUser}, env.reg.paths(dme.Collection))
	assert.Contains(t, readAudit(t, env.dir, "excluded.csv"), ReasonUnreadableDir)
}

func TestRunHiTIF_MissingColumn(t *testing.T) {
	env := newHiTIFEnv(t)
	hio := newHiTIFIO()
	hio.users = "piname,username\nSmith Jane,Roe Jane\n"

	err := RunHiTIF(context.Background(), env.Env, hio, hitifOptions(t.TempDir()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), ColFolderName)
}

func TestRunHiTIF_ExperimentNameIsEscaped(t *testing.T) {
	env := newHiTIFEnv(t)
	hio := newHiTIFIO()
	hio.settled = map[string][]string{"/data/roe": {"plate #2"}, "/data/roe/plate #2": nil}

	require.NoError(t, RunHiTIF(context.Background(), env.Env, hio, hitifOptions(t.TempDir())))

	assert.Contains(t, env.reg.paths(dme.Collection), hitifUser+"/Exp_plate_%232")
}
