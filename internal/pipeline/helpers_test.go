package pipeline

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/eykd/dmearchive/internal/audit"
	"github.com/eykd/dmearchive/internal/dme"
	"github.com/eykd/dmearchive/internal/hierarchy"
	"github.com/eykd/dmearchive/internal/naming"
	"github.com/eykd/dmearchive/internal/notify"
	"github.com/eykd/dmearchive/internal/tarlist"
)

type fakeRegistrar struct {
	requests []dme.Request
	fail     map[string]error
	status   map[string]dme.TransferStatus
}

func (f *fakeRegistrar) Submit(_ context.Context, req dme.Request) (dme.Confirmation, error) {
	f.requests = append(f.requests, req)
	if err, ok := f.fail[req.ArchivePath]; ok {
		return dme.Confirmation{}, err
	}
	return dme.Confirmation{Outcome: dme.OutcomeNew}, nil
}

func (f *fakeRegistrar) DataObjectStatus(_ context.Context, archivePath string) (dme.TransferStatus, error) {
	if st, ok := f.status[archivePath]; ok {
		return st, nil
	}
	return dme.StatusEmpty, nil
}

func (f *fakeRegistrar) paths(kind dme.Kind) []string {
	var out []string
	for _, r := range f.requests {
		if r.Kind == kind {
			out = append(out, r.ArchivePath)
		}
	}
	return out
}

type recordingNotifier struct {
	messages []notify.Message
}

func (n *recordingNotifier) Notify(_ context.Context, msg notify.Message) error {
	n.messages = append(n.messages, msg)
	return nil
}

func (n *recordingNotifier) subjects() []string {
	var out []string
	for _, m := range n.messages {
		out = append(out, m.Subject)
	}
	return out
}

type testEnv struct {
	*Env
	reg      *fakeRegistrar
	notifier *recordingNotifier
	dir      string
}

func newTestEnv(t *testing.T, tmpl hierarchy.Template, rules naming.RuleSet) *testEnv {
	t.Helper()
	dir := t.TempDir()
	session, err := audit.Open(audit.Options{Dir: dir, Logger: zap.NewNop()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })
	builder, err := hierarchy.NewBuilder(tmpl)
	require.NoError(t, err)

	reg := &fakeRegistrar{fail: map[string]error{}, status: map[string]dme.TransferStatus{}}
	n := &recordingNotifier{}
	return &testEnv{
		Env: &Env{
			Registrar: reg,
			Session:   session,
			Notifier:  n,
			Budget:    dme.NewErrorBudget(dme.DefaultMaxErrors),
			Logger:    zap.NewNop(),
			Builder:   builder,
			Parser:    naming.NewParser(rules, naming.NewNameTable(naming.DefaultPITable...)),
		},
		reg:      reg,
		notifier: n,
		dir:      dir,
	}
}

func readAudit(t *testing.T, dir, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)
	return string(data)
}

type fakeTarIO struct {
	manifest  []string
	listings  map[string][]tarlist.Entry
	generate  map[string][]tarlist.Entry
	sizes     map[string]int64
	extracted []string
	removed   []string
	generated []string
}

func (f *fakeTarIO) ReadManifest(string) ([]string, error) { return f.manifest, nil }

func (f *fakeTarIO) FindListing(tarPath string) (string, bool) {
	if _, ok := f.listings[tarPath]; ok {
		return tarPath + ".list", true
	}
	return "", false
}

func (f *fakeTarIO) ReadListing(p string) ([]tarlist.Entry, error) {
	return f.listings[strings.TrimSuffix(p, ".list")], nil
}

func (f *fakeTarIO) GenerateListing(tarPath, listPath string) ([]tarlist.Entry, error) {
	f.generated = append(f.generated, listPath)
	entries, ok := f.generate[tarPath]
	if !ok {
		return nil, fmt.Errorf("open %s: %w", tarPath, fs.ErrNotExist)
	}
	return entries, nil
}

func (f *fakeTarIO) Extract(_ context.Context, _, member, destDir string) (string, int64, error) {
	f.extracted = append(f.extracted, member)
	return filepath.Join(destDir, filepath.FromSlash(member)), 100, nil
}

func (f *fakeTarIO) Remove(p string) error {
	f.removed = append(f.removed, p)
	return nil
}

func (f *fakeTarIO) FileSize(p string) (int64, error) {
	return f.sizes[p], nil
}

func entries(paths ...string) []tarlist.Entry {
	out := make([]tarlist.Entry, 0, len(paths))
	for _, p := range paths {
		e, _ := tarlist.ParseLine(p)
		out = append(out, e)
	}
	return out
}

// osIO walks and copies real files for the directory and staging tests.
type osIO struct {
	manifest []string
	copied   map[string]string
	removed  []string
	extract  func(tarPath, destDir string) ([]string, error)
}

func (o *osIO) ReadManifest(string) ([]string, error) { return o.manifest, nil }

func (o *osIO) WalkDir(root string, fn fs.WalkDirFunc) error { return filepath.WalkDir(root, fn) }

func (o *osIO) FileSize(p string) (int64, error) {
	fi, err := os.Stat(p)
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

func (o *osIO) ExtractAll(_ context.Context, tarPath, destDir string, _ func(string) bool) ([]string, error) {
	return o.extract(tarPath, destDir)
}

func (o *osIO) Copy(src, dst string) (int64, error) {
	if o.copied == nil {
		o.copied = map[string]string{}
	}
	o.copied[dst] = src
	return o.FileSize(src)
}

func (o *osIO) RemoveAll(p string) error {
	o.removed = append(o.removed, p)
	return nil
}

func writeFile(t *testing.T, p, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}
