package prerelease

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"

	"github.com/3leaps/bundlefetch/internal/bundle"
	"github.com/3leaps/bundlefetch/internal/channel"
	"github.com/3leaps/bundlefetch/internal/host/editor"
	"github.com/3leaps/bundlefetch/internal/host/github"
	"github.com/3leaps/bundlefetch/internal/sandbox"
	"github.com/3leaps/bundlefetch/internal/state"
	"github.com/3leaps/bundlefetch/internal/transport"
)

const (
	packageName  = "tabnine-vscode"
	repo         = "codota/tabnine-vscode"
	proposedPath = "/download/v9999.9999.9999/tabnine-vscode-9999.9999.9999.vsix"
	alphaTag     = "v3.2.0-alpha.1"
	alphaPath    = "/codota/tabnine-vscode/releases/download/" + alphaTag + "/tabnine-vscode-3.2.0-alpha.1.vsix"
	packageBytes = "PK-fake-vsix"
)

type fakeHost struct {
	messages  []editor.Message
	commands  [][]string
	// installed holds the package content seen at install time.
	installed []string
	showErr   map[string]error
}

func (h *fakeHost) ShowMessage(_ context.Context, msg editor.Message) error {
	h.messages = append(h.messages, msg)
	return h.showErr[msg.ID]
}

func (h *fakeHost) ExecuteCommand(_ context.Context, name string, args ...string) error {
	h.commands = append(h.commands, append([]string{name}, args...))
	if name == editor.CommandInstallExtension {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		h.installed = append(h.installed, string(data))
	}
	return nil
}

func (h *fakeHost) messageIDs() []string {
	ids := make([]string, 0, len(h.messages))
	for _, m := range h.messages {
		ids = append(ids, m.ID)
	}
	return ids
}

type fixture struct {
	srv     *httptest.Server
	hits    atomic.Int32
	store   *state.Memory
	host    *fakeHost
	tempDir string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{store: state.NewMemory(), host: &fakeHost{}, tempDir: t.TempDir()}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.hits.Add(1)
		switch r.URL.Path {
		case proposedPath, alphaPath:
			_, _ = w.Write([]byte(packageBytes))
		case "/api/repos/" + repo + "/releases":
			fmt.Fprintf(w, `[{"tag_name":%q,"assets":[{"name":"x.vsix","browser_download_url":%q}]}]`,
				alphaTag, "http://"+r.Host+alphaPath)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fixture) orchestrator(t *testing.T, guard sandbox.Guard, cs channel.Settings, s Settings) *Orchestrator {
	t.Helper()
	client := transport.New(guard)
	layout := bundle.NewLayout(t.TempDir(), f.srv.URL+"/bundles", "TabNine")
	resolver := channel.NewResolver(guard, client, layout, f.store, cs, nil)
	releases := github.NewReleases(client, f.srv.URL+"/api", repo, nil)

	s.DisplayName = "TabNine"
	s.PackageName = packageName
	s.SettingsPrefix = "tabnine"
	s.DownloadBaseURL = f.srv.URL + "/download/"
	s.TempDir = f.tempDir
	return New(guard, resolver, releases, client, f.host, f.store, s, nil)
}

func (f *fixture) alphaVersion(t *testing.T) string {
	t.Helper()
	v, _, err := f.store.Get(context.Background(), state.KeyAlphaVersion)
	if err != nil {
		t.Fatal(err)
	}
	return v
}

func assertTempDirEmpty(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("temp package left behind: %v", entries)
	}
}

func TestProposedAlphaURL(t *testing.T) {
	t.Parallel()

	o := New(sandbox.Guard{}, nil, nil, nil, nil, nil, Settings{
		PackageName:     packageName,
		DownloadBaseURL: "https://github.com/codota/tabnine-vscode/releases/download/",
	}, nil)
	want := "https://github.com/codota/tabnine-vscode/releases/download/v9999.9999.9999/tabnine-vscode-9999.9999.9999.vsix"
	if got := o.ProposedAlphaURL(); got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestRunInstallsProposedAlpha(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := newFixture(t)
	o := f.orchestrator(t, sandbox.Guard{}, channel.Settings{
		ExtensionVersion:    "3.1.0",
		PrereleaseSupported: true,
		UseProposedAlpha:    true,
	}, Settings{})

	if err := o.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(f.host.installed) != 1 || f.host.installed[0] != packageBytes {
		t.Fatalf("installed: %v", f.host.installed)
	}
	if got := f.alphaVersion(t); got != ProposedAlphaVersion {
		t.Fatalf("persisted version %q", got)
	}
	assertTempDirEmpty(t, f.tempDir)

	if len(f.host.messages) != 1 || f.host.messages[0].ID != MessageIDUpdated {
		t.Fatalf("messages: %v", f.host.messageIDs())
	}
	reload := f.host.messages[0]
	if reload.Text != "TabNine has been updated to 9999.9999.9999 version. Please reload the window for the changes to take effect." || reload.ButtonText != "Reload" {
		t.Fatalf("reload message: %+v", reload)
	}
	if err := reload.Action(ctx); err != nil {
		t.Fatalf("reload action: %v", err)
	}
	last := f.host.commands[len(f.host.commands)-1]
	if last[0] != editor.CommandReloadWindow {
		t.Fatalf("reload action ran %v", last)
	}

	// Second activation: already on the proposed build.
	hits := f.hits.Load()
	if err := o.Run(ctx); err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if len(f.host.installed) != 1 || f.hits.Load() != hits {
		t.Fatalf("proposed alpha reinstalled")
	}
}

func TestRunInstallsNewerBetaRelease(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	o := f.orchestrator(t, sandbox.Guard{}, channel.Settings{
		ExtensionVersion:    "3.1.0",
		PrereleaseSupported: true,
		ReceiveBetaUpdates:  true,
	}, Settings{})

	if err := o.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(f.host.installed) != 1 {
		t.Fatalf("expected one install, got %v", f.host.commands)
	}
	if got := f.alphaVersion(t); got != "3.2.0-alpha.1" {
		t.Fatalf("persisted version %q", got)
	}
	if ids := f.host.messageIDs(); len(ids) != 1 || ids[0] != MessageIDUpdated {
		t.Fatalf("messages: %v", ids)
	}
	assertTempDirEmpty(t, f.tempDir)
}

func TestRunSkipsOlderBetaRelease(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	o := f.orchestrator(t, sandbox.Guard{}, channel.Settings{
		ExtensionVersion:    "3.3.0",
		PrereleaseSupported: true,
		ReceiveBetaUpdates:  true,
	}, Settings{})

	if err := o.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(f.host.commands) != 0 || len(f.host.messages) != 0 {
		t.Fatalf("nothing should happen: commands %v messages %v", f.host.commands, f.host.messageIDs())
	}
	if got := f.alphaVersion(t); got != "" {
		t.Fatalf("persisted version %q", got)
	}
}

func TestRunStableChannelDoesNothing(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	o := f.orchestrator(t, sandbox.Guard{}, channel.Settings{ExtensionVersion: "3.1.0", PrereleaseSupported: true}, Settings{})

	if err := o.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if f.hits.Load() != 0 || len(f.host.messages) != 0 {
		t.Fatalf("stable channel issued %d requests, %d messages", f.hits.Load(), len(f.host.messages))
	}
}

func TestBetaNoticeShownOnce(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := newFixture(t)
	o := f.orchestrator(t, sandbox.Guard{}, channel.Settings{ExtensionVersion: "3.1.0", PrereleaseSupported: true}, Settings{Insiders: true})

	if err := o.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if ids := f.host.messageIDs(); len(ids) != 1 || ids[0] != MessageIDJoinBeta {
		t.Fatalf("messages: %v", ids)
	}
	notice := f.host.messages[0]
	if notice.ButtonText != "Open Settings" {
		t.Fatalf("button %q", notice.ButtonText)
	}
	shown, err := state.GetBool(ctx, f.store, state.KeyBetaMessageShown)
	if err != nil || !shown {
		t.Fatalf("shown flag: %v %v", shown, err)
	}

	if err := notice.Action(ctx); err != nil {
		t.Fatalf("action: %v", err)
	}
	cmd := f.host.commands[0]
	if len(cmd) != 2 || cmd[0] != editor.CommandOpenSettings || cmd[1] != "tabnine.receiveBetaChannelUpdates" {
		t.Fatalf("settings command: %v", cmd)
	}

	if err := o.Run(ctx); err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if len(f.host.messages) != 1 {
		t.Fatalf("notice shown again: %v", f.host.messageIDs())
	}
}

func TestBetaNoticeGate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		channel  channel.Settings
		settings Settings
		want     bool
	}{
		{name: "insiders", channel: channel.Settings{PrereleaseSupported: true}, settings: Settings{Insiders: true}, want: true},
		{name: "alpha capability", channel: channel.Settings{PrereleaseSupported: true}, settings: Settings{AlphaCapability: true}, want: true},
		{name: "plain stable", channel: channel.Settings{PrereleaseSupported: true}},
		{name: "unsupported host", settings: Settings{Insiders: true}},
		{name: "already on beta", channel: channel.Settings{PrereleaseSupported: true, ReceiveBetaUpdates: true, ExtensionVersion: "9.0.0"}, settings: Settings{Insiders: true}},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			o := f.orchestrator(t, sandbox.Guard{}, tc.channel, tc.settings)
			if err := o.Run(context.Background()); err != nil {
				t.Fatalf("Run: %v", err)
			}
			shown := false
			for _, id := range f.host.messageIDs() {
				shown = shown || id == MessageIDJoinBeta
			}
			if shown != tc.want {
				t.Fatalf("notice shown = %v, want %v", shown, tc.want)
			}
		})
	}
}

func TestBetaNoticeFailureDoesNotBlockInstall(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := newFixture(t)
	f.host.showErr = map[string]error{MessageIDJoinBeta: errors.New("notification service down")}
	o := f.orchestrator(t, sandbox.Guard{}, channel.Settings{
		ExtensionVersion:    "3.1.0",
		PrereleaseSupported: true,
		UseProposedAlpha:    true,
	}, Settings{AlphaCapability: true})

	if err := o.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(f.host.installed) != 1 {
		t.Fatalf("install should proceed after a failed notice")
	}
	if shown, _ := state.GetBool(ctx, f.store, state.KeyBetaMessageShown); !shown {
		t.Fatalf("displayed notice must be recorded as shown")
	}
}

func TestRunDownloadFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	o := f.orchestrator(t, sandbox.Guard{}, channel.Settings{
		ExtensionVersion:    "3.1.0",
		PrereleaseSupported: true,
		UseProposedAlpha:    true,
	}, Settings{})
	o.settings.PackageName = "missing"

	var terr *transport.Error
	if err := o.Run(context.Background()); !errors.As(err, &terr) || terr.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 transport error, got %v", err)
	}
	if len(f.host.commands) != 0 || len(f.host.messages) != 0 {
		t.Fatalf("failed download must not install or notify")
	}
	if got := f.alphaVersion(t); got != "" {
		t.Fatalf("persisted version %q", got)
	}
	assertTempDirEmpty(t, f.tempDir)
}

func TestRunSandboxed(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	o := f.orchestrator(t, sandbox.New(true, "test"), channel.Settings{
		ExtensionVersion:    "3.1.0",
		PrereleaseSupported: true,
		UseProposedAlpha:    true,
	}, Settings{Insiders: true})

	if err := o.Run(context.Background()); !errors.Is(err, sandbox.ErrSandboxed) {
		t.Fatalf("expected ErrSandboxed, got %v", err)
	}
	if f.hits.Load() != 0 || len(f.host.messages) != 0 || len(f.host.commands) != 0 {
		t.Fatalf("sandboxed run had side effects")
	}
}
