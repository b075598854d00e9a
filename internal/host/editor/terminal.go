package editor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

const maxCommandError = 512

// Terminal is a Host for running outside the editor: messages go to a
// writer and package installs go through the editor's command line.
type Terminal struct {
	out         io.Writer
	editorCLI   string
	insiders    bool
	autoConfirm bool
	logger      *log.Logger

	lookPath func(string) (string, error)
	run      func(ctx context.Context, name string, args ...string) ([]byte, error)

	title  *color.Color
	button *color.Color
	hint   *color.Color
}

// TerminalOption configures a Terminal.
type TerminalOption func(*Terminal)

// WithOutput sets where messages are printed. Color is only used when w is
// a terminal.
func WithOutput(w io.Writer) TerminalOption {
	return func(t *Terminal) {
		if w != nil {
			t.out = w
		}
	}
}

// WithEditorCLI pins the editor command line instead of searching PATH.
func WithEditorCLI(path string) TerminalOption {
	return func(t *Terminal) { t.editorCLI = strings.TrimSpace(path) }
}

// WithInsiders prefers the insiders build when searching PATH.
func WithInsiders(insiders bool) TerminalOption {
	return func(t *Terminal) { t.insiders = insiders }
}

// WithAutoConfirm runs message actions as if the user picked the button.
func WithAutoConfirm(yes bool) TerminalOption {
	return func(t *Terminal) { t.autoConfirm = yes }
}

// WithTerminalLogger sets the logger.
func WithTerminalLogger(l *log.Logger) TerminalOption {
	return func(t *Terminal) {
		if l != nil {
			t.logger = l
		}
	}
}

// NewTerminal returns a Terminal host printing to stderr by default.
func NewTerminal(opts ...TerminalOption) *Terminal {
	t := &Terminal{
		out:      os.Stderr,
		logger:   log.Default(),
		lookPath: exec.LookPath,
		run:      runCombined,
		title:    color.New(color.FgCyan, color.Bold),
		button:   color.New(color.FgGreen),
		hint:     color.New(color.FgHiBlack),
	}
	for _, opt := range opts {
		opt(t)
	}
	if !writerIsTTY(t.out) {
		t.title.DisableColor()
		t.button.DisableColor()
		t.hint.DisableColor()
	}
	return t
}

// ShowMessage prints msg and its button. The action runs only when auto
// confirm is on; otherwise the button is printed as not selected.
func (t *Terminal) ShowMessage(ctx context.Context, msg Message) error {
	t.title.Fprintln(t.out, msg.Text)
	if msg.ButtonText == "" {
		return nil
	}
	if !t.autoConfirm || msg.Action == nil {
		t.hint.Fprintf(t.out, "  [%s] (not selected; run with --yes to accept)\n", msg.ButtonText)
		return nil
	}
	t.button.Fprintf(t.out, "  [%s]\n", msg.ButtonText)
	if err := msg.Action(ctx); err != nil {
		return fmt.Errorf("message %s: %w", msg.ID, err)
	}
	return nil
}

// ExecuteCommand installs extension packages through the editor command
// line and prints guidance for reload and settings. Other commands fail with
// ErrUnknownCommand.
func (t *Terminal) ExecuteCommand(ctx context.Context, name string, args ...string) error {
	switch name {
	case CommandInstallExtension:
		if len(args) != 1 || args[0] == "" {
			return fmt.Errorf("%s: want one package path, got %d args", name, len(args))
		}
		return t.installExtension(ctx, args[0])
	case CommandReloadWindow:
		t.hint.Fprintln(t.out, "Reload the editor window for the update to take effect.")
		return nil
	case CommandOpenSettings:
		key := ""
		if len(args) > 0 {
			key = args[0]
		}
		t.hint.Fprintf(t.out, "Open the editor settings and search for %q.\n", key)
		return nil
	default:
		return fmt.Errorf("%s: %w", name, ErrUnknownCommand)
	}
}

func (t *Terminal) installExtension(ctx context.Context, packagePath string) error {
	cli, err := t.findEditorCLI()
	if err != nil {
		return err
	}
	t.logger.Debug("installing extension package", "cli", cli, "path", packagePath)
	out, err := t.run(ctx, cli, "--install-extension", packagePath, "--force")
	if err != nil {
		return fmt.Errorf("%s --install-extension: %w: %s", cli, err, trimCommandOutput(string(out)))
	}
	return nil
}

// findEditorCLI returns the configured CLI, else the first editor command
// line found on PATH (or in the default Windows install locations).
func (t *Terminal) findEditorCLI() (string, error) {
	if t.editorCLI != "" {
		return t.editorCLI, nil
	}
	candidates := []string{"code", "code-insiders"}
	if t.insiders {
		candidates = []string{"code-insiders", "code"}
	}
	if runtime.GOOS == "windows" {
		candidates = append(candidates,
			`C:\Program Files\Microsoft VS Code\bin\code.cmd`,
			`C:\Program Files (x86)\Microsoft VS Code\bin\code.cmd`,
		)
	}
	for _, c := range candidates {
		if path, err := t.lookPath(c); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("editor command line not found (tried %s); set host.editor_cli", strings.Join(candidates, ", "))
}

func runCombined(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var combined bytes.Buffer
	cmd.Stdout = &combined
	cmd.Stderr = &combined
	err := cmd.Run()
	return combined.Bytes(), err
}

func trimCommandOutput(out string) string {
	clean := strings.TrimSpace(out)
	if clean == "" {
		return "command failed"
	}
	if len(clean) > maxCommandError {
		return clean[:maxCommandError] + "..."
	}
	return clean
}

func writerIsTTY(w io.Writer) bool {
	type fder interface {
		Fd() uintptr
	}
	if f, ok := w.(fder); ok {
		return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return false
}
