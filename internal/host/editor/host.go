// Package editor is the port to the editor hosting the extension: one-time
// messages and named commands.
package editor

import (
	"context"
	"errors"
)

// Host commands invoked by the pre-release orchestrator.
const (
	CommandInstallExtension = "workbench.extensions.installExtension"
	CommandReloadWindow     = "workbench.action.reloadWindow"
	CommandOpenSettings     = "workbench.action.openSettings"
)

// ErrUnknownCommand is returned by hosts for commands they cannot run.
var ErrUnknownCommand = errors.New("unknown host command")

// Message is a notification with a single action button.
type Message struct {
	ID         string
	Text       string
	ButtonText string
	// Action runs if the user picks the button. May be nil.
	Action     func(ctx context.Context) error
}

// Host is the editor. ShowMessage returns once the message is displayed;
// it does not wait for the user's choice.
type Host interface {
	ShowMessage(ctx context.Context, msg Message) error
	ExecuteCommand(ctx context.Context, name string, args ...string) error
}
