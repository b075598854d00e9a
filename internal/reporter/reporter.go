// Package reporter is the fire-and-forget telemetry port.
package reporter

import (
	"context"
	"sort"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// EventName identifies a telemetry event.
type EventName string

const (
	EventBundleDownloadSuccess EventName = "bundle_download_success"
	EventExtensionActivated    EventName = "extension_activated"
	EventExtensionInstalled    EventName = "extension_installed"
	EventExtensionUninstalled  EventName = "extension_uninstalled"
)

// Event is one reported occurrence.
type Event struct {
	ID         string
	Name       EventName
	Timestamp  time.Time
	Properties map[string]string
}

// NewEvent stamps an event with a fresh id and the current time.
func NewEvent(name EventName, props map[string]string) Event {
	return Event{
		ID:         uuid.NewString(),
		Name:       name,
		Timestamp:  time.Now().UTC(),
		Properties: props,
	}
}

// Reporter sinks events. Report must not block on delivery and never fails
// the caller.
type Reporter interface {
	Report(ctx context.Context, e Event)
}

// Log writes events as structured log lines.
type Log struct {
	logger *log.Logger
}

// NewLog returns a Reporter that logs each event at info level.
func NewLog(logger *log.Logger) *Log {
	if logger == nil {
		logger = log.Default()
	}
	return &Log{logger: logger.WithPrefix("event")}
}

func (l *Log) Report(_ context.Context, e Event) {
	kv := []any{"id", e.ID}
	keys := make([]string, 0, len(e.Properties))
	for k := range e.Properties {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		kv = append(kv, k, e.Properties[k])
	}
	l.logger.Info(string(e.Name), kv...)
}

// Nop discards every event.
type Nop struct{}

func (Nop) Report(context.Context, Event) {}

// Recorder keeps events in memory, in order.
type Recorder struct {
	Events []Event
}

func (r *Recorder) Report(_ context.Context, e Event) {
	r.Events = append(r.Events, e)
}

// Names lists the recorded event names in order.
func (r *Recorder) Names() []EventName {
	names := make([]EventName, len(r.Events))
	for i, e := range r.Events {
		names[i] = e.Name
	}
	return names
}
