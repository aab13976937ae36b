package alert

import (
	"strings"

	"github.com/igolaizola/tradehook/pkg/command"
	"go.uber.org/zap"
)

// Marker flags a message whose free text must be forwarded as a notification.
const Marker = "{!}"

// Notifier delivers alert text.
type Notifier interface {
	Send(text string)
}

// Extract returns the free text of msg once blocks and the marker are removed
// and whitespace is collapsed. ok is false when msg has no marker.
func Extract(msg string) (string, bool) {
	if !strings.Contains(msg, Marker) {
		return "", false
	}
	text := command.StripBlocks(msg)
	text = strings.ReplaceAll(text, Marker, "")
	return strings.Join(strings.Fields(text), " "), true
}

// Handle forwards the free text of msg to n when the marker is present and
// something is left to say.
func Handle(msg string, n Notifier) {
	text, ok := Extract(msg)
	if !ok || text == "" {
		return
	}
	n.Send(text)
}

// LogNotifier writes alerts to a logger, used when no chat is configured.
type LogNotifier struct {
	Logger *zap.Logger
}

func (n LogNotifier) Send(text string) {
	l := n.Logger
	if l == nil {
		l = zap.NewNop()
	}
	l.Info("alert", zap.String("text", text))
}

// Notifiers fans out to every notifier.
type Notifiers []Notifier

func (ns Notifiers) Send(text string) {
	for _, n := range ns {
		n.Send(text)
	}
}
