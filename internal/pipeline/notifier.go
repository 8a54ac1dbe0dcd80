package pipeline

import (
	"context"
	"log/slog"

	"github.com/joseph-ayodele/labreport/constants"
	"github.com/joseph-ayodele/labreport/internal/entity"
)

// Notifier is the host's toast and speech capability. Implementations must
// return quickly and must not fail the caller.
type Notifier interface {
	Notify(message string)
	Speak(text string)
}

// ImageSource is the host's camera or gallery picker.
type ImageSource interface {
	AcquireImage(ctx context.Context) (string, error)
}

// LogNotifier writes notifications to the log. It is the default when the
// host has no display or speech output.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) Notify(message string) { n.logger().Info("notify.toast", "message", message) }

func (n LogNotifier) Speak(text string) { n.logger().Info("notify.speak", "text", text) }

func (n LogNotifier) logger() *slog.Logger {
	if n.Logger == nil {
		return slog.Default()
	}
	return n.Logger
}

// StaticImage is an ImageSource that always returns the same path.
type StaticImage string

func (s StaticImage) AcquireImage(context.Context) (string, error) { return string(s), nil }

func (p *Processor) announce(res entity.PipelineResult) {
	if p.Notifier == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			p.Logger.Error("notify.panic", "panic", r)
		}
	}()
	if res.OK() {
		p.Notifier.Notify(constants.MsgAnalysisDone)
		p.Notifier.Speak(res.Report.CoreConclusion)
		return
	}
	p.Notifier.Notify(res.Failure.Message)
}
