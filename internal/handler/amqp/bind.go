// Package amqp consumes the report scheduler's inbound command bus over
// RabbitMQ: panic recovery, JSON decode, and poison-pill ack-and-drop
// around forwarding decoded commands into a reporting.Scheduler.
package amqp

import (
	"encoding/json"
	"log/slog"
	"runtime/debug"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/webitel/im-delivery-service/internal/service/reporting"
)

// CommandHandler decodes inbound reporting command messages and forwards
// them to a Scheduler's command channel.
type CommandHandler struct {
	scheduler *reporting.Scheduler
	logger    *slog.Logger
}

func NewCommandHandler(scheduler *reporting.Scheduler, logger *slog.Logger) *CommandHandler {
	return &CommandHandler{scheduler: scheduler, logger: logger}
}

// wireCommand is the JSON envelope carried on the wire - a plain mirror of
// reporting.ReportingCommand, kept separate so the wire schema can evolve
// independently of the in-process struct.
type wireCommand struct {
	Dmarc *reporting.ReportEvent `json:"dmarc,omitempty"`
	Tls   *reporting.ReportEvent `json:"tls,omitempty"`
	Stop  bool                   `json:"stop,omitempty"`
}

// Handle implements message.NoPublishHandlerFunc. Panic recovery and
// poison-pill tolerance (decode failure => ack and drop, never crash the
// consumer) keep one bad message from taking down the whole subscription.
func (h *CommandHandler) Handle(msg *message.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("PANIC_RECOVERED", "err", r, "stack", string(debug.Stack()), "msg_id", msg.UUID)
			err = nil
		}
	}()

	var wc wireCommand
	if decodeErr := json.Unmarshal(msg.Payload, &wc); decodeErr != nil {
		h.logger.Error("DECODE_FAILED", "err", decodeErr, "msg_id", msg.UUID)
		return nil
	}

	cmd := reporting.ReportingCommand{Dmarc: wc.Dmarc, Tls: wc.Tls, Stop: wc.Stop}

	select {
	case h.scheduler.Commands() <- cmd:
	default:
		h.logger.Warn("COMMAND_CHANNEL_FULL", "msg_id", msg.UUID)
	}
	return nil
}
