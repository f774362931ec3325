package amqp

import (
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/webitel/im-delivery-service/config"
	pubsubadapter "github.com/webitel/im-delivery-service/internal/adapter/pubsub"
	"go.uber.org/fx"
)

var Module = fx.Module("amqp-handler",
	fx.Provide(
		func(cfg *config.Config, logger *slog.Logger) (message.Subscriber, error) {
			return pubsubadapter.NewSubscriber(cfg.AMQP.URI, ReportingCommandTopic, watermill.NewSlogLogger(logger))
		},
		func(cfg *config.Config, logger *slog.Logger) (message.Publisher, error) {
			return pubsubadapter.NewPublisher(cfg.AMQP.URI, watermill.NewSlogLogger(logger))
		},
		pubsubadapter.NewReportDispatcher,
		NewCommandHandler,
		NewRouter,
	),

	fx.Invoke(RegisterHandlers),
)

// DecoratorOption wires notifyingSender over the app's ReportSender - meant
// to be passed to fx.Decorate at the top-level app (cmd/fx.go), not inside
// this module, since reporting.Module's Scheduler is constructed in a
// sibling scope that a fx.Decorate placed here would never reach.
var DecoratorOption = fx.Decorate(DecorateSender)
