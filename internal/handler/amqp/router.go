package amqp

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"go.uber.org/fx"
)

const (
	ReportingCommandTopic = "telemetry.reporting.commands"
	reportingQueuePrefix  = "telemetry.reporting.commands"
)

// NewRouter builds the watermill router and wires its lifecycle into fx.
func NewRouter(lc fx.Lifecycle, logger *slog.Logger) (*message.Router, error) {
	router, err := message.NewRouter(message.RouterConfig{}, watermill.NewSlogLogger(logger))
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if runErr := router.Run(context.Background()); runErr != nil {
					logger.Error("ROUTER_RUN_FAILED", "err", runErr)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return router.Close()
		},
	})

	return router, nil
}

// RegisterHandlers attaches the reporting-command consumer to the router.
// The handler name is suffixed by hostname, but the queue it consumes is
// the one sub opens for ReportingCommandTopic, which has the same name on
// every node: nodes consuming it share its messages, so each command
// reaches one node rather than every node.
func RegisterHandlers(router *message.Router, sub message.Subscriber, h *CommandHandler) error {
	nodeID, err := os.Hostname()
	if err != nil {
		nodeID = watermill.NewShortUUID()
	}

	queue := fmt.Sprintf("%s.%s", reportingQueuePrefix, nodeID)
	router.AddNoPublisherHandler(queue+"_executor", ReportingCommandTopic, sub, h.Handle)
	return nil
}
