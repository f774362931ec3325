package grpc

import (
	"go.uber.org/fx"

	grpcsrv "github.com/webitel/im-delivery-service/infra/server/grpc"
)

var Module = fx.Module("delivery-grpc",
	fx.Provide(
		NewDeliveryService,
	),
	fx.Invoke(RegisterDeliveryServices),
)

func RegisterDeliveryServices(server *grpcsrv.Server, service *DeliveryService) {
	RegisterDeliveryServer(server.Server, service)
}
