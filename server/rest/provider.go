package rest

import (
	"sync"
)

var (
	service *Service
	handler *Handler

	serviceOnce sync.Once
	handlerOnce sync.Once
)

func ProvideService(args *ContainerArgs) *Service {
	serviceOnce.Do(func() {
		service = NewService(args.Resolver, args.Orchestrator)
	})
	return service
}

func ProvideHandler(svc *Service, args *ContainerArgs) *Handler {
	handlerOnce.Do(func() {
		handler = NewHandler(svc, newHub(args.Bus))
	})
	return handler
}
