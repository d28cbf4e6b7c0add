package controller

import (
	"context"
	"net/http"

	"cloudpico-humidity/internal/flow"
	"cloudpico-humidity/internal/humidity"
	"cloudpico-humidity/internal/modules/nodes/repository"
)

// Runtime is the part of the flow runtime the HTTP API drives.
type Runtime interface {
	Nodes() []flow.Definition
	Node(name string) (flow.Definition, bool)
	Deliver(ctx context.Context, name string, msg humidity.Message) (flow.Outcome, error)
}

type NodesController interface {
	RegisterRoutes(mux *http.ServeMux)
}

type nodesControllerImpl struct {
	repository repository.NodesRepository
	runtime    Runtime
}

func NewNodesController(repo repository.NodesRepository, runtime Runtime) NodesController {
	return &nodesControllerImpl{repository: repo, runtime: runtime}
}

func (c *nodesControllerImpl) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/nodes", c.handleNodes)
	mux.HandleFunc("POST /api/nodes/{name}/messages", c.handleMessage)
	mux.HandleFunc("GET /api/nodes/{name}/readings", c.handleReadings)
	mux.HandleFunc("GET /api/nodes/{name}/rejections", c.handleRejections)
}
