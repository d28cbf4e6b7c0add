package nodes

import (
	"database/sql"
	"net/http"

	"cloudpico-humidity/internal/modules/nodes/controller"
	"cloudpico-humidity/internal/modules/nodes/repository"
)

func RegisterFeature(mux *http.ServeMux, db *sql.DB, runtime controller.Runtime) {
	nodesRepository := repository.NewRepository(db)
	nodesController := controller.NewNodesController(nodesRepository, runtime)
	nodesController.RegisterRoutes(mux)
}
