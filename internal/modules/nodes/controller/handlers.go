package controller

import (
	"errors"
	"log/slog"
	"net/http"

	"cloudpico-humidity/internal/flow"
	"cloudpico-humidity/internal/humidity"
	"cloudpico-humidity/internal/utils"
)

func (c *nodesControllerImpl) handleNodes(w http.ResponseWriter, r *http.Request) {
	utils.WriteJSON(w, http.StatusOK, c.runtime.Nodes())
}

func (c *nodesControllerImpl) handleMessage(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if _, ok := c.runtime.Node(name); !ok {
		utils.WriteError(w, http.StatusNotFound, "unknown node "+name)
		return
	}

	body, err := utils.ReadJSONObject(w, r)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	out, err := c.runtime.Deliver(r.Context(), name, humidity.Message(body))
	if err != nil {
		if errors.Is(err, flow.ErrUnknownNode) {
			// Redeployed between the lookup and the delivery.
			utils.WriteError(w, http.StatusNotFound, "unknown node "+name)
			return
		}
		// The node already processed the message; only a sink failed.
		slog.Error("messages: sink failed", "node", name, "error", err)
	}

	switch out.Status {
	case flow.Emitted:
		utils.WriteJSON(w, http.StatusOK, out.Emission.Message)
	case flow.Rejected:
		utils.WriteError(w, http.StatusUnprocessableEntity, out.Err.Error())
	default:
		utils.WriteJSON(w, http.StatusAccepted, map[string]string{"status": out.Status.String()})
	}
}

func (c *nodesControllerImpl) handleReadings(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	limit, err := parseLimitQuery(r)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	readings, err := c.repository.GetLatestReadings(r.Context(), name, limit)
	if err != nil {
		slog.Error("readings: query failed", "node", name, "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to load readings")
		return
	}
	utils.WriteJSON(w, http.StatusOK, readings)
}

func (c *nodesControllerImpl) handleRejections(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	limit, err := parseLimitQuery(r)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	rejections, err := c.repository.GetLatestRejections(r.Context(), name, limit)
	if err != nil {
		slog.Error("rejections: query failed", "node", name, "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to load rejections")
		return
	}
	utils.WriteJSON(w, http.StatusOK, rejections)
}
