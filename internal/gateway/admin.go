package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/julienschmidt/httprouter"
	gwerrors "github.com/tollgate-io/tollgate/internal/errors"
	"github.com/tollgate-io/tollgate/internal/logging"
	"github.com/tollgate-io/tollgate/internal/route"
	"go.uber.org/zap"
)

// newAdminHandler builds the operator API for editing the route table. Every
// mutation reloads the table synchronously, so the next lookup sees the
// change. The handler runs behind the authentication stage.
func (g *Gateway) newAdminHandler() http.Handler {
	router := httprouter.New()
	router.GET("/admin/routes", g.listRoutes)
	router.POST("/admin/routes", g.saveRoute)
	router.DELETE("/admin/routes/:id", g.deleteRoute)
	router.NotFound = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gwerrors.ErrNotFound.WriteJSON(w)
	})
	router.HandleMethodNotAllowed = true
	router.MethodNotAllowed = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gwerrors.ErrMethodNotAllowed.WriteJSON(w)
	})
	return router
}

func (g *Gateway) listRoutes(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	defs, err := g.table.All(r.Context())
	if err != nil {
		logging.Error("failed to list routes", zap.Error(err))
		gwerrors.ErrInternalServer.WriteJSON(w)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(defs)
}

func (g *Gateway) saveRoute(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var def route.Definition
	if err := json.NewDecoder(r.Body).Decode(&def); err != nil {
		gwerrors.ErrBadRequest.WithDetails(err.Error()).WriteJSON(w)
		return
	}

	if err := g.table.Save(r.Context(), def); err != nil {
		if ge, ok := gwerrors.IsGatewayError(err); ok {
			ge.WriteJSON(w)
			return
		}
		logging.Error("failed to save route", zap.String("route", def.ID), zap.Error(err))
		gwerrors.ErrInternalServer.WriteJSON(w)
		return
	}

	logging.Info("route saved", zap.String("route", def.ID))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(def)
}

func (g *Gateway) deleteRoute(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")
	if err := g.table.Delete(r.Context(), id); err != nil {
		logging.Error("failed to delete route", zap.String("route", id), zap.Error(err))
		gwerrors.ErrInternalServer.WriteJSON(w)
		return
	}

	logging.Info("route deleted", zap.String("route", id))
	w.WriteHeader(http.StatusNoContent)
}
