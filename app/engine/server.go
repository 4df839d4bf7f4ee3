package engine

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/bunkerwars/engine/app/engine/controller"
	"github.com/bunkerwars/engine/app/engine/types"
)

// NewServer creates the HTTP server and attaches it to the app.
func NewServer(app *types.App) error {
	ctler := controller.NewController(app)
	router, err := ctler.NewRouter()
	if err != nil {
		return err
	}

	// use <ip>:<port> to bind to a specific interface or :<port> to bind to all interfaces
	addr := app.Config.Engine.Addr

	app.Server = &http.Server{Addr: addr, Handler: controller.WithCORS(router)}
	app.Logger.Info("Starting server", zap.String("addr", addr))

	return nil
}
