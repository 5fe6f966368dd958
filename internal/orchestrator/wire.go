package orchestrator

import (
	"github.com/google/wire"

	"github.com/Wei-Shaw/evaldepot/internal/config"
)

// ProvideHTTPClient builds the control-plane HTTPClient from
// OrchestratorConfig.
func ProvideHTTPClient(cfg config.OrchestratorConfig) *HTTPClient {
	return NewHTTPClient(cfg.BaseURL, cfg.Token, cfg.RequestTimeout())
}

// ProviderSet is the Wire provider set for the orchestrator client: an
// HTTPClient bound to the Client interface. Swap this set for one
// providing *Fake in a wireinject build tagged for local/dev runs without
// a real control plane.
var ProviderSet = wire.NewSet(
	ProvideHTTPClient,
	wire.Bind(new(Client), new(*HTTPClient)),
)
