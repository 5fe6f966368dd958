package eval

import (
	"github.com/google/wire"

	"github.com/Wei-Shaw/evaldepot/internal/config"
)

// ProvideConfig adapts the generic eval config block into the Config shape
// Driver actually consumes.
func ProvideConfig(cfg config.EvalConfig) Config {
	return Config{SessionName: cfg.SessionName, MaxConcurrentTasks: cfg.MaxConcurrentTasks}
}

// ProviderSet is the Wire provider set for the evaluation driver.
var ProviderSet = wire.NewSet(
	ProvideConfig,
	New,
)
