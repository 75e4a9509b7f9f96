package sandbox

import (
	"context"

	"github.com/ternarybob/custodia/internal/common"
	"github.com/ternarybob/custodia/internal/interfaces"
)

// SelectRunner picks the execution backend per configuration. "auto"
// prefers docker and falls back to subprocess when no daemon is reachable.
func SelectRunner(ctx context.Context, cfg *common.ExecutionConfig, dataRoot string) interfaces.Runner {
	logger := common.GetLogger()

	docker := NewDockerRunner(cfg, dataRoot)
	subprocess := NewSubprocessRunner(cfg.MaxExecutionTime)

	switch cfg.Backend {
	case "docker":
		return docker
	case "subprocess":
		return subprocess
	}

	if docker.Available(ctx) {
		logger.Info().Msg("Docker daemon reachable, using container backend")
		return docker
	}
	logger.Warn().Msg("Docker unavailable, falling back to subprocess backend without isolation")
	return subprocess
}
