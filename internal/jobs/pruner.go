// -----------------------------------------------------------------------
// Workspace pruner - cron-scheduled removal of retained job workspaces
// once they age out
// -----------------------------------------------------------------------

package jobs

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ternarybob/custodia/internal/common"
	"github.com/ternarybob/custodia/internal/sandbox"
)

// Pruner removes retained workspaces whose jobs reached a terminal state
// longer ago than the configured retention age
type Pruner struct {
	service *Service
	builder *sandbox.WorkspaceBuilder
	age     time.Duration
	cron    *cron.Cron
}

// NewPruner builds the pruner; Start schedules it
func NewPruner(service *Service, builder *sandbox.WorkspaceBuilder, age time.Duration) *Pruner {
	return &Pruner{
		service: service,
		builder: builder,
		age:     age,
		cron:    cron.New(cron.WithSeconds()),
	}
}

// Start schedules pruning on the given cron expression
func (p *Pruner) Start(schedule string) error {
	logger := common.GetLogger()
	_, err := p.cron.AddFunc(schedule, func() {
		if n := p.PruneOnce(context.Background()); n > 0 {
			logger.Info().Int("pruned", n).Msg("Workspace prune pass finished")
		}
	})
	if err != nil {
		return err
	}
	p.cron.Start()
	logger.Info().Str("schedule", schedule).Dur("age", p.age).Msg("Workspace pruner scheduled")
	return nil
}

// Stop halts the schedule, waiting for a running pass
func (p *Pruner) Stop() {
	ctx := p.cron.Stop()
	<-ctx.Done()
}

// PruneOnce walks the work directory and removes aged-out workspaces.
// A workspace survives while its job is queued or running, and while the
// job row is newer than the retention age.
func (p *Pruner) PruneOnce(ctx context.Context) int {
	logger := common.GetLogger()

	entries, err := os.ReadDir(p.builder.WorkDir())
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to read work directory for pruning")
		return 0
	}

	cutoff := time.Now().UTC().Add(-p.age)
	pruned := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		jobID := entry.Name()

		job, err := p.service.GetJob(ctx, jobID)
		if err == nil {
			if !job.Status.IsTerminal() {
				continue
			}
			if job.CompletedAt != nil && job.CompletedAt.After(cutoff) {
				continue
			}
		} else {
			// No job row, prune on directory age alone
			info, statErr := os.Stat(filepath.Join(p.builder.WorkDir(), jobID))
			if statErr != nil || info.ModTime().After(cutoff) {
				continue
			}
		}

		if err := p.builder.Remove(jobID); err != nil {
			logger.Warn().Err(err).Str("job_id", jobID).Msg("Failed to prune workspace")
			continue
		}
		pruned++
	}
	return pruned
}
