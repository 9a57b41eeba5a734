package flow

import (
	"context"
	"fmt"
)

// defaultHistoryLimit applies when History is called with a non-positive limit.
const defaultHistoryLimit = 20

// History returns the most recent commits of the working tree at path,
// newest first. Log lines that cannot be parsed are returned with Raw set.
func (c *SyncCoordinator) History(ctx context.Context, path string, limit int) ([]Commit, error) {
	commits, b, err := c.history(ctx, path, limit)
	c.record(OpHistory, b, err)
	if err != nil {
		return nil, err
	}
	return commits, nil
}

func (c *SyncCoordinator) history(ctx context.Context, path string, limit int) ([]Commit, bookkeeping, error) {
	if err := c.requireRepo(path); err != nil {
		return nil, bookkeeping{}, err
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	commits, err := c.vcs.Log(ctx, path, limit)
	if err != nil {
		return nil, bookkeeping{}, fmt.Errorf("reading log: %w", err)
	}

	malformed := 0
	for _, cm := range commits {
		if cm.Raw != "" {
			malformed++
		}
	}
	if malformed > 0 {
		c.logger.Debug("unparsed log lines passed through", "path", path, "count", malformed)
	}

	b := bookkeeping{status: StatusOK}
	if len(commits) > 0 {
		b.commit = &commits[0]
	}
	return commits, b, nil
}
