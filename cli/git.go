package cli

// This file contains Git integration utilities for retrieving
// repository information of the working directory.

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/replayrig/replayrig/model"
)

func gitOutput(ctx context.Context, args ...string) (string, error) {
	output, err := exec.CommandContext(ctx, "git", args...).Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(output)), nil
}

func (a *App) getGitInfo(ctx context.Context) (*model.Git, error) {
	commit, err := gitOutput(ctx, "rev-parse", "HEAD")
	if err != nil {
		return nil, fmt.Errorf("failed to get git commit: %w", err)
	}

	branch, err := gitOutput(ctx, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return nil, fmt.Errorf("failed to get git branch: %w", err)
	}

	return &model.Git{Commit: commit, Branch: branch}, nil
}
