package cli

// This file contains the chaos and explore commands.

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/replayrig/replayrig/agent"
	"github.com/replayrig/replayrig/model"
	"github.com/replayrig/replayrig/run"
	"github.com/replayrig/replayrig/vision"
)

func (a *App) chaos(ctx *cli.Context) error {
	if n := ctx.Int("max-same-screen-steps"); n <= 0 {
		return fmt.Errorf("--max-same-screen-steps must be positive, got %d", n)
	}
	if d := ctx.Duration("max-loading"); d <= 0 {
		return fmt.Errorf("--max-loading must be positive, got %s", d)
	}

	startTime := time.Now()
	rc := run.New(ctx.String("artifacts"))
	target := targetFromContext(ctx)

	rec := a.newRunRecord(ctx.Context, rc, model.RunModeChaos, target.URL, startTime)

	chaos := agent.NewChaos(a.logger, a.launcherFor(ctx), rc, agent.ChaosConfig{
		Target:             target,
		Headless:           ctx.Bool("headless"),
		RecordVideo:        ctx.Bool("record-video"),
		Steps:              ctx.Int("steps"),
		Duration:           ctx.Duration("duration"),
		Seed:               ctx.Int64("seed"),
		StepDelay:          ctx.Duration("step-delay"),
		MaxSameScreenSteps: ctx.Int("max-same-screen-steps"),
		MaxLoading:         ctx.Duration("max-loading"),
		FatalPatterns:      ctx.StringSlice("fatal-pattern"),
	})

	bugPath, err := chaos.Run(ctx.Context)
	rec.BugPath = bugPath
	switch {
	case err != nil:
		rec.ExitCode = 1
		rec.Error = err.Error()
	case bugPath != "":
		rec.ExitCode = ExitBugFound
	}
	a.recordRun(rc, rec, startTime)

	if err != nil {
		return fmt.Errorf("chaos run failed: %w", err)
	}
	if bugPath != "" {
		fmt.Fprintf(a.out, "Bug detected and saved: %s\n", bugPath)
		return cli.Exit("", ExitBugFound)
	}
	fmt.Fprintln(a.out, "No bug detected during chaos run")
	return nil
}

func (a *App) explore(ctx *cli.Context) error {
	startTime := time.Now()
	rc := run.New(ctx.String("artifacts"))
	target := targetFromContext(ctx)

	rec := a.newRunRecord(ctx.Context, rc, model.RunModeExplore, target.URL, startTime)

	var extractor vision.Extractor = vision.Mock{}
	if ctx.Bool("live-vision") {
		live, err := vision.NewOpenAI(a.logger, vision.OpenAIConfig{
			APIKey:     ctx.String("vision-api-key"),
			BaseURL:    ctx.String("vision-base-url"),
			Model:      ctx.String("vision-model"),
			APIVersion: ctx.String("vision-api-version"),
		})
		if err != nil {
			return fmt.Errorf("failed to configure live vision: %w", err)
		}
		extractor = live
	}

	explorer := agent.NewExplorer(a.logger, a.launcherFor(ctx), extractor, rc, agent.ExplorerConfig{
		Target:          target,
		Headless:        ctx.Bool("headless"),
		Steps:           ctx.Int("steps"),
		ExpectedScreens: ctx.StringSlice("expected-screens"),
		Seed:            ctx.Int64("seed"),
		OutPath:         ctx.String("out"),
	})

	summary, err := explorer.Run(ctx.Context)
	rec.CoveragePath = summary.CoveragePath
	rec.Error = summary.Error
	if err != nil {
		rec.ExitCode = 1
		rec.Error = err.Error()
	}
	a.recordRun(rc, rec, startTime)

	if err != nil {
		return fmt.Errorf("exploration failed: %w", err)
	}

	out, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal coverage summary: %w", err)
	}
	fmt.Fprintln(a.out, string(out))
	return nil
}
