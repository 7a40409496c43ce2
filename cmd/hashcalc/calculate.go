package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/isseis/go-safe-digest/internal/coordinator"
	"github.com/isseis/go-safe-digest/internal/engine"
	"github.com/isseis/go-safe-digest/internal/terminal"
)

func calculateText(ctx context.Context, eng *engine.Engine, algorithms []string, text string, stdout, stderr io.Writer) int {
	result, errs := eng.CalculateTextEach(ctx, algorithms, text)
	for _, d := range result {
		_, _ = fmt.Fprintf(stdout, "%s  %s\n", d.Algorithm, d.Value)
	}
	for _, err := range errs {
		printError(stderr, "", err)
	}
	if ctx.Err() != nil {
		_, _ = fmt.Fprintln(stderr, "Interrupted")
		return exitInterrupted
	}
	if len(errs) > 0 {
		return exitFailure
	}
	return exitOK
}

func calculateFiles(ctx context.Context, coord *coordinator.Coordinator, algorithms, files []string,
	line *terminal.ProgressLine, stdout, stderr io.Writer, logger *slog.Logger,
) int {
	if _, err := coord.Submit(coordinator.Batch{Files: files, Algorithms: algorithms}); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitFailure
	}

	total := len(files)
	for {
		select {
		case ev := <-coord.Events():
			switch ev := ev.(type) {
			case coordinator.ProgressEvent:
				showProgress(line, logger, ev)
			case coordinator.ResultEvent:
				line.Clear()
				for _, d := range ev.Result {
					_, _ = fmt.Fprintf(stdout, "[%d/%d] %s %s: %s\n", ev.Index+1, total, ev.File, d.Algorithm, d.Value)
				}
			case coordinator.ErrorEvent:
				line.Clear()
				printError(stderr, fmt.Sprintf("[%d/%d] %s: ", ev.Index+1, total, ev.File), ev.Err)
			case coordinator.DoneEvent:
				line.Clear()
				return finish(coord, ev, stdout, stderr, logger)
			}
		case <-ctx.Done():
			line.Clear()
			if err := coord.Shutdown(context.Background()); err != nil {
				logger.Error("Shutdown incomplete", "error", err)
			}
			_, _ = fmt.Fprintln(stderr, "Interrupted")
			return exitInterrupted
		}
	}
}

func showProgress(line *terminal.ProgressLine, logger *slog.Logger, ev coordinator.ProgressEvent) {
	if line.Enabled() {
		label := ev.Report.Label
		if label != "" {
			label = "[" + label + "] "
		}
		line.Update(fmt.Sprintf("%s%s %s %3d%%", label, ev.File, ev.Algorithm, ev.Report.Percent))
		return
	}
	logger.Debug("Progress", "file", ev.File, "algorithm", ev.Algorithm, "label", ev.Report.Label, "percent", ev.Report.Percent)
}

func finish(coord *coordinator.Coordinator, done coordinator.DoneEvent, stdout, stderr io.Writer, logger *slog.Logger) int {
	if err := coord.Shutdown(context.Background()); err != nil {
		logger.Warn("Shutdown incomplete", "error", err)
	}
	_, _ = fmt.Fprintf(stdout, "\nSummary: %d succeeded, %d failed\n", done.Succeeded, done.Failed)
	switch {
	case done.Err != nil:
		printError(stderr, "", done.Err)
		return exitFailure
	case done.Cancelled:
		return exitInterrupted
	case done.Failed > 0:
		return exitFailure
	}
	return exitOK
}
