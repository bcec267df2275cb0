package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/valentinpelus/linkbrief/internal/app"
	"github.com/valentinpelus/linkbrief/pkg/telemetry"
)

func newSummarizeCommand(ctx *commandContext) *cobra.Command {
	var showPrompt bool
	var trace bool

	cmd := &cobra.Command{
		Use:   "summarize <url>",
		Short: "Run extraction and summarization once, without Telegram",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ctx.cfg.ValidateLLM(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			var tracer *telemetry.Tracer
			if trace {
				recorder, closers := app.NewRecorder(cmd.Context(), ctx.cfg, ctx.logger)
				defer func() {
					for _, closeFn := range closers {
						_ = closeFn()
					}
				}()
				tracer = telemetry.NewTracer(recorder, ctx.logger.Named("telemetry"))
			}

			summarizer, err := app.NewSummarizer(cmd.Context(), ctx.cfg, tracer, ctx.logger)
			if err != nil {
				return err
			}

			extractor := app.NewExtractor(ctx.cfg, ctx.logger)
			text, err := extractor.Text(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if showPrompt {
				fmt.Fprintf(out, "--- prompt ---\n%s\n--- end prompt ---\n\n", summarizer.Prompt(text))
			}

			result := summarizer.Summarize(cmd.Context(), args[0], text)
			if result.Err != nil {
				return errors.New(result.Err.Message())
			}
			fmt.Fprintln(out, result.Summary)
			if result.TraceID != "" {
				fmt.Fprintf(out, "\ntrace: %s\n", result.TraceID)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&showPrompt, "show-prompt", false, "Print the prompt sent to the model")
	cmd.Flags().BoolVar(&trace, "trace", false, "Record the run in the configured telemetry backends")
	return cmd
}
