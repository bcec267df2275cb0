package main

import (
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/valentinpelus/linkbrief/internal/app"
	"github.com/valentinpelus/linkbrief/pkg/scraper"
)

func newScrapeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "scrape <url>",
		Short: "Show what the extractor gets out of a page",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			extractor := app.NewExtractor(ctx.cfg, ctx.logger)
			raw, err := extractor.Fetch(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printExtraction(cmd.OutOrStdout(), raw)
			return nil
		},
	}
}

func printExtraction(out io.Writer, raw []byte) {
	fmt.Fprintf(out, "Fetched:  %d bytes\n", len(raw))
	if title := scraper.Title(raw); title != "" {
		fmt.Fprintf(out, "Title:    %s\n", title)
	}

	standard, ok := scraper.Extract(raw, false)
	fmt.Fprintf(out, "Standard: %d chars (usable: %t)\n", utf8.RuneCountInString(standard), ok)
	recall, recallOK := scraper.Extract(raw, true)
	fmt.Fprintf(out, "Recall:   %d chars (usable: %t)\n", utf8.RuneCountInString(recall), recallOK)

	text := standard
	if !ok {
		text = recall
	}
	if text == "" {
		fmt.Fprintln(out, "\nNo extractable text.")
		return
	}
	fmt.Fprintf(out, "\n%s\n", preview(text, 1000))
}

func preview(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "…"
}
