/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: formats.go
Description: Informational commands for Akaylee Reader. Lists the registered format
adapters and reports how inputs would be detected without reading their records.
*/

package commands

import (
	"fmt"
	"strings"

	"github.com/kleascm/akaylee-reader/pkg/adapters"
	"github.com/kleascm/akaylee-reader/pkg/core"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// ListFormats prints every registered format adapter
func ListFormats(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	formats := adapters.Default().Formats()

	if viper.GetBool("formats_json") {
		return WriteDocument(out, OutputJSON, formats)
	}

	fmt.Fprintln(out, "📚 Akaylee Reader - Available Formats")
	fmt.Fprintln(out, "=====================================")
	fmt.Fprintln(out)

	for i, f := range formats {
		kind := "text"
		if f.Binary {
			kind = "binary"
		}
		fmt.Fprintf(out, "%d. %s (%s)\n", i+1, f.Tag, kind)
		fmt.Fprintf(out, "   Description: %s\n", f.Description)
		fmt.Fprintf(out, "   Extensions: %s\n", strings.Join(f.Extensions, ", "))
		if len(f.Aliases) > 0 {
			fmt.Fprintf(out, "   Aliases: %s\n", strings.Join(f.Aliases, ", "))
		}
		fmt.Fprintln(out)
	}

	fmt.Fprintln(out, "✨ Use --format to force a tag instead of detection")
	fmt.Fprintln(out, "   gzip, zstd, xz, bzip2 and zip inputs are unwrapped automatically")
	return nil
}

// RunSniff reports the detection decision for every input under each argument
func RunSniff(cmd *cobra.Command, args []string) error {
	orchestrator, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Close()

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "🔍 Akaylee Reader - Format Detection")
	fmt.Fprintln(out, "====================================")
	fmt.Fprintln(out)

	ctx := cmd.Context()
	tag := viper.GetString("format")
	for _, loc := range args {
		err := orchestrator.OpenPathTag(ctx, loc, tag, func(p *core.Pipeline) error {
			det := p.Detection
			if p.Err != nil {
				fmt.Fprintf(out, "❌ %s: %v\n", p.Location, p.Err)
				return nil
			}
			fmt.Fprintf(out, "📄 %s\n", p.Location)
			fmt.Fprintf(out, "   Format: %s\n", p.Format)
			fmt.Fprintf(out, "   Extension: %s, content: %s\n", orNone(det.ByExtension), orNone(det.ByContent))
			if p.Depth > 0 {
				fmt.Fprintf(out, "   Unwrapped: %d layer(s)\n", p.Depth)
			}
			if det.Conflict {
				fmt.Fprintf(out, "   ⚠️  Extension and content disagree\n")
			}
			return ctx.Err()
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func orNone(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
