/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: schema.go
Description: Schema command implementation for Akaylee Reader. Infers a merged schema
over every record of the given inputs and renders the exported schema tree.
*/

package commands

import (
	"fmt"

	"github.com/kleascm/akaylee-reader/pkg/core"
	"github.com/kleascm/akaylee-reader/pkg/inference"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// RunSchema infers a schema from every location argument
func RunSchema(cmd *cobra.Command, args []string) error {
	orchestrator, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Close()

	ctx := cmd.Context()
	tag := viper.GetString("format")
	total := inference.NewEngine(orchestrator.Options(), logger.GetLogger())

	var failed int
	for _, loc := range args {
		err := orchestrator.OpenPathTag(ctx, loc, tag, func(p *core.Pipeline) error {
			if p.Err != nil {
				failed++
				logger.GetLogger().WithField("source", p.Location).WithError(p.Err).Error("Pipeline failed")
				return nil
			}
			// One engine per input so the record cap applies per input
			engine := inference.NewEngine(orchestrator.Options(), logger.GetLogger().WithField("source", p.Location))
			if err := engine.Consume(ctx, p.Stream); err != nil {
				failed++
				logger.GetLogger().WithField("source", p.Location).WithError(err).Error("Pipeline failed")
			}
			if err := total.Merge(engine); err != nil {
				return err
			}
			return ctx.Err()
		})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			failed++
			logger.GetLogger().WithField("source", loc).WithError(err).Error("Pipeline failed")
		}
	}

	stats := total.Stats()
	logger.Info("Schema inferred", map[string]interface{}{
		"records": stats.Records,
		"skipped": stats.Skipped,
	})

	if err := WriteDocument(cmd.OutOrStdout(), viper.GetString("output"), inference.Export(total.Result())); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d input(s) failed", failed)
	}
	return nil
}
