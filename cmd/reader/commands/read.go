/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: read.go
Description: Read command implementation for Akaylee Reader. Streams the records of
one or more inputs to stdout as JSON lines or YAML documents, expanding archives and
honouring a forced format tag and a record limit.
*/

package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/kleascm/akaylee-reader/pkg/core"
	"github.com/kleascm/akaylee-reader/pkg/interfaces"
	"github.com/kleascm/akaylee-reader/pkg/logging"
	"github.com/kleascm/akaylee-reader/pkg/value"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var errLimitReached = errors.New("record limit reached")

// RunRead streams records from every location argument
func RunRead(cmd *cobra.Command, args []string) error {
	orchestrator, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Close()

	writer, err := NewRecordWriter(cmd.OutOrStdout(), viper.GetString("output"), viper.GetBool("provenance"))
	if err != nil {
		return err
	}
	defer writer.Close()

	return readLocations(cmd.Context(), orchestrator, logger, writer, args, viper.GetString("format"), viper.GetInt64("limit"))
}

// readLocations writes the records of every location through w. A failed
// input or entry is logged and counted, and the remaining ones still run.
// Write errors, cancellation and the record limit stop everything.
func readLocations(ctx context.Context, o *core.Orchestrator, logger *logging.Logger, w RecordWriter, locs []string, tag string, limit int64) error {
	var written, failed int64
	var firstErr, abort error
	fail := func(location, format string, records int64, err error) {
		failed++
		if firstErr == nil {
			firstErr = err
		}
		logger.LogPipeline(location, format, records, 0, 0, err)
	}

	for _, loc := range locs {
		err := o.OpenPathTag(ctx, loc, tag, func(p *core.Pipeline) error {
			if p.Err != nil {
				fail(p.Location, p.Format, 0, p.Err)
				return nil
			}
			var records int64
			err := interfaces.Drain(ctx, p.Stream, func(rec value.Record) error {
				if limit > 0 && written >= limit {
					return errLimitReached
				}
				if err := w.Write(rec); err != nil {
					abort = err
					return err
				}
				written++
				records++
				return nil
			}, logger.LogRecordError)
			switch {
			case err == nil:
				return nil
			case errors.Is(err, errLimitReached) || abort != nil:
				return err
			case ctx.Err() != nil:
				abort = ctx.Err()
				return abort
			}
			fail(p.Location, p.Format, records, err)
			return nil
		})
		if errors.Is(err, errLimitReached) {
			break
		}
		if abort != nil {
			return abort
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fail(loc, tag, 0, err)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d input(s) failed: %w", failed, firstErr)
	}
	return nil
}
