package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/himanishpuri/AcousticVerify/pkg/acousticverify"
	"github.com/himanishpuri/AcousticVerify/pkg/acousticverify/audio"
	"github.com/himanishpuri/AcousticVerify/pkg/logger"
)

func newRegisterCommand(ctx *commandContext) *cobra.Command {
	var label, id string

	cmd := &cobra.Command{
		Use:   "register <audio_file>...",
		Short: "Fingerprint and register one or more reference recordings",
		Example: `  acousticverify register master.wav --label "Interview master" --id interview-2024
  acousticverify register takes/*.flac`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if id != "" && len(args) > 1 {
				return errors.New("--id can only be used with a single file")
			}
			return ctx.withService(func(cctx context.Context, svc acousticverify.Service) error {
				if len(args) == 1 {
					return registerOne(cctx, cmd, ctx, svc, args[0], label, id)
				}
				return registerMany(cctx, cmd, ctx, svc, args, label)
			})
		},
	}

	cmd.Flags().StringVar(&label, "label", "", "Human-readable label stored with the registration")
	cmd.Flags().StringVar(&id, "id", "", "Fingerprint id to register under (replaces an existing one)")
	return cmd
}

// defaultLabel names a registration after the file's tags, falling back to
// its file name when ffprobe is unavailable.
func defaultLabel(cctx context.Context, path string) string {
	info, err := audio.Probe(cctx, path)
	if err != nil {
		logger.Debugf("Probe %s: %v", path, err)
		return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return info.Label()
}

func registerOptions(label, id string) []acousticverify.RegisterOption {
	var opts []acousticverify.RegisterOption
	if label != "" {
		opts = append(opts, acousticverify.WithLabel(label))
	}
	if id != "" {
		opts = append(opts, acousticverify.WithFingerprintID(id))
	}
	return opts
}

func registerOne(cctx context.Context, cmd *cobra.Command, ctx *commandContext, svc acousticverify.Service, path, label, id string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "🔍 Analyzing %s...\n", path)

	buf, err := ctx.loadAudio(cctx, path)
	if err != nil {
		return err
	}
	if label == "" {
		label = defaultLabel(cctx, path)
	}
	res, err := svc.RegisterFingerprint(cctx, buf, registerOptions(label, id)...)
	if err != nil {
		return fmt.Errorf("failed to register %s: %w", path, err)
	}

	verb := "Registered"
	if res.Replaced {
		verb = "Replaced"
	}
	fmt.Fprintf(out, "\n✅ %s fingerprint:\n", verb)
	fmt.Fprintf(out, "   ID:         %s\n", res.FingerprintID)
	if res.Label != "" {
		fmt.Fprintf(out, "   Label:      %s\n", res.Label)
	}
	fmt.Fprintf(out, "   Segments:   %d perceptual, %d/%d embedded\n",
		len(res.PerceptualFingerprints), res.EmbeddedSegments, res.EmbeddingSegments)
	fmt.Fprintf(out, "   SHA-256:    %s\n", res.WholeDigest.SHA256)
	return nil
}

// registerMany registers each file under a fresh id. A failing file is
// reported and skipped; the command fails if any file failed.
func registerMany(cctx context.Context, cmd *cobra.Command, ctx *commandContext, svc acousticverify.Service, paths []string, label string) error {
	log := logger.GetLogger()

	p := mpb.NewWithContext(cctx, mpb.WithWidth(64), mpb.WithOutput(cmd.ErrOrStderr()))
	bar := p.AddBar(int64(len(paths)),
		mpb.PrependDecorators(
			decor.Name("Registering: "),
			decor.CountersNoUnit("%d / %d"),
		),
		mpb.AppendDecorators(
			decor.Percentage(),
			decor.EwmaETA(decor.ET_STYLE_GO, 60),
		),
	)

	rows := make([][]string, 0, len(paths))
	var failed int
	for _, path := range paths {
		start := time.Now()
		fileLabel := label
		if fileLabel == "" {
			fileLabel = defaultLabel(cctx, path)
		}

		buf, err := ctx.loadAudio(cctx, path)
		if err == nil {
			var res *acousticverify.RegisterResult
			res, err = svc.RegisterFingerprint(cctx, buf, registerOptions(fileLabel, "")...)
			if err == nil {
				rows = append(rows, []string{path, res.FingerprintID, fmt.Sprintf("%d/%d", res.EmbeddedSegments, res.EmbeddingSegments)})
			}
		}
		if err != nil {
			failed++
			log.Errorf("Register %s failed: %v", path, err)
			rows = append(rows, []string{path, "failed: " + err.Error(), "-"})
		}
		bar.EwmaIncrement(time.Since(start))
		if cctx.Err() != nil {
			bar.Abort(false)
			break
		}
	}
	p.Wait()

	fmt.Fprintln(cmd.OutOrStdout(), renderTable(
		[]string{"File", "Fingerprint ID", "Embedded"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight},
	))
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed to register", failed, len(paths))
	}
	return nil
}
