package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/himanishpuri/AcousticVerify/pkg/acousticverify"
	"github.com/himanishpuri/AcousticVerify/pkg/acousticverify/storage"
)

func newRevokeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <fingerprint_id>",
		Short: "Delete a registration and all of its embeddings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(func(cctx context.Context, svc acousticverify.Service) error {
				reg, err := svc.GetRegistration(cctx, args[0])
				if err != nil {
					return fmt.Errorf("registration %s: %w", args[0], err)
				}
				if err := svc.Revoke(cctx, args[0]); err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "\n✅ Revoked fingerprint:\n")
				fmt.Fprintf(out, "   ID:     %s\n", reg.FingerprintID)
				if reg.Label != "" {
					fmt.Fprintf(out, "   Label:  %s\n", reg.Label)
				}
				return nil
			})
		},
	}
}

func newListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered recordings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(func(cctx context.Context, svc acousticverify.Service) error {
				regs, err := svc.ListRegistrations(cctx)
				if err != nil {
					return fmt.Errorf("failed to list registrations: %w", err)
				}
				out := cmd.OutOrStdout()
				if len(regs) == 0 {
					fmt.Fprintln(out, "📭 No registrations")
					return nil
				}

				rows := make([][]string, 0, len(regs))
				for _, r := range regs {
					rows = append(rows, []string{
						r.FingerprintID,
						r.Label,
						formatDuration(r.DurationMs),
						fmt.Sprintf("%d", r.EmbeddedSegments),
						r.WholeDigest.SHA256[:min(12, len(r.WholeDigest.SHA256))],
						r.CreatedAt.Local().Format("2006-01-02 15:04"),
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Fingerprint ID", "Label", "Duration", "Embeddings", "SHA-256", "Registered"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}
}

func newDigestCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "digest <audio_file>",
		Short: "Print whole-file and per-segment content digests",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(func(cctx context.Context, svc acousticverify.Service) error {
				buf, err := ctx.loadAudio(cctx, args[0])
				if err != nil {
					return err
				}
				set, err := svc.Fingerprint(cctx, buf)
				if err != nil {
					return err
				}

				rows := [][]string{{"whole", fmt.Sprintf("0.0s - %.1fs", set.Whole.EndTime), set.Whole.Digest.SHA256, set.Whole.Digest.XXHash64}}
				for _, s := range set.Segments {
					rows = append(rows, []string{
						fmt.Sprintf("%d", s.SegmentIndex),
						fmt.Sprintf("%.1fs - %.1fs", s.StartTime, s.EndTime),
						s.Digest.SHA256,
						s.Digest.XXHash64,
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Segment", "Window", "SHA-256", "xxHash64"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft},
				))
				return nil
			}, acousticverify.WithStorageDriver(storage.DriverMemory))
		},
	}
}
