package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/himanishpuri/AcousticVerify/pkg/acousticverify"
	"github.com/himanishpuri/AcousticVerify/pkg/models"
)

// Exit statuses of the verify command.
const (
	exitPartial      = 2
	exitTampered     = 3
	exitInconclusive = 4
)

func newVerifyCommand(ctx *commandContext) *cobra.Command {
	var id string

	cmd := &cobra.Command{
		Use:   "verify <audio_file> --id <fingerprint_id>",
		Short: "Verify a clip against a registered recording",
		Long: `Verify a clip against a registered recording.

Exits 0 when the clip matches, 2 for a partial match, 3 when the clip is
tampered or different, and 4 when no decision could be made.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var verdict *models.VerificationVerdict
			err := ctx.withService(func(cctx context.Context, svc acousticverify.Service) error {
				buf, err := ctx.loadAudio(cctx, args[0])
				if err != nil {
					return err
				}
				verdict, err = svc.Verify(cctx, buf, id)
				return err
			})
			if err != nil {
				return err
			}
			printVerdict(cmd.OutOrStdout(), verdict)
			return verdictExit(verdict)
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "Fingerprint id to verify against")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func printVerdict(out io.Writer, v *models.VerificationVerdict) {
	rows := make([][]string, 0, len(v.PerSegmentMatches))
	for _, m := range v.PerSegmentMatches {
		target, sim := "-", "-"
		if m.Matched {
			target = fmt.Sprintf("%d", m.TargetIndex)
			sim = fmt.Sprintf("%.3f", m.Similarity)
		}
		rows = append(rows, []string{
			fmt.Sprintf("%d", m.SegmentIndex),
			fmt.Sprintf("%.1fs - %.1fs", m.StartTime, m.EndTime),
			yesNo(m.Matched),
			target,
			sim,
		})
	}
	if len(rows) > 0 {
		fmt.Fprintln(out, renderTable(
			[]string{"Segment", "Window", "Matched", "Target Segment", "Similarity"},
			rows,
			[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignRight},
		))
	}

	icon := map[models.VerdictStatus]string{
		models.StatusMatched:          "✅",
		models.StatusPartial:          "⚠️",
		models.StatusTampered:         "❌",
		models.StatusInconclusive:     "❔",
		models.StatusStoreUnavailable: "🔌",
	}[v.Status]

	fmt.Fprintf(out, "\n%s Verdict: %s\n", icon, v.Status)
	fmt.Fprintf(out, "   Fingerprint:  %s\n", v.FingerprintID)
	if v.TotalSegments > 0 {
		fmt.Fprintf(out, "   Segments:     %d/%d matched (%.1f%%)\n", v.MatchedSegments, v.TotalSegments, v.MatchPercentage)
	}
	fmt.Fprintf(out, "   Exact copy:   %s\n", yesNo(v.IsExactMatch))
	if v.PerceptualSimilarity != nil {
		fmt.Fprintf(out, "   Perceptual:   %.3f\n", *v.PerceptualSimilarity)
	}
	if v.Reason != "" {
		fmt.Fprintf(out, "   Reason:       %s\n", v.Reason)
	}
}

func verdictExit(v *models.VerificationVerdict) error {
	switch v.Status {
	case models.StatusMatched:
		return nil
	case models.StatusPartial:
		return &exitError{code: exitPartial}
	case models.StatusTampered:
		return &exitError{code: exitTampered}
	default:
		return &exitError{code: exitInconclusive}
	}
}
