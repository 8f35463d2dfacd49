package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/adaptivedocs/corrigo/internal/model"
)

var (
	feedbackApprove      bool
	feedbackReject       bool
	feedbackServiceLabel string
	feedbackNote         string
)

var feedbackCmd = &cobra.Command{
	Use:   "feedback <run-id>",
	Short: "Apply reviewer feedback to a completed run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if feedbackApprove == feedbackReject {
			return eris.New("exactly one of --approve or --reject is required")
		}

		eng, st, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		result, err := eng.ApplyFeedback(ctx, args[0], model.Feedback{
			Approved:         feedbackApprove,
			ServiceDateLabel: feedbackServiceLabel,
			Note:             feedbackNote,
		})
		if err != nil {
			return eris.Wrap(err, "apply feedback")
		}

		zap.L().Info("feedback applied",
			zap.String("run_id", args[0]),
			zap.Bool("approved", feedbackApprove),
			zap.Int("memory_updates", len(result.MemoryUpdates)),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func init() {
	feedbackCmd.Flags().BoolVar(&feedbackApprove, "approve", false, "approve the run's corrections")
	feedbackCmd.Flags().BoolVar(&feedbackReject, "reject", false, "reject the run's corrections")
	feedbackCmd.Flags().StringVar(&feedbackServiceLabel, "service-date-label", "", "corrected service date label to learn for the vendor")
	feedbackCmd.Flags().StringVar(&feedbackNote, "note", "", "optional reviewer note")
	rootCmd.AddCommand(feedbackCmd)
}
