package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/noah-isme/gema-grader/internal/dto"
	"github.com/noah-isme/gema-grader/internal/models"
	"github.com/noah-isme/gema-grader/internal/repository"
	"github.com/noah-isme/gema-grader/internal/service"
)

type backend struct {
	grading     service.GradingService
	submissions repository.SubmissionRepository
	close       func()
}

type backendFactory func() (*backend, error)

func newRootCommand(open backendFactory) *cobra.Command {
	root := &cobra.Command{
		Use:          "gradectl",
		Short:        "Grade stored submissions with the GEMA grading pipeline",
		SilenceUsage: true,
	}

	root.AddCommand(
		newGradeCommand(open),
		newRegradeCommand(open),
		newHistoryCommand(open),
		newPendingCommand(open),
	)
	return root
}

func newGradeCommand(open backendFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "grade <submission-id>",
		Short: "Grade a submission, returning the existing grade if it already has one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSubmission(cmd, open, args[0], func(b *backend, id uint) error {
				result, err := b.grading.Submit(cmd.Context(), id)
				return printOutcome(cmd.OutOrStdout(), result, err)
			})
		},
	}
}

func newRegradeCommand(open backendFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "regrade <submission-id>",
		Short: "Run a new grading attempt and keep the earlier ones",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSubmission(cmd, open, args[0], func(b *backend, id uint) error {
				result, err := b.grading.Regrade(cmd.Context(), id)
				return printOutcome(cmd.OutOrStdout(), result, err)
			})
		},
	}
}

func newHistoryCommand(open backendFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "history <submission-id>",
		Short: "List every grading attempt of a submission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSubmission(cmd, open, args[0], func(b *backend, id uint) error {
				results, err := b.grading.History(cmd.Context(), id)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), dto.NewGradingHistoryResponse(id, results))
			})
		},
	}
}

func newPendingCommand(open backendFactory) *cobra.Command {
	var assignmentID uint
	var limit int

	cmd := &cobra.Command{
		Use:   "pending",
		Short: "Grade every submission that has not been graded yet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := open()
			if err != nil {
				return err
			}
			defer b.close()

			status := models.SubmissionStatusSubmitted
			filter := repository.SubmissionFilter{Status: &status, Limit: limit}
			if assignmentID > 0 {
				filter.AssignmentID = &assignmentID
			}

			submissions, err := b.submissions.List(cmd.Context(), filter)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			failures := 0
			for _, submission := range submissions {
				result, err := b.grading.Submit(cmd.Context(), submission.ID)
				if err != nil && result.ID == 0 {
					failures++
					fmt.Fprintf(out, "submission %d: error: %v\n", submission.ID, err)
					continue
				}
				if result.Status.Failed() {
					failures++
				}
				fmt.Fprintf(out, "submission %d: %s%s\n", submission.ID, result.Status, scoreSuffix(result.Score))
			}

			fmt.Fprintf(out, "graded %d submissions, %d failed\n", len(submissions), failures)
			if failures > 0 {
				return fmt.Errorf("%d of %d submissions failed to grade", failures, len(submissions))
			}
			return nil
		},
	}

	cmd.Flags().UintVar(&assignmentID, "assignment", 0, "only grade submissions for this assignment")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of submissions to grade")
	return cmd
}

func withSubmission(cmd *cobra.Command, open backendFactory, raw string, fn func(*backend, uint) error) error {
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return fmt.Errorf("invalid submission id %q", raw)
	}

	b, err := open()
	if err != nil {
		return err
	}
	defer b.close()

	return fn(b, uint(id))
}

// printOutcome writes any recorded attempt before reporting err, so an
// extraction failure still shows its feedback.
func printOutcome(out io.Writer, result models.GradingResult, err error) error {
	if result.ID != 0 {
		if writeErr := writeJSON(out, dto.NewGradingResultResponse(result)); writeErr != nil {
			return errors.Join(err, writeErr)
		}
	}
	return err
}

func writeJSON(out io.Writer, value interface{}) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}

func scoreSuffix(score *float64) string {
	if score == nil {
		return ""
	}
	return fmt.Sprintf(" (score %g)", *score)
}
