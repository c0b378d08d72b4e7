package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/docflow/internal/feedback"
	"github.com/MeKo-Tech/docflow/internal/queue"
	"github.com/MeKo-Tech/docflow/internal/verify"
)

var qcOperator string

var qcCmd = &cobra.Command{
	Use:   "qc",
	Short: "Work the QC review queue",
}

var qcNextCmd = &cobra.Command{
	Use:   "next",
	Short: "Claim the next review task for an operator",
	RunE: func(_ *cobra.Command, _ []string) error {
		v, err := newVerifier()
		if err != nil {
			return err
		}
		task, ok := v.NextTask(qcOperator)
		if !ok {
			fmt.Println("no tasks available")
			return nil
		}
		return printJSON(task)
	},
}

var qcShowCmd = &cobra.Command{
	Use:   "show <task-id>",
	Short: "Show task details (hidden while leased by another operator)",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		v, err := newVerifier()
		if err != nil {
			return err
		}
		task, ok := v.TaskDetails(args[0], qcOperator)
		if !ok {
			return fmt.Errorf("task %s not available to %s", args[0], qcOperator)
		}
		return printJSON(task)
	},
}

var qcSubmitCmd = &cobra.Command{
	Use:   "submit <task-id> <result.json>",
	Short: "Submit a verification result for a held task",
	Args:  cobra.ExactArgs(2),
	RunE: func(_ *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[1])
		if err != nil {
			return fmt.Errorf("read result: %w", err)
		}
		var res verify.Result
		if err := json.Unmarshal(data, &res); err != nil {
			return fmt.Errorf("parse result: %w", err)
		}
		v, err := newVerifier()
		if err != nil {
			return err
		}
		if err := v.Submit(args[0], qcOperator, res); err != nil {
			return err
		}
		fmt.Println("submitted")
		return nil
	},
}

var qcReleaseCmd = &cobra.Command{
	Use:   "release <task-id>",
	Short: "Release a held task without completing it",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		v, err := newVerifier()
		if err != nil {
			return err
		}
		if err := v.Release(args[0], qcOperator); err != nil {
			return err
		}
		fmt.Println("released")
		return nil
	},
}

var qcStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show global queue statistics",
	RunE: func(_ *cobra.Command, _ []string) error {
		q, err := queue.New(cfg.Queue)
		if err != nil {
			return err
		}
		return printJSON(q.Stats())
	},
}

var qcWorkloadCmd = &cobra.Command{
	Use:   "workload",
	Short: "Show an operator's workload",
	RunE: func(_ *cobra.Command, _ []string) error {
		q, err := queue.New(cfg.Queue)
		if err != nil {
			return err
		}
		return printJSON(q.Workload(qcOperator))
	},
}

var qcPendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List open tasks in service order",
	RunE: func(cmd *cobra.Command, _ []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		severity, _ := cmd.Flags().GetString("severity")
		docType, _ := cmd.Flags().GetString("type")
		q, err := queue.New(cfg.Queue)
		if err != nil {
			return err
		}
		tasks := q.GetPending(queue.Filter{Severity: severity, DocumentType: docType}, limit)
		return printJSON(tasks)
	},
}

func init() {
	qcCmd.PersistentFlags().StringVar(&qcOperator, "operator", "", "operator id")
	for _, c := range []*cobra.Command{qcNextCmd, qcShowCmd, qcSubmitCmd, qcReleaseCmd, qcWorkloadCmd} {
		c.PreRunE = requireOperator
	}
	qcPendingCmd.Flags().Int("limit", 20, "maximum tasks to list")
	qcPendingCmd.Flags().String("severity", "", "filter by severity (qc, manual)")
	qcPendingCmd.Flags().String("type", "", "filter by document type")
	qcCmd.AddCommand(qcNextCmd, qcShowCmd, qcSubmitCmd, qcReleaseCmd, qcStatsCmd, qcWorkloadCmd, qcPendingCmd)
	rootCmd.AddCommand(qcCmd)
}

func requireOperator(_ *cobra.Command, _ []string) error {
	if qcOperator == "" {
		return fmt.Errorf("--operator is required")
	}
	return nil
}

func newVerifier() (*verify.Verifier, error) {
	q, err := queue.New(cfg.Queue)
	if err != nil {
		return nil, err
	}
	return verify.New(q, feedback.New(cfg.Feedback)), nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
