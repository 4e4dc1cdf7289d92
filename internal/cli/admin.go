package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newTerminateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "terminate <jobId>",
		Short: "Terminate one active job and its in-flight children",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid job id %q: %w", args[0], err)
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()

			svc, err := buildServices(ctx, cfg)
			if err != nil {
				return err
			}
			defer svc.close()

			terminated, err := svc.manager.TerminateJob(ctx, jobID)
			if err != nil {
				return err
			}
			if !terminated {
				fmt.Printf("Job %d is not in a terminable state; nothing done.\n", jobID)
				return nil
			}
			fmt.Printf("Job %d terminated.\n", jobID)
			return nil
		},
	}
}

func newTerminateAllCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "terminate-all",
		Short: "Terminate every active job and purge both queues",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()

			svc, err := buildServices(ctx, cfg)
			if err != nil {
				return err
			}
			defer svc.close()

			count, err := svc.manager.TerminateAllActiveJobs(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("%d jobs terminated; queues purged.\n", count)
			return nil
		},
	}
}

func newRetryCmd() *cobra.Command {
	var fileMasterID, gxMasterID int64

	cmd := &cobra.Command{
		Use:   "retry",
		Short: "Re-drive a failed file or an errored GX artifact",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()

			svc, err := buildServices(ctx, cfg)
			if err != nil {
				return err
			}
			defer svc.close()

			var filePtr, gxPtr *int64
			if fileMasterID > 0 {
				filePtr = &fileMasterID
			}
			if gxMasterID > 0 {
				gxPtr = &gxMasterID
			}
			if err := svc.worker.Retry(ctx, filePtr, gxPtr); err != nil {
				return err
			}
			fmt.Println("Retry accepted.")
			return nil
		},
	}
	cmd.Flags().Int64Var(&fileMasterID, "file", 0, "FileMaster id to retry")
	cmd.Flags().Int64Var(&gxMasterID, "gx", 0, "GxMaster id to retry")
	return cmd
}

func newTriggerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "trigger <jobId>",
		Short: "Trigger processing of an uploaded job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid job id %q: %w", args[0], err)
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()

			svc, err := buildServices(ctx, cfg)
			if err != nil {
				return err
			}
			defer svc.close()

			if err := svc.jobs.TriggerProcessing(ctx, jobID); err != nil {
				return err
			}
			fmt.Printf("Job %d queued for processing.\n", jobID)
			return nil
		},
	}
}
