package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/docforge/docforge/internal/httpapi"
	"github.com/docforge/docforge/internal/storage"
)

// printJSON writes v to stdout, indented.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newCreateUploadCmd() *cobra.Command {
	var (
		bucketID  int64
		skipGx    bool
		multipart bool
	)

	cmd := &cobra.Command{
		Use:   "create-upload <fileName>",
		Short: "Create a job and mint its upload credentials",
		Long: `Creates a PENDING_UPLOAD job for the named file and prints the
presigned PUT URL (or, with --multipart, the multipart upload id).
Without --bucket the job is bulk: its ZIP must carry one top-level
folder per tenant bucket.`,
		Args: cobra.ExactArgs(1),
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

			var bucketPtr *int64
			if bucketID > 0 {
				bucketPtr = &bucketID
			}

			create := svc.jobs.CreateJobAndPresignedURL
			if multipart {
				create = svc.jobs.CreateJobAndInitiateMultipartUpload
			}
			created, err := create(ctx, args[0], bucketPtr, skipGx)
			if err != nil {
				return err
			}
			return printJSON(httpapi.CreateUploadResponse{
				JobID:     created.JobID,
				UploadURL: created.UploadURL,
				UploadID:  created.UploadID,
			})
		},
	}
	cmd.Flags().Int64Var(&bucketID, "bucket", 0, "Tenant GX bucket id (omit for a bulk job)")
	cmd.Flags().BoolVar(&skipGx, "skip-gx", false, "Process artifacts without submitting them to GX")
	cmd.Flags().BoolVar(&multipart, "multipart", false, "Open a multipart upload instead of one presigned PUT")
	return cmd
}

func newPresignPartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "presign-part <jobId> <uploadId> <partNumber>",
		Short: "Mint a presigned URL for one multipart upload part",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid job id %q: %w", args[0], err)
			}
			partNumber, err := strconv.ParseInt(args[2], 10, 32)
			if err != nil {
				return fmt.Errorf("invalid part number %q: %w", args[2], err)
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

			url, err := svc.jobs.PresignPart(ctx, jobID, args[1], int32(partNumber))
			if err != nil {
				return err
			}
			return printJSON(httpapi.PresignPartResponse{PresignedURL: url})
		},
	}
}

func newCompleteUploadCmd() *cobra.Command {
	var partsJSON string

	cmd := &cobra.Command{
		Use:   "complete-upload <jobId> <uploadId>",
		Short: "Finish a multipart upload from the client-reported part list",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid job id %q: %w", args[0], err)
			}
			var parts []storage.CompletedPart
			if err := json.Unmarshal([]byte(partsJSON), &parts); err != nil {
				return fmt.Errorf("invalid --parts payload: %w", err)
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

			if err := svc.jobs.CompleteMultipartUpload(ctx, jobID, args[1], parts); err != nil {
				return err
			}
			fmt.Printf("Upload for job %d completed.\n", jobID)
			return nil
		},
	}
	cmd.Flags().StringVar(&partsJSON, "parts", "[]",
		`Completed parts as JSON, e.g. '[{"partNumber":1,"eTag":"..."}]'`)
	return cmd
}

func newDownloadCmd() *cobra.Command {
	var fileMasterID, gxMasterID int64

	cmd := &cobra.Command{
		Use:   "download",
		Short: "Mint a presigned download URL for a stored file or artifact",
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
			url, err := svc.jobs.PresignDownload(ctx, filePtr, gxPtr)
			if err != nil {
				return err
			}
			return printJSON(httpapi.DownloadResponse{DownloadURL: url})
		},
	}
	cmd.Flags().Int64Var(&fileMasterID, "file", 0, "FileMaster id")
	cmd.Flags().Int64Var(&gxMasterID, "gx", 0, "GxMaster id (takes priority)")
	return cmd
}

func newFilesCmd() *cobra.Command {
	req := httpapi.ListFilesRequest{}

	cmd := &cobra.Command{
		Use:   "files <gxBucketId>",
		Short: "List the files of one tenant bucket",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bucketID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid bucket id %q: %w", args[0], err)
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

			page, err := svc.store.ListFiles(ctx, bucketID, req.Filter())
			if err != nil {
				return err
			}
			resp := httpapi.ListFilesResponse{
				Page:       page.Page,
				PageSize:   page.PageSize,
				TotalCount: page.TotalCount,
			}
			for _, f := range page.Files {
				resp.Items = append(resp.Items, httpapi.FileViewOf(f))
			}
			return printJSON(resp)
		},
	}
	cmd.Flags().StringVar((*string)(&req.Status), "status", "", "Filter by file status")
	cmd.Flags().StringVar(&req.NameLike, "name", "", "Filter by file name substring")
	cmd.Flags().IntVar(&req.Page, "page", 0, "Zero-based page")
	cmd.Flags().IntVar(&req.PageSize, "page-size", 50, "Page size")
	return cmd
}

func newMetricsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "metrics <gxBucketId> [gxBucketId...]",
		Short: "Show per-status file counts for tenant buckets",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bucketIDs := make([]int64, 0, len(args))
			for _, arg := range args {
				id, err := strconv.ParseInt(arg, 10, 64)
				if err != nil {
					return fmt.Errorf("invalid bucket id %q: %w", arg, err)
				}
				bucketIDs = append(bucketIDs, id)
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

			metrics, err := svc.store.StatusMetrics(ctx, bucketIDs)
			if err != nil {
				return err
			}
			return printJSON(httpapi.MetricsResponse(metrics))
		},
	}
}
