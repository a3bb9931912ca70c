package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/vrsandeep/transdoc-go/internal/store"
	"github.com/vrsandeep/transdoc-go/internal/util"
)

func processCmd() *cobra.Command {
	var (
		title        string
		collectionID int64
	)
	cmd := &cobra.Command{
		Use:   "process <file>",
		Short: "Run one document through the pipeline and wait for the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp()
			if err != nil {
				return err
			}
			defer app.Close()

			path, err := copyUpload(args[0], app.Config().Storage.Uploads)
			if err != nil {
				return err
			}
			if title == "" {
				title = util.TitleFromFilename(args[0])
			}

			sched := app.Scheduler()
			id, err := sched.AddTask(title, path, collectionID)
			if err != nil {
				return err
			}
			sched.Start()
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), app.Config().Pipeline.ShutdownTimeout+time.Second)
				defer cancel()
				sched.Shutdown(ctx)
			}()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "job %d queued\n", id)
			ticker := time.NewTicker(500 * time.Millisecond)
			defer ticker.Stop()
			last := ""
			for {
				select {
				case <-ctx.Done():
					return fmt.Errorf("interrupted while job %d was running", id)
				case <-ticker.C:
				}
				view, err := sched.Status(id)
				if err != nil {
					return err
				}
				if line := fmt.Sprintf("%s %d%%", view.Status, view.Progress); line != last {
					fmt.Fprintln(out, line)
					last = line
				}
				if view.Status.IsTerminal() {
					if view.Error != "" {
						return fmt.Errorf("job %d failed: %s", id, view.Error)
					}
					return printJSON(out, view.Metadata)
				}
			}
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "document title (defaults to the file name)")
	cmd.Flags().Int64Var(&collectionID, "collection", 0, "collection to attach the document to")
	return cmd
}

func copyUpload(src, dir string) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer in.Close()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	dst := filepath.Join(dir, uuid.NewString()+"-"+util.SanitizeFilename(src))
	out, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return "", fmt.Errorf("copy %s: %w", src, err)
	}
	return dst, out.Close()
}

func statusCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "status [job-id]",
		Short: "Show one job, or the most recent jobs",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp()
			if err != nil {
				return err
			}
			defer app.Close()

			if len(args) == 1 {
				id, err := strconv.ParseInt(args[0], 10, 64)
				if err != nil {
					return fmt.Errorf("invalid job id %q", args[0])
				}
				view, err := app.Scheduler().Status(id)
				if errors.Is(err, store.ErrJobNotFound) {
					return fmt.Errorf("job %d not found", id)
				}
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), view)
			}

			jobs, err := app.Store().ListJobs(limit)
			if err != nil {
				return err
			}
			rows := make([][]any, 0, len(jobs))
			for _, j := range jobs {
				rows = append(rows, []any{j.ID, j.Title, j.Status, strconv.Itoa(j.Progress) + "%", j.ErrorMessage})
			}
			return renderTable(cmd, "ID\tTITLE\tSTATUS\tPROGRESS\tERROR", rows)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of jobs to list")
	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
