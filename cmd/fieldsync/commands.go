package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kimhsiao/fieldsync/backend/internal/db"
	"github.com/kimhsiao/fieldsync/backend/internal/errors"
	"github.com/kimhsiao/fieldsync/backend/internal/models"
)

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// withApp opens the app for the duration of fn.
func withApp(cmd *cobra.Command, opts *rootOptions, fn func(a *app) error) error {
	a, err := newApp(cmd.Context(), opts.cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

// newEnqueueCommand creates the enqueue command.
func newEnqueueCommand(opts *rootOptions) *cobra.Command {
	var (
		data   string
		gps    string
		device string
	)

	cmd := &cobra.Command{
		Use:   "enqueue <submission-id>",
		Short: "Save a form completion to the offline queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := models.NewSubmission{SubmissionID: args[0]}
			if err := db.DecodeJSON([]byte(data), &in.ResponseData); err != nil {
				return errors.Wrap(errors.ErrInvalid, "--data must be a JSON object", err)
			}
			if device != "" {
				if err := db.DecodeJSON([]byte(device), &in.DeviceInfo); err != nil {
					return errors.Wrap(errors.ErrInvalid, "--device must be a JSON object", err)
				}
			}
			if gps != "" {
				g, err := parseGPS(gps)
				if err != nil {
					return err
				}
				in.GPS = g
			}

			return withApp(cmd, opts, func(a *app) error {
				id, err := a.queue.Enqueue(cmd.Context(), in)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), map[string]string{"id": id})
			})
		},
	}

	cmd.Flags().StringVar(&data, "data", "", "form response data as a JSON object")
	cmd.Flags().StringVar(&gps, "gps", "", "location as latitude,longitude,accuracy")
	cmd.Flags().StringVar(&device, "device", "", "device info as a JSON object")
	_ = cmd.MarkFlagRequired("data")

	return cmd
}

func parseGPS(s string) (*models.GPS, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return nil, errors.New(errors.ErrInvalid, fmt.Sprintf("--gps must be latitude,longitude,accuracy, got %q", s))
	}
	return &models.GPS{
		Latitude:  strings.TrimSpace(parts[0]),
		Longitude: strings.TrimSpace(parts[1]),
		Accuracy:  strings.TrimSpace(parts[2]),
	}, nil
}

// newListCommand creates the list command.
func newListCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print every queued submission as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(a *app) error {
				all, err := a.queue.GetAll(cmd.Context())
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), all)
			})
		},
	}
}

// newCountCommand creates the count command.
func newCountCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "count",
		Short: "Print the number of queued submissions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(a *app) error {
				n, err := a.queue.Count(cmd.Context())
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), n)
				return err
			})
		},
	}
}

// newDrainCommand creates the drain command.
func newDrainCommand(opts *rootOptions) *cobra.Command {
	var backendURL string

	cmd := &cobra.Command{
		Use:   "drain",
		Short: "Deliver every queued submission once and print the summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if backendURL != "" {
				opts.cfg.Delivery.BaseURL = backendURL
			}
			if opts.cfg.Delivery.BaseURL == "" {
				return errors.New(errors.ErrConfigInvalid, "no backend URL configured (set delivery.base_url, FIELDSYNC_BACKEND_URL or --backend-url)")
			}

			return withApp(cmd, opts, func(a *app) error {
				res, err := a.drainer().Drain(cmd.Context())
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), res)
			})
		},
	}

	cmd.Flags().StringVar(&backendURL, "backend-url", "", "job-tracking backend base URL")
	return cmd
}

// newClearCommand creates the clear command.
func newClearCommand(opts *rootOptions) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Discard every queued submission without delivering it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New(errors.ErrInvalid, "clear discards undelivered submissions; pass --yes to confirm")
			}
			return withApp(cmd, opts, func(a *app) error {
				n, err := a.queue.Clear(cmd.Context())
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), map[string]int{"removed": n})
			})
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "confirm discarding all queued submissions")
	return cmd
}

// newVersionCommand creates the version command.
func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the fieldsync version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "fieldsync v%s\n", Version)
			return err
		},
	}
}
