package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newLatestCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "latest",
		Short: "Resolve last week's theatrical releases from TMDB",
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := ctx.application(cmd)
			if err != nil {
				return err
			}
			defer ctx.release(application)

			movies, err := application.Latest(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, movies)
			}
			if len(movies) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No releases found.")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderMovies(movies, application.Registry().IDs()))
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print canonical movies as JSON")
	return cmd
}

func newWatchCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Re-run the latest releases on the configured interval and publish digests",
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := ctx.application(cmd)
			if err != nil {
				return err
			}
			defer ctx.release(application)
			return application.Watch(cmd.Context())
		},
	}
}

func newServeCommand(ctx *commandContext) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the JSON API and Prometheus metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := ctx.application(cmd)
			if err != nil {
				return err
			}
			defer ctx.release(application)
			return application.Serve(cmd.Context(), addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config)")
	return cmd
}

func newCacheCommand(ctx *commandContext) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the provider record cache",
	}

	cacheCmd.AddCommand(&cobra.Command{
		Use:   "purge",
		Short: "Delete expired provider records",
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := ctx.application(cmd)
			if err != nil {
				return err
			}
			defer ctx.release(application)

			n, err := application.PurgeCache(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Purged %d expired records\n", n)
			return nil
		},
	})

	return cacheCmd
}
