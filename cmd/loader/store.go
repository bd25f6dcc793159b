package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Sriram-PR/crawl-loader/pkg/parse"
	"github.com/Sriram-PR/crawl-loader/pkg/profile"
	"github.com/Sriram-PR/crawl-loader/pkg/utils"
)

func newIndexCmd(global *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Inspect and record full-text index presence",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "mark <url> <segment>",
		Short: "Record a URL as indexed in a segment",
		Long: `Record a URL as indexed. A redirect landing on an indexed URL is
rejected as duplicate content.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			normalized, _, err := parse.ParseAndNormalize(args[0])
			if err != nil {
				return fmt.Errorf("invalid URL: %w", err)
			}
			store, _, err := openStore(global)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.MarkIndexed(normalized, args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", utils.URLHash(normalized), args[1], normalized)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "check <url>",
		Short: "Report the index segment holding a URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			normalized, _, err := parse.ParseAndNormalize(args[0])
			if err != nil {
				return fmt.Errorf("invalid URL: %w", err)
			}
			store, _, err := openStore(global)
			if err != nil {
				return err
			}
			defer store.Close()

			segment, found, err := store.Exists(utils.URLHash(normalized))
			if err != nil {
				return err
			}
			if !found {
				fmt.Fprintf(cmd.OutOrStdout(), "not indexed\t%s\n", normalized)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", segment, normalized)
			return nil
		},
	})

	return cmd
}

func newCacheCmd(global *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and prune the response cache",
	}

	var asJSON bool
	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Count cached responses and their size",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := openStore(global)
			if err != nil {
				return err
			}
			defer store.Close()

			stats, err := store.Stats()
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(stats)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "entries: %d\nbytes:   %d\n", stats.Entries, stats.Bytes)
			return nil
		},
	}
	statsCmd.Flags().BoolVar(&asJSON, "json", false, "Print the statistics as JSON")
	cmd.AddCommand(statsCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "drop <url>",
		Short: "Remove the cached copy of a URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			normalized, _, err := parse.ParseAndNormalize(args[0])
			if err != nil {
				return fmt.Errorf("invalid URL: %w", err)
			}
			store, _, err := openStore(global)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Delete(utils.URLHash(normalized)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "dropped\t%s\n", normalized)
			return nil
		},
	})

	return cmd
}

func newProfilesCmd(global *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "profiles",
		Short: "List the known crawl profiles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := setup(global)
			if err != nil {
				return err
			}
			registry := profile.NewRegistry(cfg)
			for _, handle := range registry.Handles() {
				p, _ := registry.Resolve(handle)
				marker := " "
				if handle == cfg.DefaultProfile {
					marker = "*"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %-16s %-10s store=%-5t max=%d %s\n",
					marker, handle, p.CacheStrategy, p.StoreHTCache, p.MaxFileSize, strings.TrimSpace(p.Name))
			}
			return nil
		},
	}
}
