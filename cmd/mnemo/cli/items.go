package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/mnemo/internal/memory"
)

func newAddCmd(opts *rootOptions) *cobra.Command {
	var (
		ttl  int
		meta []string
	)
	cmd := &cobra.Command{
		Use:   "add [content]",
		Short: "Add an item and print its id",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pairs, err := parsePairs(meta)
			if err != nil {
				return err
			}
			md := make(memory.Metadata, len(pairs))
			for k, v := range pairs {
				md[k] = v
			}

			a, ctx, err := openApp(cmd, opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			var addOpts []memory.AddOption
			if cmd.Flags().Changed("ttl") {
				addOpts = append(addOpts, memory.WithTTL(ttl))
			}
			id, err := a.mem.Add(ctx, strings.Join(args, " "), md, addOpts...)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
	cmd.Flags().IntVar(&ttl, "ttl", 0, "Time to live in seconds (0 never expires; default from config)")
	cmd.Flags().StringArrayVar(&meta, "meta", nil, "Metadata key=value, repeatable")
	return cmd
}

func newGetCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get [id]",
		Short: "Show one item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, ctx, err := openApp(cmd, opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			item, ok := a.mem.Get(args[0])
			if !ok {
				return fmt.Errorf("item %s: %w", args[0], errNotFound)
			}
			out := cmd.OutOrStdout()
			if opts.jsonOutput {
				return writeJSON(out, map[string]any{
					"id":           item.ID,
					"content":      item.Content,
					"metadata":     item.Metadata,
					"created_at":   item.CreatedAt,
					"ttl_seconds":  item.TTLSeconds,
					"access_count": item.AccessCount,
				})
			}
			fmt.Fprintf(out, "id:       %s\n", item.ID)
			fmt.Fprintf(out, "content:  %s\n", item.Content)
			fmt.Fprintf(out, "created:  %s\n", humanize.Time(item.CreatedAt))
			if exp, ok := item.ExpiresAt(); ok {
				fmt.Fprintf(out, "expires:  %s\n", humanize.Time(exp))
			}
			fmt.Fprintf(out, "accessed: %d times\n", item.AccessCount)
			for _, k := range sortedKeys(item.Metadata) {
				fmt.Fprintf(out, "meta:     %s=%v\n", k, item.Metadata[k])
			}
			return nil
		},
	}
}

func newDeleteCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "delete [id]",
		Aliases: []string{"del", "rm"},
		Short:   "Delete an item",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, ctx, err := openApp(cmd, opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			if !a.mem.Delete(args[0]) {
				return fmt.Errorf("item %s: %w", args[0], errNotFound)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	}
}

func newClearCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every item",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, ctx, err := openApp(cmd, opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			n := a.mem.Size()
			a.mem.Clear()
			fmt.Fprintf(cmd.OutOrStdout(), "cleared %d items\n", n)
			return nil
		},
	}
}

func newPruneCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Remove expired items",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, ctx, err := openApp(cmd, opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			fmt.Fprintf(cmd.OutOrStdout(), "pruned %d items\n", a.mem.PruneExpired())
			return nil
		},
	}
}

func newSearchCmd(opts *rootOptions) *cobra.Command {
	var (
		limit     int
		threshold float64
		where     []string
	)
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Find items similar to the query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pairs, err := parsePairs(where)
			if err != nil {
				return err
			}
			searchOpts := []memory.SearchOption{
				memory.WithLimit(limit),
				memory.WithThreshold(threshold),
			}
			if len(pairs) > 0 {
				filters := make([]memory.Filter, 0, len(pairs))
				for k, pattern := range pairs {
					filters = append(filters, memory.MetadataGlob(k, pattern))
				}
				searchOpts = append(searchOpts, memory.WithFilter(memory.AllOf(filters...)))
			}

			a, ctx, err := openApp(cmd, opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			res, err := a.mem.Search(ctx, strings.Join(args, " "), searchOpts...)
			if err != nil {
				return err
			}
			return printResults(cmd, opts, res)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", memory.DefaultLimit, "Maximum number of results")
	cmd.Flags().Float64Var(&threshold, "threshold", memory.DefaultThreshold, "Minimum cosine similarity")
	cmd.Flags().StringArrayVar(&where, "where", nil, "Metadata filter key=glob, repeatable")
	return cmd
}

func printResults(cmd *cobra.Command, opts *rootOptions, res memory.SearchResult) error {
	out := cmd.OutOrStdout()
	if opts.jsonOutput {
		type jsonResult struct {
			ID       string          `json:"id"`
			Content  string          `json:"content"`
			Score    float64         `json:"score"`
			Metadata memory.Metadata `json:"metadata,omitempty"`
		}
		results := make([]jsonResult, 0, len(res.Results))
		for _, r := range res.Results {
			results = append(results, jsonResult{ID: r.ID, Content: r.Content, Score: r.Score, Metadata: r.Metadata})
		}
		return writeJSON(out, map[string]any{"results": results, "total": res.Total})
	}

	if len(res.Results) == 0 {
		fmt.Fprintln(out, "no matches")
		return nil
	}
	for _, r := range res.Results {
		fmt.Fprintf(out, "%.3f  %s  %s\n", r.Score, r.ID, r.Content)
	}
	if res.Total > len(res.Results) {
		fmt.Fprintf(out, "showing %d of %d matches\n", len(res.Results), res.Total)
	}
	return nil
}

func sortedKeys(md memory.Metadata) []string {
	keys := make([]string, 0, len(md))
	for k := range md {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
