package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/mnemo/internal/memory"
)

const shellHelp = `commands:
  add <content>      add an item, prints its id
  get <id>           show an item
  del <id>           delete an item
  search <query>     ranked search with default limit and threshold
  stats              store statistics
  prune              remove expired items
  clear              remove every item
  size               number of stored items
  help               this text
  quit               leave the shell`

func newShellCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Interactive shell over a single open store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, ctx, err := openApp(cmd, opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			rl, err := readline.NewEx(&readline.Config{
				Prompt:      "mnemo> ",
				HistoryFile: filepath.Join(filepath.Dir(a.cfg.DatabasePath()), "history"),
				Stdout:      cmd.OutOrStdout(),
			})
			if err != nil {
				return err
			}
			defer func() {
				_ = rl.Close()
			}()

			out := cmd.OutOrStdout()
			for {
				line, err := rl.Readline()
				if errors.Is(err, readline.ErrInterrupt) {
					if line == "" {
						return nil
					}
					continue
				}
				if err != nil { // io.EOF
					return nil
				}
				quit, err := runShellLine(ctx, a.mem, line, out)
				if err != nil {
					fmt.Fprintf(out, "error: %v\n", err)
				}
				if quit {
					return nil
				}
			}
		},
	}
}

// runShellLine executes one shell command against s.
func runShellLine(ctx context.Context, s *memory.Store, line string, out io.Writer) (bool, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return false, nil
	}
	verb, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	needArg := func() error {
		if rest == "" {
			return fmt.Errorf("%s needs an argument", verb)
		}
		return nil
	}

	switch verb {
	case "quit", "exit":
		return true, nil

	case "help":
		fmt.Fprintln(out, shellHelp)

	case "add":
		if err := needArg(); err != nil {
			return false, err
		}
		id, err := s.Add(ctx, rest, nil)
		if err != nil {
			return false, err
		}
		fmt.Fprintln(out, id)

	case "get":
		if err := needArg(); err != nil {
			return false, err
		}
		item, ok := s.Get(rest)
		if !ok {
			return false, fmt.Errorf("item %s: %w", rest, errNotFound)
		}
		fmt.Fprintf(out, "%s  %s\n", item.ID, item.Content)

	case "del", "delete":
		if err := needArg(); err != nil {
			return false, err
		}
		if !s.Delete(rest) {
			return false, fmt.Errorf("item %s: %w", rest, errNotFound)
		}
		fmt.Fprintf(out, "deleted %s\n", rest)

	case "search":
		if err := needArg(); err != nil {
			return false, err
		}
		res, err := s.Search(ctx, rest)
		if err != nil {
			return false, err
		}
		if len(res.Results) == 0 {
			fmt.Fprintln(out, "no matches")
		}
		for _, r := range res.Results {
			fmt.Fprintf(out, "%.3f  %s  %s\n", r.Score, r.ID, r.Content)
		}

	case "stats":
		printStats(out, s.Stats())

	case "prune":
		fmt.Fprintf(out, "pruned %d items\n", s.PruneExpired())

	case "clear":
		s.Clear()
		fmt.Fprintln(out, "cleared")

	case "size":
		fmt.Fprintln(out, s.Size())

	default:
		return false, fmt.Errorf("unknown command %q (try help)", verb)
	}
	return false, nil
}
