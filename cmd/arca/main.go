// cmd/arca/main.go
package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"arca/internal/config"
	"arca/internal/logging"
	"arca/internal/repo"
	"arca/internal/watch"
)

var rootCmd = &cobra.Command{
	Use:   "arca",
	Short: "Arca is a local snapshot version control system",
	Long: `Arca snapshots a directory tree into immutable, hash-identified
commits linked in a strictly linear history, and can restore any prior
snapshot. History is append-only: checkout restores files but never
moves head.`,
	SilenceUsage: true,
}

func init() {
	var initCmd = &cobra.Command{
		Use:   "init",
		Short: "Initialize a new Arca repository",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo()
			if err != nil {
				return err
			}

			if err := r.Init(); err != nil {
				return fmt.Errorf("initializing repository: %w", err)
			}

			fmt.Println("Initialized empty Arca repository in", r.WorkDir())
			return nil
		},
	}

	var commitCmd = &cobra.Command{
		Use:   "commit",
		Short: "Snapshot the working directory as a new commit",
		RunE: func(cmd *cobra.Command, args []string) error {
			message, _ := cmd.Flags().GetString("message")
			author, _ := cmd.Flags().GetString("author")

			r, err := openRepo()
			if err != nil {
				return err
			}

			id, err := r.Commit(message, author)
			if err != nil {
				return fmt.Errorf("creating commit: %w", err)
			}

			fmt.Printf("Created commit %s\n", shorten(id))
			return nil
		},
	}
	commitCmd.Flags().StringP("message", "m", "", "Commit message")
	commitCmd.Flags().StringP("author", "a", "", "Commit author")
	commitCmd.MarkFlagRequired("message")
	commitCmd.MarkFlagRequired("author")

	var checkoutCmd = &cobra.Command{
		Use:   "checkout [commit-id]",
		Short: "Restore the working directory to a commit's snapshot",
		Long: `Restore the working directory to a commit's snapshot.
Head is left unchanged; the full history remains visible in 'arca log'.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo()
			if err != nil {
				return err
			}

			err = r.Checkout(args[0])

			var report *repo.PartialFailureReport
			if errors.As(err, &report) {
				yellow := color.New(color.FgYellow).SprintFunc()
				red := color.New(color.FgRed).SprintFunc()
				fmt.Println(yellow(report.Error()))
				for _, f := range report.Failures {
					fmt.Printf("\t%s %s (%s): %s\n", red("!"), f.Path, f.Op, f.Reason)
				}
				return err
			}
			if err != nil {
				return fmt.Errorf("checkout: %w", err)
			}

			fmt.Printf("Restored working directory to %s\n", shorten(args[0]))
			return nil
		},
	}

	var logCmd = &cobra.Command{
		Use:   "log",
		Short: "Show commit history, oldest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo()
			if err != nil {
				return err
			}

			history, err := r.GetHistory()
			if err != nil {
				return fmt.Errorf("loading history: %w", err)
			}

			if len(history) == 0 {
				fmt.Println("No commits yet")
				return nil
			}

			yellow := color.New(color.FgYellow).SprintFunc()
			for _, h := range history {
				fmt.Printf("%s  %s  %s  %s\n",
					yellow(shorten(h.ID)),
					h.Commit.FormattedTimestamp(),
					h.Commit.Author(),
					h.Commit.ShortMessage(50),
				)
			}
			return nil
		},
	}

	var filelogCmd = &cobra.Command{
		Use:   "filelog [path]",
		Short: "Show the commits in which a file was present",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo()
			if err != nil {
				return err
			}

			entries, err := r.GetFileHistory(args[0])
			if err != nil {
				return fmt.Errorf("loading file history: %w", err)
			}

			if len(entries) == 0 {
				fmt.Printf("%s does not appear in any commit\n", args[0])
				return nil
			}

			yellow := color.New(color.FgYellow).SprintFunc()
			for _, e := range entries {
				fmt.Printf("%s  %s  %s  %s\n",
					yellow(shorten(e.ID)),
					e.Commit.FormattedTimestamp(),
					e.Node.FormatSize(),
					e.Commit.ShortMessage(50),
				)
			}
			return nil
		},
	}

	var showCmd = &cobra.Command{
		Use:   "show [commit-id]",
		Short: "Show a commit's metadata and file tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo()
			if err != nil {
				return err
			}

			c, err := r.GetCommit(args[0])
			if err != nil {
				return fmt.Errorf("loading commit: %w", err)
			}

			cyan := color.New(color.FgCyan).SprintFunc()
			fmt.Printf("%s %s\n", cyan("commit"), c.ID())
			fmt.Printf("Author: %s\n", c.Author())
			fmt.Printf("Date:   %s\n", c.FormattedTimestamp())
			if c.HasParent() {
				fmt.Printf("Parent: %s\n", shorten(c.ParentID()))
			} else {
				fmt.Println("Parent: (initial commit)")
			}
			fmt.Printf("\n    %s\n\n", c.Message())
			fmt.Print(c.RenderTree())
			return nil
		},
	}

	var statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Show repository status",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo()
			if err != nil {
				return err
			}

			st, err := r.Status()
			if err != nil {
				return fmt.Errorf("getting status: %w", err)
			}

			green := color.New(color.FgGreen).SprintFunc()
			fmt.Printf("Working directory: %s\n", st.WorkDir)
			if st.Head == "" {
				fmt.Println("Head: (no commits yet)")
			} else {
				fmt.Printf("Head: %s\n", green(shorten(st.Head)))
			}
			fmt.Printf("Tracked files: %d\n", st.TrackedFiles)
			fmt.Printf("Total commits: %d\n", st.TotalCommits)
			return nil
		},
	}

	var watchCmd = &cobra.Command{
		Use:   "watch",
		Short: "Watch the working directory and report changed paths",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}

			cwd, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("getting current directory: %w", err)
			}

			w, err := watch.New(cwd, cfg.StorageDir, log.Logger)
			if err != nil {
				return fmt.Errorf("starting watcher: %w", err)
			}
			defer w.Close()

			fmt.Println("Watching", cwd, "(Ctrl+C to stop)")

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

			blue := color.New(color.FgBlue).SprintFunc()
			ticker := time.NewTicker(500 * time.Millisecond)
			defer ticker.Stop()

			seen := make(map[string]bool)
			for {
				select {
				case <-ticker.C:
					for _, p := range w.DirtyPaths() {
						if !seen[p] {
							seen[p] = true
							fmt.Printf("\t%s %s\n", blue("~"), p)
						}
					}
				case <-sig:
					return nil
				}
			}
		},
	}

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(commitCmd)
	rootCmd.AddCommand(checkoutCmd)
	rootCmd.AddCommand(logCmd)
	rootCmd.AddCommand(filelogCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(watchCmd)
}

func loadConfig() (*config.Config, *logging.Logger, error) {
	cfg := config.Default()
	if path := config.Path(); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, nil, fmt.Errorf("loading config %s: %w", path, err)
		}
		cfg = loaded
	}

	log, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("initializing logger: %w", err)
	}

	return cfg, log, nil
}

func openRepo() (*repo.Repository, error) {
	cfg, log, err := loadConfig()
	if err != nil {
		return nil, err
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("getting current directory: %w", err)
	}

	return repo.Open(cwd, cfg, log)
}

func shorten(id string) string {
	if len(id) > 10 {
		return id[:10]
	}
	return id
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
