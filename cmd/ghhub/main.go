package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "ghhub",
		Short: "Discover, catalog and analyze GitHub open source projects",
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")

	root.AddCommand(scanCmd())
	root.AddCommand(analyzeCmd())
	root.AddCommand(searchCmd())
	root.AddCommand(addCmd())
	root.AddCommand(exportCmd())
	root.AddCommand(sourcesCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(runCmd())

	return root
}

func scanCmd() *cobra.Command {
	var (
		category string
		news     bool
	)

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan GitHub for projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(category, news)
		},
	}

	cmd.Flags().StringVar(&category, "category", "", "scan a single category")
	cmd.Flags().BoolVar(&news, "news", false, "scan news sources only")
	return cmd
}

func analyzeCmd() *cobra.Command {
	var (
		limit int
		id    string
	)

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Run LLM analysis over pending projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(limit, id)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "max projects to analyze (default: from config)")
	cmd.Flags().StringVar(&id, "id", "", "analyze a single project by ID")
	return cmd
}

func searchCmd() *cobra.Command {
	var (
		remote     bool
		jsonOutput bool
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the catalog, optionally topping up from the GitHub API",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(args[0], remote, jsonOutput, limit)
		},
	}

	cmd.Flags().BoolVar(&remote, "remote", false, "force a live GitHub search")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	cmd.Flags().IntVar(&limit, "limit", 20, "max results")
	return cmd
}

func addCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add <github-url>",
		Short: "Add a project to the catalog by URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdd(args[0])
		},
	}
	return cmd
}

func exportCmd() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the catalog as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(out)
		},
	}

	cmd.Flags().StringVar(&out, "out", "", "output file (default: stdout)")
	return cmd
}

func sourcesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sources",
		Short: "Manage news sources",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List news sources",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSourcesList()
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "add <name> <url>",
		Short: "Add a news source",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSourcesAdd(args[0], args[1])
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "rm <id>",
		Short: "Remove a news source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSourcesRemove(args[0])
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "scan [id]",
		Short: "Scan all news sources, or a single one by id",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return runSourceScan(args[0])
			}
			return runScan("", true)
		},
	})

	return cmd
}

func serveCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "server port (default: from config)")
	return cmd
}

func runCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start daemon with scheduler and HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "server port (default: from config)")
	return cmd
}
