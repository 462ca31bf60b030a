// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func jsonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:  "json",
			Usage: "Output raw JSON",
		},
		&cli.BoolFlag{
			Name:  "pretty",
			Usage: "Pretty-print JSON output",
			Value: true,
		},
	}
}

func positional(names ...string) []cli.Argument {
	args := make([]cli.Argument, len(names))
	for i, name := range names {
		args[i] = &cli.StringArg{Name: name}
	}
	return args
}

// setupCommand handles setup operations for configuration and the client-state database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:   "config",
				Usage:  "Write a config file from the built-in template",
				Action: r.SetupConfig,
			},
			{
				Name:   "database",
				Usage:  "Initialize the client-state database and run migrations",
				Action: r.SetupDatabase,
			},
		},
	}
}

// consoleCommand returns the top-level command for the interactive operator console.
func consoleCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "console",
		Aliases: []string{"tui", "ui"},
		Usage:   "Launch the interactive operator console",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "script-dir",
				Usage: "Directory exported copy scripts are saved to",
				Value: ".",
			},
		},
		Action: r.Console,
	}
}

// statusCommand reports backend health and mount reachability.
func statusCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show backend health and mount status",
		Flags: append(jsonFlags(),
			&cli.BoolFlag{
				Name:  "refresh",
				Usage: "Ask the backend to re-check every mount first",
			},
		),
		Action: r.Status,
	}
}

// phaseCommand shows or switches the active workflow phase.
func phaseCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "phase",
		Usage: "Show or select the workflow phase",
		Commands: []*cli.Command{
			{
				Name:   "show",
				Usage:  "Show the active phase and the views it allows",
				Flags:  jsonFlags(),
				Action: r.PhaseShow,
			},
			{
				Name:      "set",
				Usage:     "Select a phase (planning, transfer-out, transfer-in)",
				Arguments: positional("phase"),
				Action:    r.PhaseSet,
			},
		},
	}
}

// jobsCommand handles job inspection and job actions.
func jobsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "jobs",
		Usage: "Inspect and act on backend jobs",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List jobs, newest first",
				Flags: append(jsonFlags(),
					&cli.StringFlag{
						Name:  "type",
						Usage: "Only jobs of this type (scan, diff, copy)",
					},
					&cli.StringFlag{
						Name:  "status",
						Usage: "Only jobs with this status",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of jobs to print",
					},
				),
				Action: r.JobsList,
			},
			{
				Name:      "show",
				Usage:     "Show one job with its metadata and log",
				Arguments: positional("id"),
				Flags:     jsonFlags(),
				Action:    r.JobsShow,
			},
			{
				Name:      "files",
				Usage:     "List the per-file records of a copy job",
				Arguments: positional("id"),
				Flags: append(jsonFlags(),
					&cli.StringFlag{
						Name:  "status",
						Usage: "Only files with this status (copied, failed, skipped)",
					},
				),
				Action: r.JobsFiles,
			},
			{
				Name:      "log",
				Usage:     "Print the stored log of a job",
				Arguments: positional("id"),
				Action:    r.JobsLog,
			},
			{
				Name:      "retry",
				Usage:     "Retry a finished copy job",
				Arguments: positional("id"),
				Action:    r.JobsRetry,
			},
			{
				Name:      "delete",
				Usage:     "Delete a finished job",
				Arguments: positional("id"),
				Action:    r.JobsDelete,
			},
			{
				Name:      "verify",
				Usage:     "Check a copy job's files at the destination",
				Arguments: positional("id"),
				Flags:     jsonFlags(),
				Action:    r.JobsVerify,
			},
		},
	}
}

// batchesCommand handles transfer plans and their copy legs.
func batchesCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "batches",
		Aliases: []string{"plans"},
		Usage:   "Manage transfer plans",
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List plans with their live copy progress",
				Flags:  jsonFlags(),
				Action: r.BatchesList,
			},
			{
				Name:  "create",
				Usage: "Create a plan from a comparison",
				Flags: []cli.Flag{
					&cli.Int64Flag{
						Name:     "comparison",
						Usage:    "Comparison to plan from",
						Required: true,
					},
					&cli.BoolFlag{
						Name:  "include-conflicts",
						Usage: "Also move files that differ at the target",
					},
					&cli.StringSliceFlag{
						Name:  "exclude",
						Usage: "Glob of paths to leave out (repeatable)",
					},
				},
				Action: r.BatchesCreate,
			},
			{
				Name:      "delete",
				Usage:     "Delete a plan",
				Arguments: positional("id"),
				Action:    r.BatchesDelete,
			},
			{
				Name:      "items",
				Usage:     "List a plan's items with their file status",
				Arguments: positional("id"),
				Flags: append(jsonFlags(),
					&cli.StringFlag{
						Name:  "format",
						Usage: "Output format (text, csv)",
						Value: "text",
					},
				),
				Action: r.BatchesItems,
			},
			{
				Name:      "enable",
				Usage:     "Include an item in future copies",
				Arguments: positional("id", "item"),
				Action:    r.BatchesEnable,
			},
			{
				Name:      "disable",
				Usage:     "Exclude an item from future copies",
				Arguments: positional("id", "item"),
				Action:    r.BatchesDisable,
			},
			{
				Name:      "enable-all",
				Usage:     "Include every item",
				Arguments: positional("id"),
				Action:    r.BatchesEnableAll,
			},
			{
				Name:      "disable-all",
				Usage:     "Exclude every item",
				Arguments: positional("id"),
				Action:    r.BatchesDisableAll,
			},
			{
				Name:      "script",
				Usage:     "Export the shell script for the active phase's copy leg",
				Arguments: positional("id"),
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Directory to save the script to (prints to stdout when empty)",
					},
				},
				Action: r.BatchesScript,
			},
			{
				Name:      "copy",
				Usage:     "Start the active phase's copy leg for a plan",
				Arguments: positional("id"),
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "dry-run",
						Usage: "Walk the plan without writing files",
					},
				},
				Action: r.BatchesCopy,
			},
			{
				Name:      "export",
				Usage:     "Export a plan's items to CSV or Markdown",
				Arguments: positional("id"),
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "format",
						Usage: "Export format (csv, md)",
						Value: "csv",
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Base path (csv) or directory (md)",
					},
				},
				Action: r.BatchesExport,
			},
		},
	}
}

// datasetsCommand manages dataset definitions.
func datasetsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "datasets",
		Usage: "Manage datasets",
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List datasets",
				Flags:  jsonFlags(),
				Action: r.DatasetsList,
			},
			{
				Name:  "create",
				Usage: "Create a dataset",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "name",
						Usage:    "Display name",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "location",
						Usage:    "Where the files live (NAS1, USB, NAS2)",
						Required: true,
					},
					&cli.StringSliceFlag{
						Name:     "root",
						Usage:    "Root path to scan (repeatable)",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "scan-adapter",
						Usage: "How files are read for scans (local, ssh)",
						Value: "local",
					},
					&cli.StringFlag{
						Name:  "transfer-adapter",
						Usage: "How files are copied (local, ssh)",
					},
				},
				Action: r.DatasetsCreate,
			},
			{
				Name:      "delete",
				Usage:     "Delete a dataset",
				Arguments: positional("id"),
				Action:    r.DatasetsDelete,
			},
		},
	}
}

// scansCommand manages dataset scans.
func scansCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "scans",
		Usage: "Manage scans",
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List scans",
				Flags:  jsonFlags(),
				Action: r.ScansList,
			},
			{
				Name:      "create",
				Usage:     "Start a scan of a dataset",
				Arguments: positional("dataset"),
				Action:    r.ScansCreate,
			},
			{
				Name:      "delete",
				Usage:     "Delete a scan",
				Arguments: positional("id"),
				Action:    r.ScansDelete,
			},
		},
	}
}

// compareCommand manages scan comparisons.
func compareCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "compare",
		Aliases: []string{"comparisons"},
		Usage:   "Manage comparisons between scans",
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List comparisons",
				Flags:  jsonFlags(),
				Action: r.CompareList,
			},
			{
				Name:      "create",
				Usage:     "Compare a source scan against a target scan",
				Arguments: positional("source", "target"),
				Action:    r.CompareCreate,
			},
			{
				Name:      "summary",
				Usage:     "Show category counts of a comparison",
				Arguments: positional("id"),
				Flags:     jsonFlags(),
				Action:    r.CompareSummary,
			},
			{
				Name:      "delete",
				Usage:     "Delete a comparison",
				Arguments: positional("id"),
				Action:    r.CompareDelete,
			},
		},
	}
}

// watchCommand streams push events.
func watchCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Stream push events from the backend until interrupted",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print one JSON object per event",
			},
			&cli.IntFlag{
				Name:  "count",
				Usage: "Stop after this many events",
			},
		},
		Action: r.Watch,
	}
}
