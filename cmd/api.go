package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/desertthunder/syncctl/internal/shared"
	"github.com/urfave/cli/v3"
)

// dumpEndpoints are the read-only collections included in a state dump.
var dumpEndpoints = []struct {
	name string
	path string
}{
	{"health", "/api/health"},
	{"mounts", "/api/mounts/status"},
	{"datasets", "/api/datasets/"},
	{"scans", "/api/scans/"},
	{"comparisons", "/api/diffs/"},
	{"batches", "/api/batches/"},
	{"jobs", "/api/copy/jobs"},
}

// APIGet makes a direct GET request to the backend
func (r *Runner) APIGet(ctx context.Context, cmd *cli.Command) error {
	path := cmd.StringArg("path")
	if path == "" {
		return fmt.Errorf("%w: path", shared.ErrMissingArgument)
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	r.logger.Info("GET request", "path", path)

	resp, err := r.api.Get(ctx, path)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}

	if !resp.OK() {
		return fmt.Errorf("%w: status %d, body: %s", shared.ErrAPIRequest, resp.StatusCode, string(resp.Body))
	}

	if resp.IsJSON {
		return r.writeJSON(resp.JSONData, cmd.Bool("pretty"))
	}

	if err := r.writeBytes(resp.Body); err != nil {
		return err
	}
	return r.writePlain("\n")
}

// APIDump fetches every read-only collection into one JSON document. Failed endpoints are listed under "errors".
func (r *Runner) APIDump(ctx context.Context, cmd *cli.Command) error {
	r.logger.Info("dumping backend state")

	dump := map[string]any{}
	var failures []map[string]string
	for _, ep := range dumpEndpoints {
		resp, err := r.api.Get(ctx, ep.path)
		switch {
		case err != nil:
			failures = append(failures, map[string]string{"endpoint": ep.path, "error": err.Error()})
		case !resp.OK():
			failures = append(failures, map[string]string{"endpoint": ep.path, "error": fmt.Sprintf("status %d", resp.StatusCode)})
		default:
			dump[ep.name] = resp.JSONData
			continue
		}
		r.logger.Warn("failed to fetch "+ep.name, "path", ep.path)
	}
	if len(failures) > 0 {
		dump["errors"] = failures
	}

	if cmd.Bool("save") {
		saveFile := "syncctl_dump.json"
		data, err := shared.MarshalJSON(dump, true)
		if err != nil {
			return fmt.Errorf("failed to marshal dump: %w", err)
		}
		if err := os.WriteFile(saveFile, data, 0644); err != nil {
			r.logger.Warn("failed to save dump", "error", err)
		} else {
			r.logger.Info("dump saved", "file", saveFile)
		}
	}

	return r.writeJSON(dump, cmd.Bool("pretty"))
}

// apiCommand handles direct read-only backend calls
func apiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "api",
		Usage: "Direct read-only calls to the migration backend",
		Commands: []*cli.Command{
			{
				Name:      "get",
				Usage:     "Direct GET to the backend, prints the response",
				Arguments: positional("path"),
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "pretty",
						Usage: "Pretty-print JSON output",
						Value: true,
					},
				},
				Action: r.APIGet,
			},
			{
				Name:  "dump",
				Usage: "Dump health, mounts and every collection as JSON",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "pretty",
						Usage: "Pretty-print output",
						Value: true,
					},
					&cli.BoolFlag{
						Name:  "save",
						Usage: "Save dump to syncctl_dump.json",
					},
				},
				Action: r.APIDump,
			},
		},
	}
}
