package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/desertthunder/syncctl/internal/formatter"
	"github.com/desertthunder/syncctl/internal/push"
	"github.com/desertthunder/syncctl/internal/shared"
	"github.com/desertthunder/syncctl/internal/tasks"
	"github.com/urfave/cli/v3"
)

type watchEvent struct {
	At   time.Time    `json:"at"`
	Type string       `json:"type"`
	Data push.Message `json:"data"`
}

// Watch streams decoded push events until interrupted or --count events were printed.
func (r *Runner) Watch(ctx context.Context, cmd *cli.Command) error {
	url, err := r.config.PushURL()
	if err != nil {
		return err
	}
	timings, err := r.config.Timings()
	if err != nil {
		return err
	}

	logger := shared.WithLogger(r.logger, "session", shared.GenerateID())
	client := push.NewClient(url, push.ClientOpts{ReconnectDelay: timings.ReconnectDelay, Logger: logger})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- client.Run(ctx) }()

	logger.Info("watching push channel", "url", url)
	limit, seen := cmd.Int("count"), 0
	asJSON := cmd.Bool("json")

	msgs, states := client.Messages(), client.States()
	for msgs != nil || states != nil {
		select {
		case up, ok := <-states:
			if !ok {
				states = nil
				continue
			}
			if !asJSON {
				if up {
					r.writePlain("-- connected to %s\n", url)
				} else {
					r.writePlain("-- disconnected, retrying in %s\n", timings.ReconnectDelay)
				}
			}
		case m, ok := <-msgs:
			if !ok {
				msgs = nil
				continue
			}
			if err := r.writeEvent(m, asJSON); err != nil {
				return err
			}
			seen++
			if limit > 0 && seen >= limit {
				cancel()
			}
		}
	}

	if err := <-done; err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func (r *Runner) writeEvent(m push.Message, asJSON bool) error {
	if asJSON {
		return r.writeJSON(watchEvent{At: time.Now().UTC(), Type: m.Kind(), Data: m}, false)
	}
	return r.writePlain("%s %s\n", time.Now().Format(time.TimeOnly), describe(m))
}

// describe renders one push message as a single line.
func describe(m push.Message) string {
	switch m := m.(type) {
	case push.MountsStatus:
		return "mounts " + string(m.Patch)
	case push.JobStarted:
		line := fmt.Sprintf("%s started", key(m.JobRef))
		if m.BatchID != nil {
			line += fmt.Sprintf(" plan %d", *m.BatchID)
		}
		if m.Direction != "" {
			line += " " + formatter.Direction(m.Direction)
		}
		if m.TotalFiles != nil {
			line += fmt.Sprintf(" (%d files)", *m.TotalFiles)
		}
		return line
	case push.JobProgress:
		var parts []string
		if m.Count != nil {
			p := tasks.Progress{Count: *m.Count}
			if m.TotalFiles != nil {
				p.TotalFiles = *m.TotalFiles
			}
			if m.CopiedSize != nil {
				p.CopiedSize = *m.CopiedSize
			}
			if m.TotalSize != nil {
				p.TotalSize = *m.TotalSize
			}
			parts = append(parts, formatter.Progress(p))
		}
		if m.CurrentFile != nil {
			parts = append(parts, *m.CurrentFile)
		}
		if m.Message != nil {
			parts = append(parts, *m.Message)
		}
		return fmt.Sprintf("%s progress %s", key(m.JobRef), strings.Join(parts, " "))
	case push.JobFinished:
		line := fmt.Sprintf("%s %s", key(m.JobRef), m.Status)
		if m.Error != "" {
			line += ": " + m.Error
		}
		return line
	case push.JobLog:
		return fmt.Sprintf("%s log %s", key(m.JobRef), m.Message)
	default:
		return m.Kind()
	}
}

func key(ref push.JobRef) string {
	return tasks.Key{Type: ref.Type, ID: ref.JobID}.String()
}
