// Package ui implements the interactive operator console using bubbletea's Elm architecture.
//
// The console renders one route at a time, chosen from the routes the active phase allows:
//  1. Overview ("/") : phase, mount reachability, live job progress and failure banners
//  2. Datasets, Scans, Compare, Plans : planning-phase listings
//  3. Copy NAS1 → USB, Copy USB → NAS2 : per-plan copy control with a progress bar
//
// The [Model] never mutates console state itself. It renders the latest [console.View], waits on the engine's change
// signal with a blocking [tea.Cmd], and turns key presses into engine actions run as commands.
//
// Keys: 1/2/3 select a phase, tab cycles routes, enter opens a plan's items, c starts a copy (y/n to confirm), d starts
// a dry run, R retries the failed job of the selected plan, e exports the offline script, v verifies, t/T toggle items,
// x dismisses the newest banner, r re-checks mounts, q quits.
package ui
