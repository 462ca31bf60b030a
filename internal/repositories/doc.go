// Package repositories implements SQLite persistence for the little state the console keeps between runs.
//
// Key Implementations:
//   - [ClientStateRepository] : key/value store backing the persisted workflow phase
//
// Everything else the console shows is rebuilt from the backend on start.
package repositories
