// Package repository persists migrations as YAML plan files on disk, one
// file per migration under <root>/<app>/<name>.yaml, and loads them back.
//
// Plan files are the project's migration history: RebuildState replays every
// recorded operation onto an empty project state to reconstruct the "old"
// snapshot the next detection run diffs against. Go-code migrations (RunGo)
// cannot be serialized and are rejected at save time.
//
// The same document schema serializes declared-model snapshots, the "new"
// side of a detection run.
package repository
