// Package watcher wraps the OS file-change facility (via fsnotify) and
// presents changes under a root as a filtered, debounced stream of
// add/change/remove notifications.
//
// # Behavior
//
// Paths under excluded directory names, and files outside the extension
// allow-list, are dropped before emission; directories are never
// extension-filtered. Repeated events for one path inside the debounce
// window collapse to a single emission carrying the latest kind. Nothing is
// emitted before the initial scan completes unless Config.EmitInitial is set.
//
// Events are delivered through the Handler callback interface; the consumer
// resolves file metadata itself. Non-fatal OS errors surface through
// Handler.OnError without stopping the session; a fatal failure also closes
// the Done channel.
//
// The OS-specific mechanism stays behind the Start/Stop/AddPath/UnwatchPath
// surface so a different backend (for example polling) can be swapped in
// without touching consumers.
package watcher
