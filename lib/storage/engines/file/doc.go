// Package file provides a durable storage engine backed by one file per key.
//
// Keys are base64url-encoded into file names below a single directory, and
// every write goes through a temp file plus rename so concurrent readers and
// watchers never see partial content. Change notification is built on
// fsnotify: the directory watcher starts lazily with the first subscriber,
// stops when the last one cancels, and classifies events caused by this
// backend instance as own writes so they are not echoed back.
//
// Because fsnotify observes the filesystem, separate processes sharing the
// same directory see each other's changes, which makes this the engine of
// choice for the durable (local) scope.
package file
