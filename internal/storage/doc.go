// Package storage keeps a journal of scheduler lifecycle events so an
// operator can see what ran, timed out or was removed across restarts.
//
// It records history only; the task table itself is rebuilt from config.
package storage
