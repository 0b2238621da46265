// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package record

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
)

const (
	FrameLogName    = "frame.log"
	InertialLogName = "imu.log"
	LocationLogName = "gps.log"
	ImageDirName    = "image"

	logBufferSize = 64 * 1024
)

// logFile is an append-only newline-delimited JSON log. Only the session writer
// goroutine touches it after Begin returns.
type logFile struct {
	path string
	f    *os.File
	w    *bufio.Writer
}

func openLog(path string) (*logFile, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, &StorageError{Op: "open log", Path: path, Err: err}
	}
	return &logFile{path: path, f: f, w: bufio.NewWriterSize(f, logBufferSize)}, nil
}

// appendLine encodes v and buffers it. A line that fails to encode is never
// partially written.
func (l *logFile) appendLine(v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return &StorageError{Op: "encode record", Path: l.path, Err: err}
	}
	raw = append(raw, '\n')
	if _, err := l.w.Write(raw); err != nil {
		return &StorageError{Op: "write log", Path: l.path, Err: err}
	}
	return nil
}

func (l *logFile) flush() error {
	if err := l.w.Flush(); err != nil {
		return &StorageError{Op: "flush log", Path: l.path, Err: err}
	}
	return nil
}

func (l *logFile) close() error {
	flushErr := l.flush()
	if err := l.f.Close(); err != nil {
		return errors.Join(flushErr, &StorageError{Op: "close log", Path: l.path, Err: err})
	}
	return flushErr
}

type sessionLogs struct {
	frame    *logFile
	inertial *logFile
	location *logFile
}

// openLogs opens all three logs or none of them.
func openLogs(dir string) (*sessionLogs, error) {
	var opened []*logFile
	open := func(name string) (*logFile, error) {
		lf, err := openLog(filepath.Join(dir, name))
		if err != nil {
			for _, o := range opened {
				_ = o.f.Close()
			}
			return nil, err
		}
		opened = append(opened, lf)
		return lf, nil
	}

	frame, err := open(FrameLogName)
	if err != nil {
		return nil, err
	}
	inertial, err := open(InertialLogName)
	if err != nil {
		return nil, err
	}
	location, err := open(LocationLogName)
	if err != nil {
		return nil, err
	}
	return &sessionLogs{frame: frame, inertial: inertial, location: location}, nil
}

func (s *sessionLogs) closeAll() []error {
	var errs []error
	for _, lf := range []*logFile{s.frame, s.inertial, s.location} {
		if err := lf.close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// writeImage persists payload verbatim into a new file. A partially written
// file is removed so a failed frame leaves nothing behind.
func writeImage(path string, payload []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return &StorageError{Op: "create image", Path: path, Err: err}
	}
	if _, err := f.Write(payload); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return &StorageError{Op: "write image", Path: path, Err: err}
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return &StorageError{Op: "close image", Path: path, Err: err}
	}
	return nil
}
