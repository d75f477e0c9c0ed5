// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"
)

// FreshnessChecker reports whether the refresh scheduler keeps completing cycles.
type FreshnessChecker struct {
	lastCycle func() time.Time
	interval  time.Duration
	now       func() time.Time
}

// NewFreshnessChecker creates a checker that turns unhealthy when the last cycle
// is older than three intervals.
func NewFreshnessChecker(lastCycle func() time.Time, interval time.Duration) *FreshnessChecker {
	return &FreshnessChecker{lastCycle: lastCycle, interval: interval, now: time.Now}
}

func (c *FreshnessChecker) Name() string {
	return "refresh"
}

func (c *FreshnessChecker) Check(_ context.Context) CheckResult {
	last := c.lastCycle()
	if last.IsZero() {
		return CheckResult{
			Status:  StatusDegraded,
			Message: "first refresh cycle pending",
		}
	}
	age := c.now().Sub(last)
	if age > 3*c.interval {
		return CheckResult{
			Status:  StatusUnhealthy,
			Error:   fmt.Sprintf("last refresh cycle %s ago", age.Round(time.Second)),
			Message: "refresh scheduler is not making progress",
		}
	}
	return CheckResult{
		Status:  StatusHealthy,
		Message: fmt.Sprintf("last refresh cycle %s ago", age.Round(time.Second)),
	}
}

// BinaryChecker checks that an external tool can be found.
type BinaryChecker struct {
	name string
	bin  string
}

// NewBinaryChecker creates a checker for bin, a PATH name or absolute path.
func NewBinaryChecker(name, bin string) *BinaryChecker {
	return &BinaryChecker{name: name, bin: bin}
}

func (c *BinaryChecker) Name() string {
	return c.name
}

func (c *BinaryChecker) Check(_ context.Context) CheckResult {
	path, err := exec.LookPath(c.bin)
	if err != nil {
		return CheckResult{
			Status:  StatusUnhealthy,
			Error:   err.Error(),
			Message: c.bin,
		}
	}
	return CheckResult{Status: StatusHealthy, Message: path}
}

// FileChecker checks an optional file. A missing file only degrades the service.
type FileChecker struct {
	name string
	path string
}

// NewFileChecker creates a checker for file existence
func NewFileChecker(name, path string) *FileChecker {
	return &FileChecker{name: name, path: path}
}

func (c *FileChecker) Name() string {
	return c.name
}

func (c *FileChecker) Check(_ context.Context) CheckResult {
	if c.path == "" {
		return CheckResult{Status: StatusHealthy, Message: "not configured (optional)"}
	}

	info, err := os.Stat(c.path)
	switch {
	case os.IsNotExist(err):
		return CheckResult{Status: StatusDegraded, Error: "file not found", Message: c.path}
	case err != nil:
		return CheckResult{Status: StatusDegraded, Error: err.Error()}
	case info.IsDir():
		return CheckResult{Status: StatusUnhealthy, Error: "expected file, got directory"}
	case info.Size() == 0:
		return CheckResult{Status: StatusDegraded, Message: "file is empty"}
	}
	return CheckResult{Status: StatusHealthy, Message: "file exists and readable"}
}
