//go:build unix

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ManuGH/tvrelay/internal/log"
)

func TestApp_SignalKicksRefresh(t *testing.T) {
	ref := &fakeRefresher{}
	app := NewApp(log.WithComponent("test"), &fakeManager{}, ref, nil)
	app.reloadSignal = syscall.SIGUSR1

	// keep the default action from killing the test binary before Run subscribes
	guard := make(chan os.Signal, 16)
	signal.Notify(guard, syscall.SIGUSR1)
	defer signal.Stop(guard)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()
	require.Eventually(t, ref.ran.Load, time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		_ = syscall.Kill(syscall.Getpid(), syscall.SIGUSR1)
		return ref.kicks.Load() > 0
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	<-done
}
