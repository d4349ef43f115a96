package main

import (
	"context"
	"time"

	"github.com/devttys0/botox/pauser"
)

type pauseParams struct {
	name      string
	minPID    int
	delay     time.Duration
	gdb       bool
	procRoot  string
	gdbServer pauser.GDBServer
}

func pauseProcess(ctx context.Context, params *pauseParams) error {
	p, err := pauser.New(params.procRoot, logger)
	if err != nil {
		return err
	}
	_, err = p.Pause(ctx, params.name, pauser.Config{
		MinPID:    params.minPID,
		Delay:     params.delay,
		GDB:       params.gdb,
		GDBServer: params.gdbServer,
	})
	return err
}
