package elfinfect

import (
	"encoding/hex"
	"strings"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// InfectOpts modifies how a patch is carried out.
type InfectOpts uint8

const (
	// DryRun computes the plan and stops before changing anything.
	DryRun InfectOpts = 1 << 7
)

func logPayload(logger log.Logger, p []byte) {
	for _, line := range strings.Split(strings.TrimRight(hex.Dump(p), "\n"), "\n") {
		level.Debug(logger).Log("msg", "payload", "dump", line)
	}
}
