package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"github.com/devttys0/botox/elfinfect"
	"github.com/devttys0/botox/payload"
)

type patchParams struct {
	path        string
	payloadFile string
	payloadEnv  string
	output      string
	dryRun      bool
}

// getPayloadFromEnv decodes a payload written as "\x90\x90..." (or plain hex)
// from the environment variable key.
func getPayloadFromEnv(key string) ([]byte, error) {
	val, ok := os.LookupEnv(key)
	if !ok {
		return nil, errors.Errorf("environment variable %s is not set", key)
	}
	if val == "" {
		return nil, errors.Errorf("environment variable %s contains no payload", key)
	}
	decoded, err := hex.DecodeString(strings.ReplaceAll(val, "\\x", ""))
	if err != nil {
		return nil, errors.Wrapf(err, "decoding payload from %s", key)
	}
	return decoded, nil
}

// provider picks the payload source. A nil provider means the built-in stub
// for the target architecture.
func (p *patchParams) provider(fs afero.Fs) (payload.Provider, error) {
	switch {
	case p.payloadFile != "" && p.payloadEnv != "":
		return nil, errors.New("--payload and --payload-env are mutually exclusive")
	case p.payloadFile != "":
		b, err := afero.ReadFile(fs, p.payloadFile)
		if err != nil {
			return nil, err
		}
		return payload.Raw(b), nil
	case p.payloadEnv != "":
		b, err := getPayloadFromEnv(p.payloadEnv)
		if err != nil {
			return nil, err
		}
		return payload.Raw(b), nil
	}
	return nil, nil
}

func patchTarget(fs afero.Fs, out io.Writer, params *patchParams) error {
	prov, err := params.provider(fs)
	if err != nil {
		return err
	}
	t, err := elfinfect.Open(fs, params.path, logger)
	if err != nil {
		return err
	}
	if params.output != "" {
		t.OutPath = params.output
	}

	var opts elfinfect.InfectOpts
	if params.dryRun {
		opts |= elfinfect.DryRun
	}
	plan, err := t.TextSegmentPaddingInfection(prov, opts)
	if err != nil {
		return err
	}

	if params.dryRun {
		printPlan(out, plan)
		return nil
	}
	fmt.Fprintf(out, "%s: entry point 0x%08x -> 0x%08x\n", t.OutPath, plan.OldEntry, plan.NewEntry)
	return nil
}

func printPlan(out io.Writer, plan *elfinfect.Plan) {
	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"Step", "Value"})
	table.SetAutoWrapText(false)
	table.Append([]string{"architecture", plan.Arch.String()})
	table.Append([]string{"segment", fmt.Sprintf("%d", plan.Segment)})
	table.Append([]string{"insertion offset", fmt.Sprintf("0x%x", plan.InsertionOffset)})
	table.Append([]string{"inserted bytes", fmt.Sprintf("0x%x (payload %d)", plan.Align, plan.PayloadLen)})
	table.Append([]string{"entry point", fmt.Sprintf("0x%08x -> 0x%08x", plan.OldEntry, plan.NewEntry)})
	table.Append([]string{"moved segments", joinInts(plan.Progs)})
	table.Append([]string{"moved sections", joinInts(plan.Sections)})
	if plan.GrowSection >= 0 {
		table.Append([]string{"grown section", fmt.Sprintf("%d", plan.GrowSection)})
	}
	table.Append([]string{"move section table", fmt.Sprintf("%t", plan.ShiftShoff)})
	table.Append([]string{"move program table", fmt.Sprintf("%t", plan.ShiftPhoff)})
	table.Render()
}

func joinInts(v []int) string {
	if len(v) == 0 {
		return "-"
	}
	s := make([]string, len(v))
	for i, n := range v {
		s[i] = fmt.Sprintf("%d", n)
	}
	return strings.Join(s, ",")
}
