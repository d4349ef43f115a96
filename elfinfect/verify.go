package elfinfect

import (
	"bytes"
	"debug/elf"

	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
)

// verify re-reads the patched image and checks that it still describes a
// loadable executable whose entry point is the first payload byte.
func (t *TargetBin) verify(plan *Plan) error {
	if err := t.Elf.Validate(); err != nil {
		return errors.Wrapf(ErrVerification, "%v", err)
	}

	entry := t.Elf.Header().Entry()
	off, ok := t.Elf.OffsetOf(entry)
	if !ok || off != plan.InsertionOffset {
		return errors.Wrapf(ErrVerification, "entry point 0x%x does not map to insertion offset 0x%x",
			entry, plan.InsertionOffset)
	}
	got, err := t.View.Read(int64(off), len(plan.Payload))
	if err != nil {
		return errors.Wrapf(ErrVerification, "%v", err)
	}
	if !bytes.Equal(got, plan.Payload) {
		return errors.Wrapf(ErrVerification, "payload not found at 0x%x", off)
	}

	data, err := t.View.Bytes()
	if err != nil {
		return err
	}
	ef, err := elf.NewFile(bytes.NewReader(data))
	if err != nil {
		return errors.Wrapf(ErrVerification, "debug/elf: %v", err)
	}
	defer ef.Close()
	if ef.Entry != uint64(plan.NewEntry) {
		return errors.Wrapf(ErrVerification, "debug/elf reads entry 0x%x", ef.Entry)
	}

	level.Debug(t.logger).Log("msg", "patched image verified", "sections", len(ef.Sections), "segments", len(ef.Progs))
	return nil
}
