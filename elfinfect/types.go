package elfinfect

import (
	"bytes"
	"os"

	"github.com/go-kit/log"
	"github.com/spf13/afero"

	"github.com/devttys0/botox/elf32"
	"github.com/devttys0/botox/elfio"
)

// TargetBin is an executable loaded for patching. All changes are made to an
// in-memory copy; the file on disk is only replaced by a successful commit.
type TargetBin struct {
	Path string
	// OutPath is where the patched image is written. It defaults to Path.
	OutPath string
	Mode    os.FileMode

	View *elfio.View
	Elf  *elf32.File

	// Payload holds the stub generated by the last plan, before padding.
	Payload bytes.Buffer

	fs     afero.Fs
	logger log.Logger
}

// Plan describes a text segment padding patch computed against the headers
// as they were before anything was changed.
type Plan struct {
	Arch    elf32.Arch
	Segment int // program header the payload extends

	Align           uint32
	InsertionOffset uint32
	OldEntry        uint32
	NewEntry        uint32

	PayloadLen int
	Payload    []byte // padded to Align

	// Headers whose offsets move forward by Align.
	Progs    []int
	Sections []int

	// GrowSection is the section holding the insertion point, or -1.
	GrowSection int
	ShiftShoff  bool
	ShiftPhoff  bool
}
