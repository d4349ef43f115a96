package main

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"github.com/devttys0/botox/elf32"
	"github.com/devttys0/botox/elfio"
)

func describe(fs afero.Fs, out io.Writer, path string) error {
	v, err := elfio.LoadFile(fs, path)
	if err != nil {
		return err
	}
	f, err := elf32.New(v)
	if err != nil {
		return errors.Wrap(err, path)
	}
	h := f.Header()

	arch := "unsupported"
	if a, err := f.Arch(); err == nil {
		arch = a.String()
	}
	fmt.Fprintf(out, "%s: %s\n", path, humanize.IBytes(uint64(v.Size())))
	fmt.Fprintf(out, "  type %s, machine %s, %s, %s\n", h.Type(), h.Machine(), f.Ident().Class(), f.Ident().Data())
	fmt.Fprintf(out, "  architecture %s, entry point 0x%08x\n", arch, h.Entry())

	fmt.Fprintln(out, "Program headers:")
	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"Idx", "Type", "Offset", "VirtAddr", "FileSiz", "MemSiz", "Flags", "Align"})
	for _, p := range f.Progs() {
		table.Append([]string{
			fmt.Sprintf("%d", p.Index()),
			p.Type().String(),
			fmt.Sprintf("0x%06x", p.Off()),
			fmt.Sprintf("0x%08x", p.Vaddr()),
			fmt.Sprintf("0x%05x", p.Filesz()),
			fmt.Sprintf("0x%05x", p.Memsz()),
			progFlags(p),
			fmt.Sprintf("0x%x", p.Align()),
		})
	}
	table.Render()

	fmt.Fprintln(out, "Section headers:")
	table = tablewriter.NewWriter(out)
	table.SetHeader([]string{"Idx", "Name", "Type", "Addr", "Offset", "Size", "Flags"})
	for _, s := range f.Sections() {
		table.Append([]string{
			fmt.Sprintf("%d", s.Index()),
			s.Name(),
			s.Type().String(),
			fmt.Sprintf("0x%08x", s.Addr()),
			fmt.Sprintf("0x%06x", s.Offset()),
			fmt.Sprintf("0x%06x", s.Size()),
			sectionFlags(s),
		})
	}
	table.Render()

	if err := f.Err(); err != nil {
		return err
	}
	if err := f.Validate(); err != nil {
		fmt.Fprintf(out, "Problems:\n%v\n", err)
	}
	return nil
}

func progFlags(p elf32.ProgHeader) string {
	b := []byte("---")
	if p.Readable() {
		b[0] = 'R'
	}
	if p.Writable() {
		b[1] = 'W'
	}
	if p.Executable() {
		b[2] = 'E'
	}
	return string(b)
}

func sectionFlags(s elf32.SectionHeader) string {
	var b []byte
	if s.Write() {
		b = append(b, 'W')
	}
	if s.Alloc() {
		b = append(b, 'A')
	}
	if s.Exec() {
		b = append(b, 'X')
	}
	return string(b)
}
