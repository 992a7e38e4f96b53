// Copyright 2025 the NB65C02 authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dfs

import (
	"fmt"

	"github.com/retroenv/retrogolib/log"
)

// A Builder composes a single 200 KiB DFS side. Files are placed in
// contiguous sectors starting from the first free sector; the catalog
// is rewritten after every addition.
type Builder struct {
	image      []byte
	entries    []Entry
	title      string
	interleave int
	nextSector uint16
	logger     *log.Logger
}

// quietLogger builds the default logger used when the caller does not
// supply one.
func quietLogger() *log.Logger {
	cfg := log.DefaultConfig()
	cfg.Level = log.ErrorLevel
	return log.NewWithConfig(cfg)
}

// CreateBlank allocates a zeroed side and writes an empty catalog with
// boot option 3 (EXEC $.!BOOT) and a sector count of 800. The
// interleave parameter is accepted for project-file compatibility but
// does not remap physical storage; sectors are stored linearly.
func CreateBlank(title string, interleave int, logger *log.Logger) (*Builder, error) {
	if !validTitle(title) {
		return nil, fmt.Errorf("%w: %q", ErrBadTitle, title)
	}
	if logger == nil {
		logger = quietLogger()
	}

	b := &Builder{
		image:      make([]byte, SideSize),
		title:      title,
		interleave: interleave,
		nextSector: FirstDataSector,
		logger:     logger,
	}
	writeMeta(b.image, title, 0, BootOptionExec, SectorsPerSide)
	writeEntries(b.image, nil)

	logger.Debug("created blank DFS side",
		log.String("title", title),
		log.Int("interleave", interleave))
	return b, nil
}

// AddFile allocates contiguous sectors for the data, copies it into
// the image and appends a catalog entry. Adding more than 31 files or
// exceeding the disk capacity is fatal.
func (b *Builder) AddFile(dir byte, name string, data []byte, load, exec uint32, locked bool) error {
	if len(b.entries) >= MaxEntries {
		return fmt.Errorf("%w: %d entries", ErrCatalogFull, MaxEntries)
	}
	if !validDir(dir) {
		return fmt.Errorf("%w: %q", ErrBadDir, string(dir))
	}
	if !validName(name) {
		return fmt.Errorf("%w: %q", ErrBadName, name)
	}

	sectors := uint16((len(data) + SectorSize - 1) / SectorSize)
	if b.nextSector+sectors > SectorsPerSide {
		return fmt.Errorf("%w: %s needs %d sectors, %d free",
			ErrDiskFull, name, sectors, SectorsPerSide-b.nextSector)
	}

	copy(b.image[int(b.nextSector)*SectorSize:], data)

	entry := Entry{
		Dir:         dir,
		Name:        name,
		Locked:      locked,
		Load:        load,
		Exec:        exec,
		Length:      uint32(len(data)),
		StartSector: b.nextSector,
	}
	b.entries = append(b.entries, entry)
	b.nextSector += sectors
	writeEntries(b.image, b.entries)

	b.logger.Debug("added DFS file",
		log.String("name", entry.QualifiedName()),
		log.Int("length", len(data)),
		log.Int("start", int(entry.StartSector)))
	return nil
}

// BootCommand returns the auto-boot command line stored in $.!BOOT:
// `*RUN ` followed by the qualified file name and a carriage return.
func BootCommand(dir byte, name string) string {
	return "*RUN " + string(dir) + "." + name + "\r"
}

// AddBootFile stores a locked $.!BOOT file that runs the named file on
// shift-break. The boot option of a blank image is already 3 (EXEC).
func (b *Builder) AddBootFile(dir byte, name string) error {
	return b.AddFile('$', "!BOOT", []byte(BootCommand(dir, name)), 0, 0, true)
}

// Image returns the composed 200 KiB side.
func (b *Builder) Image() []byte {
	return b.image
}

// Validate checks the composed side's boot option.
func (b *Builder) Validate() error {
	return ValidateImage(b.image)
}

// ValidateImage checks that a side image carries the auto-boot option.
// Images written by this package always boot with *OPT 4,3.
func ValidateImage(side []byte) error {
	if len(side) != SideSize {
		return fmt.Errorf("%w: side is %d bytes, want %d", ErrBadImage, len(side), SideSize)
	}
	if opt := (side[SectorSize+0x06] >> 4) & 0x03; opt != BootOptionExec {
		return fmt.Errorf("%w: boot option %d, want %d", ErrBadImage, opt, BootOptionExec)
	}
	return nil
}

// BuildAutoBootDisk composes a bootable side holding a single payload
// file plus the $.!BOOT loader that runs it.
func BuildAutoBootDisk(title, name string, payload []byte, load, exec uint32, logger *log.Logger) ([]byte, error) {
	b, err := CreateBlank(title, 0, logger)
	if err != nil {
		return nil, err
	}
	if err := b.AddBootFile('$', name); err != nil {
		return nil, err
	}
	if err := b.AddFile('$', name, payload, load, exec, false); err != nil {
		return nil, err
	}
	return b.Image(), nil
}
