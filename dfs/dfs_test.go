// Copyright 2025 the NB65C02 authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dfs

import (
	"bytes"
	"errors"
	"testing"

	"github.com/retroenv/retrogolib/assert"
)

func TestCreateBlankLayout(t *testing.T) {
	b, err := CreateBlank("TITLE", 0, nil)
	assert.NoError(t, err)

	img := b.Image()
	assert.Equal(t, SideSize, len(img))

	// Title characters 1..8 in sector 0, 9..12 in sector 1, space
	// padded.
	assert.Equal(t, "TITLE   ", string(img[0:8]))
	assert.Equal(t, "    ", string(img[SectorSize:SectorSize+4]))

	// No files, boot option 3, sector count 800.
	assert.Equal(t, byte(0), img[SectorSize+0x05])
	assert.Equal(t, byte(BootOptionExec<<4|0x03), img[SectorSize+0x06])
	assert.Equal(t, byte(0x20), img[SectorSize+0x07])

	assert.NoError(t, b.Validate())
}

func TestAddFileLayout(t *testing.T) {
	b, err := CreateBlank("TEST", 0, nil)
	assert.NoError(t, err)

	data := bytes.Repeat([]byte{0xab}, 300)
	assert.NoError(t, b.AddFile('$', "DATA", data, 0x1900, 0x1903, false))

	img := b.Image()

	// Name entry: 7-byte space-padded name plus directory byte.
	assert.Equal(t, "DATA   ", string(img[8:15]))
	assert.Equal(t, byte('$'), img[15])

	// File count is files*8.
	assert.Equal(t, byte(8), img[SectorSize+0x05])

	// Info entry: load, exec, length low 16 little-endian, packed high
	// bits, start sector.
	info := img[SectorSize+8 : SectorSize+16]
	assert.Equal(t, byte(0x00), info[0])
	assert.Equal(t, byte(0x19), info[1])
	assert.Equal(t, byte(0x03), info[2])
	assert.Equal(t, byte(0x19), info[3])
	assert.Equal(t, byte(300&0xff), info[4])
	assert.Equal(t, byte(300>>8), info[5])
	assert.Equal(t, byte(0), info[6])
	assert.Equal(t, byte(FirstDataSector), info[7])

	// Payload occupies sectors 2 and 3.
	assert.True(t, bytes.Equal(img[2*SectorSize:2*SectorSize+300], data))
}

func TestPackedHighBits(t *testing.T) {
	b, err := CreateBlank("HI", 0, nil)
	assert.NoError(t, err)

	// 18-bit load/exec addresses exercise the packed byte.
	assert.NoError(t, b.AddFile('A', "BIG", []byte{1}, 0x3FFFF, 0x2FFFF, true))

	img := b.Image()
	info := img[SectorSize+8 : SectorSize+16]

	// exec high = 2, length high = 0, load high = 3, start high = 0.
	assert.Equal(t, byte(2<<6|0<<4|3<<2|0), info[6])

	// Locked files set bit 7 of the directory byte.
	assert.Equal(t, byte('A')|0x80, img[15])
}

func TestCatalogRoundTrip(t *testing.T) {
	b, err := CreateBlank("ROUND", 0, nil)
	assert.NoError(t, err)
	assert.NoError(t, b.AddBootFile('$', "PROG"))
	assert.NoError(t, b.AddFile('$', "PROG", bytes.Repeat([]byte{1}, 300), 0x1900, 0x1900, false))

	cat, err := ParseCatalog(b.Image())
	assert.NoError(t, err)

	assert.Equal(t, "ROUND", cat.Title)
	assert.Equal(t, byte(BootOptionExec), cat.BootOption)
	assert.Equal(t, uint16(SectorsPerSide), cat.SectorCount)
	assert.Equal(t, 2, len(cat.Entries))

	boot := cat.Entries[0]
	assert.Equal(t, "!BOOT", boot.Name)
	assert.Equal(t, byte('$'), boot.Dir)
	assert.True(t, boot.Locked)
	assert.Equal(t, uint32(0), boot.Load)
	assert.Equal(t, uint32(len("*RUN $.PROG\r")), boot.Length)
	assert.Equal(t, uint16(2), boot.StartSector)

	prog := cat.Entries[1]
	assert.Equal(t, "PROG", prog.Name)
	assert.Equal(t, uint32(300), prog.Length)
	assert.Equal(t, uint32(0x1900), prog.Load)
	assert.Equal(t, uint32(0x1900), prog.Exec)
	assert.Equal(t, uint16(3), prog.StartSector)
	assert.Equal(t, "$.PROG", prog.QualifiedName())
	assert.Equal(t, uint16(2), prog.Sectors())
}

func TestBootCommand(t *testing.T) {
	assert.Equal(t, "*RUN $.PROG\r", BootCommand('$', "PROG"))
	assert.Equal(t, "*RUN D.GAME\r", BootCommand('D', "GAME"))
}

func TestBootFileContents(t *testing.T) {
	b, err := CreateBlank("BOOT", 0, nil)
	assert.NoError(t, err)
	assert.NoError(t, b.AddBootFile('$', "GAME"))

	img := b.Image()
	want := "*RUN $.GAME\r"
	assert.Equal(t, want, string(img[2*SectorSize:2*SectorSize+len(want)]))
}

func TestCatalogFull(t *testing.T) {
	b, err := CreateBlank("FULL", 0, nil)
	assert.NoError(t, err)

	for i := 0; i < MaxEntries; i++ {
		name := "F" + string(rune('A'+i/26)) + string(rune('A'+i%26))
		assert.NoError(t, b.AddFile('$', name, []byte{1}, 0, 0, false))
	}

	err = b.AddFile('$', "OVER", []byte{1}, 0, 0, false)
	assert.True(t, errors.Is(err, ErrCatalogFull))
}

func TestDiskFull(t *testing.T) {
	b, err := CreateBlank("FULL", 0, nil)
	assert.NoError(t, err)

	big := make([]byte, (SectorsPerSide-FirstDataSector)*SectorSize)
	assert.NoError(t, b.AddFile('$', "BIG", big, 0, 0, false))

	err = b.AddFile('$', "MORE", []byte{1}, 0, 0, false)
	assert.True(t, errors.Is(err, ErrDiskFull))
}

func TestValidation(t *testing.T) {
	_, err := CreateBlank("THIRTEENCHARS", 0, nil)
	assert.True(t, errors.Is(err, ErrBadTitle))

	b, err := CreateBlank("OK", 0, nil)
	assert.NoError(t, err)

	assert.True(t, errors.Is(b.AddFile('$', "", []byte{1}, 0, 0, false), ErrBadName))
	assert.True(t, errors.Is(b.AddFile('$', "TOOLONGNAME", []byte{1}, 0, 0, false), ErrBadName))
	assert.True(t, errors.Is(b.AddFile('$', "A.B", []byte{1}, 0, 0, false), ErrBadName))
	assert.True(t, errors.Is(b.AddFile('1', "OK", []byte{1}, 0, 0, false), ErrBadDir))

	assert.True(t, errors.Is(ValidateImage(make([]byte, 10)), ErrBadImage))

	noBoot := make([]byte, SideSize)
	assert.True(t, errors.Is(ValidateImage(noBoot), ErrBadImage))
}

func TestComposeDSDSequential(t *testing.T) {
	side0 := bytes.Repeat([]byte{0x11}, SideSize)
	side1 := bytes.Repeat([]byte{0x22}, SideSize)

	img, err := ComposeDSD(side0, side1, Side0ThenSide1)
	assert.NoError(t, err)
	assert.Equal(t, 2*SideSize, len(img))
	assert.Equal(t, byte(0x11), img[0])
	assert.Equal(t, byte(0x11), img[SideSize-1])
	assert.Equal(t, byte(0x22), img[SideSize])
	assert.Equal(t, byte(0x22), img[2*SideSize-1])
}

func TestComposeDSDInterleaved(t *testing.T) {
	side0 := make([]byte, SideSize)
	side1 := make([]byte, SideSize)
	// Tag every sector with its side and sector number.
	for s := 0; s < SectorsPerSide; s++ {
		side0[s*SectorSize] = byte(s)
		side0[s*SectorSize+1] = 0x00
		side1[s*SectorSize] = byte(s)
		side1[s*SectorSize+1] = 0xff
	}

	img, err := ComposeDSD(side0, side1, TrackInterleaved)
	assert.NoError(t, err)

	for track := 0; track < Tracks; track++ {
		for side := 0; side < 2; side++ {
			for sector := 0; sector < SectorsPerTrack; sector++ {
				off := (((track * 2) + side) * SectorsPerTrack * SectorSize) + sector*SectorSize
				wantSector := byte(track*SectorsPerTrack + sector)
				wantSide := byte(0x00)
				if side == 1 {
					wantSide = 0xff
				}
				if img[off] != wantSector || img[off+1] != wantSide {
					t.Fatalf("track %d side %d sector %d: got (%02X,%02X), want (%02X,%02X)",
						track, side, sector, img[off], img[off+1], wantSector, wantSide)
				}
			}
		}
	}
}

func TestComposeDSDBadSize(t *testing.T) {
	_, err := ComposeDSD(make([]byte, 10), make([]byte, SideSize), Side0ThenSide1)
	assert.True(t, errors.Is(err, ErrBadImage))
}

func TestBuildAutoBootDSD(t *testing.T) {
	img, err := BuildAutoBootDSD(
		SideSpec{Title: "SIDE0", Name: "GAME", Payload: []byte{1, 2, 3}, Load: 0x1900, Exec: 0x1900},
		SideSpec{Title: "SIDE1", Name: "DATA", Payload: []byte{4, 5, 6}, Load: 0x2000, Exec: 0x2000},
		Side0ThenSide1, nil)
	assert.NoError(t, err)
	assert.Equal(t, 2*SideSize, len(img))

	cat0, err := ParseCatalog(img[:SideSize])
	assert.NoError(t, err)
	assert.Equal(t, "SIDE0", cat0.Title)
	assert.Equal(t, 2, len(cat0.Entries))
	assert.Equal(t, "!BOOT", cat0.Entries[0].Name)
	assert.Equal(t, "GAME", cat0.Entries[1].Name)

	cat1, err := ParseCatalog(img[SideSize:])
	assert.NoError(t, err)
	assert.Equal(t, "SIDE1", cat1.Title)
	assert.Equal(t, "DATA", cat1.Entries[1].Name)
}
