// Copyright 2025 the NB65C02 authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dfs

import (
	"fmt"

	"github.com/retroenv/retrogolib/log"
)

// TemplateEntryName is the catalog entry replaced by the template
// patcher. Template disks are authored externally with a placeholder
// file of this name; patching substitutes the real payload while
// leaving the rest of the catalog byte-identical.
const TemplateEntryName = "HELLO"

// PatchTemplate returns a copy of the template image with the payload
// substituted into the sectors of the HELLO entry and the entry's
// load, exec and length metadata rewritten. The entry's start sector
// and every unrelated byte of the image are preserved. The template
// must be exactly one side (200 KiB) and must contain a HELLO entry
// with room for the payload.
func PatchTemplate(template, payload []byte, load, exec uint32, logger *log.Logger) ([]byte, error) {
	if logger == nil {
		logger = quietLogger()
	}
	if len(template) != SideSize {
		return nil, fmt.Errorf("%w: template is %d bytes, want %d", ErrTemplate, len(template), SideSize)
	}

	out := make([]byte, SideSize)
	copy(out, template)

	idx, err := findTemplateEntry(out)
	if err != nil {
		return nil, err
	}

	info := out[SectorSize+8+idx*8 : SectorSize+8+idx*8+8]
	start := uint16(info[6]&0x03)<<8 | uint16(info[7])

	sectors := (len(payload) + SectorSize - 1) / SectorSize
	if int(start)+sectors > SectorsPerSide {
		return nil, fmt.Errorf("%w: payload of %d sectors overruns disk at start sector %d",
			ErrTemplate, sectors, start)
	}

	// Substitute the payload, zero-filling the slack of the final
	// sector.
	region := out[int(start)*SectorSize : (int(start)+sectors)*SectorSize]
	copy(region, payload)
	for i := len(payload); i < len(region); i++ {
		region[i] = 0
	}

	// Rewrite the entry's metadata, keeping the original start-sector
	// bits of the packed byte.
	length := uint32(len(payload))
	info[0] = byte(load)
	info[1] = byte(load >> 8)
	info[2] = byte(exec)
	info[3] = byte(exec >> 8)
	info[4] = byte(length)
	info[5] = byte(length >> 8)
	info[6] = packHighBits(load, exec, length, 0) | info[6]&0x03

	logger.Debug("patched template entry",
		log.String("name", TemplateEntryName),
		log.Int("start", int(start)),
		log.Int("length", len(payload)))
	return out, nil
}

// findTemplateEntry locates the HELLO entry in sector 0 of the side.
func findTemplateEntry(side []byte) (int, error) {
	count := int(side[SectorSize+0x05] / 8)
	if count > MaxEntries {
		return 0, fmt.Errorf("%w: bad file count %d", ErrTemplate, count)
	}
	for i := 0; i < count; i++ {
		name := side[8+i*8 : 8+i*8+7]
		if trimName(name) == TemplateEntryName {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: no %s entry", ErrTemplate, TemplateEntryName)
}

func trimName(name []byte) string {
	end := len(name)
	for end > 0 && name[end-1] == ' ' {
		end--
	}
	return string(name[:end])
}
