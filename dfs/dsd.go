// Copyright 2025 the NB65C02 authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dfs

import (
	"fmt"

	"github.com/retroenv/retrogolib/log"
)

// An Ordering selects the physical layout of a double-sided image.
type Ordering byte

const (
	// Side0ThenSide1 stores side 0 in full, then side 1 in full.
	Side0ThenSide1 Ordering = iota

	// TrackInterleaved alternates tracks between sides:
	// track0-side0, track0-side1, track1-side0, track1-side1, ...
	TrackInterleaved
)

// A SideSpec describes one auto-boot side of a double-sided disk.
type SideSpec struct {
	Title   string
	Name    string
	Payload []byte
	Load    uint32
	Exec    uint32
}

// ComposeDSD combines two independently built 200 KiB sides into a
// 400 KiB double-sided image using the requested physical ordering.
func ComposeDSD(side0, side1 []byte, o Ordering) ([]byte, error) {
	if len(side0) != SideSize {
		return nil, fmt.Errorf("%w: side 0 is %d bytes, want %d", ErrBadImage, len(side0), SideSize)
	}
	if len(side1) != SideSize {
		return nil, fmt.Errorf("%w: side 1 is %d bytes, want %d", ErrBadImage, len(side1), SideSize)
	}

	out := make([]byte, 2*SideSize)
	switch o {
	case Side0ThenSide1:
		copy(out, side0)
		copy(out[SideSize:], side1)

	case TrackInterleaved:
		sides := [2][]byte{side0, side1}
		for track := 0; track < Tracks; track++ {
			for side := 0; side < 2; side++ {
				for sector := 0; sector < SectorsPerTrack; sector++ {
					src := (track*SectorsPerTrack + sector) * SectorSize
					dst := (((track*2)+side)*SectorsPerTrack + sector) * SectorSize
					copy(out[dst:dst+SectorSize], sides[side][src:src+SectorSize])
				}
			}
		}

	default:
		return nil, fmt.Errorf("%w: unknown ordering %d", ErrBadImage, o)
	}
	return out, nil
}

// BuildAutoBootDSD builds both sides as auto-boot disks and composes
// them into a double-sided image.
func BuildAutoBootDSD(side0, side1 SideSpec, o Ordering, logger *log.Logger) ([]byte, error) {
	if logger == nil {
		logger = quietLogger()
	}

	img0, err := BuildAutoBootDisk(side0.Title, side0.Name, side0.Payload, side0.Load, side0.Exec, logger)
	if err != nil {
		return nil, fmt.Errorf("side 0: %w", err)
	}
	img1, err := BuildAutoBootDisk(side1.Title, side1.Name, side1.Payload, side1.Load, side1.Exec, logger)
	if err != nil {
		return nil, fmt.Errorf("side 1: %w", err)
	}

	logger.Debug("composing DSD image", log.Int("ordering", int(o)))
	return ComposeDSD(img0, img1, o)
}
