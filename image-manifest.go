// Copyright © 2015-2017 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package main

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"time"
)

const manifestName = "manifest.json"

type REGIONINFO struct {
	Name   string `json:"name"`
	Offset string `json:"offset"`
	Size   int    `json:"size"`
	Sha256 string `json:"sha256"`
}

type IMAGEINFO struct {
	Name       string       `json:"name"`
	Build      string       `json:"build"`
	Size       int          `json:"size"`
	Crc32      string       `json:"crc32"`
	Sha256     string       `json:"sha256"`
	EntryPoint string       `json:"entry_point"`
	PayloadLen int          `json:"payload_length"`
	Config     *packConfig  `json:"config"`
	Regions    []REGIONINFO `json:"regions"`
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func (pi *packedImage) info(built time.Time) IMAGEINFO {
	info := IMAGEINFO{
		Name:       pi.config.Output,
		Build:      built.UTC().Format(time.RFC3339),
		Size:       len(pi.data),
		Crc32:      fmt.Sprintf("%08x", crc32.ChecksumIEEE(pi.data)),
		Sha256:     sha256Hex(pi.data),
		EntryPoint: fmt.Sprintf("0x%08x", pi.payload.entryPoint),
		PayloadLen: pi.payload.rawLen,
		Config:     pi.config,
	}
	for _, r := range pi.regions {
		info.Regions = append(info.Regions, REGIONINFO{
			Name:   r.name,
			Offset: fmt.Sprintf("0x%06x", r.offset),
			Size:   len(r.data),
			Sha256: sha256Hex(r.data),
		})
	}
	return info
}

func (pi *packedImage) manifest(built time.Time) ([]byte, error) {
	js, err := json.MarshalIndent(pi.info(built), "", "\t")
	if err != nil {
		return nil, err
	}
	return append(js, '\n'), nil
}
