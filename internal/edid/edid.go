// Package edid extracts panel identity from an EDID base block.
package edid

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

const blockLen = 128

var header = []byte{0x00, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x00}

var (
	ErrTooShort  = errors.New("edid: block shorter than 128 bytes")
	ErrBadHeader = errors.New("edid: bad header")
)

// Info is the identity of a connected panel.
type Info struct {
	Make   string
	Model  string
	Serial string
	// Physical size in centimetres; zero when undefined (projectors).
	WidthCM  int
	HeightCM int
}

// Parse decodes the base block. The checksum is not enforced; plenty of
// panels in the wild ship a bad one.
func Parse(data []byte) (Info, error) {
	if len(data) < blockLen {
		return Info{}, ErrTooShort
	}
	if !bytes.Equal(data[:8], header) {
		return Info{}, ErrBadHeader
	}

	var info Info
	info.Make = manufacturer(binary.BigEndian.Uint16(data[8:10]))
	product := binary.LittleEndian.Uint16(data[10:12])
	serial := binary.LittleEndian.Uint32(data[12:16])
	info.WidthCM = int(data[21])
	info.HeightCM = int(data[22])

	for off := 54; off+18 <= 126; off += 18 {
		d := data[off : off+18]
		if d[0] != 0 || d[1] != 0 || d[2] != 0 {
			continue // detailed timing
		}
		switch d[3] {
		case 0xfc:
			info.Model = descriptorText(d[5:])
		case 0xff:
			info.Serial = descriptorText(d[5:])
		}
	}

	if info.Model == "" {
		info.Model = fmt.Sprintf("0x%04X", product)
	}
	if info.Serial == "" && serial != 0 {
		info.Serial = fmt.Sprintf("0x%08X", serial)
	}
	if vendor, ok := vendors[info.Make]; ok {
		info.Make = vendor
	}
	return info, nil
}

func manufacturer(v uint16) string {
	letters := []byte{
		byte(v>>10&0x1f) + 'A' - 1,
		byte(v>>5&0x1f) + 'A' - 1,
		byte(v&0x1f) + 'A' - 1,
	}
	for _, c := range letters {
		if c < 'A' || c > 'Z' {
			return ""
		}
	}
	return string(letters)
}

func descriptorText(b []byte) string {
	if i := bytes.IndexByte(b, 0x0a); i >= 0 {
		b = b[:i]
	}
	return strings.TrimSpace(string(b))
}

// vendors maps common PNP ids to display names.
var vendors = map[string]string{
	"AAC": "AcerView",
	"ACR": "Acer",
	"AOC": "AOC",
	"AUO": "AU Optronics",
	"BNQ": "BenQ",
	"BOE": "BOE",
	"CMN": "Chimei Innolux",
	"DEL": "Dell",
	"ENC": "Eizo",
	"GSM": "LG Electronics",
	"HWP": "HP",
	"IVM": "Iiyama",
	"LEN": "Lenovo",
	"LGD": "LG Display",
	"MSI": "MSI",
	"NEC": "NEC",
	"PHL": "Philips",
	"SAM": "Samsung",
	"SDC": "Samsung Display",
	"SHP": "Sharp",
	"SNY": "Sony",
	"VSC": "ViewSonic",
}
