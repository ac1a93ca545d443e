package x11

import (
	"fmt"

	"github.com/BurntSushi/xgb/randr"
	"github.com/BurntSushi/xgb/xproto"

	"github.com/ravenwm/raven/internal/display"
	"github.com/ravenwm/raven/internal/edid"
)

// ProbedOutput is a connected RandR output with the data a DRM connector
// would report.
type ProbedOutput struct {
	Name     string
	Modes    []display.Mode
	Physical display.PhysicalProperties
	// Current geometry when the X server has the output lit.
	Active bool
	X, Y   int
}

const (
	modeFlagInterlace  = 1 << 4
	modeFlagDoubleScan = 1 << 5
)

// Outputs lists the connected RandR outputs in server order.
func (c *Connection) Outputs() ([]ProbedOutput, error) {
	conn := c.XUtil.Conn()
	resources, err := randr.GetScreenResources(conn, c.Root).Reply()
	if err != nil {
		return nil, fmt.Errorf("failed to get screen resources: %w", err)
	}

	modeInfos := make(map[randr.Mode]randr.ModeInfo, len(resources.Modes))
	for _, mi := range resources.Modes {
		modeInfos[randr.Mode(mi.Id)] = mi
	}
	edidAtom := c.atom("EDID")

	var outputs []ProbedOutput
	for _, id := range resources.Outputs {
		info, err := randr.GetOutputInfo(conn, id, resources.ConfigTimestamp).Reply()
		if err != nil {
			continue
		}
		if info.Connection != randr.ConnectionConnected || len(info.Modes) == 0 {
			continue
		}

		out := ProbedOutput{
			Name: string(info.Name),
			Physical: display.PhysicalProperties{
				SizeMM: display.Size{Width: int(info.MmWidth), Height: int(info.MmHeight)},
				Make:   "Unknown",
				Model:  "Unknown",
				Serial: "Unknown",
			},
		}
		for i, m := range info.Modes {
			mi, ok := modeInfos[m]
			if !ok {
				continue
			}
			mode := modeFromRandR(mi)
			mode.Preferred = i < int(info.NumPreferred)
			out.Modes = append(out.Modes, mode)
		}
		if len(out.Modes) == 0 {
			continue
		}

		if edidAtom != 0 {
			if raw, err := c.outputEDID(id, edidAtom); err == nil {
				if parsed, err := edid.Parse(raw); err == nil {
					applyEDID(&out.Physical, parsed)
				}
			}
		}

		if info.Crtc != 0 {
			crtc, err := randr.GetCrtcInfo(conn, info.Crtc, resources.ConfigTimestamp).Reply()
			if err == nil && crtc.Width > 0 && crtc.Height > 0 {
				out.Active = true
				out.X, out.Y = int(crtc.X), int(crtc.Y)
			}
		}
		outputs = append(outputs, out)
	}
	return outputs, nil
}

func (c *Connection) atom(name string) xproto.Atom {
	reply, err := xproto.InternAtom(c.XUtil.Conn(), true, uint16(len(name)), name).Reply()
	if err != nil {
		return 0
	}
	return reply.Atom
}

func (c *Connection) outputEDID(id randr.Output, atom xproto.Atom) ([]byte, error) {
	// EDID blocks are 128 bytes; 512 covers the base block and extensions.
	reply, err := randr.GetOutputProperty(c.XUtil.Conn(), id, atom, xproto.AtomAny, 0, 128, false, false).Reply()
	if err != nil {
		return nil, err
	}
	if reply.Format != 8 || len(reply.Data) == 0 {
		return nil, fmt.Errorf("output has no EDID")
	}
	return reply.Data, nil
}

func applyEDID(p *display.PhysicalProperties, info edid.Info) {
	if info.Make != "" {
		p.Make = info.Make
	}
	if info.Model != "" {
		p.Model = info.Model
	}
	if info.Serial != "" {
		p.Serial = info.Serial
	}
	if p.SizeMM.Width == 0 && p.SizeMM.Height == 0 {
		p.SizeMM = display.Size{Width: info.WidthCM * 10, Height: info.HeightCM * 10}
	}
}

// modeFromRandR converts a RandR mode line, computing refresh in millihertz
// the same way the kernel does.
func modeFromRandR(mi randr.ModeInfo) display.Mode {
	m := display.Mode{Width: int(mi.Width), Height: int(mi.Height)}
	total := uint64(mi.Htotal) * uint64(mi.Vtotal)
	if total == 0 {
		return m
	}
	mhz := uint64(mi.DotClock) * 1000 / total
	if mi.ModeFlags&modeFlagInterlace != 0 {
		mhz *= 2
	}
	if mi.ModeFlags&modeFlagDoubleScan != 0 {
		mhz /= 2
	}
	m.RefreshMHz = int(mhz)
	return m
}
