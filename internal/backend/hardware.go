package backend

import (
	"log/slog"
	"os"

	"github.com/ravenwm/raven/internal/kms"
)

// kmsGPU adapts a dumb-buffer KMS device to GPU.
type kmsGPU struct {
	*kms.Device
}

func (g kmsGPU) CreateScanout(crtc uint32, conn kms.ConnectorInfo, modeIndex int) (Scanout, error) {
	s, err := g.CreateSurface(crtc, conn, modeIndex)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// KMSOpener opens devices as KMS cards. sysfsRoot is used for render node
// and EDID lookups.
func KMSOpener(sysfsRoot string, logger *slog.Logger) DeviceOpener {
	return func(f *os.File, path string) (GPU, error) {
		dev, err := kms.NewDevice(f, kms.DeviceConfig{
			Path:      path,
			SysfsRoot: sysfsRoot,
			Logger:    logger,
		})
		if err != nil {
			return nil, err
		}
		return kmsGPU{dev}, nil
	}
}
