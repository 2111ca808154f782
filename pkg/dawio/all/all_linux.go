package all

import (
	"github.com/smazurov/dawio/pkg/dawio"
	"github.com/smazurov/dawio/pkg/dawio/alsa"
)

func registerPlatform(h *dawio.Host) {
	alsa.Register(h, alsa.NativeSDK())
}
