package all

import (
	"github.com/smazurov/dawio/pkg/dawio"
	"github.com/smazurov/dawio/pkg/dawio/coreaudio"
	"github.com/smazurov/dawio/pkg/dawio/rtmidi"
)

func registerPlatform(h *dawio.Host) {
	coreaudio.Register(h, coreaudio.NativeSDK())
	rtmidi.Register(h, "darwin", rtmidi.NativeSDK())
}
