package all

import (
	"github.com/smazurov/dawio/pkg/dawio"
	"github.com/smazurov/dawio/pkg/dawio/asio"
	"github.com/smazurov/dawio/pkg/dawio/rtmidi"
	"github.com/smazurov/dawio/pkg/dawio/wasapi"
)

func registerPlatform(h *dawio.Host) {
	wasapi.Register(h, wasapi.NativeSDK())
	asio.Register(h, asio.NativeSDK())
	rtmidi.Register(h, "windows", rtmidi.NativeSDK())
}
