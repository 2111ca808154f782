//go:build jack

package all

import (
	"github.com/smazurov/dawio/pkg/dawio"
	"github.com/smazurov/dawio/pkg/dawio/jack"
)

func registerJack(h *dawio.Host) {
	jack.Register(h, jack.Native())
}
