//go:build !jack

package all

import "github.com/smazurov/dawio/pkg/dawio"

func registerJack(*dawio.Host) {}
