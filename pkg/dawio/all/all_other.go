//go:build !linux && !windows && !darwin

package all

import "github.com/smazurov/dawio/pkg/dawio"

func registerPlatform(*dawio.Host) {}
