package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/smazurov/dawio/pkg/dawio"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

// Enumerator is the part of dawio.Host the devices command uses.
type Enumerator interface {
	Inventory(ctx context.Context) (dawio.Inventory, error)
	EnumerateAudioBackend(ctx context.Context, b dawio.Backend) (dawio.AudioBackendInfo, error)
	EnumerateMidiBackend(ctx context.Context, b dawio.Backend) (dawio.MidiBackendInfo, error)
}

type deviceReport struct {
	Name              string   `json:"name" yaml:"name" toml:"name"`
	Identifier        string   `json:"identifier,omitempty" yaml:"identifier,omitempty" toml:"identifier,omitempty"`
	Default           bool     `json:"default,omitempty" yaml:"default,omitempty" toml:"default,omitempty"`
	Direction         string   `json:"direction,omitempty" yaml:"direction,omitempty" toml:"direction,omitempty"`
	Inputs            []string `json:"inputs,omitempty" yaml:"inputs,omitempty" toml:"inputs,omitempty"`
	Outputs           []string `json:"outputs,omitempty" yaml:"outputs,omitempty" toml:"outputs,omitempty"`
	SampleRates       []uint32 `json:"sample_rates,omitempty" yaml:"sample_rates,omitempty" toml:"sample_rates,omitempty"`
	DefaultSampleRate uint32   `json:"default_sample_rate,omitempty" yaml:"default_sample_rate,omitempty" toml:"default_sample_rate,omitempty"`
	BlockSizes        string   `json:"block_sizes,omitempty" yaml:"block_sizes,omitempty" toml:"block_sizes,omitempty"`
}

type backendReport struct {
	Backend string         `json:"backend" yaml:"backend" toml:"backend"`
	Kind    string         `json:"kind" yaml:"kind" toml:"kind"`
	Version string         `json:"version,omitempty" yaml:"version,omitempty" toml:"version,omitempty"`
	Status  string         `json:"status" yaml:"status" toml:"status"`
	Error   string         `json:"error,omitempty" yaml:"error,omitempty" toml:"error,omitempty"`
	Devices []deviceReport `json:"devices" yaml:"devices" toml:"devices"`
}

type report struct {
	Backends []backendReport `json:"backends" yaml:"backends" toml:"backends"`
}

func audioReport(info dawio.AudioBackendInfo) backendReport {
	r := backendReport{
		Backend: string(info.Backend),
		Kind:    "audio",
		Version: info.Version,
		Status:  info.Status.String(),
		Error:   info.ErrorMessage,
		Devices: []deviceReport{},
	}
	for i, d := range info.Devices {
		dev := deviceReport{
			Name:              d.ID.Name,
			Identifier:        d.ID.Identifier,
			Default:           info.DefaultDevice != nil && *info.DefaultDevice == i,
			Inputs:            d.InPorts,
			Outputs:           d.OutPorts,
			SampleRates:       d.SampleRates,
			DefaultSampleRate: d.DefaultSampleRate,
		}
		if fb := d.FixedBufferSize; fb != nil {
			dev.BlockSizes = fmt.Sprintf("%d..%d (default %d)", fb.Min, fb.Max, fb.Default)
			if fb.MustBePowerOfTwo {
				dev.BlockSizes += ", powers of two"
			}
		}
		r.Devices = append(r.Devices, dev)
	}
	return r
}

func midiReport(info dawio.MidiBackendInfo) backendReport {
	r := backendReport{
		Backend: string(info.Backend),
		Kind:    "midi",
		Version: info.Version,
		Status:  info.Status.String(),
		Error:   info.ErrorMessage,
		Devices: []deviceReport{},
	}
	add := func(devs []dawio.MidiDeviceInfo, def *int, dir string) {
		for i, d := range devs {
			r.Devices = append(r.Devices, deviceReport{
				Name:       d.ID.Name,
				Identifier: d.ID.Identifier,
				Default:    def != nil && *def == i,
				Direction:  dir,
			})
		}
	}
	add(info.InDevices, info.DefaultIn, "in")
	add(info.OutDevices, info.DefaultOut, "out")
	return r
}

// collect enumerates every backend, or only the named one for both audio
// and MIDI.
func collect(ctx context.Context, host Enumerator, backend string) (report, error) {
	if backend == "" {
		inv, err := host.Inventory(ctx)
		if err != nil {
			return report{}, err
		}
		out := report{Backends: []backendReport{}}
		for _, a := range inv.Audio {
			out.Backends = append(out.Backends, audioReport(a))
		}
		for _, m := range inv.Midi {
			out.Backends = append(out.Backends, midiReport(m))
		}
		return out, nil
	}

	b, err := dawio.ParseBackend(backend)
	if err != nil {
		return report{}, err
	}
	var (
		audio dawio.AudioBackendInfo
		midi  dawio.MidiBackendInfo
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		audio, err = host.EnumerateAudioBackend(gctx, b)
		return err
	})
	g.Go(func() (err error) {
		midi, err = host.EnumerateMidiBackend(gctx, b)
		return err
	})
	if err := g.Wait(); err != nil {
		return report{}, err
	}
	out := report{Backends: []backendReport{audioReport(audio)}}
	// Backends without MIDI report not_installed; leave them out.
	if midi.Status != dawio.StatusNotInstalled {
		out.Backends = append(out.Backends, midiReport(midi))
	}
	return out, nil
}

func writeReport(w io.Writer, r report, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(r)
	case "toml":
		return toml.NewEncoder(w).Encode(r)
	case "text", "":
		writeText(w, r)
		return nil
	default:
		return fmt.Errorf("unknown format %q (text, json, yaml, toml)", format)
	}
}

func writeText(w io.Writer, r report) {
	for _, b := range r.Backends {
		fmt.Fprintf(w, "%s %s: %s", b.Kind, b.Backend, b.Status)
		if b.Version != "" {
			fmt.Fprintf(w, " (%s)", b.Version)
		}
		if b.Error != "" {
			fmt.Fprintf(w, " - %s", b.Error)
		}
		fmt.Fprintln(w)
		for _, d := range b.Devices {
			mark := " "
			if d.Default {
				mark = "*"
			}
			fmt.Fprintf(w, "  %s %s", mark, d.Name)
			if d.Identifier != "" && d.Identifier != d.Name {
				fmt.Fprintf(w, " [%s]", d.Identifier)
			}
			if d.Direction != "" {
				fmt.Fprintf(w, " (%s)", d.Direction)
			}
			fmt.Fprintln(w)
			if len(d.Inputs) > 0 {
				fmt.Fprintf(w, "      in:  %s\n", strings.Join(d.Inputs, ", "))
			}
			if len(d.Outputs) > 0 {
				fmt.Fprintf(w, "      out: %s\n", strings.Join(d.Outputs, ", "))
			}
			if len(d.SampleRates) > 0 {
				fmt.Fprintf(w, "      rates: %v default %d\n", d.SampleRates, d.DefaultSampleRate)
			}
			if d.BlockSizes != "" {
				fmt.Fprintf(w, "      block sizes: %s\n", d.BlockSizes)
			}
		}
	}
}

// CreateDevicesCmd creates the devices command.
func CreateDevicesCmd(host Enumerator) *cobra.Command {
	var (
		backend string
		format  string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List audio and MIDI backends and their devices",
		Long:  `Enumerates every backend of this platform, or only --backend, and prints devices, ports, sample rates and block sizes. The default device is marked with *.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			r, err := collect(ctx, host, backend)
			if err != nil {
				return err
			}
			return writeReport(cmd.OutOrStdout(), r, format)
		},
	}
	cmd.Flags().StringVarP(&backend, "backend", "b", "", "Only enumerate this backend")
	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text, json, yaml or toml")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "Give up enumerating after this long")
	return cmd
}
