package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/smazurov/dawio/internal/session"
	"github.com/smazurov/dawio/pkg/dawio"
	"github.com/spf13/cobra"
)

func describeDevice(d dawio.AudioDeviceDescriptor) string {
	switch {
	case d.Device != nil:
		return d.Device.String()
	case d.Input != nil && d.Output != nil:
		return d.Input.String() + " / " + d.Output.String()
	case d.Output != nil:
		return d.Output.String()
	case d.Input != nil:
		return d.Input.String()
	}
	return d.Kind
}

func writePlanText(w io.Writer, p dawio.Plan) {
	fmt.Fprintf(w, "backend:     %s %s\n", p.Backend, p.BackendVersion)
	fmt.Fprintf(w, "device:      %s\n", describeDevice(p.Device))
	fmt.Fprintf(w, "sample rate: %d Hz\n", p.SampleRate)
	fmt.Fprintf(w, "block size:  %s\n", p.BufferSize)
	if p.Exclusive {
		fmt.Fprintln(w, "exclusive:   yes")
	}
	for i, port := range p.Inputs {
		fmt.Fprintf(w, "in  %d <- %s%s\n", i+1, port.SystemName, missing(port.Found))
	}
	for i, port := range p.Outputs {
		fmt.Fprintf(w, "out %d -> %s%s\n", i+1, port.SystemName, missing(port.Found))
	}
	if p.Midi != nil {
		fmt.Fprintf(w, "midi:        %s\n", p.Midi.Backend)
		for _, port := range p.Midi.In {
			fmt.Fprintf(w, "midi in  %s%s\n", port.Config.DeviceID, missing(port.Found))
		}
		for _, port := range p.Midi.Out {
			fmt.Fprintf(w, "midi out %s%s\n", port.Config.DeviceID, missing(port.Found))
		}
	}
}

func missing(found bool) string {
	if found {
		return ""
	}
	return " (not found)"
}

func validateProfile(ctx context.Context, w io.Writer, host Enumerator, path, format string) error {
	p, err := loadProfile(path)
	if err != nil {
		return err
	}
	plan, err := session.Validate(ctx, host, p, dawio.DefaultRunOptions())
	if err != nil {
		return fmt.Errorf("profile %s does not resolve: %w", path, err)
	}
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(plan)
	case "text", "":
		writePlanText(w, plan)
		return nil
	}
	return fmt.Errorf("unknown format %q", format)
}

// CreateValidateCmd creates the validate command.
func CreateValidateCmd(host Enumerator) *cobra.Command {
	var (
		profile string
		format  string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Resolve a profile against the current devices without opening a stream",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			return validateProfile(ctx, cmd.OutOrStdout(), host, profile, format)
		},
	}
	cmd.Flags().StringVarP(&profile, "profile", "p", "", "Stream profile (TOML)")
	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text or json")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "Enumeration timeout")
	_ = cmd.MarkFlagRequired("profile")
	return cmd
}
