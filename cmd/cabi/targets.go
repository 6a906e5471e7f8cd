package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"cabi/internal/target"
)

var targetsCmd = &cobra.Command{
	Use:   "targets",
	Short: "List the supported target descriptors",
	Args:  cobra.NoArgs,
	RunE:  runTargets,
}

func init() {
	targetsCmd.Flags().String("format", "pretty", "output format (pretty|json)")
}

type scalarPayload struct {
	Name  string `json:"name"`
	Size  int64  `json:"size"`
	Align int64  `json:"align"`
}

type targetPayload struct {
	Triple         string          `json:"triple"`
	Arch           string          `json:"arch"`
	WordBits       int             `json:"word_bits"`
	Scalars        []scalarPayload `json:"scalars"`
	IntArgRegs     []string        `json:"int_arg_regs,omitempty"`
	FloatArgRegs   []string        `json:"float_arg_regs,omitempty"`
	StackSlotAlign int64           `json:"stack_slot_align"`
	RegSaveArea    int64           `json:"reg_save_area"`
}

func runTargets(cmd *cobra.Command, args []string) error {
	format, err := cmd.Flags().GetString("format")
	if err != nil {
		return fmt.Errorf("failed to get format flag: %w", err)
	}
	payloads := make([]targetPayload, 0, 2)
	for _, d := range target.All() {
		payloads = append(payloads, describeTarget(d))
	}
	switch strings.ToLower(format) {
	case "json":
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(payloads)
	case "pretty":
		useColor, err := colorEnabled(cmd, os.Stdout)
		if err != nil {
			return err
		}
		return renderTargets(cmd.OutOrStdout(), payloads, useColor)
	default:
		return fmt.Errorf("unsupported format %q (must be pretty or json)", format)
	}
}

func describeTarget(d target.Descriptor) targetPayload {
	p := targetPayload{
		Triple:         d.Triple(),
		Arch:           d.Arch().String(),
		WordBits:       d.WordBits(),
		StackSlotAlign: d.StackSlotAlign(),
		RegSaveArea:    d.RegSaveAreaSize(),
	}
	for _, s := range target.Scalars() {
		p.Scalars = append(p.Scalars, scalarPayload{Name: s.String(), Size: d.Size(s), Align: d.Align(s)})
	}
	for i := range d.IntArgRegs() {
		p.IntArgRegs = append(p.IntArgRegs, "%"+d.IntArgReg(i))
	}
	for i := range d.FloatArgRegs() {
		p.FloatArgRegs = append(p.FloatArgRegs, "%"+d.FloatArgReg(i))
	}
	return p
}

func renderTargets(out io.Writer, payloads []targetPayload, useColor bool) error {
	title := lipgloss.NewStyle()
	if useColor {
		title = title.Bold(true).Foreground(lipgloss.Color("12"))
	}
	var sb strings.Builder
	for i, p := range payloads {
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "%s (%s, %d-bit)\n", title.Render(p.Triple), p.Arch, p.WordBits)
		for _, s := range p.Scalars {
			fmt.Fprintf(&sb, "  %-12s size %2d  align %2d\n", s.Name, s.Size, s.Align)
		}
		fmt.Fprintf(&sb, "  %-12s %s\n", "int args", regList(p.IntArgRegs))
		fmt.Fprintf(&sb, "  %-12s %s\n", "float args", regList(p.FloatArgRegs))
		fmt.Fprintf(&sb, "  %-12s %d\n", "stack slot", p.StackSlotAlign)
		fmt.Fprintf(&sb, "  %-12s %d\n", "va save area", p.RegSaveArea)
	}
	_, err := io.WriteString(out, sb.String())
	return err
}

func regList(regs []string) string {
	if len(regs) == 0 {
		return "none (stack only)"
	}
	return strings.Join(regs, " ")
}
