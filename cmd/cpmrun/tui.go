package main

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jmchacon/i8080/disasm"
	"github.com/jmchacon/i8080/harness"
)

var (
	flagStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	errorStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	pcStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11"))
)

type model struct {
	h      *harness.Harness
	prevPC uint16
	err    error
}

// Init is the first function called. No initial command is needed since
// the harness is already loaded by the time the model is built.
func (m model) Init() tea.Cmd {
	return nil
}

// Update is called when a message is received. Space or 'j' single-steps
// the guest; 'q' quits.
func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case " ", "j":
			if m.h.Done() || m.err != nil {
				return m, nil
			}
			m.prevPC = m.h.Chip.PC
			_, err := m.h.Step()
			if err != nil {
				m.err = err
			}
		}
	}
	return m, nil
}

func (m model) registers() string {
	c := m.h.Chip
	flags := ""
	for _, f := range []bool{c.S, c.Z, c.AC, c.P, c.CY} {
		if f {
			flags += "1 "
		} else {
			flags += "0 "
		}
	}
	return fmt.Sprintf(
		"PC: %04X (was %04X)\nSP: %04X\n A: %02X\nBC: %04X\nDE: %04X\nHL: %04X\nS Z AC P CY\n%s\nIE: %v  cycles: %d",
		c.PC, m.prevPC, c.SP, c.A, c.GetBC(), c.GetDE(), c.GetHL(), flagStyle.Render(flags), c.IE, c.Cycles)
}

func (m model) trace() string {
	var lines []string
	pc := m.h.Chip.PC
	for i := 0; i < 8; i++ {
		text, n := disasm.Step(pc, m.h.Mem)
		line := fmt.Sprintf("%04X  %s", pc, text)
		if pc == m.h.Chip.PC {
			line = pcStyle.Render("-> " + line)
		} else {
			line = "   " + line
		}
		lines = append(lines, line)
		pc += uint16(n)
	}
	return strings.Join(lines, "\n")
}

// View renders the program's UI, which is just a string, re-rendered after
// every Update.
func (m model) View() string {
	status := "running"
	if m.h.Done() {
		status = "halted (warm boot)"
	}
	if m.err != nil {
		status = errorStyle.Render(m.err.Error())
	}
	return lipgloss.JoinVertical(
		lipgloss.Left,
		lipgloss.JoinHorizontal(lipgloss.Top, m.registers(), "   ", m.trace()),
		"",
		"status: "+status,
		"transcript: "+m.h.Transcript.String(),
		"",
		"[space/j] step   [q] quit",
	)
}

// runTUI loads img into a harness and drives an interactive single-step
// viewer over it until the user quits.
func runTUI(img []byte) error {
	h, err := harness.Load(img)
	if err != nil {
		return err
	}
	_, err = tea.NewProgram(model{h: h}).Run()
	return err
}
