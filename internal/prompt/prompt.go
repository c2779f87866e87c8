// Package prompt 终端交互：y/n 确认和金额输入（bubbletea）
package prompt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"

	"github.com/betbot/lagbot/internal/ports"
)

// ErrAborted 用户按 Ctrl+C / Esc 放弃输入
var ErrAborted = errors.New("输入已取消")

var (
	questionStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15"))
	hintStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	inputStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("2")) // 绿色
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("1")) // 红色
)

// confirmModel y/n 确认
type confirmModel struct {
	question string
	answer   bool
	done     bool
}

func (m confirmModel) Init() tea.Cmd { return nil }

func (m confirmModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch strings.ToLower(key.String()) {
	case "y":
		m.answer, m.done = true, true
	case "n", "enter", "esc", "ctrl+c":
		m.answer, m.done = false, true
	default:
		return m, nil
	}
	return m, tea.Quit
}

func (m confirmModel) View() string {
	if m.done {
		ans := "否"
		if m.answer {
			ans = "是"
		}
		return questionStyle.Render("? "+m.question) + " " + inputStyle.Render(ans) + "\n"
	}
	return questionStyle.Render("? "+m.question) + " " + hintStyle.Render("(y/N)")
}

// amountModel 数字金额输入，只接受数字和小数点
type amountModel struct {
	question string
	input    string
	value    decimal.Decimal
	err      error
	done     bool
}

func (m amountModel) Init() tea.Cmd { return nil }

func (m amountModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch key.Type {
	case tea.KeyCtrlC, tea.KeyEsc:
		m.err, m.done = ErrAborted, true
		return m, tea.Quit
	case tea.KeyEnter:
		if m.input == "" {
			return m, nil
		}
		v, err := decimal.NewFromString(m.input)
		if err != nil {
			m.err = fmt.Errorf("无法解析金额 %q: %w", m.input, err)
		} else {
			m.value = v
		}
		m.done = true
		return m, tea.Quit
	case tea.KeyBackspace:
		if n := len(m.input); n > 0 {
			m.input = m.input[:n-1]
		}
		return m, nil
	case tea.KeyRunes:
		for _, r := range key.Runes {
			if (r >= '0' && r <= '9') || r == '.' {
				m.input += string(r)
			}
		}
	}
	return m, nil
}

func (m amountModel) View() string {
	line := questionStyle.Render("? "+m.question) + " " + inputStyle.Render(m.input)
	if m.done {
		if m.err != nil {
			return line + "\n" + errorStyle.Render(m.err.Error()) + "\n"
		}
		return line + "\n"
	}
	return line + hintStyle.Render("▏")
}

// Terminal 基于 bubbletea 的 ports.Prompter
type Terminal struct {
	in  io.Reader
	out io.Writer
}

var _ ports.Prompter = (*Terminal)(nil)

func NewTerminal() *Terminal {
	return &Terminal{in: os.Stdin, out: os.Stdout}
}

func (t *Terminal) run(ctx context.Context, m tea.Model) (tea.Model, error) {
	p := tea.NewProgram(m, tea.WithContext(ctx), tea.WithInput(t.in), tea.WithOutput(t.out))
	final, err := p.Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if err != nil {
		return nil, err
	}
	return final, nil
}

// Confirm 默认为否；Ctrl+C 视为否
func (t *Terminal) Confirm(ctx context.Context, msg string) (bool, error) {
	final, err := t.run(ctx, confirmModel{question: msg})
	if err != nil {
		return false, err
	}
	return final.(confirmModel).answer, nil
}

// PromptAmount 读取一个十进制金额；无法解析或被取消时返回错误
func (t *Terminal) PromptAmount(ctx context.Context, msg string) (decimal.Decimal, error) {
	final, err := t.run(ctx, amountModel{question: msg})
	if err != nil {
		return decimal.Zero, err
	}
	m := final.(amountModel)
	if m.err != nil {
		return decimal.Zero, m.err
	}
	return m.value, nil
}
