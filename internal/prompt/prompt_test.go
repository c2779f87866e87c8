package prompt

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func feedKeys(m tea.Model, keys ...tea.KeyMsg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	for _, k := range keys {
		m, cmd = m.Update(k)
	}
	return m, cmd
}

func TestConfirmModel(t *testing.T) {
	tests := []struct {
		name string
		key  tea.KeyMsg
		want bool
	}{
		{"y", runes("y"), true},
		{"大写 Y", runes("Y"), true},
		{"n", runes("n"), false},
		{"回车默认否", tea.KeyMsg{Type: tea.KeyEnter}, false},
		{"Ctrl+C 视为否", tea.KeyMsg{Type: tea.KeyCtrlC}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, cmd := feedKeys(confirmModel{question: "继续？"}, tt.key)
			cm := m.(confirmModel)
			assert.True(t, cm.done)
			assert.Equal(t, tt.want, cm.answer)
			require.NotNil(t, cmd)
			assert.Equal(t, tea.Quit(), cmd())
		})
	}
}

func TestConfirmModel_IgnoresOtherKeys(t *testing.T) {
	m, cmd := feedKeys(confirmModel{question: "继续？"}, runes("x"))
	assert.False(t, m.(confirmModel).done)
	assert.Nil(t, cmd)
	assert.Contains(t, m.View(), "(y/N)")
}

func TestAmountModel(t *testing.T) {
	m, cmd := feedKeys(amountModel{question: "金额？"},
		runes("1"), runes("a"), runes(".5"), runes("9"),
		tea.KeyMsg{Type: tea.KeyBackspace},
		runes("2"),
		tea.KeyMsg{Type: tea.KeyEnter},
	)
	am := m.(amountModel)
	require.NoError(t, am.err)
	assert.True(t, am.done)
	assert.Equal(t, "1.52", am.input, "非数字字符被忽略")
	assert.Equal(t, "1.52", am.value.String())
	require.NotNil(t, cmd)
}

func TestAmountModel_EmptyEnterKeepsWaiting(t *testing.T) {
	m, cmd := feedKeys(amountModel{question: "金额？"}, tea.KeyMsg{Type: tea.KeyEnter})
	assert.False(t, m.(amountModel).done)
	assert.Nil(t, cmd)
}

func TestAmountModel_InvalidAndAbort(t *testing.T) {
	m, _ := feedKeys(amountModel{question: "金额？"}, runes("1.2.3"), tea.KeyMsg{Type: tea.KeyEnter})
	am := m.(amountModel)
	assert.True(t, am.done)
	assert.Error(t, am.err)
	assert.Contains(t, am.View(), "无法解析金额")

	m, _ = feedKeys(amountModel{question: "金额？"}, runes("1"), tea.KeyMsg{Type: tea.KeyEsc})
	assert.ErrorIs(t, m.(amountModel).err, ErrAborted)
}
