package agent

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lidco/lidco/pkg/providers"
)

func bigConversation(exchanges int) []providers.Message {
	msgs := []providers.Message{
		{Role: providers.RoleSystem, Content: "system prompt"},
		{Role: providers.RoleUser, Content: "do the thing"},
	}
	for i := 0; i < exchanges; i++ {
		msgs = append(msgs,
			providers.Message{Role: providers.RoleAssistant, Content: strings.Repeat("a", 500)},
			providers.Message{Role: providers.RoleTool, Name: "grep", Content: "first line\n" + strings.Repeat("r", 2000)},
		)
	}
	return msgs
}

func TestPruneConversation_UnderBudgetReturnsCopy(t *testing.T) {
	msgs := bigConversation(2)
	out := PruneConversation(msgs, 1_000_000, 3)

	assert.Equal(t, msgs, out)
	out[0].Content = "changed"
	assert.Equal(t, "system prompt", msgs[0].Content)
}

func TestPruneConversation_Empty(t *testing.T) {
	assert.Nil(t, PruneConversation(nil, 10, 3))
}

func TestPruneConversation_KeepsRecentExchanges(t *testing.T) {
	msgs := bigConversation(6)
	original := make([]providers.Message, len(msgs))
	copy(original, msgs)

	out := PruneConversation(msgs, 1000, 3)

	require.Len(t, out, len(msgs))
	assert.Equal(t, msgs, original, "input is not modified")
	assert.Equal(t, msgs[0], out[0])
	assert.Equal(t, msgs[1], out[1], "user message is left alone")
	assert.Less(t, conversationChars(out), conversationChars(msgs))

	// Last three exchanges are the last six messages.
	assert.Equal(t, msgs[len(msgs)-6:], out[len(out)-6:])

	assert.Equal(t, strings.Repeat("a", 200)+"... (trimmed)", out[2].Content)
	assert.Equal(t, "[grep: 2 lines | first line...]", out[3].Content)
	assert.Equal(t, "grep", out[3].Name)
}

func TestPruneConversation_NeverGrowsShortMessages(t *testing.T) {
	msgs := []providers.Message{
		{Role: providers.RoleSystem, Content: "system prompt"},
		{Role: providers.RoleUser, Content: "fix it"},
	}
	for i := 0; i < 40; i++ {
		msgs = append(msgs,
			providers.Message{Role: providers.RoleAssistant, Content: "step"},
			providers.Message{Role: providers.RoleTool, Name: "file_write", Content: "ok"},
		)
	}
	msgs = append(msgs,
		providers.Message{Role: providers.RoleAssistant, Content: strings.Repeat("a", 205)},
		providers.Message{Role: providers.RoleTool, Name: "grep", Content: strings.Repeat("r", 5000)},
	)
	for i := 0; i < 3; i++ {
		msgs = append(msgs,
			providers.Message{Role: providers.RoleAssistant, Content: "recent"},
			providers.Message{Role: providers.RoleTool, Name: "bash", Content: strings.Repeat("x", 3000)},
		)
	}
	before := conversationChars(msgs)

	out := PruneConversation(msgs, before/2, 3)

	assert.Less(t, conversationChars(out), before)
	for i := range out {
		assert.LessOrEqual(t, len(out[i].Content), len(msgs[i].Content), "message %d grew", i)
	}
	assert.Equal(t, "ok", out[3].Content, "a short result is kept over its longer summary")
	assert.Equal(t, strings.Repeat("a", 205), out[len(out)-8].Content, "trimming would not shorten it")
	assert.Equal(t, "[grep: 1 lines | "+strings.Repeat("r", 80)+"...]", out[len(out)-7].Content)
	assert.Equal(t, msgs[len(msgs)-6:], out[len(out)-6:])
}

func TestPruneConversation_ShorterWheneverOldMessagesAreLong(t *testing.T) {
	for _, exchanges := range []int{4, 6, 10} {
		msgs := bigConversation(exchanges)
		before := conversationChars(msgs)
		out := PruneConversation(msgs, before-1, 3)

		assert.Less(t, conversationChars(out), before, "exchanges=%d", exchanges)
		assert.Equal(t, msgs[0], out[0])
	}
}

func TestPruneConversation_FewExchangesKeepsEverything(t *testing.T) {
	msgs := bigConversation(2)
	out := PruneConversation(msgs, 10, 3)
	assert.Equal(t, msgs, out)
}

func TestSummarizeToolMessage_DefaultsNameAndCutsHint(t *testing.T) {
	m := summarizeToolMessage(providers.Message{Role: providers.RoleTool, Content: strings.Repeat("z", 100)})
	assert.Equal(t, "[tool: 1 lines | "+strings.Repeat("z", 80)+"...]", m.Content)
}

func TestCutAt_RespectsRuneBoundaries(t *testing.T) {
	s := "abécd" // é is two bytes at offsets 2..3
	assert.Equal(t, "ab", cutAt(s, 3))
	assert.Equal(t, "abé", cutAt(s, 4))
	assert.Equal(t, s, cutAt(s, 100))
}
