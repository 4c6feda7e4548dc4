package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecordClone(t *testing.T) {
	r := Record{PersonaName: "n", PersonaPrompt: "p", Identifier: "id", Messages: []Message{Message{Role: RoleUser, Content: "hi"}}}

	c := r.Clone()
	c.Messages[0].Content = "changed"

	assert.Equal(t, "hi", r.Messages[0].Content)
	assert.NotNil(t, Record{}.Clone().Messages)
}

func TestRecordValidate(t *testing.T) {
	valid := Record{PersonaPrompt: "p", Identifier: "id", Messages: []Message{Message{Role: RoleUser, Content: "hi"}, Message{Role: RoleAssistant, Content: "hey"}}}
	assert.NoError(t, valid.Validate())

	tests := map[string]Record{
		"no identifier":  {PersonaPrompt: "p"},
		"no prompt":      {Identifier: "id"},
		"system message": {PersonaPrompt: "p", Identifier: "id", Messages: []Message{SystemMessage("x")}},
		"unknown role":   {PersonaPrompt: "p", Identifier: "id", Messages: []Message{{Role: "tool", Content: "x"}}},
		"empty content":  {PersonaPrompt: "p", Identifier: "id", Messages: []Message{Message{Role: RoleUser, Content: ""}}},
	}
	for name, r := range tests {
		assert.Error(t, r.Validate(), name)
	}
}

func TestRoleStored(t *testing.T) {
	assert.True(t, RoleUser.Stored())
	assert.True(t, RoleAssistant.Stored())
	assert.False(t, RoleSystem.Stored())
	assert.False(t, Role("").Stored())
}

func TestBlank(t *testing.T) {
	assert.True(t, Blank(""))
	assert.True(t, Blank(" \t\n"))
	assert.False(t, Blank(" a "))
}
