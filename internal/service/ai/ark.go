package ai

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"github.com/zhouzirui/aichat/internal/model/chat"
)

// ArkClient streams replies through an eino chain ending in a chat model,
// normally the Volcengine Ark model built by config.
type ArkClient struct {
	chatModel model.ChatModel
	chain     compose.Runnable[map[string]any, *schema.Message]
	logger    *zap.Logger
}

// NewArkClient compiles the persona chain around chatModel.
func NewArkClient(ctx context.Context, chatModel model.ChatModel, logger *zap.Logger) (*ArkClient, error) {
	if chatModel == nil {
		return nil, errors.New("chat model is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{persona}"),
		schema.MessagesPlaceholder("history", false),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &ArkClient{
		chatModel: chatModel,
		chain:     runnable,
		logger:    logger.Named("ai.ark"),
	}, nil
}

// Stream runs the chain in streaming mode. The first message must carry the
// persona instruction; see BuildMessages.
func (c *ArkClient) Stream(ctx context.Context, messages []chat.Message) (Stream, error) {
	personaPrompt, history := splitSystem(messages)

	input := map[string]any{
		"persona": personaPrompt,
		"history": toSchemaMessages(history),
	}

	reader, err := c.chain.Stream(ctx, input)
	if err != nil {
		return nil, &TransportError{Op: "stream", Err: err}
	}

	c.logger.Debug("ark stream opened", zap.Int("history", len(history)))
	return &einoStream{reader: reader}, nil
}

func toSchemaMessages(messages []chat.Message) []*schema.Message {
	out := make([]*schema.Message, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case chat.RoleUser:
			out = append(out, schema.UserMessage(msg.Content))
		case chat.RoleAssistant:
			out = append(out, schema.AssistantMessage(msg.Content, nil))
		case chat.RoleSystem:
			out = append(out, schema.SystemMessage(msg.Content))
		}
	}
	return out
}

// einoStream adapts schema.StreamReader to Stream.
type einoStream struct {
	reader *schema.StreamReader[*schema.Message]
	final  *Fragment
}

func (s *einoStream) Next() Fragment {
	if s.final != nil {
		return *s.final
	}

	chunk, err := s.reader.Recv()
	if errors.Is(err, io.EOF) {
		return s.finish(doneFragment())
	}
	if err != nil {
		return s.finish(fatalFragment(&TransportError{Op: "recv", Err: err}))
	}
	if chunk == nil {
		return skipFragment(errors.New("empty chunk"))
	}
	return textFragment(chunk.Content)
}

func (s *einoStream) finish(frag Fragment) Fragment {
	s.final = &frag
	return frag
}

func (s *einoStream) Close() error {
	s.reader.Close()
	return nil
}
