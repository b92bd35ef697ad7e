package runner

import (
	"strings"

	"github.com/medbench/engine/internal/domain"
)

// chatMessage is one entry of a chat-completions conversation. Content is
// either a plain string or a slice of content parts for image inputs.
type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type imagePart struct {
	Type     string   `json:"type"`
	ImageURL imageURL `json:"image_url"`
}

type imageURL struct {
	URL string `json:"url"`
}

// buildChatMessages lays out the conversation every chat-style integration
// receives: the system prompt, the data object's inputs, then each prior
// model output under an "Output for model" header (lettered A/B when a
// preference pair is present).
func buildChatMessages(req Request) []chatMessage {
	msgs := []chatMessage{
		{Role: "system", Content: req.Prompt()},
	}

	if len(req.Inputs) > 0 {
		msgs = append(msgs, chatMessage{Role: "system", Content: "Input Data:"})
		for _, in := range req.Inputs {
			msgs = append(msgs, contentMessage(in))
		}
	}

	for i, out := range req.PriorOutputs {
		header := "Output for model:"
		if len(req.PriorOutputs) > 1 {
			header = "Output for model " + string(rune('A'+i)) + ":"
		}
		msgs = append(msgs, chatMessage{Role: "system", Content: header})
		for _, item := range out.Output {
			msgs = append(msgs, contentMessage(item))
		}
	}
	return msgs
}

func contentMessage(item domain.DataContent) chatMessage {
	if strings.HasPrefix(string(item.Type), string(domain.ContentImageURL)) {
		return chatMessage{
			Role: "user",
			Content: []imagePart{
				{Type: "image_url", ImageURL: imageURL{URL: item.Content}},
			},
		}
	}
	return chatMessage{Role: "user", Content: item.Content}
}

// chatResponse is the subset of the chat-completions response the runners
// read back.
type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}
