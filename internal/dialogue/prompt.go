package dialogue

// SystemPrompt steers the model toward a nutrition estimate, one question per turn
const SystemPrompt = "In conversation with the user, ask questions to estimate and provide " +
	"(1) total calories, (2) protein, carbs, and fat in grams, (3) fiber and sugar content. " +
	"Only ask *one question at a time*. Be conversational and natural."

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// buildChatMessages prepends the system instruction to the whole transcript.
// History is never truncated.
func buildChatMessages(transcript []Message) []chatMessage {
	messages := make([]chatMessage, 0, len(transcript)+1)
	messages = append(messages, chatMessage{Role: "system", Content: SystemPrompt})
	for _, m := range transcript {
		messages = append(messages, chatMessage{Role: string(m.Role), Content: m.Text})
	}
	return messages
}
