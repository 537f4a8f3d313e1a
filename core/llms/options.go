package llms

type StreamingPromptOptions struct {
	// Instructions are appended to the system prompt for a single reply,
	// e.g. to ask for a greeting.
	Instructions string
	History      []Message
}

type StreamingPromptOption func(*StreamingPromptOptions)

func WithInstructions(instructions string) StreamingPromptOption {
	return func(opts *StreamingPromptOptions) {
		opts.Instructions = instructions
	}
}

// WithMessages sets the conversation history the reply continues. The last
// message is normally the user's turn.
func WithMessages(messages ...Message) StreamingPromptOption {
	return func(opts *StreamingPromptOptions) {
		opts.History = append(opts.History, messages...)
	}
}
