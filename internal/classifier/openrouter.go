package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const openRouterBaseURL = "https://openrouter.ai/api/v1"

const openRouterRequestTimeout = 30 * time.Second

// openRouterSystemPrompt asks for a strict JSON object over four lifecycle
// axes. The schema mirrors what the regex cues approximate.
const openRouterSystemPrompt = `You read tmux pane text for a CLI worker. Infer the PTY state using four axes plus metadata.
Return strict JSON matching:
{
  "session_lifecycle": "<DISCONNECTED|LOGIN_OR_SETUP|ACTIVE_SESSION|TEARDOWN>",
  "terminal_mode": "<CANONICAL|RAW|UNKNOWN>",
  "foreground_role": "<SHELL|CHILD_COMMAND|MULTIPLEXER|UNKNOWN>",
  "io_disposition": "<IDLE_AT_PROMPT|STREAMING_OUTPUT|SILENT_PROCESSING|BLOCKED_ON_INPUT|INTERRUPTIBLE_BUSY|UNKNOWN>",
  "error_recent": true,
  "summary": "<short string>",
  "actions_needed": "<string or null>"
}
Axis definitions:
1. session_lifecycle: DISCONNECTED (pane closed), LOGIN_OR_SETUP (ssh/login banners before shell), ACTIVE_SESSION (shell or process running), TEARDOWN (logout/shutdown).
2. terminal_mode: CANONICAL (line-buffered shell), RAW (application controls keys / alternate screen), UNKNOWN.
3. foreground_role: SHELL (bash/zsh prompt owns tty), CHILD_COMMAND (non-shell program), MULTIPLEXER (tmux/screen hosting another shell), UNKNOWN.
4. io_disposition: IDLE_AT_PROMPT (prompt visible, safe to send command), STREAMING_OUTPUT (logs/progress flowing), SILENT_PROCESSING (command running quietly), BLOCKED_ON_INPUT (explicit prompt waiting for y/N/password/etc.), INTERRUPTIBLE_BUSY (async REPLs like Codex that keep processing yet accept new instructions), UNKNOWN.
error_recent indicates whether the last command clearly failed (traceback, non-zero exit). Provide a concise summary and optional actions_needed instruction.`

// Meta travels with the snapshot to the remote classifier.
type Meta struct {
	WorkerID string
	PaneID   string
	CLIType  string
}

// OpenRouterClassifier sends the snapshot to an OpenAI-compatible chat
// completion endpoint and maps the structured reply to a Result.
type OpenRouterClassifier struct {
	client openai.Client
	model  string
}

func NewOpenRouterClassifier(apiKey, model string) *OpenRouterClassifier {
	return &OpenRouterClassifier{
		client: openai.NewClient(
			option.WithAPIKey(apiKey),
			option.WithBaseURL(openRouterBaseURL),
		),
		model: model,
	}
}

func (c *OpenRouterClassifier) Classify(ctx context.Context, snapshot string, meta Meta) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, openRouterRequestTimeout)
	defer cancel()

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(openRouterSystemPrompt),
			openai.UserMessage(fmt.Sprintf("CLI type: %s\nSnapshot:\n%s", meta.CLIType, snapshot)),
		},
	})
	if err != nil {
		return Result{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Result{}, fmt.Errorf("chat completion returned no choices")
	}
	return parseRemoteReply(resp.Choices[0].Message.Content)
}

type remoteReply struct {
	State         string  `json:"state"`
	Summary       string  `json:"summary"`
	ActionsNeeded *string `json:"actions_needed"`
}

func parseRemoteReply(content string) (Result, error) {
	var reply remoteReply
	if err := json.Unmarshal([]byte(content), &reply); err != nil {
		return Result{}, fmt.Errorf("parse classifier reply: %w", err)
	}
	state := strings.TrimSpace(reply.State)
	if state == "" {
		state = StateReady
	}
	actions := ""
	if reply.ActionsNeeded != nil {
		actions = *reply.ActionsNeeded
	}
	return Result{
		State:         state,
		Summary:       strings.TrimSpace(reply.Summary),
		ActionsNeeded: actions,
	}, nil
}
