package consumer

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"regexp"
	"time"

	"github.com/pkg/errors"
	openai "github.com/sashabaranov/go-openai"
)

// entity extraction prompt: the model must answer with nothing but the
// expense JSON object.
const expenseSystemPrompt = `你是一个记账助手。
根据用户的输入（例如："晚餐花了3000日元"或"打车 50 块钱"），你必须只返回一个符合以下接口的 JSON 对象，不要有任何其他解释或开场白。

{"item": string, "amount": number, "currency": string}

item 是事项，例如 "晚餐"、"打车"、"纪念品"。
amount 必须是数字。
currency 例如 "CNY"、"JPY"、"USD"；"元" 或 "块" 默认为 "CNY"。`

var codeFenceRe = regexp.MustCompile("```json\n?|\n?```")

// Expense is one parsed expense entry.
type Expense struct {
	Item         string  `json:"item"`
	Amount       float64 `json:"amount"`
	Currency     string  `json:"currency"`
	PlanID       string  `json:"plan_id,omitempty"`
	OriginalText string  `json:"original_text,omitempty"`
}

// ExpenseSinkConfig configures the expense consumer.
type ExpenseSinkConfig struct {
	// LLM connection; BaseURL points at an OpenAI-compatible endpoint.
	APIKey  string
	BaseURL string
	Model   string

	// Endpoint is the expense API the parsed entry is posted to.
	Endpoint  string
	AuthToken string
	PlanID    string

	Timeout time.Duration
	Logger  *log.Logger
}

// ExpenseSink turns a transcript like "晚餐花了 50 元" into a structured
// expense entry via LLM entity extraction, then submits it to the expense
// API. Empty or unrecognized transcripts are a no-op.
type ExpenseSink struct {
	cfg    ExpenseSinkConfig
	llm    *openai.Client
	client *http.Client
	logger *log.Logger
}

// NewExpenseSink builds the expense consumer.
func NewExpenseSink(cfg ExpenseSinkConfig) *ExpenseSink {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	llmCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		llmCfg.BaseURL = cfg.BaseURL
	}
	return &ExpenseSink{
		cfg:    cfg,
		llm:    openai.NewClientWithConfig(llmCfg),
		client: &http.Client{Timeout: cfg.Timeout},
		logger: cfg.Logger,
	}
}

// Submit implements Sink.
func (s *ExpenseSink) Submit(ctx context.Context, text string) error {
	if !Usable(text) {
		s.logf("skipping unusable transcript (%d chars)", len(text))
		return nil
	}

	expense, err := s.parse(ctx, text)
	if err != nil {
		return err
	}
	expense.PlanID = s.cfg.PlanID
	expense.OriginalText = text

	return s.post(ctx, expense)
}

// parse asks the LLM for the structured entry and strips the code fences
// some models insist on wrapping JSON in.
func (s *ExpenseSink) parse(ctx context.Context, text string) (*Expense, error) {
	resp, err := s.llm.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: expenseSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
	})
	if err != nil {
		return nil, errors.Wrap(ErrDownstreamSubmit, err.Error())
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return nil, errors.Wrap(ErrDownstreamSubmit, "empty completion")
	}

	payload := codeFenceRe.ReplaceAllString(resp.Choices[0].Message.Content, "")
	var expense Expense
	if err := json.Unmarshal([]byte(payload), &expense); err != nil {
		return nil, errors.Wrapf(ErrDownstreamSubmit, "parse expense json: %v", err)
	}
	return &expense, nil
}

func (s *ExpenseSink) post(ctx context.Context, expense *Expense) error {
	body, err := json.Marshal(expense)
	if err != nil {
		return errors.Wrap(ErrDownstreamSubmit, err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(ErrDownstreamSubmit, err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	if s.cfg.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.AuthToken)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return errors.Wrap(ErrDownstreamSubmit, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return errors.Wrapf(ErrDownstreamSubmit, "expense api http %d: %s", resp.StatusCode, string(msg))
	}

	s.logf("logged expense: %s %.2f %s", expense.Item, expense.Amount, expense.Currency)
	return nil
}

func (s *ExpenseSink) logf(format string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
	}
}
