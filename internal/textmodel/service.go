// Package textmodel は翻訳・要約・チャットの外部テキストモデル呼び出しを提供する。
// OpenAI互換のChat Completions APIを利用する。ノートや台帳には依存しない。
package textmodel

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/hitoshi/studyapp/internal/model"
)

// 入力の制約
const (
	// SummaryInputRunes は要約対象として先頭から使う文字数。
	SummaryInputRunes = 1000
	// MaxInputRunes は1回の呼び出しで受け付ける最大文字数。
	MaxInputRunes = 10000

	defaultModel = "gpt-4o-mini"
	defaultLang  = "ar"
)

var langPattern = regexp.MustCompile(`^[a-zA-Z]{2,3}(-[a-zA-Z0-9]{2,8})?$`)

// ChatCompleter はChat Completions APIの呼び出しインターフェース。
// *openai.Client が実装する。
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Config はテキストモデルの接続設定。
type Config struct {
	APIKey      string
	BaseURL     string // 空の場合はOpenAIの既定エンドポイント
	Model       string
	DefaultLang string
}

// Summary は要約結果。
type Summary struct {
	KeyPoints string
	Summary   string
}

// Service はテキストモデルのサービス層。
// クライアントが未設定の場合、全ての呼び出しがMODEL_NOT_CONFIGUREDを返す。
type Service struct {
	client      ChatCompleter
	model       string
	defaultLang string
}

// NewService は設定からServiceを生成する。APIKeyが空の場合は無効化された状態になる。
func NewService(cfg Config) *Service {
	if cfg.APIKey == "" {
		slog.Warn("OPENAI_API_KEYが未設定のためテキストモデルを無効化します")
		return NewServiceWithClient(nil, cfg.Model, cfg.DefaultLang)
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	svc := NewServiceWithClient(openai.NewClientWithConfig(clientCfg), cfg.Model, cfg.DefaultLang)
	slog.Info("テキストモデルを初期化しました", slog.String("model", svc.model))
	return svc
}

// NewServiceWithClient は任意のクライアントでServiceを生成する（テスト用）。
func NewServiceWithClient(client ChatCompleter, modelName, lang string) *Service {
	if modelName == "" {
		modelName = defaultModel
	}
	if lang == "" {
		lang = defaultLang
	}
	return &Service{client: client, model: modelName, defaultLang: lang}
}

// Configured はモデルが利用可能な設定になっているかを返す。
func (s *Service) Configured() bool {
	return s.client != nil
}

// Translate はtextをdestの言語に翻訳する。destが空の場合は既定の言語を使う。
func (s *Service) Translate(ctx context.Context, text, dest string) (string, error) {
	if err := validateText("text", text); err != nil {
		return "", err
	}
	if dest == "" {
		dest = s.defaultLang
	}
	if !langPattern.MatchString(dest) {
		return "", model.NewValidationError("dest", "言語コード（例: en, ja, pt-BR）で指定してください")
	}

	system := fmt.Sprintf("Translate the user's text into the language with code %q. Reply with the translation only.", dest)
	return s.complete(ctx, "translate", system, text)
}

// Summarize は先頭SummaryInputRunes文字から要点と要約を生成する。
func (s *Service) Summarize(ctx context.Context, text string) (*Summary, error) {
	if err := validateText("text", text); err != nil {
		return nil, err
	}
	head := truncateRunes(text, SummaryInputRunes)

	keyPoints, err := s.complete(ctx, "summarize", "You are a study assistant.", "Generate key points from this text: "+head)
	if err != nil {
		return nil, err
	}
	summary, err := s.complete(ctx, "summarize", "You are a study assistant.", "Summarize this text: "+head)
	if err != nil {
		return nil, err
	}
	return &Summary{KeyPoints: keyPoints, Summary: summary}, nil
}

// Chat はメッセージに対するアシスタントの応答を返す。
func (s *Service) Chat(ctx context.Context, message string) (string, error) {
	if err := validateText("message", message); err != nil {
		return "", err
	}
	return s.complete(ctx, "chat", "You are a helpful study assistant.", message)
}

// complete はシステムプロンプトとユーザー入力で1回のChat Completionを行う。
func (s *Service) complete(ctx context.Context, op, system, user string) (string, error) {
	if s.client == nil {
		return "", model.NewModelNotConfiguredError()
	}

	req := openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	}

	resp, err := s.client.CreateChatCompletion(ctx, req)
	if err != nil {
		slog.Error("テキストモデルの呼び出しに失敗しました",
			slog.String("op", op),
			slog.String("model", s.model),
			slog.String("error", err.Error()),
		)
		return "", model.NewModelUnavailableError("upstream error")
	}
	if len(resp.Choices) == 0 {
		slog.Warn("テキストモデルが空の応答を返しました", slog.String("op", op))
		return "", model.NewModelUnavailableError("empty response")
	}

	slog.Debug("テキストモデルの応答を受信しました",
		slog.String("op", op),
		slog.String("finish_reason", string(resp.Choices[0].FinishReason)),
	)
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func validateText(field, text string) error {
	if strings.TrimSpace(text) == "" {
		return model.NewValidationError(field, "必須です")
	}
	if len([]rune(text)) > MaxInputRunes {
		return model.NewValidationError(field, fmt.Sprintf("%d文字以内で指定してください", MaxInputRunes))
	}
	return nil
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
