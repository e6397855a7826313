package mail

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/time/rate"
)

const charsetUTF8 = "UTF-8"

// SESClient はSESDispatcherが使用するSES API。
// *sesv2.Clientが満たす。
type SESClient interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESConfig はSESDispatcherの設定。
type SESConfig struct {
	Region       string
	FromEmail    string
	FromName     string
	MaxPerSecond float64
}

// SESDispatcher はAmazon SES v2でメールを送信するDispatcher。
// SESの送信レート上限を超えないようrate.Limiterで送信間隔を制御する。
type SESDispatcher struct {
	client    SESClient
	from      string
	limiter   *rate.Limiter
	textPlain *bluemonday.Policy
}

// NewSESDispatcher はAWSのデフォルト認証情報チェーンでSESクライアントを構築する。
func NewSESDispatcher(ctx context.Context, cfg SESConfig) (*SESDispatcher, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	slog.Info("mail delivery enabled",
		slog.String("from", cfg.FromEmail),
		slog.String("region", cfg.Region),
	)
	return NewSESDispatcherWithClient(sesv2.NewFromConfig(awsCfg), cfg), nil
}

// NewSESDispatcherWithClient は指定したクライアントでSESDispatcherを生成する。
func NewSESDispatcherWithClient(client SESClient, cfg SESConfig) *SESDispatcher {
	perSecond := cfg.MaxPerSecond
	if perSecond <= 0 {
		perSecond = 1
	}

	from := cfg.FromEmail
	if cfg.FromName != "" {
		from = fmt.Sprintf("%s <%s>", cfg.FromName, cfg.FromEmail)
	}

	return &SESDispatcher{
		client:    client,
		from:      from,
		limiter:   rate.NewLimiter(rate.Limit(perSecond), 1),
		textPlain: bluemonday.StrictPolicy(),
	}
}

// Send はHTML本文と、そこから生成したテキスト本文の両方を持つメールを送信する。
func (d *SESDispatcher) Send(ctx context.Context, to, subject, htmlBody string) error {
	if err := d.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("failed to wait for mail rate limit: %w", err)
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(d.from),
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{
					Data:    aws.String(subject),
					Charset: aws.String(charsetUTF8),
				},
				Body: &types.Body{
					Html: &types.Content{
						Data:    aws.String(htmlBody),
						Charset: aws.String(charsetUTF8),
					},
					Text: &types.Content{
						Data:    aws.String(d.plainText(htmlBody)),
						Charset: aws.String(charsetUTF8),
					},
				},
			},
		},
	}

	out, err := d.client.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	slog.Info("email sent",
		slog.String("to", to),
		slog.String("subject", subject),
		slog.String("message_id", aws.ToString(out.MessageId)),
	)
	return nil
}

// plainText はHTML本文からタグを除去したテキスト本文を生成する。
func (d *SESDispatcher) plainText(htmlBody string) string {
	text := html.UnescapeString(d.textPlain.Sanitize(htmlBody))
	lines := strings.Split(text, "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}

// compile-time interface check
var _ Dispatcher = (*SESDispatcher)(nil)
