package services

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"sync"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
	"golang.org/x/time/rate"

	"mobilespo/internal/logging"
	"mobilespo/internal/models"
)

// SMSClient sends a plain-text SMS
type SMSClient interface {
	SendSMS(ctx context.Context, to, body string) error
}

// TwilioSMSClient sends SMS through the Twilio REST API
type TwilioSMSClient struct {
	client *twilio.RestClient
	from   string
}

// NewTwilioSMSClient creates a Twilio client
func NewTwilioSMSClient(accountSID, authToken, from string) (*TwilioSMSClient, error) {
	if accountSID == "" || authToken == "" {
		return nil, fmt.Errorf("account SID and auth token must be provided")
	}
	if from == "" {
		return nil, fmt.Errorf("from number must be provided")
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})

	return &TwilioSMSClient{client: client, from: from}, nil
}

func (c *TwilioSMSClient) SendSMS(ctx context.Context, to, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(c.from)
	params.SetBody(body)

	if _, err := c.client.Api.CreateMessage(params); err != nil {
		return fmt.Errorf("failed to send sms to %s: %w", logging.MaskPhone(to), err)
	}
	return nil
}

// LogSMSClient only logs messages. Used when Twilio is not configured.
type LogSMSClient struct{}

func (LogSMSClient) SendSMS(_ context.Context, to, body string) error {
	slog.Info("sms not sent, no provider configured", "to", logging.MaskPhone(to), "length", len(body))
	return nil
}

// SMSSender throttles SMS per recipient so a looping dialog cannot flood a phone
type SMSSender struct {
	client   SMSClient
	perMin   int
	limiters sync.Map // recipient -> *rate.Limiter
}

// NewSMSSender creates an SMS sender allowing perMinute messages per recipient
func NewSMSSender(client SMSClient, perMinute int) *SMSSender {
	if perMinute <= 0 {
		perMinute = 6
	}
	log.Printf("📱 [SMS] Sender ready (%T, %d/min per recipient)", client, perMinute)
	return &SMSSender{client: client, perMin: perMinute}
}

func (s *SMSSender) limiter(recipient string) *rate.Limiter {
	l, _ := s.limiters.LoadOrStore(recipient, rate.NewLimiter(rate.Limit(float64(s.perMin)/60.0), s.perMin))
	return l.(*rate.Limiter)
}

func (s *SMSSender) Send(ctx context.Context, recipient string, n models.Notification) error {
	if !s.limiter(recipient).Allow() {
		return fmt.Errorf("sms rate limit reached for %s", logging.MaskPhone(recipient))
	}
	return s.client.SendSMS(ctx, recipient, n.Body)
}
