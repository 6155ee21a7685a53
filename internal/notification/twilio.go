package notification

import (
	"context"
	"fmt"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

type messageAPI interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// TwilioSender sends SMS through the Twilio Messages API.
type TwilioSender struct {
	api  messageAPI
	from string
}

// NewTwilioSender builds a sender from account credentials and a sending number.
func NewTwilioSender(accountSID, authToken, from string) (*TwilioSender, error) {
	if accountSID == "" || authToken == "" || from == "" {
		return nil, fmt.Errorf("missing Twilio credentials")
	}
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return &TwilioSender{api: client.Api, from: from}, nil
}

// Send submits one SMS. The Twilio client does not accept a context, so
// cancellation is only checked before the call.
func (t *TwilioSender) Send(ctx context.Context, message Message) (Receipt, error) {
	if err := ctx.Err(); err != nil {
		return Receipt{}, fmt.Errorf("%w: %w", ErrDelivery, err)
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo(message.Destination)
	params.SetFrom(t.from)
	params.SetBody(message.Body)

	resp, err := t.api.CreateMessage(params)
	if err != nil {
		return Receipt{}, fmt.Errorf("%w: %w", ErrDelivery, err)
	}
	if resp.ErrorCode != nil {
		msg := ""
		if resp.ErrorMessage != nil {
			msg = *resp.ErrorMessage
		}
		return Receipt{}, fmt.Errorf("%w: twilio error %d: %s", ErrDelivery, *resp.ErrorCode, msg)
	}

	receipt := Receipt{}
	if resp.Sid != nil {
		receipt.ProviderID = *resp.Sid
	}
	if resp.Status != nil {
		receipt.Status = *resp.Status
	}
	return receipt, nil
}
