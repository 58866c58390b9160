// Package push delivers reminder notifications through Firebase Cloud
// Messaging.
package push

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/errorutils"
	"firebase.google.com/go/v4/messaging"

	"racecal/internal/dispatch"
)

// FCMSender implements dispatch.Sender over the Firebase Admin SDK.
// Credentials come from the standard GOOGLE_APPLICATION_CREDENTIALS
// environment or the ambient service account.
type FCMSender struct {
	client *messaging.Client
}

func NewFCMSender(ctx context.Context) (*FCMSender, error) {
	app, err := firebase.NewApp(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("initializing firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("initializing messaging client: %w", err)
	}
	return &FCMSender{client: client}, nil
}

// Send multicasts one notification to a batch of tokens. Recipients whose
// registration FCM reports as gone or malformed are returned in
// InvalidTokens so the caller can prune them; other per-recipient errors
// only count toward FailureCount.
func (s *FCMSender) Send(ctx context.Context, tokens []string, n dispatch.Notification) (dispatch.SendResult, error) {
	resp, err := s.client.SendEachForMulticast(ctx, &messaging.MulticastMessage{
		Tokens: tokens,
		Notification: &messaging.Notification{
			Title: n.Title,
			Body:  n.Body,
		},
		Data: n.Data,
	})
	if err != nil {
		return dispatch.SendResult{}, err
	}

	out := dispatch.SendResult{
		SuccessCount: resp.SuccessCount,
		FailureCount: resp.FailureCount,
	}
	for i, r := range resp.Responses {
		if r.Error == nil {
			continue
		}
		if messaging.IsRegistrationTokenNotRegistered(r.Error) || errorutils.IsInvalidArgument(r.Error) {
			out.InvalidTokens = append(out.InvalidTokens, tokens[i])
		}
	}
	return out, nil
}
