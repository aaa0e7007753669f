package webhook

import (
	"fmt"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
)

// Client is the subset of the LINE Messaging API used by the handler.
type Client interface {
	ReplyMessage(replyToken string, messages []messaging_api.MessageInterface) error
	ShowLoadingAnimation(chatID string, seconds int32) error
}

type apiClient struct {
	api *messaging_api.MessagingApiAPI
}

// NewClient creates a Messaging API client for the channel access token.
func NewClient(channelToken string) (Client, error) {
	api, err := messaging_api.NewMessagingApiAPI(channelToken)
	if err != nil {
		return nil, fmt.Errorf("create messaging API client: %w", err)
	}
	return &apiClient{api: api}, nil
}

func (c *apiClient) ReplyMessage(replyToken string, messages []messaging_api.MessageInterface) error {
	_, err := c.api.ReplyMessage(&messaging_api.ReplyMessageRequest{
		ReplyToken: replyToken,
		Messages:   messages,
	})
	return err
}

func (c *apiClient) ShowLoadingAnimation(chatID string, seconds int32) error {
	_, err := c.api.ShowLoadingAnimation(&messaging_api.ShowLoadingAnimationRequest{
		ChatId:         chatID,
		LoadingSeconds: seconds,
	})
	return err
}
