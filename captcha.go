package edupage

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"time"
)

// CaptchaSolver answers an image challenge with its text. Implementations
// are optional: without one, challenges are handed to a human through
// AuthResult.ChallengeURL.
type CaptchaSolver interface {
	SolveImage(ctx context.Context, image []byte) (string, error)
}

// =============================================================================
// 2Captcha API
// =============================================================================

// TwoCaptchaSolver solves image captchas through the 2Captcha task API.
type TwoCaptchaSolver struct {
	APIKey string
}

type twoCaptchaResponse struct {
	ErrorId          int            `json:"errorId"`
	ErrorCode        string         `json:"errorCode"`
	ErrorDescription string         `json:"errorDescription"`
	TaskId           int64          `json:"taskId"`
	Status           string         `json:"status"`
	Solution         map[string]any `json:"solution"`
}

// SolveImage submits an ImageToTextTask and polls until the text is ready.
func (s *TwoCaptchaSolver) SolveImage(ctx context.Context, image []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 180*time.Second)
	defer cancel()

	created, err := twoCaptchaRequest(ctx, "https://api.2captcha.com/createTask", map[string]any{
		"clientKey": s.APIKey,
		"task": map[string]any{
			"type": "ImageToTextTask",
			"body": base64.StdEncoding.EncodeToString(image),
		},
	})
	if err != nil {
		return "", err
	}
	if created.ErrorId != 0 {
		return "", handleTwoCaptchaError(created.ErrorCode, created.ErrorDescription)
	}

	return s.pollResult(ctx, created.TaskId)
}

func (s *TwoCaptchaSolver) pollResult(ctx context.Context, taskId int64) (string, error) {
	uri := "https://api.2captcha.com/getTaskResult"
	for {
		select {
		case <-ctx.Done():
			return "", errors.New("solve timeout")
		case <-time.After(5 * time.Second): // 2captcha recommends 5s polling
		}

		res, err := twoCaptchaRequest(ctx, uri, map[string]any{
			"clientKey": s.APIKey,
			"taskId":    taskId,
		})
		if err != nil {
			return "", err
		}
		if res.ErrorId != 0 {
			return "", handleTwoCaptchaError(res.ErrorCode, res.ErrorDescription)
		}
		if res.Status == "ready" {
			text, ok := res.Solution["text"].(string)
			if !ok || text == "" {
				return "", errors.New("2captcha solver error: no text in solution")
			}
			return text, nil
		}
	}
}

func handleTwoCaptchaError(code, description string) error {
	err := fmt.Errorf("2captcha error: %s - %s", code, description)
	if isFatalCaptchaError(code) {
		return NewFatalError(err)
	}
	return err
}

func twoCaptchaRequest(ctx context.Context, uri string, payload any) (*twoCaptchaResponse, error) {
	return doJSONRequest[twoCaptchaResponse](ctx, uri, payload, 3)
}

// =============================================================================
// Helpers
// =============================================================================

var fatalCaptchaCodes = []string{
	"ERROR_ZERO_BALANCE",
	"ERROR_KEY_DOES_NOT_EXIST",
	"ERROR_WRONG_USER_KEY",
	"ERROR_IP_NOT_ALLOWED",
	"ERROR_IP_BANNED",
}

func isFatalCaptchaError(errorCode string) bool {
	return slices.Contains(fatalCaptchaCodes, errorCode)
}

func doJSONRequest[T any](ctx context.Context, uri string, payload any, maxRetries int) (*T, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	client := &http.Client{Timeout: 30 * time.Second}
	var lastErr error

	for attempt := range maxRetries {
		if attempt > 0 {
			backoff := time.Duration(1<<attempt) * time.Second
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		req, err := http.NewRequestWithContext(ctx, "POST", uri, bytes.NewReader(payloadBytes))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		responseData, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}

		result := new(T)
		if err := json.Unmarshal(responseData, result); err != nil {
			return nil, err
		}
		return result, nil
	}

	return nil, fmt.Errorf("API request failed after %d retries: %w", maxRetries, lastErr)
}
