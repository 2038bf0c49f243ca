package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"time"
)

// The confirmation flow may demand a solved reCAPTCHA (v2 on the confirm
// page, v3 for the booking validation header). When a solver API key is
// configured these helpers obtain a token out of band; otherwise the caller
// supplies one.

// SolveConfirmationCaptcha solves the reCAPTCHA v2 shown on the platform's
// confirmation page for the given pending-booking token.
func SolveConfirmationCaptcha(siteKey, confirmToken string) (string, error) {
	pageURL := "https://" + platformDomain + "/user/confirm/" + confirmToken + "/"
	if key := GetCaptchaAPIKey(); key != "" {
		return TwoCaptchaRecapV2(key, pageURL, siteKey)
	}
	if key := GetCapSolverAPIKey(); key != "" {
		return CapSolverRecapV2(key, pageURL, siteKey)
	}
	return "", errors.New("no captcha provider configured")
}

// SolveBookingCaptcha solves the reCAPTCHA v3 guarding booking creation on a
// tenant domain; the token goes into the X-App-Validation-Token header.
func SolveBookingCaptcha(siteKey, domain string) (string, error) {
	pageURL := "https://" + domain + "/"
	if key := GetCaptchaAPIKey(); key != "" {
		return TwoCaptchaRecapV3(key, pageURL, siteKey, "book_record", 0.3)
	}
	if key := GetCapSolverAPIKey(); key != "" {
		return CapSolverRecapV3(key, pageURL, siteKey, "book_record", 0.3)
	}
	return "", errors.New("no captcha provider configured")
}

// =============================================================================
// 2Captcha API
// =============================================================================

type TwoCaptchaResponse struct {
	ErrorId          int            `json:"errorId"`
	ErrorCode        string         `json:"errorCode"`
	ErrorDescription string         `json:"errorDescription"`
	TaskId           int64          `json:"taskId"`
	Status           string         `json:"status"`
	Solution         map[string]any `json:"solution"`
}

func TwoCaptcha(ctx context.Context, apiKey string, taskData map[string]any) (*TwoCaptchaResponse, error) {
	res, err := doJSONRequest[TwoCaptchaResponse](ctx, "https://api.2captcha.com/createTask", map[string]any{
		"clientKey": apiKey,
		"task":      taskData,
	}, 3)
	if err != nil {
		return nil, err
	}
	if res.ErrorId != 0 {
		return nil, handleTwoCaptchaError(res.ErrorCode, res.ErrorDescription)
	}

	uri := "https://api.2captcha.com/getTaskResult"
	for {
		select {
		case <-ctx.Done():
			return nil, errors.New("solve timeout")
		case <-time.After(5 * time.Second): // 2captcha recommends 5s polling
		}

		res, err := doJSONRequest[TwoCaptchaResponse](ctx, uri, map[string]any{
			"clientKey": apiKey,
			"taskId":    res.TaskId,
		}, 3)
		if err != nil {
			return nil, err
		}
		if res.ErrorId != 0 {
			return nil, handleTwoCaptchaError(res.ErrorCode, res.ErrorDescription)
		}
		if res.Status == "ready" {
			return res, nil
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

func TwoCaptchaRecapV2(apikey, weburl, webkey string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 180*time.Second)
	defer cancel()

	res, err := TwoCaptcha(ctx, apikey, map[string]any{
		"type":       "RecaptchaV2TaskProxyless",
		"websiteURL": weburl,
		"websiteKey": webkey,
	})
	if err != nil {
		return "", fmt.Errorf("2captcha request error: %v", err)
	}
	return extractRecaptchaToken(res.Solution)
}

func TwoCaptchaRecapV3(apikey, weburl, webkey, action string, minScore float64) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 180*time.Second)
	defer cancel()

	taskData := map[string]any{
		"type":       "RecaptchaV3TaskProxyless",
		"websiteURL": weburl,
		"websiteKey": webkey,
		"minScore":   minScore,
	}
	if action != "" {
		taskData["pageAction"] = action
	}

	res, err := TwoCaptcha(ctx, apikey, taskData)
	if err != nil {
		return "", fmt.Errorf("2captcha request error: %v", err)
	}
	return extractRecaptchaToken(res.Solution)
}

// =============================================================================
// CapSolver API
// =============================================================================

type CapSolverResponse struct {
	ErrorId          int32          `json:"errorId"`
	ErrorCode        string         `json:"errorCode"`
	ErrorDescription string         `json:"errorDescription"`
	TaskId           string         `json:"taskId"`
	Status           string         `json:"status"`
	Solution         map[string]any `json:"solution"`
}

func CapSolver(ctx context.Context, apiKey string, taskData map[string]any) (*CapSolverResponse, error) {
	res, err := doJSONRequest[CapSolverResponse](ctx, "https://api.capsolver.com/createTask", map[string]any{
		"clientKey": apiKey,
		"task":      taskData,
	}, 3)
	if err != nil {
		return nil, err
	}
	if res.ErrorId == 1 {
		return nil, handleCapSolverError(res.ErrorCode, res.ErrorDescription)
	}

	uri := "https://api.capsolver.com/getTaskResult"
	for {
		select {
		case <-ctx.Done():
			return nil, errors.New("solve timeout")
		case <-time.After(time.Second):
		}

		poll, err := doJSONRequest[CapSolverResponse](ctx, uri, map[string]any{
			"clientKey": apiKey,
			"taskId":    res.TaskId,
		}, 3)
		if err != nil {
			return nil, err
		}
		if poll.ErrorId == 1 {
			return nil, handleCapSolverError(poll.ErrorCode, poll.ErrorDescription)
		}
		if poll.Status == "ready" {
			return poll, nil
		}
	}
}

func handleCapSolverError(code, description string) error {
	err := errors.New(description)
	if isFatalCaptchaError(code) {
		return NewFatalError(err)
	}
	return err
}

func CapSolverRecapV2(apikey, weburl, webkey string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	res, err := CapSolver(ctx, apikey, map[string]any{
		"type":       "ReCaptchaV2TaskProxyLess",
		"websiteURL": weburl,
		"websiteKey": webkey,
	})
	if err != nil {
		return "", fmt.Errorf("capsolver request error: %v", err)
	}
	return extractRecaptchaToken(res.Solution)
}

func CapSolverRecapV3(apikey, weburl, webkey, action string, minScore float64) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	res, err := CapSolver(ctx, apikey, map[string]any{
		"type":       "ReCaptchaV3TaskProxyLess",
		"websiteURL": weburl,
		"websiteKey": webkey,
		"pageAction": action,
		"minScore":   minScore,
	})
	if err != nil {
		return "", fmt.Errorf("capsolver request error: %v", err)
	}
	return extractRecaptchaToken(res.Solution)
}

// =============================================================================
// Helpers
// =============================================================================

var fatalCaptchaCodes = []string{
	"ERROR_ZERO_BALANCE",
	"ERROR_KEY_DOES_NOT_EXIST",
	"ERROR_WRONG_USER_KEY",
	"ERROR_WRONG_GOOGLEKEY",
	"ERROR_IP_NOT_ALLOWED",
	"ERROR_IP_BANNED",
}

func isFatalCaptchaError(errorCode string) bool {
	return slices.Contains(fatalCaptchaCodes, errorCode)
}

func extractRecaptchaToken(solution map[string]any) (string, error) {
	if token, ok := solution["gRecaptchaResponse"].(string); ok {
		return token, nil
	}
	if token, ok := solution["token"].(string); ok {
		return token, nil
	}
	return "", errors.New("solver returned no token")
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

	return nil, fmt.Errorf("captcha API request failed after %d retries: %w", maxRetries, lastErr)
}
