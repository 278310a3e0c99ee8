package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// CaptchaVerifier is the human-verification challenge, reduced to its
// interface: a challenge token either passes or fails.
type CaptchaVerifier interface {
	Verify(ctx context.Context, token string) (bool, error)
}

// HTTPVerifier checks challenge tokens against an hCaptcha-compatible
// siteverify endpoint.
type HTTPVerifier struct {
	secret    string
	verifyURL string
	client    *http.Client
}

func NewHTTPVerifier(secret, verifyURL string) *HTTPVerifier {
	return &HTTPVerifier{
		secret:    secret,
		verifyURL: verifyURL,
		client:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (v *HTTPVerifier) Verify(ctx context.Context, token string) (bool, error) {
	form := url.Values{"secret": {v.secret}, "response": {token}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.verifyURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("captcha verify: %w", err)
	}
	defer resp.Body.Close()

	var body struct {
		Success bool `json:"success"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false, fmt.Errorf("captcha verify: %w", err)
	}
	return body.Success, nil
}

// CaptchaRequired rejects requests whose challenge token does not verify.
// A nil verifier disables the check (no secret configured).
func CaptchaRequired(verifier CaptchaVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		if verifier == nil {
			c.Next()
			return
		}
		token := c.GetHeader("X-Captcha-Token")
		if token == "" {
			token = c.PostForm("captchaToken")
		}
		if token == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": gin.H{"code": "captcha_required", "message": "captcha token required"},
			})
			return
		}
		ok, err := verifier.Verify(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"error": gin.H{"code": "storage_failure", "message": "captcha verification unavailable"},
			})
			return
		}
		if !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": gin.H{"code": "captcha_failed", "message": "captcha verification failed"},
			})
			return
		}
		c.Next()
	}
}
