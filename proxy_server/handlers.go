package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// loginProxy forwards login bodies untouched to the homeserver and reshapes
// the response for the web client. The endpoint itself is unauthenticated;
// it holds no secrets and adds none.
type loginProxy struct {
	homeserverURL string
	http          *http.Client
}

func newLoginProxy(homeserverURL string) *loginProxy {
	return &loginProxy{
		homeserverURL: homeserverURL,
		http:          &http.Client{Timeout: 30 * time.Second},
	}
}

type homeserverLoginResponse struct {
	AccessToken string `json:"access_token"`
	UserID      string `json:"user_id"`
}

func (p *loginProxy) handleMatrixLogin(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		c.JSON(500, gin.H{"error": "Server error during Matrix login"})
		return
	}

	req, err := http.NewRequestWithContext(c.Request.Context(), http.MethodPost,
		p.homeserverURL+"/_matrix/client/v3/login", bytes.NewReader(body))
	if err != nil {
		c.JSON(500, gin.H{"error": "Server error during Matrix login"})
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.http.Do(req)
	if err != nil {
		log.Error().Err(err).Msg("error during Matrix login")
		c.JSON(500, gin.H{"error": "Server error during Matrix login"})
		return
	}
	defer resp.Body.Close()

	var matrixData json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&matrixData); err != nil {
		log.Error().Err(err).Msg("malformed homeserver login response")
		c.JSON(500, gin.H{"error": "Server error during Matrix login"})
		return
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Error().RawJSON("details", matrixData).Msg("Matrix login failed")
		c.JSON(500, gin.H{"error": "Matrix login failed", "details": matrixData})
		return
	}

	var loginResp homeserverLoginResponse
	if err := json.Unmarshal(matrixData, &loginResp); err != nil {
		c.JSON(500, gin.H{"error": "Server error during Matrix login"})
		return
	}

	c.JSON(200, gin.H{
		"matrixAccessToken": loginResp.AccessToken,
		"userId":            loginResp.UserID,
	})
}
