// Package headhunter is a small client for the hh.ru API and a posting source built on it.
package headhunter

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

const (
	apiURL      = "https://api.hh.ru"
	mineResumID = "mine"
	userAgent   = "spigell/hh-assistant (spigelly@gmail.com)"
	// Max value for search per page.
	maxPerPage = 100

	Platform = "headhunter"
)

type Client struct {
	token      string
	logger     *zap.Logger
	HTTPClient *http.Client
	UserAgent  string
	APIURL     string
}

// New creates a client. An empty token is allowed for anonymous search;
// resumes and negotiations need one.
func New(logger *zap.Logger, token string) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		token:  token,
		APIURL: apiURL,
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		logger:    logger,
		UserAgent: userAgent,
	}
}
