package driver

import (
	"fmt"
	"strings"
	"time"

	"github.com/datazip-inc/gorgias-tap/constants"
	"github.com/datazip-inc/gorgias-tap/pkg/rest"
	"github.com/datazip-inc/gorgias-tap/utils"
	"github.com/datazip-inc/gorgias-tap/utils/typeutils"
)

const maxPageSize = 100

type Config struct {
	BaseURL     string `json:"base_url,omitempty" title:"Base URL" description:"API root, e.g. https://acme.gorgias.com. Overrides subdomain" validate:"omitempty,absurl"`
	Subdomain   string `json:"subdomain,omitempty" title:"Subdomain" description:"Gorgias account subdomain"`
	Username    string `json:"username,omitempty" title:"Username" description:"Email of the account owning the API key"`
	APIKey      string `json:"api_key,omitempty" title:"API Key" format:"password"`
	AccessToken string `json:"access_token,omitempty" title:"Access Token" description:"OAuth token, used instead of username and api_key" format:"password"`
	StartDate   string `json:"start_date,omitempty" title:"Start Date" description:"Lower bound for incremental streams without a bookmark" format:"date-time"`

	PageSize          int     `json:"page_size,omitempty" title:"Page Size" default:"100" validate:"gte=0,lte=100"`
	MaxPages          int     `json:"max_pages,omitempty" title:"Max Pages" description:"Pages fetched per stream invocation before pagination is considered looping" validate:"gte=0"`
	// nil uses the default, 0 disables retries
	MaxRetries        *int    `json:"max_retries,omitempty" title:"Max Retries" default:"5" validate:"omitempty,gte=0"`
	RetryBackoff      string  `json:"retry_backoff,omitempty" title:"Retry Backoff" default:"1s" validate:"duration"`
	RequestTimeout    string  `json:"request_timeout,omitempty" title:"Request Timeout" default:"60s" validate:"duration"`
	MaxConnections    int     `json:"max_connections,omitempty" title:"Max Connections" default:"3" validate:"gte=0"`
	RequestsPerSecond float64 `json:"requests_per_second,omitempty" title:"Requests Per Second" default:"2" validate:"gte=0"`

	MaxThreads      int  `json:"max_threads,omitempty" title:"Max Threads" description:"Root streams synced in parallel" default:"3" validate:"gte=0"`
	MaxChildThreads int  `json:"max_child_threads,omitempty" title:"Max Child Threads" description:"Child syncs of one parent page run in parallel" default:"1" validate:"gte=0"`
	AbortOnError    bool `json:"abort_on_error,omitempty" title:"Abort On Error" description:"Stop the whole run on the first failed stream" default:"false"`
}

func (c *Config) Validate() error {
	if err := utils.Validate(c); err != nil {
		return err
	}
	if c.BaseURL == "" && strings.TrimSpace(c.Subdomain) == "" {
		return fmt.Errorf("one of base_url or subdomain is required")
	}
	if c.AccessToken == "" && (c.Username == "" || c.APIKey == "") {
		return fmt.Errorf("either access_token or both username and api_key are required")
	}
	if c.StartDate != "" {
		if _, err := typeutils.ParseTime(c.StartDate); err != nil {
			return fmt.Errorf("invalid start_date: %s", err)
		}
	}
	return nil
}

// URL is the API root the client resolves paths against.
func (c *Config) URL() string {
	if c.BaseURL != "" {
		return strings.TrimRight(c.BaseURL, "/")
	}
	return fmt.Sprintf("https://%s.gorgias.com", strings.TrimSpace(c.Subdomain))
}

// RESTConfig converts the source config into client settings; zero values take
// the client defaults.
func (c *Config) RESTConfig() rest.Config {
	return rest.Config{
		BaseURL:           c.URL(),
		Username:          c.Username,
		APIKey:            c.APIKey,
		AccessToken:       c.AccessToken,
		PageSize:          utils.Ternary(c.PageSize > 0, min(c.PageSize, maxPageSize), constants.DefaultPageSize),
		MaxPages:          c.MaxPages,
		MaxRetries:        c.maxRetries(),
		RetryBackoff:      parseDuration(c.RetryBackoff, constants.DefaultRetryBackoff),
		RequestTimeout:    parseDuration(c.RequestTimeout, constants.DefaultRequestTimeout),
		MaxConnections:    c.MaxConnections,
		RequestsPerSecond: utils.Ternary(c.RequestsPerSecond > 0, c.RequestsPerSecond, constants.DefaultRequestsPerSec),
	}
}

func (c *Config) maxRetries() int {
	if c.MaxRetries == nil {
		return constants.DefaultRetryCount
	}
	return *c.MaxRetries
}

// values were checked by Validate
func parseDuration(value string, fallback time.Duration) time.Duration {
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}
