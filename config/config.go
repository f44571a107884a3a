package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	BackendBrowser = "browser"
	BackendAPI     = "api"
	BackendService = "service"
)

type Config struct {
	Backend  string `json:"backend"`
	Keyword  string `json:"keyword"`
	Location string `json:"location"`

	MaxPages   int `json:"max_pages"`
	PageSize   int `json:"page_size"`
	MaxWorkers int `json:"max_workers"`

	MaxRetries    int      `json:"max_retries"`
	Backoff       string   `json:"backoff"`
	RetryDelay    Duration `json:"retry_delay"`
	MaxRetryDelay Duration `json:"max_retry_delay"`

	// RequestTimeout bounds a single page fetch attempt, DetailTimeout a single detail fetch.
	RequestTimeout Duration `json:"request_timeout"`
	DetailTimeout  Duration `json:"detail_timeout"`
	// RunTimeout is checked between page cycles. Zero disables it.
	RunTimeout Duration `json:"run_timeout"`

	MinDelay          Duration `json:"min_delay"`
	MaxDelay          Duration `json:"max_delay"`
	RequestsPerSecond float64  `json:"requests_per_second"`
	KeepLinkQuery     bool     `json:"keep_link_query"`

	// SkipDetails leaves every description as "N/A" without fetching detail pages.
	SkipDetails bool `json:"skip_details"`

	Browser   BrowserConfig  `json:"browser"`
	API       APIConfig      `json:"api"`
	Service   ServiceConfig  `json:"service"`
	Selectors Selectors      `json:"selectors"`
	Output    OutputConfig   `json:"output"`
	Database  DatabaseConfig `json:"database"`
}

type BrowserConfig struct {
	SearchURL      string   `json:"search_url"`
	Headless       bool     `json:"headless"`
	UserAgent      string   `json:"user_agent"`
	ScrollStep     int      `json:"scroll_step"`
	ScrollInterval Duration `json:"scroll_interval"`
	MaxScrollSteps int      `json:"max_scroll_steps"`
	WaitTimeout    Duration `json:"wait_timeout"`
	MaxTabs        int      `json:"max_tabs"`
}

type APIConfig struct {
	BaseURL     string `json:"base_url"`
	UserAgent   string `json:"user_agent"`
	OffsetParam string `json:"offset_param"`
	LimitParam  string `json:"limit_param"`
}

type ServiceConfig struct {
	BaseURL      string   `json:"base_url"`
	ActorID      string   `json:"actor_id"`
	Token        string   `json:"token"`
	PollInterval Duration `json:"poll_interval"`
	RunTimeout   Duration `json:"run_timeout"`
}

// Selectors locate listing fields in rendered or fetched markup.
type Selectors struct {
	Container    string `json:"container"`
	Card         string `json:"card"`
	Title        string `json:"title"`
	Organization string `json:"organization"`
	Location     string `json:"location"`
	Link         string `json:"link"`
	NextPage     string `json:"next_page"`
	Detail       string `json:"detail"`
}

type OutputConfig struct {
	Dir   string `json:"dir"`
	Chart bool   `json:"chart"`
}

type DatabaseConfig struct {
	Enabled  bool   `json:"enabled"`
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Name     string `json:"name"`
	SSLMode  string `json:"sslmode"`
}

func (d DatabaseConfig) ConnString() string {
	if d.DSN != "" {
		return d.DSN
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User,
		d.Password,
		d.Host,
		d.Port,
		d.Name,
		d.SSLMode,
	)
}

func DefaultConfig() Config {
	return Config{
		Backend:  BackendBrowser,
		Keyword:  "DevOps",
		Location: "",

		MaxPages:   20,
		PageSize:   25,
		MaxWorkers: 3,

		MaxRetries:    3,
		Backoff:       "exponential",
		RetryDelay:    Duration(2 * time.Second),
		MaxRetryDelay: Duration(30 * time.Second),

		RequestTimeout: Duration(60 * time.Second),
		DetailTimeout:  Duration(15 * time.Second),
		RunTimeout:     Duration(30 * time.Minute),

		MinDelay:          Duration(1 * time.Second),
		MaxDelay:          Duration(3 * time.Second),
		RequestsPerSecond: 1,

		Browser: BrowserConfig{
			SearchURL:      "https://www.linkedin.com/jobs/search/",
			Headless:       true,
			UserAgent:      "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			ScrollStep:     200,
			ScrollInterval: Duration(100 * time.Millisecond),
			MaxScrollSteps: 300,
			WaitTimeout:    Duration(15 * time.Second),
			MaxTabs:        3,
		},
		API: APIConfig{
			BaseURL:     "https://www.linkedin.com/jobs-guest/jobs/api/seeMoreJobPostings/search",
			UserAgent:   "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			OffsetParam: "start",
		},
		Service: ServiceConfig{
			BaseURL:      "https://api.apify.com",
			ActorID:      "",
			PollInterval: Duration(5 * time.Second),
			RunTimeout:   Duration(10 * time.Minute),
		},
		Selectors: Selectors{
			Container:    "ul.jobs-search__results-list",
			Card:         "li",
			Title:        "h3",
			Organization: "h4",
			Location:     ".job-search-card__location",
			Link:         "a",
			NextPage:     `button[aria-label="Next"]`,
			Detail:       ".show-more-less-html__markup",
		},
		Output: OutputConfig{
			Dir: "output",
		},
		Database: DatabaseConfig{
			Host:    "localhost",
			Port:    5432,
			User:    "postgres",
			Name:    "jobs_scraper",
			SSLMode: "disable",
		},
	}
}

func (c Config) Validate() error {
	var errs []error

	switch c.Backend {
	case BackendBrowser, BackendAPI, BackendService:
	default:
		errs = append(errs, fmt.Errorf("unknown backend %q (use browser, api or service)", c.Backend))
	}
	if c.MaxPages <= 0 {
		errs = append(errs, errors.New("max_pages must be positive"))
	}
	if c.PageSize <= 0 {
		errs = append(errs, errors.New("page_size must be positive"))
	}
	if c.MaxWorkers <= 0 || c.MaxWorkers > 16 {
		errs = append(errs, errors.New("max_workers must be between 1 and 16"))
	}
	if c.MaxRetries <= 0 {
		errs = append(errs, errors.New("max_retries must be positive"))
	}
	switch strings.ToLower(c.Backoff) {
	case "fixed", "exponential":
	default:
		errs = append(errs, fmt.Errorf("unknown backoff %q (use fixed or exponential)", c.Backoff))
	}
	if c.RequestTimeout <= 0 || c.DetailTimeout <= 0 {
		errs = append(errs, errors.New("request and detail timeouts must be positive"))
	}
	if c.MinDelay > c.MaxDelay {
		errs = append(errs, errors.New("min_delay must not exceed max_delay"))
	}
	if c.Backend == BackendBrowser && (c.Browser.MaxScrollSteps <= 0 || c.Browser.WaitTimeout <= 0) {
		errs = append(errs, errors.New("browser max_scroll_steps and wait_timeout must be positive"))
	}
	if c.Backend == BackendService && c.Service.ActorID == "" {
		errs = append(errs, errors.New("service.actor_id is required for the service backend"))
	}
	if c.Selectors.Card == "" {
		errs = append(errs, errors.New("selectors.card is required"))
	}

	return errors.Join(errs...)
}
