package cls

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"newsradar/internal/domain"
)

const (
	defaultFetchTimeout = 15 * time.Second
	userAgent           = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	referer             = "https://www.cls.cn/telegraph"
)

// Client pulls the CLS telegraph feed.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	location     *time.Location
	fetchTimeout time.Duration
	now          func() time.Time
}

func NewClient(baseURL string, httpClient *http.Client, loc *time.Location) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if loc == nil {
		loc = time.Local
	}
	return &Client{
		baseURL:      baseURL,
		httpClient:   httpClient,
		location:     loc,
		fetchTimeout: defaultFetchTimeout,
		now:          time.Now,
	}
}

func (c *Client) Name() string {
	return "cls"
}

// Fetch returns up to limit items, newest first as the source orders them.
func (c *Client) Fetch(ctx context.Context, limit int) ([]domain.NewsItem, error) {
	ctx, cancel := context.WithTimeout(ctx, c.fetchTimeout)
	defer cancel()

	now := c.now()
	reqURL, err := c.requestURL(limit, now)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrFetchFailed, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: creating request: %v", domain.ErrFetchFailed, err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Referer", referer)
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("Accept-Language", "zh-CN,zh;q=0.9,en;q=0.8")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		return nil, fmt.Errorf("%w: status %d: %s", domain.ErrFetchFailed, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var raw telegraphResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", domain.ErrFetchFailed, err)
	}

	entries := raw.Data.RollData
	if len(entries) == 0 {
		entries = raw.Data.Telegraph
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: no items in response", domain.ErrFetchFailed)
	}

	items := make([]domain.NewsItem, 0, len(entries))
	for _, e := range entries {
		text := strings.TrimSpace(e.Title + " " + e.Content)
		if text == "" {
			continue
		}
		id := rawID(e.ID)
		if id == "" {
			id = TextID(text)
		}
		published := now.In(c.location)
		if e.CTime > 0 {
			published = time.Unix(e.CTime, 0).In(c.location)
		}
		items = append(items, domain.NewsItem{ID: id, PublishedAt: published, Text: text})
	}
	log.Printf("cls fetch limit=%d received=%d kept=%d", limit, len(entries), len(items))
	return items, nil
}

func (c *Client) requestURL(limit int, now time.Time) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse source url: %w", err)
	}
	q := u.Query()
	q.Set("rn", strconv.Itoa(limit))
	q.Set("_", strconv.FormatInt(now.Unix(), 10))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// TextID derives a stable id for items the source sent without one.
func TextID(text string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	return "h" + strconv.FormatUint(h.Sum64(), 16)
}

func rawID(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

type telegraphResponse struct {
	Data struct {
		RollData  []telegraphItem `json:"roll_data"`
		Telegraph []telegraphItem `json:"telegraph"`
	} `json:"data"`
}

type telegraphItem struct {
	ID      json.RawMessage `json:"id"`
	Title   string          `json:"title"`
	Content string          `json:"content"`
	CTime   int64           `json:"ctime"`
}
