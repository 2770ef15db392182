package mya

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"
	"golang.org/x/time/rate"

	"github.com/JeffersonLab/ced2gnn/api"
)

// Error is a domain-level archiver failure (bad status from the mya web
// server, no channels to fetch). Callers skip the affected element on an
// Error but abort the run on transport failures.
type Error struct {
	Status int
	URL    string
	Msg    string
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("mya server returned %d for %s", e.Status, e.URL)
	}
	return "mya: " + e.Msg
}

// ErrDecode marks a malformed archiver payload. Recoverable when it hits a
// single element's samples, fatal when it hits the global data.
var ErrDecode = errors.New("malformed mya response")

// Row is one sampled timestamp: the archive date plus a channel → value
// mapping. Values stay strings so no-data markers (e.g. "<undefined>")
// survive untouched.
type Row struct {
	Date   string            `json:"date"`
	Values map[string]string `json:"values"`
}

// Value returns the sampled value for a channel.
func (r Row) Value(channel string) (string, bool) {
	v, ok := r.Values[channel]
	return v, ok
}

// Client issues mySampler queries, honoring the configured deployment and
// request throttle.
type Client struct {
	http       *http.Client
	server     string
	deployment string
	limiter    *rate.Limiter
}

// NewClient builds a client from the mya section of the config.
func NewClient(cfg api.Mya, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	var limiter *rate.Limiter
	if cfg.Throttle > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.Throttle), 1)
	}
	return &Client{
		http:       httpClient,
		server:     strings.TrimRight(cfg.Server, "/"),
		deployment: cfg.Deployment,
		limiter:    limiter,
	}
}

var dataPath = jp.MustParseString("$.data[*]")

// Sample fetches one window of values for the given channels. The returned
// rows are in archive time order, one per sampled timestamp.
func (c *Client) Sample(ctx context.Context, channels []string, w Window) ([]Row, error) {
	if len(channels) == 0 {
		return nil, &Error{Msg: "no channels to fetch"}
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	q := url.Values{}
	q.Set("b", w.Begin.Format("2006-01-02 15:04:05"))
	q.Set("s", FormatInterval(w.Interval))
	q.Set("n", strconv.Itoa(w.Samples()))
	q.Set("m", c.deployment)
	q.Set("channels", strings.Join(channels, " "))
	u := c.server + "/mySampler/data?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("mya request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, &Error{Status: resp.StatusCode, URL: u}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("mya response: %w", err)
	}
	return decodeRows(body)
}

// decodeRows flattens the archiver's response shape:
//
//	{"data":[
//	  {"date":"2021-11-10T00:00:00","values":[{"MQB0L09.BDL":"405.921"}]},
//	  ...
//	]}
func decodeRows(body []byte) ([]Row, error) {
	root, err := oj.Parse(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	var rows []Row
	for _, raw := range dataPath.Get(root) {
		m, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: data entry is not an object", ErrDecode)
		}
		date, _ := m["date"].(string)
		values, ok := m["values"].([]any)
		if !ok {
			return nil, fmt.Errorf("%w: values missing for %s", ErrDecode, date)
		}
		row := Row{Date: date, Values: make(map[string]string, len(values))}
		for _, entry := range values {
			pair, ok := entry.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%w: value entry is not an object", ErrDecode)
			}
			for channel, v := range pair {
				row.Values[channel] = formatValue(v)
			}
		}
		rows = append(rows, row)
	}
	if rows == nil {
		return nil, fmt.Errorf("%w: no data entries", ErrDecode)
	}
	return rows, nil
}

func formatValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case int64:
		return strconv.FormatInt(t, 10)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", t)
	}
}
