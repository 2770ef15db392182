package ced

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"

	"github.com/JeffersonLab/ced2gnn/api"
)

// Client queries the CED web API. It implements TypeSource for lazy type
// catalog lookups and serves the element inventory query.
type Client struct {
	http *http.Client
	cfg  api.CED
}

// NewClient builds a client from the ced section of the config.
func NewClient(cfg api.CED, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{http: httpClient, cfg: cfg}
}

var (
	elementsPath = jp.MustParseString("$.Inventory.elements[*]")
	statPath     = jp.MustParseString("$.stat")
	parentsPath  = jp.MustParseString("$.Type.parents[*]")
)

// Inventory fetches the configured elements. The response order is the
// inventory order and is preserved.
func (c *Client) Inventory(ctx context.Context) ([]Element, error) {
	q := url.Values{}
	q.Set("out", "json")
	if c.cfg.Zone != "" {
		q.Set("z", c.cfg.Zone)
	}
	q.Set("t", strings.Join(c.cfg.Types, ","))
	if len(c.cfg.Properties) > 0 {
		q.Set("p", strings.Join(c.cfg.Properties, ","))
	}
	if c.cfg.Workspace != "" {
		q.Set("wrkspc", c.cfg.Workspace)
	}
	if c.cfg.History {
		q.Set("h", "1")
	}
	// Expression names sorted so the query (and thus any server-side
	// logging) is reproducible run to run.
	names := make([]string, 0, len(c.cfg.Expressions))
	for name := range c.cfg.Expressions {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		q.Add("Ex", name+"="+c.cfg.Expressions[name])
	}

	root, err := c.getJSON(ctx, "/inventory/elements", q)
	if err != nil {
		return nil, err
	}

	var elements []Element
	for _, raw := range elementsPath.Get(root) {
		m, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("inventory: element entry is not an object")
		}
		el := Element{
			Name:        str(m["name"]),
			Type:        str(m["type"]),
			Properties:  strMap(m["properties"]),
			Expressions: strMap(m["expressions"]),
		}
		if el.Name == "" || el.Type == "" {
			return nil, fmt.Errorf("inventory: element missing name or type")
		}
		elements = append(elements, el)
	}
	return elements, nil
}

// Parents implements TypeSource against the CED type catalog.
func (c *Client) Parents(ctx context.Context, typeName string) ([]string, error) {
	q := url.Values{}
	q.Set("out", "json")
	q.Set("name", typeName)
	root, err := c.getJSON(ctx, "/catalog/type", q)
	if err != nil {
		return nil, err
	}
	var parents []string
	for _, raw := range parentsPath.Get(root) {
		if s := str(raw); s != "" {
			parents = append(parents, s)
		}
	}
	return parents, nil
}

func (c *Client) getJSON(ctx context.Context, path string, q url.Values) (any, error) {
	u := strings.TrimRight(c.cfg.Server, "/") + path + "?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ced request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ced server returned %d for %s", resp.StatusCode, u)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("ced response: %w", err)
	}
	root, err := oj.Parse(body)
	if err != nil {
		return nil, fmt.Errorf("ced response decode: %w", err)
	}
	if stats := statPath.Get(root); len(stats) > 0 && str(stats[0]) != "ok" {
		return nil, fmt.Errorf("ced server reported stat=%v for %s", stats[0], u)
	}
	return root, nil
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func strMap(v any) map[string]string {
	m, ok := v.(map[string]any)
	if !ok || len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, raw := range m {
		switch t := raw.(type) {
		case string:
			out[k] = t
		default:
			out[k] = fmt.Sprintf("%v", t)
		}
	}
	return out
}
