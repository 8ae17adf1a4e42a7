// Package ha talks to the Home Assistant hub: a REST client for states,
// service calls and history, and a WebSocket listener for the live
// state_changed stream.
package ha

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Entity is one HA entity state snapshot.
type Entity struct {
	EntityID     string `json:"entity_id"`
	Name         string `json:"name"`
	State        string `json:"state"`
	FriendlyName string `json:"friendly_name"`
	DeviceClass  string `json:"device_class"`
}

// Area is one room discovered through the template API, with its entities.
type Area struct {
	Name     string   `json:"name"`
	Entities []Entity `json:"entities"`
}

// HistoryPoint is a single sample of an entity's recorded history.
type HistoryPoint struct {
	At    time.Time
	State string
}

// HistoryResult is a fetched history window, with the exact bounds used.
type HistoryResult struct {
	Points []HistoryPoint
	Start  time.Time
	End    time.Time
}

type Client struct {
	baseURL string
	token   string
	hc      *http.Client
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		hc:      &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	res, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("hub api %s: %s", res.Status, strings.TrimSpace(string(raw)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(res.Body).Decode(out)
}

func (c *Client) postTemplate(ctx context.Context, template string, out any) error {
	return c.do(ctx, http.MethodPost, "/api/template", map[string]string{"template": template}, out)
}

// StatesByIDs fetches current state, friendly name and device class for the
// given entities in one round trip through the template API.
func (c *Client) StatesByIDs(ctx context.Context, entityIDs []string) ([]Entity, error) {
	if len(entityIDs) == 0 {
		return nil, nil
	}
	idsJSON, err := json.Marshal(entityIDs)
	if err != nil {
		return nil, err
	}
	template := fmt.Sprintf(`[
  {%%- set items = %s -%%}
  {%%- for eid in items -%%}
  {
    "entity_id": "{{ eid }}",
    "state": "{{ states(eid) }}",
    "friendly_name": "{{ state_attr(eid, 'friendly_name') | default('', true) | replace('"', '\\"') }}",
    "device_class": "{{ state_attr(eid, 'device_class') | default('', true) }}"
  }{{ "," if not loop.last }}
  {%%- endfor -%%}
]`, idsJSON)

	var out []Entity
	if err := c.postTemplate(ctx, template, &out); err != nil {
		return nil, fmt.Errorf("fetch states: %w", err)
	}
	return out, nil
}

// Areas lists rooms and their interesting entities for the startup sync.
func (c *Client) Areas(ctx context.Context) ([]Area, error) {
	var out []Area
	if err := c.postTemplate(ctx, areasTemplate, &out); err != nil {
		return nil, fmt.Errorf("fetch areas: %w", err)
	}
	return out, nil
}

// CallService invokes a domain service on an entity, e.g. ("light",
// "turn_on", "light.kitchen").
func (c *Client) CallService(ctx context.Context, domain, service, entityID string) error {
	return c.CallServiceData(ctx, domain, service, entityID, nil)
}

// CallServiceData invokes a service with extra payload fields.
func (c *Client) CallServiceData(ctx context.Context, domain, service, entityID string, data map[string]any) error {
	body := map[string]any{"entity_id": entityID}
	for k, v := range data {
		body[k] = v
	}
	path := fmt.Sprintf("/api/services/%s/%s", domain, service)
	if err := c.do(ctx, http.MethodPost, path, body, nil); err != nil {
		return fmt.Errorf("call %s.%s: %w", domain, service, err)
	}
	return nil
}

type historyItem struct {
	State       string    `json:"state"`
	LastUpdated time.Time `json:"last_updated"`
}

// History fetches recorded samples for an entity over a window of the given
// size, shifted by offset hours from now (negative = into the past). A window
// with no samples is backfilled with the current state so charts never come
// out empty, and the last sample is extended to the window end.
func (c *Client) History(ctx context.Context, entityID string, hours uint32, offset int32) (*HistoryResult, error) {
	now := time.Now().UTC()
	end := now.Add(time.Duration(offset) * time.Hour)
	start := end.Add(-time.Duration(hours) * time.Hour)

	path := fmt.Sprintf("/api/history/period/%s?end_time=%s&filter_entity_id=%s&no_attributes",
		url.PathEscape(start.Format(time.RFC3339)),
		url.QueryEscape(end.Format(time.RFC3339)),
		url.QueryEscape(entityID),
	)

	var raw [][]historyItem
	if err := c.do(ctx, http.MethodGet, path, nil, &raw); err != nil {
		return nil, fmt.Errorf("fetch history: %w", err)
	}

	var points []HistoryPoint
	for _, series := range raw {
		for _, item := range series {
			points = append(points, HistoryPoint{At: item.LastUpdated, State: item.State})
		}
	}

	if len(points) == 0 {
		// Gap in the recorder; anchor the window with the current state.
		var current struct {
			State string `json:"state"`
		}
		if err := c.do(ctx, http.MethodGet, "/api/states/"+url.PathEscape(entityID), nil, &current); err == nil && current.State != "" {
			points = append(points, HistoryPoint{At: start, State: current.State})
		}
	}
	if len(points) > 0 {
		last := points[len(points)-1]
		points = append(points, HistoryPoint{At: end, State: last.State})
	}

	return &HistoryResult{Points: points, Start: start, End: end}, nil
}

const areasTemplate = `[
  {%- set ns_room = namespace(first=true) -%}
  {%- for a in areas() -%}
    {%- set area_ents = area_entities(a) -%}
    {%- set valid = namespace(items=[]) -%}
    {%- for e in area_ents -%}
      {%- set d = e.split('.')[0] -%}
      {%- if d in ['light', 'switch', 'sensor', 'binary_sensor', 'climate'] -%}
        {%- set valid.items = valid.items + [e] -%}
      {%- endif -%}
    {%- endfor -%}
    {%- if valid.items | length > 0 -%}
      {{ "," if not ns_room.first }}
      {
        "name": "{{ area_name(a) | default(a, true) }}",
        "entities": [
          {%- for e in valid.items -%}
            {
              "entity_id": "{{ e }}",
              "name": "{{ state_attr(e, 'friendly_name') | default(e, true) | replace('"', '\\"') }}",
              "state": "{{ states(e) }}",
              "device_class": "{{ state_attr(e, 'device_class') | default('', true) }}"
            }{{ "," if not loop.last }}
          {%- endfor -%}
        ]
      }
      {%- set ns_room.first = false -%}
    {%- endif -%}
  {%- endfor -%}
]`
