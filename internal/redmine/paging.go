package redmine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
)

// Page is one page of a list endpoint.
type Page struct {
	Offset   int               // Offset the page was requested at
	Items    []json.RawMessage // Raw records under the data key
	Total    int               // Value of total_count, when HasTotal
	HasTotal bool
}

// List walks a paginated list endpoint, handing each page to consume before
// requesting the next one. Paging stops when the response carries no
// total_count, when the items seen reach it, or when a page comes back empty.
// An error from consume stops the traversal and is returned as is.
func (c *Client) List(ctx context.Context, path, dataKey string, query url.Values, consume func(Page) error) error {
	pageSize := c.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	offset := 0
	for {
		if ctx.Err() != nil {
			return ErrInterrupted
		}

		params := url.Values{}
		for k, v := range query {
			params[k] = v
		}
		params.Set("limit", strconv.Itoa(pageSize))
		if offset > 0 {
			params.Set("offset", strconv.Itoa(offset))
		}

		body, err := c.getJSON(ctx, path, params)
		if err != nil {
			return err
		}

		page, err := decodePage(path, dataKey, body)
		if err != nil {
			return err
		}
		page.Offset = offset

		if err := consume(page); err != nil {
			return err
		}

		offset += len(page.Items)
		if !page.HasTotal || offset >= page.Total || len(page.Items) == 0 {
			return nil
		}
	}
}

func decodePage(path, dataKey string, body []byte) (Page, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return Page{}, &RemoteFetchError{Endpoint: path, Reason: "malformed response", Err: err}
	}

	raw, ok := envelope[dataKey]
	if !ok {
		return Page{}, &RemoteFetchError{Endpoint: path, Reason: fmt.Sprintf("response has no %q field", dataKey)}
	}

	var page Page
	if err := json.Unmarshal(raw, &page.Items); err != nil {
		return Page{}, &RemoteFetchError{Endpoint: path, Reason: fmt.Sprintf("%q is not a list", dataKey), Err: err}
	}

	if total, ok := envelope["total_count"]; ok && string(total) != "null" {
		if err := json.Unmarshal(total, &page.Total); err != nil {
			return Page{}, &RemoteFetchError{Endpoint: path, Reason: "malformed total_count", Err: err}
		}
		page.HasTotal = true
	}
	return page, nil
}

// Lister is the paging surface of Client, satisfied by test doubles too.
type Lister interface {
	List(ctx context.Context, path, dataKey string, query url.Values, consume func(Page) error) error
}

// Each decodes every record of a list endpoint into T and passes each page
// of typed records to fn.
func Each[T any](ctx context.Context, l Lister, path, dataKey string, query url.Values, fn func([]T) error) error {
	return l.List(ctx, path, dataKey, query, func(p Page) error {
		items := make([]T, 0, len(p.Items))
		for _, raw := range p.Items {
			var item T
			if err := json.Unmarshal(raw, &item); err != nil {
				return &RemoteFetchError{Endpoint: path, Reason: "malformed record", Err: err}
			}
			items = append(items, item)
		}
		return fn(items)
	})
}

// ListAll collects every record of a list endpoint.
func ListAll[T any](ctx context.Context, l Lister, path, dataKey string, query url.Values) ([]T, error) {
	var all []T
	err := Each(ctx, l, path, dataKey, query, func(items []T) error {
		all = append(all, items...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return all, nil
}

// IsInterrupted reports whether err is, or wraps, ErrInterrupted.
func IsInterrupted(err error) bool {
	return errors.Is(err, ErrInterrupted)
}
