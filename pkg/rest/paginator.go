package rest

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/datazip-inc/gorgias-tap/types"
)

const (
	limitParam  = "limit"
	cursorParam = "cursor"
	offsetParam = "offset"
)

var ErrPaginationLoop = errors.New("pagination loop detected")

// Cursor is where a paginator starts: a continuation token, an offset, or nothing.
type Cursor struct {
	Token  string
	Offset int
}

// Page is the result of one fetch. An empty NextToken ends the sequence.
type Page struct {
	Number    int
	URL       string
	Records   []map[string]any
	NextToken string
}

// Paginator drives the fetches of one stream invocation. It is not safe for
// concurrent use; one paginator serves exactly one stream partition.
type Paginator struct {
	client *Client
	stream *types.StreamDefinition
	path   string
	params url.Values
}

// NewPaginator pages through path (already expanded) with the stream's static
// params plus extra.
func NewPaginator(client *Client, stream *types.StreamDefinition, path string, extra url.Values) *Paginator {
	params := url.Values{}
	for key, value := range stream.Params {
		params.Set(key, value)
	}
	for key, values := range extra {
		params[key] = values
	}
	return &Paginator{client: client, stream: stream, path: path, params: params}
}

func (p *Paginator) request(cursor Cursor) (string, url.Values) {
	params := url.Values{}
	for key, values := range p.params {
		params[key] = values
	}

	switch p.stream.Pagination {
	case types.PaginationNone, "":
		return p.path, params
	case types.PaginationNextURL:
		if cursor.Token != "" {
			// the link already carries every query parameter
			return cursor.Token, nil
		}
	case types.PaginationCursor:
		if cursor.Token != "" {
			params.Set(cursorParam, cursor.Token)
		}
	case types.PaginationOffset:
		params.Set(offsetParam, strconv.Itoa(cursor.Offset))
	}
	params.Set(limitParam, strconv.Itoa(p.client.PageSize()))
	return p.path, params
}

// Pages fetches pages lazily, one fetch per callback, in server order. The sequence
// ends on a missing continuation token or an empty page. A repeated token or more
// than MaxPages pages ends it with a terminal FetchError wrapping ErrPaginationLoop.
func (p *Paginator) Pages(ctx context.Context, start Cursor, fn func(*Page) error) error {
	cursor := start
	seen := map[string]struct{}{}
	if cursor.Token != "" {
		seen[cursor.Token] = struct{}{}
	}

	for number := 1; ; number++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		path, params := p.request(cursor)
		response, err := p.client.Get(ctx, path, params)
		if err != nil {
			var fetchErr *types.FetchError
			if errors.As(err, &fetchErr) {
				fetchErr.Stream = p.stream.Name
			}
			return err
		}

		records, err := p.records(response.Body)
		if err != nil {
			return err
		}

		page := &Page{Number: number, URL: response.URL, Records: records}
		if p.stream.Pagination != types.PaginationNone && p.stream.Pagination != "" && len(records) > 0 {
			page.NextToken, cursor = p.next(response.Body, cursor, len(records))
		}

		if err := fn(page); err != nil {
			return err
		}

		if page.NextToken == "" {
			return nil
		}
		if _, repeated := seen[page.NextToken]; repeated {
			return p.loopError(response.URL, fmt.Errorf("%w: token %q was already requested", ErrPaginationLoop, page.NextToken))
		}
		if number >= p.client.MaxPages() {
			return p.loopError(response.URL, fmt.Errorf("%w: exceeded %d pages", ErrPaginationLoop, p.client.MaxPages()))
		}
		seen[page.NextToken] = struct{}{}
	}
}

func (p *Paginator) next(body any, cursor Cursor, count int) (string, Cursor) {
	if p.stream.Pagination == types.PaginationOffset {
		if count < p.client.PageSize() {
			return "", cursor
		}
		next := Cursor{Offset: cursor.Offset + count}
		return strconv.Itoa(next.Offset), next
	}

	value, found := Lookup(body, p.stream.NextTokenPath)
	if !found {
		return "", cursor
	}
	token := fmt.Sprint(value)
	return token, Cursor{Token: token}
}

func (p *Paginator) records(body any) ([]map[string]any, error) {
	if body == nil {
		return nil, nil
	}

	value, found := Lookup(body, p.stream.RecordsPath)
	if !found {
		if p.stream.RecordsPath == "" {
			return nil, nil
		}
		return nil, &types.TransformError{Stream: p.stream.Name, Path: p.stream.RecordsPath, Err: errors.New("records not found in response")}
	}

	switch typed := value.(type) {
	case map[string]any:
		return []map[string]any{typed}, nil
	case []any:
		records := make([]map[string]any, 0, len(typed))
		for idx, element := range typed {
			record, ok := element.(map[string]any)
			if !ok {
				return nil, &types.TransformError{Stream: p.stream.Name, Path: fmt.Sprintf("%s[%d]", p.stream.RecordsPath, idx), Err: fmt.Errorf("expected object, got %T", element)}
			}
			records = append(records, record)
		}
		return records, nil
	default:
		return nil, &types.TransformError{Stream: p.stream.Name, Path: p.stream.RecordsPath, Err: fmt.Errorf("expected object or array, got %T", value)}
	}
}

func (p *Paginator) loopError(target string, err error) error {
	return &types.FetchError{Stream: p.stream.Name, URL: target, Err: err}
}
