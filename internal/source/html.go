package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/stacklok/seatwatch/internal/course"
	"github.com/stacklok/seatwatch/internal/httpclient"
)

// HTMLAdapter scrapes the registration system's search page.
//
// The page is expected to contain a table row whose id contains the CRN, with a
// cell of class "status" (open when its text contains "open") and a cell of
// class "seats" holding the number of free seats.
type HTMLAdapter struct {
	searchURL string
	client    httpclient.Client
}

var _ Adapter = (*HTMLAdapter)(nil)

// NewHTMLAdapter creates an adapter querying {baseURL}/search
func NewHTMLAdapter(baseURL string, client httpclient.Client) *HTMLAdapter {
	return &HTMLAdapter{
		searchURL: strings.TrimRight(baseURL, "/") + "/search",
		client:    client,
	}
}

// SearchURL returns the URL queried for a course section
func (a *HTMLAdapter) SearchURL(crn string, year int, semester course.Semester) string {
	q := url.Values{}
	q.Set("term", strconv.Itoa(year)+semester.TermCode())
	q.Set("crn", crn)
	return a.searchURL + "?" + q.Encode()
}

// Fetch retrieves and parses the search page for the course section
func (a *HTMLAdapter) Fetch(
	ctx context.Context, crn string, year int, semester course.Semester,
) (*course.Availability, error) {
	body, err := a.client.Get(ctx, a.SearchURL(crn, year, semester))
	if err != nil {
		return nil, classifyRequestError(ctx, err)
	}

	avail, err := parseAvailability(body, crn)
	if err != nil {
		slog.Warn("Failed to read availability", "crn", crn, "year", year, "semester", semester, "error", err)
		return nil, err
	}
	return avail, nil
}

func classifyRequestError(ctx context.Context, err error) error {
	var httpErr *httpclient.HTTPError
	if errors.As(err, &httpErr) {
		return &Error{Kind: KindHTTP, StatusCode: httpErr.StatusCode, Err: err}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: KindTimeout, Err: err}
	}

	// a caller cancellation is not a source failure
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return &Error{Kind: KindHTTP, Err: err}
}

func parseAvailability(body []byte, crn string) (*course.Availability, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, &Error{Kind: KindParse, Err: errors.New("empty response body")}
	}

	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Kind: KindParse, Err: err}
	}

	row := findNode(doc, func(n *html.Node) bool {
		return n.DataAtom == atom.Tr && strings.Contains(attr(n, "id"), crn)
	})
	if row == nil {
		return nil, &Error{Kind: KindNotFound, Err: fmt.Errorf("no row for CRN %s", crn)}
	}

	var avail course.Availability

	if status := findNode(row, isCellWithClass("status")); status != nil {
		avail.IsOpen = strings.Contains(strings.ToLower(textContent(status)), "open")
	}
	if seats := findNode(row, isCellWithClass("seats")); seats != nil {
		// unparseable or negative counts read as zero
		if n, err := strconv.Atoi(textContent(seats)); err == nil && n > 0 {
			avail.SeatsAvailable = n
		}
	}
	return &avail, nil
}

func isCellWithClass(class string) func(*html.Node) bool {
	return func(n *html.Node) bool {
		if n.DataAtom != atom.Td {
			return false
		}
		for _, c := range strings.Fields(attr(n, "class")) {
			if c == class {
				return true
			}
		}
		return false
	}
}

// findNode returns the first element in document order matching pred
func findNode(n *html.Node, pred func(*html.Node) bool) *html.Node {
	if n.Type == html.ElementNode && pred(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findNode(c, pred); found != nil {
			return found
		}
	}
	return nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(sb.String())
}
