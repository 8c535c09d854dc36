package testutil

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/bissquit/incident-console/api/openapi"
	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/legacy"
)

// ErrNoRoute is returned for requests the contract does not describe.
var ErrNoRoute = errors.New("no route in contract")

// outOfContract lists endpoints that do not speak JSON.
var outOfContract = map[string]bool{
	"/healthz":                true,
	"/readyz":                 true,
	"/version":                true,
	"/api/openapi.yaml":       true,
	"/api/v1/catalog/export/": true,
}

// Contract checks traffic against the embedded OpenAPI document.
type Contract struct {
	doc    *openapi3.T
	router routers.Router
}

// LoadContract parses and validates the embedded OpenAPI document.
func LoadContract() (*Contract, error) {
	doc, err := openapi3.NewLoader().LoadFromData(openapi.Spec)
	if err != nil {
		return nil, fmt.Errorf("load openapi document: %w", err)
	}
	if err := doc.Validate(context.Background()); err != nil {
		return nil, fmt.Errorf("validate openapi document: %w", err)
	}

	router, err := legacy.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("create openapi router: %w", err)
	}
	return &Contract{doc: doc, router: router}, nil
}

// Check validates one exchange. Bodies are passed separately because both
// streams have been consumed by the time the exchange is checked.
func (c *Contract) Check(ctx context.Context, req *http.Request, reqBody []byte, status int, header http.Header, respBody []byte) error {
	if outOfContract[req.URL.Path] {
		return nil
	}

	// The document's only server is "/", so routes are matched on the path alone.
	routeReq := req.Clone(ctx)
	routeReq.URL.Scheme, routeReq.URL.Host, routeReq.Host = "", "", ""
	routeReq.Body = io.NopCloser(bytes.NewReader(reqBody))

	route, params, err := c.router.FindRoute(routeReq)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %w", ErrNoRoute, req.Method, req.URL.Path, err)
	}

	in := &openapi3filter.RequestValidationInput{
		Request:    routeReq,
		PathParams: params,
		Route:      route,
		Options: &openapi3filter.Options{
			MultiError:         true,
			AuthenticationFunc: openapi3filter.NoopAuthenticationFunc,
		},
	}

	var errs []error
	if err := openapi3filter.ValidateRequest(ctx, in); err != nil {
		errs = append(errs, fmt.Errorf("request: %w", err))
	}
	if err := openapi3filter.ValidateResponse(ctx, &openapi3filter.ResponseValidationInput{
		RequestValidationInput: in,
		Status:                 status,
		Header:                 header,
		Body:                   io.NopCloser(bytes.NewReader(respBody)),
		Options: &openapi3filter.Options{
			MultiError:            true,
			IncludeResponseStatus: true,
		},
	}); err != nil {
		errs = append(errs, fmt.Errorf("response %d: %w", status, err))
	}
	return errors.Join(errs...)
}
